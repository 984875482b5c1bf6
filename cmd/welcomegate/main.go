package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"welcome-gate/internal/analytics"
	"welcome-gate/internal/bot"
	"welcome-gate/internal/config"
	"welcome-gate/internal/health"
	"welcome-gate/internal/modules/access"
	"welcome-gate/internal/modules/activity"
	"welcome-gate/internal/modules/audit"
	"welcome-gate/internal/modules/guard"
	"welcome-gate/internal/modules/nickname"
	"welcome-gate/internal/modules/rejoin"
	"welcome-gate/internal/onboarding"
	"welcome-gate/internal/storage"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	messages, err := config.LoadMessages(cfg.MessagesPath)
	if err != nil {
		logger.Fatal("message templates unavailable", zap.String("path", cfg.MessagesPath), zap.Error(err))
	}

	store, err := storage.New(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	err = store.Ping(pingCtx)
	cancelPing()
	if err != nil {
		logger.Fatal("journal unreachable", zap.String("dialect", string(store.Dialect())), zap.Error(err))
	}
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	logger.Info("journal ready", zap.String("dialect", string(store.Dialect())))

	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		logger.Fatal("discord session init failed", zap.Error(err))
	}
	client := bot.NewClient(session)

	auditLogger := audit.NewLogger(store, logger)
	analyticsService := analytics.New(store)
	service := onboarding.New(client, onboarding.Options{
		ChannelPrefix:   cfg.Onboarding.ChannelPrefix,
		AdminRoleName:   cfg.AdminRoleName,
		AdminUserIDs:    cfg.AdminUserIDs,
		FollowUpDelay:   cfg.Onboarding.FollowUpDelay(),
		DeleteGrace:     cfg.Onboarding.DeleteGrace(),
		ActivityEnabled: cfg.Activity.Enabled,
		Timings: activity.Timings{
			Reminder: time.Duration(cfg.Activity.ReminderSeconds) * time.Second,
			Warning:  time.Duration(cfg.Activity.WarningSeconds) * time.Second,
			Kick:     time.Duration(cfg.Activity.KickSeconds) * time.Second,
		},
	}, messages, onboarding.Deps{
		Rejoin:   rejoin.New(cfg.Onboarding.RejoinWindow()),
		Guard:    guard.New(),
		Tracker:  activity.NewTracker(),
		Nickname: nickname.New(onboarding.RulesFrom(messages.Settings), logger),
		Access:   access.New(client, logger, cfg.Onboarding.SyncConcurrency),
		Audit:    auditLogger,
	}, logger)

	botSvc := bot.New(cfg, logger, session, client, service, auditLogger, analyticsService)

	// the hosting platform polls health while the gateway is still connecting
	var server *health.Server
	if cfg.Health.Enabled {
		server = health.New(cfg.Health.Addr, cfg.Health.MaxConns, botSvc.BotUser, logger)
		if err := server.Start(); err != nil {
			logger.Error("health endpoint unavailable", zap.Error(err))
			server = nil
		}
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 2*time.Minute)
	err = botSvc.Start(startCtx)
	cancelStart()
	if err != nil {
		if server != nil {
			_ = server.Shutdown(context.Background())
		}
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started",
		zap.String("category", messages.Settings.WelcomeCategory),
		zap.Bool("activity_monitor", cfg.Activity.Enabled))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(ctx)
	}
	if err := botSvc.Close(ctx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}
