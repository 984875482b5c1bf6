package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"welcome-gate/internal/analytics"
	"welcome-gate/internal/config"
	"welcome-gate/internal/modules/audit"
	"welcome-gate/internal/onboarding"
	"welcome-gate/internal/platform"

	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const (
	openRetries     = 5
	retentionPeriod = 24 * time.Hour
)

// Intents covers member joins and leaves, guild messages with content, and
// voice states for the activity monitor.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildVoiceStates

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	session    *discordgo.Session
	client     platform.Client
	onboarding *onboarding.Service
	audit      *audit.Logger
	analytics  *analytics.Service

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}

	mu       sync.RWMutex
	stopping bool
	inflight conc.WaitGroup
}

// NewSession creates a gateway session with the intents the bot needs.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = Intents
	session.StateEnabled = true
	return session, nil
}

func New(cfg config.Config, logger *zap.Logger, session *discordgo.Session, client platform.Client, service *onboarding.Service, auditLogger *audit.Logger, analyticsService *analytics.Service) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		cfg:        cfg,
		logger:     logger,
		session:    session,
		client:     client,
		onboarding: service,
		audit:      auditLogger,
		analytics:  analyticsService,
		ctx:        ctx,
		cancel:     cancel,
		stop:       make(chan struct{}),
	}
}

// Start registers the event handlers and opens the gateway, retrying the
// connection with exponential backoff.
func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onVoiceStateUpdate)
	b.session.AddHandler(b.onInteractionCreate)
	b.session.AddHandler(b.onChannelDelete)

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(time.Second),
		backoff.WithMaxInterval(30*time.Second),
	), openRetries)

	err := backoff.RetryNotify(func() error {
		err := b.session.Open()
		if errors.Is(err, discordgo.ErrWSAlreadyOpen) {
			return nil
		}
		return err
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		b.logger.Warn("gateway connect failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
	if err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}

	if url := InviteURL(b.cfg.ApplicationID); url != "" {
		b.logger.Info("invite url", zap.String("url", url))
	}
	b.startRetention()
	return nil
}

// BotUser is the connected bot's tag, empty before the gateway is ready.
func (b *Bot) BotUser() string {
	if b.session == nil || b.session.State == nil || b.session.State.User == nil {
		return ""
	}
	return b.session.State.User.String()
}

// Close stops accepting events, closes the gateway and waits for in-flight
// handlers until ctx expires. Handlers still running then are cancelled.
func (b *Bot) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.stopping {
		b.mu.Unlock()
		return nil
	}
	b.stopping = true
	close(b.stop)
	b.mu.Unlock()

	if b.session != nil {
		if err := b.session.Close(); err != nil {
			b.logger.Warn("gateway close failed", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		if recovered := b.inflight.WaitAndRecover(); recovered != nil {
			b.logger.Error("event handler panicked", zap.Error(recovered.AsError()))
		}
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		b.logger.Warn("shutdown deadline reached, cancelling handlers")
	}
	b.cancel()
	b.onboarding.Close()
	return err
}

// dispatch runs fn on a tracked goroutine unless the bot is shutting down.
func (b *Bot) dispatch(fn func(ctx context.Context)) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopping {
		return false
	}
	b.inflight.Go(func() { fn(b.ctx) })
	return true
}

// startRetention prunes the journal once at startup and then daily.
func (b *Bot) startRetention() {
	b.dispatch(func(ctx context.Context) {
		b.audit.Prune(ctx, b.cfg.RetentionDays)
		ticker := time.NewTicker(retentionPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-b.stop:
				return
			case <-ticker.C:
				b.audit.Prune(ctx, b.cfg.RetentionDays)
			}
		}
	})
}
