package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

const notLoggedIn = "Not logged in"

// Server answers liveness checks from the hosting platform.
type Server struct {
	addr     string
	maxConns int
	botUser  func() string
	logger   *zap.Logger
	server   *http.Server
}

// New builds a server. botUser reports the connected bot tag and may return
// "" before the gateway is ready.
func New(addr string, maxConns int, botUser func() string, logger *zap.Logger) *Server {
	s := &Server{addr: addr, maxConns: maxConns, botUser: botUser, logger: logger}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleHome)
	return mux
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{
		"message": "Discord Welcome Bot is running!",
		"status":  "active",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	user := ""
	if s.botUser != nil {
		user = s.botUser()
	}
	if user == "" {
		user = notLoggedIn
	}
	writeJSON(w, map[string]string{"status": "ok", "bot_user": user})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	if s.maxConns > 0 {
		listener = netutil.LimitListener(listener, s.maxConns)
	}
	s.logger.Info("health endpoint enabled", zap.String("addr", listener.Addr().String()))
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("health server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
