package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/suspectuso/chainpay/internal/reconciler"
)

// StatsSource reports pipeline counters
type StatsSource interface {
	Stats() reconciler.Stats
}

// Server exposes liveness and pipeline status over HTTP
type Server struct {
	stats   StatsSource
	started time.Time
	log     *slog.Logger

	server *http.Server
}

func NewServer(stats StatsSource, log *slog.Logger) *Server {
	return &Server{
		stats:   stats,
		started: time.Now(),
		log:     log,
	}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/", s.handleHealth)
	return mux
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting health server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type statusResponse struct {
	reconciler.Stats
	Uptime string `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := sonnet.Marshal(statusResponse{
		Stats:  s.stats.Stats(),
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
	if err != nil {
		s.log.Error("encode status", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
