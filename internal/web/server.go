package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/example/court-scheduler/internal/scheduler"
)

// StatusSource is what the status endpoint reports on.
type StatusSource interface {
	Status() scheduler.Status
}

// Server exposes read-only run status next to the metrics handlers.
type Server struct {
	Status StatusSource
	// Metrics carries /metrics and /healthz; /status is added to it.
	Metrics *http.ServeMux
	Log     *log.Logger
}

func (s *Server) Routes() http.Handler {
	mux := s.Metrics
	if mux == nil {
		mux = http.NewServeMux()
	}
	mux.HandleFunc("/status", s.status)
	return mux
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Status.Status()); err != nil && s.Log != nil {
		s.Log.WithError(err).Warn("write status")
	}
}

// Start serves h on addr until ctx is done.
func Start(ctx context.Context, addr string, h http.Handler, logger *log.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.WithField("addr", addr).Info("status server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
