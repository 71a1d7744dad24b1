// Package api exposes the HTTP surface: the webhook receiver, the score
// and pool read endpoints, the websocket feed and operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"solana-vote-tracker/internal/broadcast"
	"solana-vote-tracker/internal/ingestion"
	"solana-vote-tracker/internal/observability"
	"solana-vote-tracker/internal/pool"
	"solana-vote-tracker/internal/scoring"
	"solana-vote-tracker/internal/storage"
)

// Options wires the server's collaborators.
type Options struct {
	Receiver   *ingestion.Receiver
	Scores     storage.ScoreStore
	Votes      storage.VoteStore
	History    storage.ScoreHistoryStore // optional
	Aggregator *scoring.Aggregator
	Tracker    *pool.Tracker
	Hub        *broadcast.Hub
}

// Server is the HTTP front of the vote tracker.
type Server struct {
	opts    Options
	mux     *http.ServeMux
	httpSrv *http.Server
	log     *logrus.Entry
	started time.Time
}

// NewServer builds the route table. Call ListenAndServe or mount Handler.
func NewServer(opts Options) *Server {
	s := &Server{
		opts:    opts,
		mux:     http.NewServeMux(),
		log:     logrus.WithField("process", "api"),
		started: time.Now(),
	}

	s.mux.HandleFunc("POST /webhook", s.handleWebhook)
	s.mux.HandleFunc("GET /scores", s.handleScores)
	s.mux.HandleFunc("GET /scores/{id}", s.handleScore)
	s.mux.HandleFunc("GET /scores/{id}/history", s.handleScoreHistory)
	s.mux.HandleFunc("GET /pool", s.handlePool)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.Handle("GET /metrics", observability.Handler())
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /reconcile", s.handleReconcile)

	return s
}

// Handler returns the route table for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down draining
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	s.log.WithField("addr", addr).Info("http server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
