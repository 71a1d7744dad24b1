package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"solana-vote-tracker/internal/broadcast"
	"solana-vote-tracker/internal/ingestion"
	"solana-vote-tracker/internal/observability"
	"solana-vote-tracker/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The feed is public and read-only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebhook ingests one provider delivery. Any decodable body gets a
// 200, duplicates and rejections included: a non-200 would only make the
// provider redeliver events we have already judged.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	events, err := ingestion.DecodeBatch(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "undecodable webhook body")
		return
	}

	result := s.opts.Receiver.ProcessBatch(r.Context(), events)
	observability.RecordIngestLatency(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, result)
}

// handleScores lists every aggregated submission, best score first.
func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.opts.Scores.GetAll(r.Context())
	if err != nil {
		s.log.WithError(err).Error("score listing failed")
		writeError(w, http.StatusInternalServerError, "score listing failed")
		return
	}

	payloads := make([]broadcast.ScorePayload, 0, len(scores))
	for _, score := range scores {
		payloads = append(payloads, broadcast.NewScorePayload(score))
	}
	sort.Slice(payloads, func(i, j int) bool {
		a, b := payloads[i], payloads[j]
		if (a.Score == nil) != (b.Score == nil) {
			return a.Score != nil
		}
		if a.Score != nil && *a.Score != *b.Score {
			return *a.Score > *b.Score
		}
		return a.SubmissionID < b.SubmissionID
	})

	writeJSON(w, http.StatusOK, map[string]any{"scores": payloads})
}

// handleScore returns one submission's aggregate.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	submissionID := r.PathValue("id")

	score, err := s.opts.Scores.Get(r.Context(), submissionID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown submission")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("score lookup failed")
		writeError(w, http.StatusInternalServerError, "score lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, broadcast.NewScorePayload(score))
}

// handleScoreHistory returns the score timeseries for charting.
func (s *Server) handleScoreHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusNotFound, "score history disabled")
		return
	}

	points, err := s.opts.History.GetBySubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.WithError(err).Error("score history lookup failed")
		writeError(w, http.StatusInternalServerError, "score history lookup failed")
		return
	}

	type historyPoint struct {
		Score        float64 `json:"score"`
		UniqueVoters int     `json:"unique_voters"`
		Timestamp    int64   `json:"timestamp"`
	}
	out := make([]historyPoint, 0, len(points))
	for _, p := range points {
		out = append(out, historyPoint{Score: p.Score, UniqueVoters: p.UniqueVoters, Timestamp: p.TimestampMs})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

// handlePool serves the last pool snapshot, stale or not. 503 only before
// the first successful poll.
func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.opts.Tracker.Snapshot()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "pool snapshot not ready")
		return
	}
	writeJSON(w, http.StatusOK, broadcast.NewPoolPayload(snapshot))
}

// handleWS upgrades to websocket and streams updates. A full snapshot of
// every score plus the pool state is queued before any live frame, and is
// replayed when the client sends {"type":"resync"}.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	s.opts.Hub.ServeConn(conn, s.snapshotFrames)
}

// snapshotFrames builds the full-state frames sent on connect and on
// resync requests. Best-effort: on storage failure the client starts from
// live frames only.
func (s *Server) snapshotFrames() [][]byte {
	scores, err := s.opts.Scores.GetAll(context.Background())
	if err != nil {
		s.log.WithError(err).Error("snapshot frame build failed")
		return nil
	}

	frames := make([][]byte, 0, len(scores)+1)
	for _, score := range scores {
		frame, err := broadcast.EncodeScoreUpdate(score)
		if err != nil {
			s.log.WithError(err).Error("snapshot frame build failed")
			return nil
		}
		frames = append(frames, frame)
	}

	if snapshot, ok := s.opts.Tracker.Snapshot(); ok {
		frame, err := broadcast.EncodePoolUpdate(snapshot)
		if err != nil {
			s.log.WithError(err).Error("snapshot frame build failed")
			return nil
		}
		frames = append(frames, frame)
	}

	return frames
}

// handleReconcile forces a full ledger sweep. Operational escape hatch:
// the periodic sweep repairs drift anyway, this just does it now.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Aggregator.Reconcile(r.Context()); err != nil {
		s.log.WithError(err).Error("manual reconcile failed")
		writeError(w, http.StatusInternalServerError, "reconcile failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconciled"})
}

// statusResponse is the JSON response for the /status endpoint.
type statusResponse struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	EventsReceived   int64  `json:"events_received"`
	EventsAccepted   int64  `json:"events_accepted"`
	EventsDuplicate  int64  `json:"events_duplicate"`
	Submissions      int    `json:"submissions"`
	LastReconcile    int64  `json:"last_reconcile,omitempty"`
	ConnectedClients int    `json:"connected_clients"`
	PoolReady        bool   `json:"pool_ready"`
	PoolStale        bool   `json:"pool_stale"`
	PoolLastUpdated  int64  `json:"pool_last_updated,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.opts.Receiver.Stats()
	resp := statusResponse{
		Status:           "ok",
		Uptime:           time.Since(s.started).Round(time.Second).String(),
		EventsReceived:   stats.Received,
		EventsAccepted:   stats.Accepted,
		EventsDuplicate:  stats.Duplicate,
		LastReconcile:    s.opts.Aggregator.LastReconcile(),
		ConnectedClients: s.opts.Hub.ClientCount(),
	}

	if submissions, err := s.opts.Votes.ListSubmissions(r.Context()); err == nil {
		resp.Submissions = len(submissions)
	}
	if snapshot, ok := s.opts.Tracker.Snapshot(); ok {
		resp.PoolReady = true
		resp.PoolStale = snapshot.Stale
		resp.PoolLastUpdated = snapshot.LastUpdatedMs
	}

	writeJSON(w, http.StatusOK, resp)
}
