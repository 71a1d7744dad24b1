// Package scoring recomputes community scores from the vote ledger.
//
// Scores are derived data. Every recompute replays the full per-submission
// slice of the ledger, so a crash, a missed notification or a corrupted
// score row is repaired by the next recompute or by the periodic
// reconciliation sweep. Nothing in this package mutates scores
// incrementally.
package scoring

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"solana-vote-tracker/internal/domain"
	"solana-vote-tracker/internal/observability"
	"solana-vote-tracker/internal/storage"
	"solana-vote-tracker/internal/weight"
)

// Config holds the aggregator's runtime parameters.
type Config struct {
	Weight weight.Config

	// Voting window in unix ms. Zero means unbounded on that side.
	// Records outside the window stay in the ledger but never score.
	OpenTime  int64
	CloseTime int64

	// Debounce is how long dirty submissions are coalesced before a
	// recompute. A burst of votes for one submission costs one recompute.
	Debounce time.Duration

	// ReconcileInterval is the period of the full self-healing sweep.
	ReconcileInterval time.Duration
}

// DefaultConfig returns the aggregation parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		Weight:            weight.DefaultConfig(),
		Debounce:          2 * time.Second,
		ReconcileInterval: 10 * time.Minute,
	}
}

// Aggregator folds ledger records into per-submission community scores.
type Aggregator struct {
	cfg     Config
	votes   storage.VoteStore
	scores  storage.ScoreStore
	history storage.ScoreHistoryStore // optional, best-effort
	log     *logrus.Entry

	// onUpdate is invoked after a recompute that changed the cached
	// score, outside any lock. Used to fan out to broadcast.
	onUpdate func(*domain.CommunityScore)

	mu      sync.Mutex
	pending map[string]struct{}

	lastReconcile atomic.Int64 // unix ms of the last completed sweep
}

// NewAggregator creates an Aggregator. history and onUpdate may be nil.
func NewAggregator(cfg Config, votes storage.VoteStore, scores storage.ScoreStore, history storage.ScoreHistoryStore, onUpdate func(*domain.CommunityScore)) *Aggregator {
	return &Aggregator{
		cfg:      cfg,
		votes:    votes,
		scores:   scores,
		history:  history,
		onUpdate: onUpdate,
		log:      logrus.WithField("process", "scoring"),
		pending:  make(map[string]struct{}),
	}
}

// Enqueue marks a submission dirty. Safe for concurrent use; duplicate
// marks before the next flush coalesce into one recompute.
func (a *Aggregator) Enqueue(submissionID string) {
	if submissionID == "" {
		return
	}
	a.mu.Lock()
	a.pending[submissionID] = struct{}{}
	size := len(a.pending)
	a.mu.Unlock()
	observability.UpdateAggregationQueue(size)
}

// Run drives the debounce flush and the reconciliation sweep until ctx is
// cancelled. It performs one reconcile on startup so restarts converge
// before serving traffic-driven updates.
func (a *Aggregator) Run(ctx context.Context) {
	if err := a.Reconcile(ctx); err != nil {
		a.log.WithError(err).Error("startup reconcile failed")
	}

	flush := time.NewTicker(a.cfg.Debounce)
	defer flush.Stop()
	reconcile := time.NewTicker(a.cfg.ReconcileInterval)
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flush.C:
			a.flush(ctx)
		case <-reconcile.C:
			if err := a.Reconcile(ctx); err != nil {
				a.log.WithError(err).Error("reconcile sweep failed")
			}
		}
	}
}

// flush recomputes every submission marked dirty since the last flush.
func (a *Aggregator) flush(ctx context.Context) {
	a.mu.Lock()
	if len(a.pending) == 0 {
		a.mu.Unlock()
		return
	}
	dirty := a.pending
	a.pending = make(map[string]struct{})
	a.mu.Unlock()
	observability.UpdateAggregationQueue(0)

	for submissionID := range dirty {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := a.recompute(ctx, submissionID, "vote"); err != nil {
			a.log.WithField("submission_id", submissionID).WithError(err).Error("recompute failed")
			// The ledger row is durable, so requeue and let the next
			// flush or the sweep retry.
			a.Enqueue(submissionID)
		}
	}
}

// Recompute rebuilds one submission's score from the ledger. It reports
// whether the cached aggregate changed.
func (a *Aggregator) Recompute(ctx context.Context, submissionID string) (*domain.CommunityScore, bool, error) {
	return a.recompute(ctx, submissionID, "manual")
}

// Reconcile rebuilds every submission present in the ledger. Any drift
// between the score cache and the ledger is repaired here.
func (a *Aggregator) Reconcile(ctx context.Context) error {
	submissions, err := a.votes.ListSubmissions(ctx)
	if err != nil {
		return err
	}

	repaired := 0
	for _, submissionID := range submissions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, changed, err := a.recompute(ctx, submissionID, "reconcile")
		if err != nil {
			a.log.WithField("submission_id", submissionID).WithError(err).Error("reconcile recompute failed")
			continue
		}
		if changed {
			repaired++
			observability.RecordReconcileRepair()
		}
	}

	if repaired > 0 {
		a.log.WithFields(logrus.Fields{
			"submissions": len(submissions),
			"repaired":    repaired,
		}).Warn("reconcile sweep corrected drifted scores")
	}
	a.lastReconcile.Store(time.Now().UnixMilli())
	return nil
}

// LastReconcile reports when the last sweep completed, in unix ms. Zero
// before the first sweep.
func (a *Aggregator) LastReconcile() int64 {
	return a.lastReconcile.Load()
}

func (a *Aggregator) recompute(ctx context.Context, submissionID string, trigger string) (*domain.CommunityScore, bool, error) {
	start := time.Now()

	votes, err := a.votes.GetBySubmission(ctx, submissionID)
	if err != nil {
		return nil, false, err
	}

	totals := make(map[string]float64)
	lastTS := make(map[string]int64)
	for _, v := range votes {
		if !a.inWindow(v.ConfirmedAt) {
			continue
		}
		totals[v.Sender] += v.UIAmount()
		if v.ConfirmedAt > lastTS[v.Sender] {
			lastTS[v.Sender] = v.ConfirmedAt
		}
	}

	// Deterministic fold order keeps the float score bit-identical across
	// recomputes of the same ledger state.
	senders := make([]string, 0, len(totals))
	for sender := range totals {
		senders = append(senders, sender)
	}
	sort.Strings(senders)

	next := &domain.CommunityScore{SubmissionID: submissionID}
	for _, sender := range senders {
		w := weight.Weight(totals[sender], a.cfg.Weight)
		if w <= 0 {
			continue
		}
		next.Score += w
		next.UniqueVoters++
		if lastTS[sender] > next.LastVoteTime {
			next.LastVoteTime = lastTS[sender]
		}
	}
	next.UpdatedAt = time.Now().UnixMilli()

	prev, err := a.scores.Get(ctx, submissionID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}
	changed := prev == nil ||
		prev.Score != next.Score ||
		prev.UniqueVoters != next.UniqueVoters ||
		prev.LastVoteTime != next.LastVoteTime

	if err := a.scores.Upsert(ctx, next); err != nil {
		return nil, false, err
	}

	observability.RecordAggregation(trigger, time.Since(start).Seconds())

	if changed {
		if a.history != nil {
			point := &domain.ScorePoint{
				SubmissionID: submissionID,
				Score:        next.Score,
				UniqueVoters: next.UniqueVoters,
				TimestampMs:  next.UpdatedAt,
			}
			if err := a.history.InsertBulk(ctx, []*domain.ScorePoint{point}); err != nil {
				a.log.WithField("submission_id", submissionID).WithError(err).Warn("score history write failed")
			}
		}
		if a.onUpdate != nil {
			a.onUpdate(next)
		}
	}

	return next, changed, nil
}

func (a *Aggregator) inWindow(confirmedAt int64) bool {
	if a.cfg.OpenTime > 0 && confirmedAt < a.cfg.OpenTime {
		return false
	}
	if a.cfg.CloseTime > 0 && confirmedAt > a.cfg.CloseTime {
		return false
	}
	return true
}
