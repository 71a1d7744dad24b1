package storage

import (
	"context"

	"solana-vote-tracker/internal/domain"
)

// VoteStore provides access to the vote ledger. The ledger is append-only
// and is the single source of truth: every other aggregate in the system
// must be recomputable from it.
type VoteStore interface {
	// Insert adds a new vote record. Returns ErrDuplicateKey if the
	// signature already exists. Duplicate insert is a defined idempotent
	// no-op for callers, not an error condition to surface upstream.
	Insert(ctx context.Context, v *domain.VoteRecord) error

	// GetBySignature retrieves a record by signature. Returns ErrNotFound
	// if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.VoteRecord, error)

	// GetBySubmission retrieves all records resolved to a submission,
	// ordered by confirmation time ASC.
	GetBySubmission(ctx context.Context, submissionID string) ([]*domain.VoteRecord, error)

	// GetBySender retrieves all records from a sender wallet, ordered by
	// confirmation time ASC.
	GetBySender(ctx context.Context, sender string) ([]*domain.VoteRecord, error)

	// GetAll retrieves the full ledger ordered by confirmation time ASC.
	// Used only by the reconciliation sweep and backfill, never on the
	// webhook hot path.
	GetAll(ctx context.Context) ([]*domain.VoteRecord, error)

	// ListSubmissions returns the distinct resolved submission ids present
	// in the ledger.
	ListSubmissions(ctx context.Context) ([]string, error)
}

// ScoreStore caches derived community scores. Unlike the ledger it is
// upsertable: rows are overwritten on every recompute and carry no
// authority of their own.
type ScoreStore interface {
	// Upsert writes the aggregate for a submission, replacing any previous row.
	Upsert(ctx context.Context, s *domain.CommunityScore) error

	// Get retrieves the cached aggregate. Returns ErrNotFound if the
	// submission has never been aggregated.
	Get(ctx context.Context, submissionID string) (*domain.CommunityScore, error)

	// GetAll retrieves all cached aggregates.
	GetAll(ctx context.Context) ([]*domain.CommunityScore, error)
}

// ScoreHistoryStore appends score timeseries points for analytics.
type ScoreHistoryStore interface {
	// InsertBulk adds history points. Best-effort analytics: callers log
	// and continue on error.
	InsertBulk(ctx context.Context, points []*domain.ScorePoint) error

	// GetBySubmission retrieves all points for a submission, ordered by
	// timestamp ASC.
	GetBySubmission(ctx context.Context, submissionID string) ([]*domain.ScorePoint, error)
}
