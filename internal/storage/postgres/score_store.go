package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-vote-tracker/internal/domain"
	"solana-vote-tracker/internal/observability"
	"solana-vote-tracker/internal/storage"
)

// ScoreStore implements storage.ScoreStore using PostgreSQL.
//
// Scores are a derived cache, so this store upserts rather than enforcing
// append-only semantics: the ledger stays the source of truth and any row
// here can be regenerated by a recompute.
type ScoreStore struct {
	pool *Pool
}

// NewScoreStore creates a new ScoreStore.
func NewScoreStore(pool *Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

var _ storage.ScoreStore = (*ScoreStore)(nil)

// Upsert writes the aggregate for a submission, replacing any previous row.
func (s *ScoreStore) Upsert(ctx context.Context, score *domain.CommunityScore) error {
	if score == nil || score.SubmissionID == "" {
		return storage.ErrInvalidInput
	}

	updatedAt := score.UpdatedAt
	if updatedAt == 0 {
		updatedAt = time.Now().UnixMilli()
	}

	query := `
		INSERT INTO community_scores (submission_id, score, unique_voters, last_vote_time, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (submission_id) DO UPDATE SET
			score = EXCLUDED.score,
			unique_voters = EXCLUDED.unique_voters,
			last_vote_time = EXCLUDED.last_vote_time,
			updated_at = EXCLUDED.updated_at
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		score.SubmissionID,
		score.Score,
		score.UniqueVoters,
		score.LastVoteTime,
		updatedAt,
	)
	observability.RecordDBQuery("postgres", "upsert_score", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("upsert community score: %w", err)
	}
	return nil
}

// Get retrieves the cached aggregate. Returns ErrNotFound if never aggregated.
func (s *ScoreStore) Get(ctx context.Context, submissionID string) (*domain.CommunityScore, error) {
	query := `
		SELECT submission_id, score, unique_voters, last_vote_time, updated_at
		FROM community_scores
		WHERE submission_id = $1
	`

	var sc domain.CommunityScore
	err := s.pool.QueryRow(ctx, query, submissionID).Scan(
		&sc.SubmissionID,
		&sc.Score,
		&sc.UniqueVoters,
		&sc.LastVoteTime,
		&sc.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get community score: %w", err)
	}
	return &sc, nil
}

// GetAll retrieves all cached aggregates.
func (s *ScoreStore) GetAll(ctx context.Context) ([]*domain.CommunityScore, error) {
	query := `
		SELECT submission_id, score, unique_voters, last_vote_time, updated_at
		FROM community_scores
		ORDER BY submission_id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all community scores: %w", err)
	}
	defer rows.Close()

	var scores []*domain.CommunityScore
	for rows.Next() {
		var sc domain.CommunityScore
		err := rows.Scan(
			&sc.SubmissionID,
			&sc.Score,
			&sc.UniqueVoters,
			&sc.LastVoteTime,
			&sc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan community score row: %w", err)
		}
		scores = append(scores, &sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate community score rows: %w", err)
	}

	return scores, nil
}
