package clickhouse

import (
	"context"
	"fmt"

	"solana-vote-tracker/internal/domain"
	"solana-vote-tracker/internal/storage"
)

// ScoreHistoryStore implements storage.ScoreHistoryStore using ClickHouse.
// One point is appended per aggregator recompute; duplicates are harmless
// in the MergeTree and never checked.
type ScoreHistoryStore struct {
	conn *Conn
}

// NewScoreHistoryStore creates a new ScoreHistoryStore.
func NewScoreHistoryStore(conn *Conn) *ScoreHistoryStore {
	return &ScoreHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScoreHistoryStore = (*ScoreHistoryStore)(nil)

// InsertBulk adds history points.
func (s *ScoreHistoryStore) InsertBulk(ctx context.Context, points []*domain.ScorePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO score_history (
			submission_id, score, unique_voters, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.SubmissionID, p.Score, uint32(p.UniqueVoters), p.TimestampMs,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySubmission retrieves all points for a submission, ordered by timestamp ASC.
func (s *ScoreHistoryStore) GetBySubmission(ctx context.Context, submissionID string) ([]*domain.ScorePoint, error) {
	query := `
		SELECT submission_id, score, unique_voters, timestamp_ms
		FROM score_history
		WHERE submission_id = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("query score history: %w", err)
	}
	defer rows.Close()

	var points []*domain.ScorePoint
	for rows.Next() {
		var p domain.ScorePoint
		var voters uint32
		if err := rows.Scan(&p.SubmissionID, &p.Score, &voters, &p.TimestampMs); err != nil {
			return nil, fmt.Errorf("scan score history row: %w", err)
		}
		p.UniqueVoters = int(voters)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score history rows: %w", err)
	}

	return points, nil
}
