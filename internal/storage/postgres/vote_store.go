package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-vote-tracker/internal/domain"
	"solana-vote-tracker/internal/observability"
	"solana-vote-tracker/internal/storage"
)

// VoteStore implements storage.VoteStore using PostgreSQL.
//
// The unique constraint on votes.signature is the only synchronization the
// ledger needs: concurrent or replayed deliveries of the same transaction
// race on the insert and exactly one wins, regardless of process restarts
// or how many receiver instances are running.
type VoteStore struct {
	pool *Pool
}

// NewVoteStore creates a new VoteStore.
func NewVoteStore(pool *Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

// Compile-time interface check.
var _ storage.VoteStore = (*VoteStore)(nil)

const voteColumns = `id, signature, submission_id, sender, mint, raw_amount, decimals, memo, confirmed_at, created_at`

// Insert adds a new vote record. Returns ErrDuplicateKey if the signature exists.
func (s *VoteStore) Insert(ctx context.Context, v *domain.VoteRecord) error {
	if v == nil || v.Signature == "" || v.Sender == "" {
		return storage.ErrInvalidInput
	}

	createdAt := v.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}

	query := `
		INSERT INTO votes (
			signature, submission_id, sender, mint, raw_amount, decimals, memo, confirmed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		v.Signature,
		v.SubmissionID,
		v.Sender,
		v.Mint,
		int64(v.RawAmount),
		v.Decimals,
		v.Memo,
		v.ConfirmedAt,
		createdAt,
	)
	if isDuplicateKeyError(err) {
		// An expected outcome on redelivery, not a database failure: it
		// still lands in the latency histogram, just not the error count.
		observability.RecordDBQuery("postgres", "insert_vote", time.Since(start).Seconds(), nil)
		return storage.ErrDuplicateKey
	}
	observability.RecordDBQuery("postgres", "insert_vote", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// GetBySignature retrieves a record by signature. Returns ErrNotFound if not exists.
func (s *VoteStore) GetBySignature(ctx context.Context, signature string) (*domain.VoteRecord, error) {
	query := `SELECT ` + voteColumns + ` FROM votes WHERE signature = $1`

	row := s.pool.QueryRow(ctx, query, signature)
	v, err := scanVote(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get vote by signature: %w", err)
	}
	return v, nil
}

// GetBySubmission retrieves all records for a submission, ordered by confirmation time ASC.
func (s *VoteStore) GetBySubmission(ctx context.Context, submissionID string) ([]*domain.VoteRecord, error) {
	query := `
		SELECT ` + voteColumns + `
		FROM votes
		WHERE submission_id = $1
		ORDER BY confirmed_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("get votes by submission: %w", err)
	}
	defer rows.Close()

	return scanVotes(rows)
}

// GetBySender retrieves all records from a sender, ordered by confirmation time ASC.
func (s *VoteStore) GetBySender(ctx context.Context, sender string) ([]*domain.VoteRecord, error) {
	query := `
		SELECT ` + voteColumns + `
		FROM votes
		WHERE sender = $1
		ORDER BY confirmed_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, sender)
	if err != nil {
		return nil, fmt.Errorf("get votes by sender: %w", err)
	}
	defer rows.Close()

	return scanVotes(rows)
}

// GetAll retrieves the full ledger ordered by confirmation time ASC.
func (s *VoteStore) GetAll(ctx context.Context) ([]*domain.VoteRecord, error) {
	query := `SELECT ` + voteColumns + ` FROM votes ORDER BY confirmed_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all votes: %w", err)
	}
	defer rows.Close()

	return scanVotes(rows)
}

// ListSubmissions returns distinct resolved submission ids in the ledger.
func (s *VoteStore) ListSubmissions(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT submission_id FROM votes WHERE submission_id <> '' ORDER BY submission_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan submission id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission ids: %w", err)
	}
	return ids, nil
}

// scanVote scans a single row into a VoteRecord.
func scanVote(row pgx.Row) (*domain.VoteRecord, error) {
	var v domain.VoteRecord
	var rawAmount int64

	err := row.Scan(
		&v.ID,
		&v.Signature,
		&v.SubmissionID,
		&v.Sender,
		&v.Mint,
		&rawAmount,
		&v.Decimals,
		&v.Memo,
		&v.ConfirmedAt,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.RawAmount = uint64(rawAmount)
	return &v, nil
}

// scanVotes scans multiple rows into a slice of VoteRecord.
func scanVotes(rows pgx.Rows) ([]*domain.VoteRecord, error) {
	var votes []*domain.VoteRecord

	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote row: %w", err)
		}
		votes = append(votes, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote rows: %w", err)
	}

	return votes, nil
}
