package ingestion

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"solana-vote-tracker/internal/domain"
	"solana-vote-tracker/internal/event"
	"solana-vote-tracker/internal/observability"
	"solana-vote-tracker/internal/storage"
)

// Config holds the receiver's validation parameters.
type Config struct {
	VoteMint   string // only transfers of this mint are votes
	VoteWallet string // only transfers into this wallet are votes
}

// Receiver validates provider webhook events and turns them into ledger
// rows. It owns no asynchronous work itself: accepted records are handed
// to the notify callback and the method returns, so the caller can ack the
// delivery without waiting on aggregation or broadcast.
type Receiver struct {
	cfg       Config
	votes     storage.VoteStore
	notify    func(submissionID string)
	publisher event.Publisher
	log       *logrus.Entry

	received  atomic.Int64
	accepted  atomic.Int64
	duplicate atomic.Int64
}

// Stats is a point-in-time view of the receiver's lifetime counters.
type Stats struct {
	Received  int64
	Accepted  int64
	Duplicate int64
}

// NewReceiver creates a Receiver. notify may be nil (no aggregation
// dispatch, used by backfill before the worker starts); publisher may be
// nil (event feed disabled).
func NewReceiver(cfg Config, votes storage.VoteStore, notify func(string), publisher event.Publisher) *Receiver {
	return &Receiver{
		cfg:       cfg,
		votes:     votes,
		notify:    notify,
		publisher: publisher,
		log:       logrus.WithField("process", "ingestion"),
	}
}

// Stats reports how many events the receiver has seen since start.
func (r *Receiver) Stats() Stats {
	return Stats{
		Received:  r.received.Load(),
		Accepted:  r.accepted.Load(),
		Duplicate: r.duplicate.Load(),
	}
}

// ProcessBatch handles one webhook delivery. Per-event failures are
// absorbed and reported in the result so the HTTP layer can always answer
// with a fast ack.
func (r *Receiver) ProcessBatch(ctx context.Context, events []TransferEvent) BatchResult {
	result := BatchResult{Events: make([]EventResult, 0, len(events))}

	for _, ev := range events {
		status := r.processEvent(ctx, ev)
		result.Events = append(result.Events, EventResult{Signature: ev.Signature, Status: status})

		switch status {
		case StatusAccepted:
			result.Accepted++
		case StatusDuplicate:
			result.Duplicate++
		case StatusRejected:
			result.Rejected++
		case StatusMalformed:
			result.Malformed++
		case StatusFailed:
			result.Failed++
		}
	}

	return result
}

func (r *Receiver) processEvent(ctx context.Context, ev TransferEvent) EventStatus {
	r.received.Add(1)
	observability.RecordEventReceived()

	if !isValidSignature(ev.Signature) || ev.Sender == "" || ev.RawAmount == 0 || ev.Timestamp <= 0 {
		r.log.WithFields(logrus.Fields{
			"signature": ev.Signature,
			"sender":    ev.Sender,
			"memo":      ev.Memo,
		}).Warn("malformed transfer event")
		observability.RecordEventError("malformed")
		return StatusMalformed
	}

	// Wrong mint or wrong destination: not a vote at all, no side effect.
	if ev.Mint != r.cfg.VoteMint || ev.Destination != r.cfg.VoteWallet {
		r.log.WithFields(logrus.Fields{
			"signature":   ev.Signature,
			"mint":        ev.Mint,
			"destination": ev.Destination,
		}).Debug("transfer is not for the voting wallet")
		observability.RecordEventError("rejected")
		return StatusRejected
	}

	submissionID := ResolveMemo(ev.Memo)

	// PDA and multisig senders are unsupported: keep the row for audit and
	// the pool total, but never associate it with a submission.
	if !isOnCurveAddress(ev.Sender) {
		r.log.WithFields(logrus.Fields{
			"signature": ev.Signature,
			"sender":    ev.Sender,
		}).Warn("sender is not an on-curve wallet, vote will not score")
		submissionID = ""
	}

	record := &domain.VoteRecord{
		Signature:    ev.Signature,
		SubmissionID: submissionID,
		Sender:       ev.Sender,
		Mint:         ev.Mint,
		RawAmount:    ev.RawAmount,
		Decimals:     ev.Decimals,
		Memo:         ev.Memo,
		ConfirmedAt:  ev.Timestamp * 1000,
		CreatedAt:    time.Now().UnixMilli(),
	}

	err := r.votes.Insert(ctx, record)
	switch {
	case err == nil:
		r.accepted.Add(1)
		observability.RecordVoteAccepted(submissionID != "")
	case errors.Is(err, storage.ErrDuplicateKey):
		// Redelivery of an already-ledgered transaction: idempotent no-op.
		r.duplicate.Add(1)
		observability.RecordVoteDuplicate()
		return StatusDuplicate
	default:
		r.log.WithFields(logrus.Fields{
			"signature": ev.Signature,
			"sender":    ev.Sender,
			"memo":      ev.Memo,
		}).WithError(err).Error("ledger insert failed")
		observability.RecordEventError("ledger")
		return StatusFailed
	}

	if submissionID == "" {
		r.log.WithFields(logrus.Fields{
			"signature": ev.Signature,
			"sender":    ev.Sender,
			"memo":      ev.Memo,
		}).Info("vote ledgered with unresolved memo")
	} else if r.notify != nil {
		r.notify(submissionID)
	}

	if r.publisher != nil {
		if err := r.publisher.PublishVote(ctx, record); err != nil {
			r.log.WithField("signature", ev.Signature).WithError(err).Warn("event feed publish failed")
		}
	}

	return StatusAccepted
}
