// Package pool polls the collection wallet and maintains the prize pool
// read-model. The pool is memo-agnostic: every token that reaches the
// wallet counts, including dust and transfers whose memo never resolved.
package pool

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-vote-tracker/internal/domain"
	"solana-vote-tracker/internal/observability"
	"solana-vote-tracker/internal/solana"
)

// ErrPollInProgress is returned when a poll is requested while another is
// still running. Polls never queue behind each other.
var ErrPollInProgress = errors.New("pool poll already in progress")

// PriceConfig is the operator-set conversion for one mint.
type PriceConfig struct {
	Symbol string
	Price  float64 // value of one whole token in the quote currency
}

// Config holds the tracker's runtime parameters.
type Config struct {
	Wallet       string
	Target       float64
	PollInterval time.Duration
	RecentLimit  int
	Prices       map[string]PriceConfig // keyed by mint

	// MinContribution is the dust floor for the public recent feed, in
	// whole-token units. Dust still counts in the wallet totals; it just
	// never gets celebrated as a contribution.
	MinContribution float64
}

// DefaultConfig returns the polling parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Minute,
		RecentLimit:  10,
	}
}

// Tracker owns the prize pool snapshot. Reads are served from memory;
// only the poll loop talks to the RPC node.
type Tracker struct {
	cfg Config
	rpc solana.RPCClient
	log *logrus.Entry

	// onUpdate is invoked after a successful poll, outside any lock.
	onUpdate func(*domain.PrizePoolSnapshot)

	mu       sync.Mutex
	polling  bool
	snapshot *domain.PrizePoolSnapshot
}

// NewTracker creates a Tracker. onUpdate may be nil.
func NewTracker(cfg Config, rpc solana.RPCClient, onUpdate func(*domain.PrizePoolSnapshot)) *Tracker {
	return &Tracker{
		cfg:      cfg,
		rpc:      rpc,
		onUpdate: onUpdate,
		log:      logrus.WithField("process", "pool"),
	}
}

// Snapshot returns the last known snapshot. ok is false until the first
// successful poll completes.
func (t *Tracker) Snapshot() (*domain.PrizePoolSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snapshot == nil {
		return nil, false
	}
	copied := *t.snapshot
	copied.Holdings = append([]domain.TokenHolding(nil), t.snapshot.Holdings...)
	copied.Recent = append([]domain.Contribution(nil), t.snapshot.Recent...)
	return &copied, true
}

// Run polls immediately, then on every tick until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	if err := t.Poll(ctx); err != nil {
		t.log.WithError(err).Warn("initial pool poll failed")
	}

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Poll(ctx); err != nil && !errors.Is(err, ErrPollInProgress) {
				t.log.WithError(err).Warn("pool poll failed, serving stale snapshot")
			}
		}
	}
}

// Poll refreshes the snapshot from the RPC node. Single-flight: a poll
// requested while another runs returns ErrPollInProgress. On RPC failure
// the previous snapshot is kept and marked stale.
func (t *Tracker) Poll(ctx context.Context) error {
	t.mu.Lock()
	if t.polling {
		t.mu.Unlock()
		observability.RecordPoolPoll("skipped")
		return ErrPollInProgress
	}
	t.polling = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.polling = false
		t.mu.Unlock()
	}()

	snapshot, err := t.buildSnapshot(ctx)
	if err != nil {
		observability.RecordPoolPoll("error")
		t.mu.Lock()
		if t.snapshot != nil {
			t.snapshot.Stale = true
			observability.UpdatePoolValue(t.snapshot.TotalValue, true)
		}
		t.mu.Unlock()
		return err
	}

	observability.RecordPoolPoll("ok")
	observability.UpdatePoolValue(snapshot.TotalValue, false)

	t.mu.Lock()
	t.snapshot = snapshot
	t.mu.Unlock()

	if t.onUpdate != nil {
		t.onUpdate(snapshot)
	}
	return nil
}

func (t *Tracker) buildSnapshot(ctx context.Context) (*domain.PrizePoolSnapshot, error) {
	balances, err := t.rpc.GetTokenAccountsByOwner(ctx, t.cfg.Wallet)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.PrizePoolSnapshot{
		Target:        t.cfg.Target,
		LastUpdatedMs: time.Now().UnixMilli(),
	}

	for _, b := range balances {
		holding := domain.TokenHolding{
			Mint:     b.Mint,
			Amount:   b.UIAmount,
			Decimals: b.Decimals,
		}
		if price, ok := t.cfg.Prices[b.Mint]; ok {
			holding.Symbol = price.Symbol
			holding.Value = b.UIAmount * price.Price
		}
		snapshot.TotalValue += holding.Value
		snapshot.Holdings = append(snapshot.Holdings, holding)
	}

	if t.cfg.Target > 0 {
		snapshot.Progress = snapshot.TotalValue / t.cfg.Target
	}

	recent, err := t.recentContributions(ctx)
	if err != nil {
		// Holdings already answer the headline numbers; a failed history
		// walk only costs the recent feed.
		t.log.WithError(err).Warn("recent contributions lookup failed")
	} else {
		snapshot.Recent = recent
	}

	return snapshot, nil
}

// recentContributions walks the wallet's newest signatures and extracts
// inbound transfers, newest first, up to the configured limit.
func (t *Tracker) recentContributions(ctx context.Context) ([]domain.Contribution, error) {
	limit := t.cfg.RecentLimit
	if limit <= 0 {
		return nil, nil
	}

	// Fetch extra signatures: some are outbound or failed transactions.
	sigs, err := t.rpc.GetSignaturesForAddress(ctx, t.cfg.Wallet, &solana.SignaturesOpts{Limit: 2 * limit})
	if err != nil {
		return nil, err
	}

	var recent []domain.Contribution
	for _, sig := range sigs {
		if len(recent) >= limit {
			break
		}
		if sig.Err != nil {
			continue
		}

		tx, err := t.rpc.GetTransaction(ctx, sig.Signature)
		if err != nil {
			return nil, err
		}
		if tx == nil || tx.Failed {
			continue
		}

		for _, transfer := range tx.Transfers {
			if transfer.Authority == "" || transfer.Authority == t.cfg.Wallet {
				continue
			}
			amount := uiAmount(transfer.Amount, transfer.Decimals)
			if amount < t.cfg.MinContribution {
				continue
			}
			recent = append(recent, domain.Contribution{
				Signature: tx.Signature,
				Sender:    transfer.Authority,
				Amount:    amount,
				Mint:      transfer.Mint,
				Timestamp: tx.BlockTime * 1000,
			})
			break
		}
	}
	return recent, nil
}

func uiAmount(raw uint64, decimals int) float64 {
	if decimals <= 0 {
		return float64(raw)
	}
	return float64(raw) / math.Pow10(decimals)
}
