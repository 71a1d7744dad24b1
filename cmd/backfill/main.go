// Package main replays the collection wallet's on-chain history into the
// vote ledger. Covers webhook outages: every transfer the provider never
// delivered is ingested through the same validation path, and duplicate
// signatures fall out as no-ops.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"solana-vote-tracker/internal/config"
	"solana-vote-tracker/internal/ingestion"
	"solana-vote-tracker/internal/scoring"
	"solana-vote-tracker/internal/solana"
	"solana-vote-tracker/internal/storage"
	"solana-vote-tracker/internal/storage/memory"
	"solana-vote-tracker/internal/storage/migrations"
	"solana-vote-tracker/internal/storage/postgres"
	"solana-vote-tracker/internal/weight"
)

const signaturePageSize = 200

func main() {
	configFile := flag.String("config", "", "Path to config file (default: vote.toml in working directory)")
	until := flag.String("until", "", "Stop walking history at this signature (exclusive)")
	maxTx := flag.Int("max", 0, "Maximum transactions to inspect (0 = no limit)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logrus.WithError(err).Fatal("configuration load failed")
	}
	log := logrus.WithField("process", "backfill")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("interrupted, finishing current page")
		cancel()
	}()

	var votes storage.VoteStore
	var scores storage.ScoreStore
	if cfg.Database.URL == "" {
		log.Warn("no database.url configured, backfilling into in-memory storage is a no-op after exit")
		votes = memory.NewVoteStore()
		scores = memory.NewScoreStore()
	} else {
		pgPool, err := postgres.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			log.WithError(err).Fatal("postgres connect failed")
		}
		defer pgPool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pgPool); err != nil {
			log.WithError(err).Fatal("postgres migrations failed")
		}
		votes = postgres.NewVoteStore(pgPool)
		scores = postgres.NewScoreStore(pgPool)
	}

	rpc := solana.NewHTTPClient(cfg.Solana.RPCURL)
	walletAccounts, err := tokenAccountSet(ctx, rpc, cfg.Vote.Wallet)
	if err != nil {
		log.WithError(err).Fatal("wallet token account lookup failed")
	}
	receiver := ingestion.NewReceiver(ingestion.Config{
		VoteMint:   cfg.Vote.Mint,
		VoteWallet: cfg.Vote.Wallet,
	}, votes, nil, nil)

	accepted, duplicate, inspected := 0, 0, 0
	before := ""

walk:
	for {
		sigs, err := rpc.GetSignaturesForAddress(ctx, cfg.Vote.Wallet, &solana.SignaturesOpts{
			Before: before,
			Until:  *until,
			Limit:  signaturePageSize,
		})
		if err != nil {
			log.WithError(err).Fatal("signature page fetch failed")
		}
		if len(sigs) == 0 {
			break
		}

		for _, sig := range sigs {
			if ctx.Err() != nil {
				break walk
			}
			if *maxTx > 0 && inspected >= *maxTx {
				break walk
			}
			inspected++

			if sig.Err != nil {
				continue
			}
			tx, err := rpc.GetTransaction(ctx, sig.Signature)
			if err != nil {
				log.WithField("signature", sig.Signature).WithError(err).Warn("transaction fetch failed, skipping")
				continue
			}
			events := transferEvents(tx, cfg.Vote.Wallet, walletAccounts)
			if len(events) == 0 {
				continue
			}

			result := receiver.ProcessBatch(ctx, events)
			accepted += result.Accepted
			duplicate += result.Duplicate
		}

		before = sigs[len(sigs)-1].Signature
	}

	log.WithFields(logrus.Fields{
		"inspected": inspected,
		"accepted":  accepted,
		"duplicate": duplicate,
	}).Info("history walk done")

	open, close, err := cfg.Vote.Window()
	if err != nil {
		log.WithError(err).Fatal("invalid voting window")
	}
	aggregator := scoring.NewAggregator(scoring.Config{
		Weight: weight.Config{
			MinVote:    cfg.Weight.MinVote,
			Multiplier: cfg.Weight.Multiplier,
			Cap:        cfg.Weight.Cap,
		},
		OpenTime:  open,
		CloseTime: close,
	}, votes, scores, nil, nil)

	if err := aggregator.Reconcile(ctx); err != nil {
		log.WithError(err).Fatal("reconcile failed")
	}
	log.Info("backfill complete")
}

// tokenAccountSet resolves the wallet's SPL token accounts. Raw RPC
// transfers name token accounts as destinations, not owner wallets, so
// inbound transfers are recognized by membership in this set.
func tokenAccountSet(ctx context.Context, rpc solana.RPCClient, wallet string) (map[string]bool, error) {
	balances, err := rpc.GetTokenAccountsByOwner(ctx, wallet)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(balances))
	for _, b := range balances {
		set[b.Address] = true
	}
	return set, nil
}

// transferEvents converts a wallet-history transaction into webhook-shaped
// events. Outbound transfers (authorized by the wallet itself) and
// transfers landing somewhere other than the wallet's own token accounts
// are not votes and are skipped. The emitted Destination is the owner
// wallet, matching what the webhook provider reports.
func transferEvents(tx *solana.Transaction, wallet string, walletAccounts map[string]bool) []ingestion.TransferEvent {
	if tx == nil || tx.Failed {
		return nil
	}

	// One event per transaction: the ledger is keyed by signature, so a
	// second transfer in the same tx could never be recorded anyway.
	for _, transfer := range tx.Transfers {
		if transfer.Authority == "" || transfer.Authority == wallet {
			continue
		}
		if transfer.Destination != wallet && !walletAccounts[transfer.Destination] {
			continue
		}
		return []ingestion.TransferEvent{{
			Signature:   tx.Signature,
			Sender:      transfer.Authority,
			Destination: wallet,
			Mint:        transfer.Mint,
			RawAmount:   transfer.Amount,
			Decimals:    transfer.Decimals,
			Memo:        tx.Memo,
			Timestamp:   tx.BlockTime,
		}}
	}
	return nil
}
