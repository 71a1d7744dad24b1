// Package main runs the vote tracker service:
// - Webhook ingestion: provider deliveries into the vote ledger
// - Scoring: debounced recomputes plus the reconciliation sweep
// - Prize pool: periodic collection wallet polling
// - Broadcast: websocket fan-out of score and pool updates
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"solana-vote-tracker/internal/api"
	"solana-vote-tracker/internal/broadcast"
	"solana-vote-tracker/internal/config"
	"solana-vote-tracker/internal/domain"
	"solana-vote-tracker/internal/event"
	"solana-vote-tracker/internal/ingestion"
	"solana-vote-tracker/internal/pool"
	"solana-vote-tracker/internal/scoring"
	"solana-vote-tracker/internal/solana"
	"solana-vote-tracker/internal/storage"
	"solana-vote-tracker/internal/storage/clickhouse"
	"solana-vote-tracker/internal/storage/memory"
	"solana-vote-tracker/internal/storage/migrations"
	"solana-vote-tracker/internal/storage/postgres"
	"solana-vote-tracker/internal/weight"
)

type stores struct {
	votes   storage.VoteStore
	scores  storage.ScoreStore
	history storage.ScoreHistoryStore // nil when clickhouse is disabled
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	configFile := flag.String("config", "", "Path to config file (default: vote.toml in working directory)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logrus.WithError(err).Fatal("configuration load failed")
	}

	setupLogging(cfg.Log)
	log := logrus.WithField("process", "server")
	if cfg.UsedConfigFile != "" {
		log.WithField("file", cfg.UsedConfigFile).Info("configuration loaded")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("store setup failed")
	}
	defer cleanup()

	var publisher event.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp := event.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
		log.WithFields(logrus.Fields{
			"brokers": cfg.Kafka.Brokers,
			"topic":   cfg.Kafka.Topic,
		}).Info("vote feed enabled")
	}

	hub := broadcast.NewHub()

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
		OpenTime:          open,
		CloseTime:         close,
		Debounce:          cfg.Scoring.Debounce,
		ReconcileInterval: cfg.Scoring.ReconcileInterval,
	}, st.votes, st.scores, st.history, func(s *domain.CommunityScore) {
		if frame, err := broadcast.EncodeScoreUpdate(s); err == nil {
			hub.Broadcast(broadcast.TypeScoreUpdate, frame)
		}
	})

	rpc := solana.NewHTTPClient(cfg.Solana.RPCURL)
	tracker := pool.NewTracker(pool.Config{
		Wallet:          cfg.Vote.Wallet,
		Target:          cfg.Pool.Target,
		PollInterval:    cfg.Pool.PollInterval,
		RecentLimit:     cfg.Pool.RecentLimit,
		Prices:          poolPrices(cfg.Pool.Prices),
		MinContribution: cfg.Weight.MinVote,
	}, rpc, func(s *domain.PrizePoolSnapshot) {
		if frame, err := broadcast.EncodePoolUpdate(s); err == nil {
			hub.Broadcast(broadcast.TypePoolUpdate, frame)
		}
	})

	receiver := ingestion.NewReceiver(ingestion.Config{
		VoteMint:   cfg.Vote.Mint,
		VoteWallet: cfg.Vote.Wallet,
	}, st.votes, aggregator.Enqueue, publisher)

	apiServer := api.NewServer(api.Options{
		Receiver:   receiver,
		Scores:     st.scores,
		Votes:      st.votes,
		History:    st.history,
		Aggregator: aggregator,
		Tracker:    tracker,
		Hub:        hub,
	})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()

		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Warn("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	go hub.Run(ctx)
	go aggregator.Run(ctx)
	go tracker.Run(ctx)

	log.WithFields(logrus.Fields{
		"addr":   cfg.Server.Addr,
		"mint":   cfg.Vote.Mint,
		"wallet": cfg.Vote.Wallet,
	}).Info("vote tracker starting")

	if err := apiServer.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		log.WithError(err).Fatal("http server failed")
	}

	log.Info("shutdown complete")
}

func setupLogging(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

// createStores selects the storage backends. No Postgres URL means
// in-memory stores, which lose the ledger on restart.
func createStores(ctx context.Context, cfg *config.Config) (*stores, func(), error) {
	if cfg.Database.URL == "" {
		logrus.Warn("no database.url configured, using in-memory storage")
		st := &stores{
			votes:   memory.NewVoteStore(),
			scores:  memory.NewScoreStore(),
			history: memory.NewScoreHistoryStore(),
		}
		return st, func() {}, nil
	}

	pgPool, err := postgres.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pgPool); err != nil {
		pgPool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	st := &stores{
		votes:  postgres.NewVoteStore(pgPool),
		scores: postgres.NewScoreStore(pgPool),
	}
	cleanup := func() { pgPool.Close() }

	if cfg.Clickhouse.DSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.Clickhouse.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		st.history = clickhouse.NewScoreHistoryStore(chConn)
		cleanup = func() {
			chConn.Close()
			pgPool.Close()
		}
	}

	return st, cleanup, nil
}

func poolPrices(prices []config.PriceConfig) map[string]pool.PriceConfig {
	out := make(map[string]pool.PriceConfig, len(prices))
	for _, p := range prices {
		out[p.Mint] = pool.PriceConfig{Symbol: p.Symbol, Price: p.Price}
	}
	return out
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
