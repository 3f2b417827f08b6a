// Package main runs the challenge referee: the polling service that
// evaluates every active challenge account against its broker on a fixed
// cadence and persists verdicts.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"challenge-monitor/internal/adapter"
	"challenge-monitor/internal/observability"
	"challenge-monitor/internal/referee"
	"challenge-monitor/internal/storage"
	chstore "challenge-monitor/internal/storage/clickhouse"
	"challenge-monitor/internal/storage/memory"
	"challenge-monitor/internal/storage/migrations"
	pgstore "challenge-monitor/internal/storage/postgres"
)

// stores holds the persistence backends the referee runs against.
type stores struct {
	accounts      storage.AccountStore
	tradingStates storage.TradingStateStore
	profitLedger  storage.ProfitLedger
	equityHistory storage.EquityHistoryStore
}

func main() {
	// .env is optional; system environment wins when both are set.
	_ = godotenv.Load()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for equity history (optional)")
	derivAppID := flag.Int("deriv-app-id", envInt("DERIV_APP_ID", 1089), "Registered Deriv application id")
	bridgeURL := flag.String("bridge-url", os.Getenv("MT_BRIDGE_URL"), "Default MetaTrader EA bridge URL")
	bridgeKey := flag.String("bridge-key", os.Getenv("MT_BRIDGE_KEY"), "Default MetaTrader EA bridge API key")
	brokers := flag.String("brokers", os.Getenv("BROKER_TYPES"), "Comma-separated broker types to poll (default: all registered)")
	pollInterval := flag.Duration("poll-interval", envDuration("POLL_INTERVAL", referee.DefaultPollInterval), "Pause between polling cycles")
	callTimeout := flag.Duration("call-timeout", envDuration("CALL_TIMEOUT", referee.DefaultCallTimeout), "Per-call timeout for broker and repository calls")
	workers := flag.Int("workers", envInt("REFEREE_WORKERS", referee.DefaultWorkers), "Concurrent account checks per cycle")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	once := flag.Bool("once", false, "Run a single cycle and exit")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty disables)")
	logLevel := flag.String("log-level", envStr("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", *logLevel)
	}

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("store setup failed: %v", err)
	}
	defer cleanup()

	var metrics *observability.Metrics
	if *metricsAddr != "" {
		metrics = observability.NewMetrics("")
		go serveMetrics(*metricsAddr, logger)
	}

	ref := referee.New(referee.Options{
		Accounts:      st.accounts,
		TradingStates: st.tradingStates,
		ProfitLedger:  st.profitLedger,
		EquityHistory: st.equityHistory,
		AppConfig: adapter.AppConfig{
			DerivAppID:     *derivAppID,
			BridgeEndpoint: *bridgeURL,
			BridgeAPIKey:   *bridgeKey,
		},
		BrokerTypes:  splitBrokers(*brokers),
		PollInterval: *pollInterval,
		CallTimeout:  *callTimeout,
		Workers:      *workers,
		Logger:       logger,
		Metrics:      metrics,
	})

	// Graceful shutdown on first signal, hard exit on second.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("received signal %v, shutting down", sig)
		cancel()
		sig = <-sigCh
		logger.Warnf("received second signal %v, forcing exit", sig)
		os.Exit(1)
	}()

	if *once {
		result, err := ref.RunCycle(ctx)
		if err != nil {
			logger.Fatalf("cycle failed: %v", err)
		}
		logger.WithFields(logrus.Fields{
			"eligible": result.Eligible,
			"synced":   result.Synced,
			"breached": result.Breached,
			"passed":   result.Passed,
			"errored":  result.Errored,
		}).Info("cycle complete")
		return
	}

	if err := ref.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatalf("referee error: %v", err)
	}
	logger.Info("shutdown complete")
}

// createStores wires the storage backends and applies migrations.
// ClickHouse is optional: without a DSN the equity history archive is off.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *logrus.Logger) (*stores, func(), error) {
	if useMemory {
		logger.Info("using in-memory storage")
		return &stores{
			accounts:      memory.NewAccountStore(),
			tradingStates: memory.NewTradingStateStore(),
			profitLedger:  memory.NewProfitLedger(),
			equityHistory: memory.NewEquityHistoryStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	st := &stores{
		accounts:      pgstore.NewAccountStore(pool),
		tradingStates: pgstore.NewTradingStateStore(pool),
		profitLedger:  pgstore.NewProfitLedger(pool),
	}
	cleanup := func() { pool.Close() }

	if clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			pool.Close()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		st.equityHistory = chstore.NewEquityHistoryStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	} else {
		logger.Info("no clickhouse dsn, equity history archive disabled")
	}

	return st, cleanup, nil
}

func serveMetrics(addr string, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	logger.Infof("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("metrics server: %v", err)
	}
}

func splitBrokers(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
