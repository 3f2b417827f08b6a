// Package referee drives the polling loop that evaluates challenge accounts.
// One cycle lists eligible accounts, runs each through adapter → evaluator →
// persistence with per-account fault isolation, and aggregates a summary.
// No single account's failure may stop the cycle or affect other accounts.
package referee

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"challenge-monitor/internal/adapter"
	"challenge-monitor/internal/domain"
	"challenge-monitor/internal/observability"
	"challenge-monitor/internal/storage"
)

// Default timing and concurrency parameters.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultCallTimeout  = 10 * time.Second
	DefaultWorkers      = 4
)

// AdapterFactory builds a broker adapter for an account. Injectable so tests
// can substitute fakes for real broker transports.
type AdapterFactory func(brokerType string, creds map[string]string, cfg adapter.AppConfig) (adapter.BrokerAdapter, error)

// Options for creating a Referee.
type Options struct {
	// Required stores
	Accounts      storage.AccountStore
	TradingStates storage.TradingStateStore
	ProfitLedger  storage.ProfitLedger

	// Optional append-only archive; nil disables archiving.
	EquityHistory storage.EquityHistoryStore

	// NewAdapter defaults to adapter.New.
	NewAdapter AdapterFactory

	// AppConfig is passed through to adapter constructors.
	AppConfig adapter.AppConfig

	// BrokerTypes limits which broker families are polled.
	// Defaults to every registered broker.
	BrokerTypes []string

	// PollInterval is the pause between cycle completion and the next cycle
	// start. Defaults to DefaultPollInterval.
	PollInterval time.Duration

	// CallTimeout bounds each network and repository call so one
	// unresponsive broker cannot stall the cycle. Defaults to
	// DefaultCallTimeout.
	CallTimeout time.Duration

	// Workers bounds per-account concurrency within a cycle. 1 reproduces
	// the sequential reference behavior. Defaults to DefaultWorkers.
	Workers int

	// Logger defaults to the standard logrus logger.
	Logger *logrus.Logger

	// Metrics is optional; nil disables instrumentation.
	Metrics *observability.Metrics
}

// Referee evaluates all eligible accounts on a fixed cadence.
type Referee struct {
	accounts      storage.AccountStore
	tradingStates storage.TradingStateStore
	profitLedger  storage.ProfitLedger
	equityHistory storage.EquityHistoryStore

	newAdapter   AdapterFactory
	appConfig    adapter.AppConfig
	brokerTypes  []string
	pollInterval time.Duration
	callTimeout  time.Duration
	workers      int

	logger  *logrus.Logger
	metrics *observability.Metrics
}

// CycleResult aggregates one cycle for operator visibility. Breached and
// Passed count transitions observed this cycle, not totals.
type CycleResult struct {
	Eligible int
	Synced   int
	Breached int
	Passed   int
	Errored  int
}

// New creates a new Referee.
func New(opts Options) *Referee {
	r := &Referee{
		accounts:      opts.Accounts,
		tradingStates: opts.TradingStates,
		profitLedger:  opts.ProfitLedger,
		equityHistory: opts.EquityHistory,
		newAdapter:    opts.NewAdapter,
		appConfig:     opts.AppConfig,
		brokerTypes:   opts.BrokerTypes,
		pollInterval:  opts.PollInterval,
		callTimeout:   opts.CallTimeout,
		workers:       opts.Workers,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}

	if r.newAdapter == nil {
		r.newAdapter = adapter.New
	}
	if len(r.brokerTypes) == 0 {
		r.brokerTypes = adapter.Supported()
	}
	if r.pollInterval <= 0 {
		r.pollInterval = DefaultPollInterval
	}
	if r.callTimeout <= 0 {
		r.callTimeout = DefaultCallTimeout
	}
	if r.workers <= 0 {
		r.workers = DefaultWorkers
	}
	if r.logger == nil {
		r.logger = logrus.StandardLogger()
	}
	return r
}

// Run executes cycles until ctx is cancelled. The interval is measured from
// cycle completion, not cycle start. A failed cycle (repository unreachable
// at the listing step) is logged and retried on the next interval; the loop
// itself survives.
func (r *Referee) Run(ctx context.Context) error {
	r.logger.WithFields(logrus.Fields{
		"interval": r.pollInterval,
		"workers":  r.workers,
		"brokers":  r.brokerTypes,
	}).Info("referee started")

	for {
		result, err := r.RunCycle(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			r.logger.WithError(err).Error("cycle failed")
			if r.metrics != nil {
				r.metrics.CyclesTotal.WithLabelValues("error").Inc()
			}
		default:
			r.logger.WithFields(logrus.Fields{
				"eligible": result.Eligible,
				"synced":   result.Synced,
				"breached": result.Breached,
				"passed":   result.Passed,
				"errored":  result.Errored,
			}).Info("cycle complete")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}

// RunCycle performs one full pass over all eligible accounts.
func (r *Referee) RunCycle(ctx context.Context) (*CycleResult, error) {
	start := time.Now()

	lctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	accounts, err := r.accounts.ListEligible(lctx, r.brokerTypes)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list eligible accounts: %w", err)
	}

	result := &CycleResult{Eligible: len(accounts)}
	if r.metrics != nil {
		r.metrics.AccountsEligible.Set(float64(len(accounts)))
	}

	if len(accounts) == 0 {
		r.logger.Debug("no eligible accounts")
		r.finishCycle(start)
		return result, nil
	}

	// Bounded fan-out: per-account work is independent, but broker endpoints
	// and the repository should not be hammered by unbounded concurrency.
	jobs := make(chan *domain.ChallengeConfig)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := r.workers
	if workers > len(accounts) {
		workers = len(accounts)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cfg := range jobs {
				out := r.checkAccount(ctx, cfg)
				mu.Lock()
				switch out {
				case outcomeBreached:
					result.Breached++
					result.Synced++
				case outcomePassed:
					result.Passed++
					result.Synced++
				case outcomeSynced:
					result.Synced++
				default:
					result.Errored++
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, cfg := range accounts {
		select {
		case jobs <- cfg:
		case <-ctx.Done():
			// Shutdown between accounts; in-flight checks finish on their own
			// call timeouts and disconnect regardless.
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	r.finishCycle(start)
	return result, nil
}

func (r *Referee) finishCycle(start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.CyclesTotal.WithLabelValues("ok").Inc()
	r.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	r.metrics.LastSuccessfulCycle.Set(float64(time.Now().Unix()))
}
