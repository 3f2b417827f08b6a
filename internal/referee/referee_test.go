package referee

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"challenge-monitor/internal/adapter"
	"challenge-monitor/internal/domain"
	"challenge-monitor/internal/storage/memory"
)

// fakeAdapter is a scripted broker adapter. The factory keys fakes by the
// "id" credential so each account gets its own instance.
type fakeAdapter struct {
	name       string
	accountID  string
	connectErr error
	state      domain.AccountState

	mu          sync.Mutex
	connects    int
	fetches     int
	disconnects int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Connect(_ context.Context) error {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	return f.connectErr
}

func (f *fakeAdapter) FetchAccountState(_ context.Context) domain.AccountState {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	return f.state
}

func (f *fakeAdapter) Disconnect(_ context.Context) {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakeAdapter) AccountID() string { return f.accountID }

func (f *fakeAdapter) counts() (connects, fetches, disconnects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.fetches, f.disconnects
}

type fixture struct {
	accounts *memory.AccountStore
	states   *memory.TradingStateStore
	ledger   *memory.ProfitLedger
	history  *memory.EquityHistoryStore
	fakes    map[string]*fakeAdapter
}

func newFixture() *fixture {
	return &fixture{
		accounts: memory.NewAccountStore(),
		states:   memory.NewTradingStateStore(),
		ledger:   memory.NewProfitLedger(),
		history:  memory.NewEquityHistoryStore(),
		fakes:    make(map[string]*fakeAdapter),
	}
}

func (f *fixture) factory(brokerType string, creds map[string]string, _ adapter.AppConfig) (adapter.BrokerAdapter, error) {
	fa, ok := f.fakes[creds["id"]]
	if !ok {
		return nil, adapter.ErrUnknownBroker
	}
	return fa, nil
}

func (f *fixture) referee(t *testing.T, workers int) *Referee {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(Options{
		Accounts:      f.accounts,
		TradingStates: f.states,
		ProfitLedger:  f.ledger,
		EquityHistory: f.history,
		NewAdapter:    f.factory,
		Workers:       workers,
		CallTimeout:   time.Second,
		Logger:        logger,
	})
}

func (f *fixture) addAccount(t *testing.T, email, id string, size float64, status domain.ChallengeStatus) {
	t.Helper()
	err := f.accounts.Insert(context.Background(), &domain.ChallengeConfig{
		UserEmail:        email,
		BrokerType:       "deriv",
		Credentials:      map[string]string{"id": id},
		AccountSize:      size,
		MaxDrawdownLimit: size * 0.10,
		ProfitTarget:     size * 0.10,
		ChallengeStatus:  status,
		IsActive:         true,
	})
	if err != nil {
		t.Fatalf("insert %s: %v", email, err)
	}
}

func TestRunCycleSyncsHealthyAccounts(t *testing.T) {
	f := newFixture()
	f.addAccount(t, "a@x.com", "a", 10000, domain.StatusActive)
	f.addAccount(t, "b@x.com", "b", 10000, domain.StatusActive)
	f.fakes["a"] = &fakeAdapter{name: "deriv", state: domain.AccountState{Balance: 10000, Equity: 10250, Currency: "USD", UnrealizedPnL: 250}}
	f.fakes["b"] = &fakeAdapter{name: "deriv", state: domain.AccountState{Balance: 9800, Equity: 9800, Currency: "USD"}}

	res, err := f.referee(t, 2).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Eligible != 2 || res.Synced != 2 || res.Breached != 0 || res.Passed != 0 || res.Errored != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	for _, email := range []string{"a@x.com", "b@x.com"} {
		st, err := f.states.Get(context.Background(), email)
		if err != nil {
			t.Fatalf("Get(%s): %v", email, err)
		}
		if st.Status != domain.StatusActive {
			t.Errorf("%s status = %s, want active", email, st.Status)
		}
	}
	if got := len(f.history.All()); got != 2 {
		t.Errorf("equity history rows = %d, want 2", got)
	}
	for id, fa := range f.fakes {
		if _, _, d := fa.counts(); d != 1 {
			t.Errorf("adapter %s disconnects = %d, want 1", id, d)
		}
	}
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	f := newFixture()
	f.addAccount(t, "a@x.com", "a", 10000, domain.StatusActive)
	f.addAccount(t, "b@x.com", "b", 10000, domain.StatusActive)
	f.addAccount(t, "c@x.com", "c", 10000, domain.StatusActive)
	f.fakes["a"] = &fakeAdapter{name: "deriv", state: domain.AccountState{Balance: 10000, Equity: 10000, Currency: "USD"}}
	f.fakes["b"] = &fakeAdapter{name: "deriv", connectErr: errors.New("gateway timeout")}
	f.fakes["c"] = &fakeAdapter{name: "deriv", state: domain.AccountState{Balance: 10000, Equity: 10000, Currency: "USD"}}

	// Sequential so the failing account provably cannot stop later ones.
	res, err := f.referee(t, 1).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Synced != 2 || res.Errored != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	st, err := f.states.Get(context.Background(), "b@x.com")
	if err != nil {
		t.Fatalf("Get(b): %v", err)
	}
	if st.Status != domain.StatusError {
		t.Errorf("b status = %s, want error", st.Status)
	}
	if _, fetches, disconnects := f.fakes["b"].counts(); fetches != 0 || disconnects != 1 {
		t.Errorf("failed adapter fetches=%d disconnects=%d, want 0 and 1", fetches, disconnects)
	}
	if st, err := f.states.Get(context.Background(), "c@x.com"); err != nil || st.Status != domain.StatusActive {
		t.Errorf("account after the failure not evaluated: state=%+v err=%v", st, err)
	}
}

func TestRunCycleFetchErrorRecordsErrorState(t *testing.T) {
	f := newFixture()
	f.addAccount(t, "a@x.com", "a", 10000, domain.StatusActive)
	f.fakes["a"] = &fakeAdapter{name: "deriv", state: domain.ErrorState("balance call failed")}

	res, err := f.referee(t, 1).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Errored != 1 || res.Synced != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	cfg, err := f.accounts.GetByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if cfg.ChallengeStatus != domain.StatusActive {
		t.Errorf("config status = %s; a failed fetch must not change it", cfg.ChallengeStatus)
	}
}

func TestRunCycleUnknownBrokerRecordsError(t *testing.T) {
	f := newFixture()
	f.addAccount(t, "a@x.com", "missing", 10000, domain.StatusActive)

	res, err := f.referee(t, 1).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Errored != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	st, err := f.states.Get(context.Background(), "a@x.com")
	if err != nil || st.Status != domain.StatusError {
		t.Errorf("error snapshot missing: state=%+v err=%v", st, err)
	}
}

func TestRunCycleTransitions(t *testing.T) {
	f := newFixture()
	f.addAccount(t, "breach@x.com", "breach", 10000, domain.StatusActive)
	f.addAccount(t, "pass@x.com", "pass", 10000, domain.StatusActive)
	f.fakes["breach"] = &fakeAdapter{name: "deriv", state: domain.AccountState{Balance: 9200, Equity: 8999.99, Currency: "USD", UnrealizedPnL: -200.01}}
	f.fakes["pass"] = &fakeAdapter{name: "deriv", state: domain.AccountState{Balance: 11000, Equity: 11000, Currency: "USD"}}

	r := f.referee(t, 2)
	res, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Breached != 1 || res.Passed != 1 || res.Synced != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	cfg, _ := f.accounts.GetByEmail(context.Background(), "breach@x.com")
	if cfg.ChallengeStatus != domain.StatusBreached {
		t.Fatalf("breach config status = %s", cfg.ChallengeStatus)
	}
	cfg, _ = f.accounts.GetByEmail(context.Background(), "pass@x.com")
	if cfg.ChallengeStatus != domain.StatusPassed {
		t.Fatalf("pass config status = %s", cfg.ChallengeStatus)
	}

	// Second cycle: terminal statuses stick and are no longer counted as
	// transitions, but snapshots keep flowing.
	res, err = r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if res.Breached != 0 || res.Passed != 0 || res.Synced != 2 {
		t.Fatalf("second cycle result: %+v", res)
	}
	st, err := f.states.Get(context.Background(), "breach@x.com")
	if err != nil || st.Status != domain.StatusBreached {
		t.Errorf("terminal snapshot not refreshed: state=%+v err=%v", st, err)
	}
	if got := len(f.history.All()); got != 4 {
		t.Errorf("equity history rows = %d, want 4", got)
	}
}

func TestRunCycleBootstrapsOnFirstBalance(t *testing.T) {
	f := newFixture()
	f.addAccount(t, "new@x.com", "new", 0, domain.StatusActive)
	f.fakes["new"] = &fakeAdapter{name: "deriv", state: domain.AccountState{Balance: 5000, Equity: 5000, Currency: "USD"}}

	r := f.referee(t, 1)
	res, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Synced != 1 || res.Breached != 0 || res.Passed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	cfg, err := f.accounts.GetByEmail(context.Background(), "new@x.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if cfg.AccountSize != 5000 || cfg.MaxDrawdownLimit != 500 || cfg.ProfitTarget != 500 {
		t.Fatalf("bootstrap params = %v/%v/%v", cfg.AccountSize, cfg.MaxDrawdownLimit, cfg.ProfitTarget)
	}

	// Balance later doubles; the fixed parameters must not move.
	f.fakes["new"].state = domain.AccountState{Balance: 10000, Equity: 10000, Currency: "USD"}
	if _, err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	cfg, _ = f.accounts.GetByEmail(context.Background(), "new@x.com")
	if cfg.AccountSize != 5000 {
		t.Fatalf("account size moved to %v after second cycle", cfg.AccountSize)
	}
	// 10000 >= 5000 + 500: the original target now reads as passed.
	if cfg.ChallengeStatus != domain.StatusPassed {
		t.Fatalf("status = %s, want passed", cfg.ChallengeStatus)
	}
}

func TestRunCycleBackfillsBrokerAccountID(t *testing.T) {
	f := newFixture()
	f.addAccount(t, "a@x.com", "a", 10000, domain.StatusActive)
	f.fakes["a"] = &fakeAdapter{name: "deriv", accountID: "CR900001", state: domain.AccountState{Balance: 10000, Equity: 10000, Currency: "USD"}}

	if _, err := f.referee(t, 1).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	cfg, _ := f.accounts.GetByEmail(context.Background(), "a@x.com")
	if cfg.BrokerAccountID != "CR900001" {
		t.Fatalf("broker account id = %q, want CR900001", cfg.BrokerAccountID)
	}
}

func TestRunCycleDailyPnLFromLedger(t *testing.T) {
	f := newFixture()
	f.addAccount(t, "a@x.com", "a", 10000, domain.StatusActive)
	f.fakes["a"] = &fakeAdapter{name: "deriv", state: domain.AccountState{Balance: 10000, Equity: 10000, Currency: "USD"}}

	now := time.Now().UTC()
	f.ledger.Record(domain.ProfitEntry{UserEmail: "a@x.com", Profit: 120.50, CreatedAt: now})
	f.ledger.Record(domain.ProfitEntry{UserEmail: "a@x.com", Profit: -20.50, CreatedAt: now})
	f.ledger.Record(domain.ProfitEntry{UserEmail: "a@x.com", Profit: 999, CreatedAt: now.AddDate(0, 0, -2)})
	f.ledger.Record(domain.ProfitEntry{UserEmail: "other@x.com", Profit: 50, CreatedAt: now})

	if _, err := f.referee(t, 1).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	st, err := f.states.Get(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.DailyPnL != 100 {
		t.Fatalf("daily pnl = %v, want 100", st.DailyPnL)
	}
}

// failingLedger refuses every query, as if the profit table were unreachable.
type failingLedger struct{}

func (failingLedger) SumSince(context.Context, string, time.Time) (float64, error) {
	return 0, errors.New("ledger offline")
}

// flakyStates wraps the memory store and refuses full snapshot writes.
type flakyStates struct {
	*memory.TradingStateStore
	failUpsert bool
}

func (s *flakyStates) Upsert(ctx context.Context, st *domain.TradingState) error {
	if s.failUpsert {
		return errors.New("write refused")
	}
	return s.TradingStateStore.Upsert(ctx, st)
}

// flakyAccounts wraps the memory store and refuses selected partial updates.
type flakyAccounts struct {
	*memory.AccountStore
	failStatus    bool
	failBootstrap bool
}

func (s *flakyAccounts) UpdateChallengeStatus(ctx context.Context, email string, status domain.ChallengeStatus) error {
	if s.failStatus {
		return errors.New("write refused")
	}
	return s.AccountStore.UpdateChallengeStatus(ctx, email, status)
}

func (s *flakyAccounts) UpdateBootstrapParams(ctx context.Context, email string, size, drawdown, target float64) error {
	if s.failBootstrap {
		return errors.New("write refused")
	}
	return s.AccountStore.UpdateBootstrapParams(ctx, email, size, drawdown, target)
}

func TestRunCycleLedgerFailureDegradesToZero(t *testing.T) {
	f := newFixture()
	f.addAccount(t, "a@x.com", "a", 10000, domain.StatusActive)
	f.fakes["a"] = &fakeAdapter{name: "deriv", state: domain.AccountState{Balance: 10000, Equity: 10000, Currency: "USD"}}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := New(Options{
		Accounts:      f.accounts,
		TradingStates: f.states,
		ProfitLedger:  failingLedger{},
		NewAdapter:    f.factory,
		Workers:       1,
		CallTimeout:   time.Second,
		Logger:        logger,
	})

	res, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Synced != 1 || res.Errored != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	st, err := f.states.Get(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.DailyPnL != 0 {
		t.Errorf("daily pnl = %v, want 0 when the ledger is unreachable", st.DailyPnL)
	}
	if st.Status != domain.StatusActive {
		t.Errorf("status = %s, want active", st.Status)
	}
}

func TestRunCycleSnapshotWriteFailureStillTransitions(t *testing.T) {
	f := newFixture()
	f.addAccount(t, "a@x.com", "a", 10000, domain.StatusActive)
	f.fakes["a"] = &fakeAdapter{name: "deriv", state: domain.AccountState{Balance: 8500, Equity: 8500, Currency: "USD"}}

	states := &flakyStates{TradingStateStore: f.states, failUpsert: true}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := New(Options{
		Accounts:      f.accounts,
		TradingStates: states,
		ProfitLedger:  f.ledger,
		NewAdapter:    f.factory,
		Workers:       1,
		CallTimeout:   time.Second,
		Logger:        logger,
	})

	res, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Breached != 1 || res.Synced != 1 || res.Errored != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	// The snapshot write was refused, but the breach must still reach the
	// config row.
	cfg, err := f.accounts.GetByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if cfg.ChallengeStatus != domain.StatusBreached {
		t.Fatalf("config status = %s, want breached", cfg.ChallengeStatus)
	}
}

func TestRunCycleStatusWriteFailureKeepsSnapshot(t *testing.T) {
	f := newFixture()
	f.addAccount(t, "a@x.com", "a", 10000, domain.StatusActive)
	f.fakes["a"] = &fakeAdapter{name: "deriv", state: domain.AccountState{Balance: 11500, Equity: 11500, Currency: "USD"}}

	accounts := &flakyAccounts{AccountStore: f.accounts, failStatus: true}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := New(Options{
		Accounts:      accounts,
		TradingStates: f.states,
		ProfitLedger:  f.ledger,
		NewAdapter:    f.factory,
		Workers:       1,
		CallTimeout:   time.Second,
		Logger:        logger,
	})

	res, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Passed != 1 || res.Synced != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	// The config row kept its old status, so the snapshot is the only record
	// of the pass until the write succeeds on a later cycle.
	st, err := f.states.Get(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Status != domain.StatusPassed {
		t.Errorf("snapshot status = %s, want passed", st.Status)
	}
	cfg, _ := f.accounts.GetByEmail(context.Background(), "a@x.com")
	if cfg.ChallengeStatus != domain.StatusActive {
		t.Errorf("config status = %s, want active after refused write", cfg.ChallengeStatus)
	}
}

func TestRunCycleBootstrapWriteFailureStillEvaluates(t *testing.T) {
	f := newFixture()
	f.addAccount(t, "new@x.com", "new", 0, domain.StatusActive)
	f.fakes["new"] = &fakeAdapter{name: "deriv", state: domain.AccountState{Balance: 5000, Equity: 5000, Currency: "USD"}}

	accounts := &flakyAccounts{AccountStore: f.accounts, failBootstrap: true}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := New(Options{
		Accounts:      accounts,
		TradingStates: f.states,
		ProfitLedger:  f.ledger,
		NewAdapter:    f.factory,
		Workers:       1,
		CallTimeout:   time.Second,
		Logger:        logger,
	})

	res, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Synced != 1 || res.Errored != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	// The derived parameters governed this cycle even though the write was
	// refused; the stored size stays zero so bootstrap fires again next cycle.
	st, err := f.states.Get(context.Background(), "new@x.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Status != domain.StatusActive {
		t.Errorf("snapshot status = %s, want active", st.Status)
	}
	cfg, _ := f.accounts.GetByEmail(context.Background(), "new@x.com")
	if cfg.AccountSize != 0 {
		t.Errorf("stored account size = %v, want 0 after refused write", cfg.AccountSize)
	}
}

func TestRunCycleEmpty(t *testing.T) {
	f := newFixture()
	res, err := f.referee(t, 4).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Eligible != 0 || res.Synced != 0 || res.Errored != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := New(Options{
		Accounts:      f.accounts,
		TradingStates: f.states,
		ProfitLedger:  f.ledger,
		NewAdapter:    f.factory,
		PollInterval:  10 * time.Millisecond,
		CallTimeout:   time.Second,
		Logger:        logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
