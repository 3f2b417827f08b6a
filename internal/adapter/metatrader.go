package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"challenge-monitor/internal/bridge"
	"challenge-monitor/internal/domain"
)

// MetaTraderAdapter reads MT4/MT5 account state from an EA webhook bridge.
// Partially wired: it covers the webhook bridge path; a Manager API
// integration would need broker cooperation and lives outside this monitor.
type MetaTraderAdapter struct {
	login    int64
	loginRaw string
	endpoint string
	apiKey   string

	client *bridge.Client
}

// Compile-time interface check.
var _ BrokerAdapter = (*MetaTraderAdapter)(nil)

// NewMetaTrader creates an MT4/MT5 adapter. Credentials: "login" (terminal
// account number), optional "data_endpoint" and "api_key" overriding the
// app-level bridge settings.
func NewMetaTrader(creds map[string]string, cfg AppConfig) BrokerAdapter {
	endpoint := creds["data_endpoint"]
	if endpoint == "" {
		endpoint = cfg.BridgeEndpoint
	}
	apiKey := creds["api_key"]
	if apiKey == "" {
		apiKey = cfg.BridgeAPIKey
	}

	a := &MetaTraderAdapter{
		loginRaw: creds["login"],
		endpoint: endpoint,
		apiKey:   apiKey,
	}
	if a.loginRaw != "" {
		a.login, _ = strconv.ParseInt(a.loginRaw, 10, 64)
	}
	return a
}

// Name returns "MT4/MT5".
func (a *MetaTraderAdapter) Name() string {
	return "MT4/MT5"
}

// Connect validates credentials and verifies the bridge answers for this login.
func (a *MetaTraderAdapter) Connect(ctx context.Context) error {
	if a.loginRaw == "" {
		return fmt.Errorf("metatrader: missing credential field \"login\"")
	}
	if a.login == 0 {
		return fmt.Errorf("metatrader: credential \"login\" must be a terminal account number, got %q", a.loginRaw)
	}
	if a.endpoint == "" {
		return fmt.Errorf("metatrader: no data endpoint configured for the EA bridge")
	}

	client := bridge.NewClient(a.endpoint, a.apiKey)
	if err := client.Ping(ctx, a.login); err != nil {
		return fmt.Errorf("metatrader: %w", err)
	}

	a.client = client
	return nil
}

// FetchAccountState reads the latest snapshot the EA posted to the bridge.
// The bridge reports balance and equity; unrealized P&L is their difference.
func (a *MetaTraderAdapter) FetchAccountState(ctx context.Context) domain.AccountState {
	if a.client == nil {
		return domain.ErrorState("metatrader: not connected")
	}

	data, err := a.client.Fetch(ctx, a.login)
	if err != nil {
		return domain.ErrorState(fmt.Sprintf("metatrader: %v", err))
	}

	now := time.Now().UTC()
	return domain.AccountState{
		Balance:       data.Balance,
		Equity:        data.Equity,
		Currency:      data.Currency,
		UnrealizedPnL: data.Equity - data.Balance,
		DailyPnL:      data.DailyPnL,
		LastTradeAt:   &now,
		AccountID:     a.loginRaw,
	}
}

// Disconnect releases the bridge client. The bridge is plain HTTP, so there
// is no session to tear down.
func (a *MetaTraderAdapter) Disconnect(_ context.Context) {
	a.client = nil
}

// AccountID returns the terminal login number.
func (a *MetaTraderAdapter) AccountID() string {
	if a.client == nil {
		return ""
	}
	return a.loginRaw
}
