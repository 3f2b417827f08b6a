package adapter

import (
	"context"
	"fmt"

	"challenge-monitor/internal/domain"
)

// CTraderAdapter targets the cTrader Open API. Stub: credential validation
// is real, the protocol wiring (ProtoOA application/account auth over the
// cTrader WebSocket) is not built yet, so fetches report "not implemented"
// instead of failing the contract.
type CTraderAdapter struct {
	accessToken string
	accountID   string
}

// Compile-time interface check.
var _ BrokerAdapter = (*CTraderAdapter)(nil)

// NewCTrader creates a cTrader adapter. Credentials: "access_token" (OAuth
// token from the external authorization flow) and "account_id".
func NewCTrader(creds map[string]string, _ AppConfig) BrokerAdapter {
	return &CTraderAdapter{
		accessToken: creds["access_token"],
		accountID:   creds["account_id"],
	}
}

// Name returns "cTrader".
func (a *CTraderAdapter) Name() string {
	return "cTrader"
}

// Connect validates required credentials. No network call is made.
func (a *CTraderAdapter) Connect(_ context.Context) error {
	if a.accessToken == "" {
		return fmt.Errorf("ctrader: missing credential field \"access_token\" (OAuth flow required)")
	}
	if a.accountID == "" {
		return fmt.Errorf("ctrader: missing credential field \"account_id\"")
	}
	return nil
}

// FetchAccountState reports the unimplemented integration as an error state.
func (a *CTraderAdapter) FetchAccountState(_ context.Context) domain.AccountState {
	return domain.ErrorState("ctrader: adapter not implemented")
}

// Disconnect is a no-op.
func (a *CTraderAdapter) Disconnect(_ context.Context) {}

// AccountID returns the configured cTrader account id.
func (a *CTraderAdapter) AccountID() string {
	return a.accountID
}
