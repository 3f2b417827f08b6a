package adapter

import (
	"context"
	"fmt"

	"challenge-monitor/internal/domain"
)

// Experimental stubs. IQ Option and Pocket Option have no official public
// API; these variants exist so accounts can be onboarded and tracked as
// "error" until an integration path (or a bridge) materializes.

// IQOptionAdapter is an unimplemented stub for IQ Option accounts.
type IQOptionAdapter struct {
	email string
}

var _ BrokerAdapter = (*IQOptionAdapter)(nil)

// NewIQOption creates an IQ Option stub. Credentials: "email", "password".
func NewIQOption(creds map[string]string, _ AppConfig) BrokerAdapter {
	return &IQOptionAdapter{email: creds["email"]}
}

// Name returns "IQ Option".
func (a *IQOptionAdapter) Name() string { return "IQ Option" }

// Connect validates required credentials. No network call is made.
func (a *IQOptionAdapter) Connect(_ context.Context) error {
	if a.email == "" {
		return fmt.Errorf("iqoption: missing credential field \"email\"")
	}
	return nil
}

// FetchAccountState reports the unimplemented integration as an error state.
func (a *IQOptionAdapter) FetchAccountState(_ context.Context) domain.AccountState {
	return domain.ErrorState("iqoption: adapter not implemented")
}

// Disconnect is a no-op.
func (a *IQOptionAdapter) Disconnect(_ context.Context) {}

// AccountID returns empty; IQ Option ids are not assigned by this stub.
func (a *IQOptionAdapter) AccountID() string { return "" }

// PocketOptionAdapter is an unimplemented stub for Pocket Option accounts.
type PocketOptionAdapter struct {
	ssid string
}

var _ BrokerAdapter = (*PocketOptionAdapter)(nil)

// NewPocketOption creates a Pocket Option stub. Credentials: "ssid".
func NewPocketOption(creds map[string]string, _ AppConfig) BrokerAdapter {
	return &PocketOptionAdapter{ssid: creds["ssid"]}
}

// Name returns "Pocket Option".
func (a *PocketOptionAdapter) Name() string { return "Pocket Option" }

// Connect validates required credentials. No network call is made.
func (a *PocketOptionAdapter) Connect(_ context.Context) error {
	if a.ssid == "" {
		return fmt.Errorf("pocketoption: missing credential field \"ssid\"")
	}
	return nil
}

// FetchAccountState reports the unimplemented integration as an error state.
func (a *PocketOptionAdapter) FetchAccountState(_ context.Context) domain.AccountState {
	return domain.ErrorState("pocketoption: adapter not implemented")
}

// Disconnect is a no-op.
func (a *PocketOptionAdapter) Disconnect(_ context.Context) {}

// AccountID returns empty.
func (a *PocketOptionAdapter) AccountID() string { return "" }
