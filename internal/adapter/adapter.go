// Package adapter provides a uniform capability contract over broker
// integrations. Each broker family implements BrokerAdapter; a static
// registry maps broker-type tags to constructors. Adding a broker means
// adding a variant and a registry entry, never branching on type in
// shared logic.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"challenge-monitor/internal/domain"
)

// ErrUnknownBroker is returned for broker-type tags with no registered
// constructor. This is a configuration error, surfaced at selection time.
var ErrUnknownBroker = errors.New("unknown broker type")

// AppConfig carries application-level broker settings shared by all accounts,
// as opposed to the per-account credentials.
type AppConfig struct {
	// DerivAppID is the registered Deriv application id.
	DerivAppID int
	// DerivEndpoint overrides the Deriv WebSocket URL. Empty means the
	// production endpoint derived from DerivAppID. Used by tests.
	DerivEndpoint string
	// BridgeEndpoint is the default MetaTrader EA webhook bridge URL,
	// used when an account's credentials carry no data_endpoint.
	BridgeEndpoint string
	// BridgeAPIKey is the default bridge API key.
	BridgeAPIKey string
}

// BrokerAdapter is the capability contract every broker variant implements.
//
// The caller must guarantee Disconnect runs on every exit path after a
// Connect attempt, including failures; Disconnect is idempotent and safe to
// call even if Connect never succeeded.
type BrokerAdapter interface {
	// Name returns the broker name for logging.
	Name() string

	// Connect establishes the broker session. Required credential fields are
	// validated before any network call; missing fields fail fast with a
	// descriptive reason.
	Connect(ctx context.Context) error

	// FetchAccountState retrieves the current account state. It is total:
	// every failure is captured inside AccountState.Err, never returned.
	FetchAccountState(ctx context.Context) domain.AccountState

	// Disconnect closes the broker session. Idempotent; close failures are
	// swallowed, never propagated.
	Disconnect(ctx context.Context)

	// AccountID returns the broker-assigned account id, when the broker
	// exposes one after Connect. Empty otherwise.
	AccountID() string
}

// Constructor builds an adapter from per-account credentials and app config.
type Constructor func(creds map[string]string, cfg AppConfig) BrokerAdapter

// registry maps broker-type tags to constructors. Maturity is explicit here:
// deriv is fully wired, mt4/mt5 read from the EA webhook bridge, the rest
// are stubs that honor the contract but report "not implemented".
var registry = map[string]Constructor{
	"deriv":        NewDeriv,
	"mt4":          NewMetaTrader,
	"mt5":          NewMetaTrader,
	"ctrader":      NewCTrader,
	"iqoption":     NewIQOption,
	"pocket":       NewPocketOption, // legacy tag, still present in older configs
	"pocketoption": NewPocketOption,
}

// New constructs the adapter for a broker-type tag.
func New(brokerType string, creds map[string]string, cfg AppConfig) (BrokerAdapter, error) {
	ctor, ok := registry[strings.ToLower(brokerType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBroker, brokerType)
	}
	return ctor(creds, cfg), nil
}

// Supported returns all registered broker-type tags, sorted.
func Supported() []string {
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
