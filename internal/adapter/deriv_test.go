package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// derivServer runs a scripted Deriv API for adapter tests.
func derivServer(t *testing.T, portfolioFails bool) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req map[string]any
			if err := json.Unmarshal(msg, &req); err != nil {
				return
			}

			resp := map[string]any{"req_id": req["req_id"]}
			switch {
			case req["authorize"] != nil:
				if req["authorize"] == "good-token" {
					resp["msg_type"] = "authorize"
					resp["authorize"] = map[string]any{"loginid": "CR12345", "is_virtual": 0, "currency": "USD"}
				} else {
					resp["msg_type"] = "authorize"
					resp["error"] = map[string]any{"code": "InvalidToken", "message": "The token is invalid."}
				}
			case req["balance"] != nil:
				resp["msg_type"] = "balance"
				resp["balance"] = map[string]any{"balance": 5000.0, "currency": "USD"}
			case req["portfolio"] != nil:
				if portfolioFails {
					resp["msg_type"] = "portfolio"
					resp["error"] = map[string]any{"code": "PortfolioError", "message": "unavailable"}
				} else {
					resp["msg_type"] = "portfolio"
					resp["portfolio"] = map[string]any{
						"contracts": []map[string]any{
							{"contract_type": "CALL", "buy_price": 100.0, "bid_price": 130.0},
							{"contract_type": "MULTUP", "buy_price": 50.0, "bid_price": 45.0},
						},
					}
				}
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
}

func derivAdapterFor(server *httptest.Server, token string) BrokerAdapter {
	return NewDeriv(
		map[string]string{"token": token},
		AppConfig{DerivEndpoint: "ws" + strings.TrimPrefix(server.URL, "http")},
	)
}

func TestDerivAdapter_FullFlow(t *testing.T) {
	server := derivServer(t, false)
	defer server.Close()

	ctx := context.Background()
	a := derivAdapterFor(server, "good-token")
	defer a.Disconnect(ctx)

	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if a.AccountID() != "CR12345" {
		t.Errorf("AccountID = %s, want CR12345", a.AccountID())
	}

	state := a.FetchAccountState(ctx)
	if !state.Valid() {
		t.Fatalf("fetch failed: %s", state.Err)
	}
	// unrealized = (130-100) + (45-50) = 25
	if state.UnrealizedPnL != 25 {
		t.Errorf("UnrealizedPnL = %.2f, want 25", state.UnrealizedPnL)
	}
	if state.Balance != 5000 || state.Equity != 5025 {
		t.Errorf("balance/equity = %.2f/%.2f, want 5000/5025", state.Balance, state.Equity)
	}
	if state.Equity != state.Balance+state.UnrealizedPnL {
		t.Error("equity invariant violated")
	}
	if state.AccountID != "CR12345" {
		t.Errorf("state.AccountID = %s", state.AccountID)
	}
}

func TestDerivAdapter_PortfolioFailureDegradesToZero(t *testing.T) {
	server := derivServer(t, true)
	defer server.Close()

	ctx := context.Background()
	a := derivAdapterFor(server, "good-token")
	defer a.Disconnect(ctx)

	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	state := a.FetchAccountState(ctx)
	if !state.Valid() {
		t.Fatalf("portfolio failure must not fail the fetch: %s", state.Err)
	}
	if state.UnrealizedPnL != 0 {
		t.Errorf("UnrealizedPnL = %.2f, want 0", state.UnrealizedPnL)
	}
	if state.Equity != state.Balance {
		t.Errorf("equity = %.2f, want balance %.2f", state.Equity, state.Balance)
	}
}

func TestDerivAdapter_BadToken(t *testing.T) {
	server := derivServer(t, false)
	defer server.Close()

	ctx := context.Background()
	a := derivAdapterFor(server, "bad-token")
	defer a.Disconnect(ctx)

	if err := a.Connect(ctx); err == nil {
		t.Fatal("Connect with a rejected token should fail")
	}
}

func TestDerivAdapter_MissingToken(t *testing.T) {
	a := NewDeriv(map[string]string{}, AppConfig{DerivAppID: 1})

	err := a.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect without token should fail before any network call")
	}
	if !strings.Contains(err.Error(), "token") {
		t.Errorf("error should name the missing field: %v", err)
	}
}

func TestDerivAdapter_FetchBeforeConnect(t *testing.T) {
	a := NewDeriv(map[string]string{"token": "x"}, AppConfig{DerivAppID: 1})

	state := a.FetchAccountState(context.Background())
	if state.Valid() {
		t.Fatal("fetch before connect should carry an error")
	}
}

func TestDerivAdapter_LegacyTokenKey(t *testing.T) {
	server := derivServer(t, false)
	defer server.Close()

	ctx := context.Background()
	a := NewDeriv(
		map[string]string{"deriv_api_token": "good-token"},
		AppConfig{DerivEndpoint: "ws" + strings.TrimPrefix(server.URL, "http")},
	)
	defer a.Disconnect(ctx)

	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect with legacy credential key: %v", err)
	}
}
