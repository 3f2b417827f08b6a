package derivws

import "encoding/json"

// DefaultEndpoint is the Deriv WebSocket API host. The app_id query parameter
// is appended by Endpoint.
const DefaultEndpoint = "wss://ws.derivws.com/websockets/v3"

// envelope is the common part of every Deriv API response.
type envelope struct {
	ReqID   uint64    `json:"req_id"`
	MsgType string    `json:"msg_type"`
	Error   *apiError `json:"error,omitempty"`
}

// apiError is the error object Deriv embeds in failed responses.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// authorizeResponse wraps the authorize call result.
type authorizeResponse struct {
	Authorize struct {
		LoginID   string `json:"loginid"`
		IsVirtual int    `json:"is_virtual"`
		Currency  string `json:"currency"`
	} `json:"authorize"`
}

// balanceResponse wraps the balance call result.
type balanceResponse struct {
	Balance struct {
		Balance  float64 `json:"balance"`
		Currency string  `json:"currency"`
	} `json:"balance"`
}

// portfolioResponse wraps the portfolio call result.
type portfolioResponse struct {
	Portfolio struct {
		Contracts []Contract `json:"contracts"`
	} `json:"portfolio"`
}

// Account identifies an authorized Deriv account.
type Account struct {
	LoginID   string
	IsVirtual bool
	Currency  string
}

// Balance is the account balance reported by Deriv.
type Balance struct {
	Amount   float64
	Currency string
}

// Contract is one open position from the portfolio call.
type Contract struct {
	ContractType string  `json:"contract_type"`
	BuyPrice     float64 `json:"buy_price"`
	BidPrice     float64 `json:"bid_price"`
}

// rawMessage aliases json.RawMessage for response routing.
type rawMessage = json.RawMessage
