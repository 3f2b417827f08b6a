// Package main serves a read-only web dashboard over the challenge tables:
// live trading states and account configurations, auto-refreshing in the
// browser. It never writes; the referee owns all mutations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"challenge-monitor/internal/storage"
	pgstore "challenge-monitor/internal/storage/postgres"
)

const refreshSeconds = 30

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Challenge Monitor</title>
    <meta http-equiv="refresh" content="{{.Refresh}}">
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .status-active { color: blue; }
        .status-breached { color: red; font-weight: bold; }
        .status-passed { color: green; font-weight: bold; }
        .status-error { color: orange; }
        table { border-collapse: collapse; width: 100%; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        .refresh { color: #666; font-size: 12px; }
    </style>
</head>
<body>
    <h1>Challenge Monitor</h1>
    <p class="refresh">Auto-refreshes every {{.Refresh}} seconds | Last update: {{.Timestamp}}</p>

    <h2>Trading States</h2>
    <table>
        <tr>
            <th>User Email</th>
            <th>Balance</th>
            <th>Equity</th>
            <th>Daily P&amp;L</th>
            <th>Status</th>
            <th>Last Trade</th>
        </tr>
        {{range .States}}
        <tr class="status-{{.Status}}">
            <td>{{.UserEmail}}</td>
            <td>${{printf "%.2f" .Balance}}</td>
            <td>${{printf "%.2f" .Equity}}</td>
            <td>${{printf "%.2f" .DailyPnL}}</td>
            <td>{{.StatusUpper}}</td>
            <td>{{.LastTrade}}</td>
        </tr>
        {{end}}
    </table>
    {{if not .States}}<p>No trading data available.</p>{{end}}

    <h2>User Accounts</h2>
    <table>
        <tr>
            <th>User Email</th>
            <th>Broker</th>
            <th>Account Size</th>
            <th>Drawdown Limit</th>
            <th>Profit Target</th>
            <th>Challenge Status</th>
        </tr>
        {{range .Accounts}}
        <tr>
            <td>{{.UserEmail}}</td>
            <td>{{.Broker}}</td>
            <td>{{.AccountSize}}</td>
            <td>{{.Drawdown}}</td>
            <td>{{.Target}}</td>
            <td>{{.Status}}</td>
        </tr>
        {{end}}
    </table>
</body>
</html>
`))

// stateRow and accountRow are the template's view of one table row, with
// formatting already applied.
type stateRow struct {
	UserEmail   string
	Balance     float64
	Equity      float64
	DailyPnL    float64
	Status      string
	StatusUpper string
	LastTrade   string
}

type accountRow struct {
	UserEmail   string
	Broker      string
	AccountSize string
	Drawdown    string
	Target      string
	Status      string
}

type dashboard struct {
	states   storage.TradingStateStore
	accounts storage.AccountStore
	logger   *logrus.Logger
}

func (d *dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	states, err := d.states.List(ctx)
	if err != nil {
		d.logger.WithError(err).Error("list trading states")
		http.Error(w, "error loading dashboard", http.StatusInternalServerError)
		return
	}
	accounts, err := d.accounts.List(ctx)
	if err != nil {
		d.logger.WithError(err).Error("list accounts")
		http.Error(w, "error loading dashboard", http.StatusInternalServerError)
		return
	}

	data := struct {
		Refresh   int
		Timestamp string
		States    []stateRow
		Accounts  []accountRow
	}{
		Refresh:   refreshSeconds,
		Timestamp: time.Now().UTC().Format("2006-01-02 15:04:05 UTC"),
	}
	for _, st := range states {
		lastTrade := "Never"
		if st.LastTradeAt != nil {
			lastTrade = st.LastTradeAt.UTC().Format("2006-01-02 15:04:05")
		}
		data.States = append(data.States, stateRow{
			UserEmail:   st.UserEmail,
			Balance:     st.Balance,
			Equity:      st.Equity,
			DailyPnL:    st.DailyPnL,
			Status:      string(st.Status),
			StatusUpper: strings.ToUpper(string(st.Status)),
			LastTrade:   lastTrade,
		})
	}
	for _, cfg := range accounts {
		data.Accounts = append(data.Accounts, accountRow{
			UserEmail:   cfg.UserEmail,
			Broker:      strings.ToUpper(cfg.BrokerType),
			AccountSize: money(cfg.AccountSize),
			Drawdown:    money(cfg.MaxDrawdownLimit),
			Target:      money(cfg.ProfitTarget),
			Status:      strings.ToUpper(string(cfg.ChallengeStatus)),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, data); err != nil {
		d.logger.WithError(err).Error("render dashboard")
	}
}

// stateJSON is the wire shape of one trading state row.
type stateJSON struct {
	UserEmail   string     `json:"user_email"`
	Balance     float64    `json:"balance"`
	Equity      float64    `json:"equity"`
	Currency    string     `json:"currency"`
	DailyPnL    float64    `json:"daily_pnl"`
	Status      string     `json:"status"`
	LastTradeAt *time.Time `json:"last_trade_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// handleStates serves the trading states as JSON for scripted checks.
func (d *dashboard) handleStates(w http.ResponseWriter, r *http.Request) {
	states, err := d.states.List(r.Context())
	if err != nil {
		d.logger.WithError(err).Error("list trading states")
		http.Error(w, `{"error":"storage unavailable"}`, http.StatusInternalServerError)
		return
	}

	out := make([]stateJSON, 0, len(states))
	for _, st := range states {
		out = append(out, stateJSON{
			UserEmail:   st.UserEmail,
			Balance:     st.Balance,
			Equity:      st.Equity,
			Currency:    st.Currency,
			DailyPnL:    st.DailyPnL,
			Status:      string(st.Status),
			LastTradeAt: st.LastTradeAt,
			UpdatedAt:   st.UpdatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		d.logger.WithError(err).Error("encode trading states")
	}
}

func (d *dashboard) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// money formats a dollar amount, with a zero value shown as not yet set
// (an account before bootstrap has all parameters at zero).
func money(v float64) string {
	if v == 0 {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", v)
}

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", envStr("MONITOR_ADDR", ":5000"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	d := &dashboard{
		states:   pgstore.NewTradingStateStore(pool),
		accounts: pgstore.NewAccountStore(pool),
		logger:   logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", d.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/states", d.handleStates).Methods(http.MethodGet)
	r.HandleFunc("/healthz", d.handleHealth).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("received signal %v, shutting down", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("shutdown: %v", err)
		}
		cancel()
	}()

	logger.Infof("dashboard listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("dashboard server: %v", err)
	}
	logger.Info("shutdown complete")
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
