// Package main prints a one-shot console view of every challenge account:
// configuration and latest observed state, side by side. Read-only, meant
// for quick operator checks without opening the dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"challenge-monitor/internal/storage"
	pgstore "challenge-monitor/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	accounts := pgstore.NewAccountStore(pool)
	states := pgstore.NewTradingStateStore(pool)

	configs, err := accounts.List(ctx)
	if err != nil {
		logger.Fatalf("list accounts: %v", err)
	}
	if len(configs) == 0 {
		fmt.Println("No accounts configured.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"User Email", "Broker", "Status", "Size", "Drawdown", "Target", "Equity", "Daily P&L", "Updated"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT,
	})

	for _, cfg := range configs {
		equity := "-"
		dailyPnL := "-"
		updated := "never"
		if st, err := states.Get(ctx, cfg.UserEmail); err == nil {
			equity = fmt.Sprintf("%.2f", st.Equity)
			dailyPnL = fmt.Sprintf("%.2f", st.DailyPnL)
			updated = st.UpdatedAt.UTC().Format("2006-01-02 15:04:05")
		} else if !errors.Is(err, storage.ErrNotFound) {
			logger.Warnf("trading state for %s: %v", cfg.UserEmail, err)
		}

		table.Append([]string{
			cfg.UserEmail,
			strings.ToUpper(cfg.BrokerType),
			strings.ToUpper(string(cfg.ChallengeStatus)),
			amount(cfg.AccountSize),
			amount(cfg.MaxDrawdownLimit),
			amount(cfg.ProfitTarget),
			equity,
			dailyPnL,
			updated,
		})
	}

	fmt.Printf("Challenge account statuses (%d accounts):\n", len(configs))
	table.Render()
}

// amount renders a challenge parameter, with zero meaning not yet bootstrapped.
func amount(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}
