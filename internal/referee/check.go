package referee

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"challenge-monitor/internal/domain"
	"challenge-monitor/internal/evaluator"
)

type outcome int

const (
	outcomeErrored outcome = iota
	outcomeSynced
	outcomeBreached
	outcomePassed
)

// checkAccount runs one account through the full pipeline: adapter
// construction, connect, fetch, bootstrap, evaluation, persistence.
// Every failure path records an error snapshot for the account and returns;
// nothing it does can affect another account.
func (r *Referee) checkAccount(ctx context.Context, cfg *domain.ChallengeConfig) outcome {
	log := r.logger.WithFields(logrus.Fields{
		"user_email": cfg.UserEmail,
		"broker":     cfg.BrokerType,
	})

	broker, err := r.newAdapter(cfg.BrokerType, cfg.Credentials, r.appConfig)
	if err != nil {
		log.WithError(err).Error("adapter selection failed")
		r.recordError(cfg.UserEmail)
		return outcomeErrored
	}

	defer func() {
		// Detached from ctx so shutdown mid-cycle still closes the session.
		dctx, cancel := context.WithTimeout(context.Background(), r.callTimeout)
		defer cancel()
		broker.Disconnect(dctx)
	}()

	connectStart := time.Now()
	cctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	err = broker.Connect(cctx)
	cancel()
	r.observeCall(cfg.BrokerType, "connect", connectStart)
	if err != nil {
		log.WithError(err).Warn("broker connect failed")
		r.recordError(cfg.UserEmail)
		return outcomeErrored
	}

	// Backfill the broker-side account id when the broker reports one the
	// repository does not know yet. Best effort: a write failure here must
	// not block evaluation.
	if id := broker.AccountID(); id != "" && id != cfg.BrokerAccountID {
		uctx, cancel := context.WithTimeout(ctx, r.callTimeout)
		if err := r.accounts.UpdateBrokerAccountID(uctx, cfg.UserEmail, id); err != nil {
			log.WithError(err).Warn("broker account id backfill failed")
		}
		cancel()
	}

	fetchStart := time.Now()
	fctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	state := broker.FetchAccountState(fctx)
	cancel()
	r.observeCall(cfg.BrokerType, "fetch", fetchStart)
	if !state.Valid() {
		log.WithField("reason", state.Err).Warn("account state fetch failed")
		r.recordError(cfg.UserEmail)
		return outcomeErrored
	}

	// First observation of an unconfigured account fixes its challenge
	// parameters from the live balance. The persisted write may fail; the
	// bootstrapped values still govern this cycle and the write is retried
	// implicitly next cycle because the stored size remains zero.
	working := *cfg
	if boot, fired := evaluator.Bootstrap(working, state.Balance); fired {
		working = boot
		log.WithFields(logrus.Fields{
			"account_size": boot.AccountSize,
			"max_drawdown": boot.MaxDrawdownLimit,
			"target":       boot.ProfitTarget,
		}).Info("challenge parameters initialized from balance")

		bctx, cancel := context.WithTimeout(ctx, r.callTimeout)
		err := r.accounts.UpdateBootstrapParams(bctx, cfg.UserEmail,
			boot.AccountSize, boot.MaxDrawdownLimit, boot.ProfitTarget)
		cancel()
		if err != nil {
			log.WithError(err).Warn("challenge parameter write failed")
		}
	}

	dailyPnL := r.dailyPnL(ctx, cfg.UserEmail, log)

	res := evaluator.Evaluate(working, state.Equity)
	log.WithFields(logrus.Fields{
		"balance": state.Balance,
		"equity":  state.Equity,
		"status":  res.Status,
		"reason":  res.Reason,
	}).Debug("account evaluated")

	now := time.Now().UTC()
	r.persistSnapshot(ctx, &domain.TradingState{
		UserEmail:   cfg.UserEmail,
		Balance:     state.Balance,
		Equity:      state.Equity,
		Currency:    state.Currency,
		DailyPnL:    dailyPnL,
		Status:      res.Status,
		LastTradeAt: state.LastTradeAt,
		UpdatedAt:   now,
	}, log)

	// The config row is written only on an actual transition; steady-state
	// cycles leave it untouched.
	if res.Status != cfg.ChallengeStatus {
		sctx, cancel := context.WithTimeout(ctx, r.callTimeout)
		err := r.accounts.UpdateChallengeStatus(sctx, cfg.UserEmail, res.Status)
		cancel()
		if err != nil {
			log.WithError(err).Error("challenge status write failed")
		} else {
			log.WithFields(logrus.Fields{
				"from":   cfg.ChallengeStatus,
				"to":     res.Status,
				"reason": res.Reason,
			}).Info("challenge status changed")
			if r.metrics != nil {
				r.metrics.ChallengeTransitions.WithLabelValues(string(res.Status)).Inc()
			}
		}
	}

	r.archiveEquity(ctx, cfg.UserEmail, state.Balance, state.Equity, dailyPnL, res.Status, now, log)

	if r.metrics != nil {
		r.metrics.AccountChecksTotal.WithLabelValues("ok").Inc()
	}
	switch {
	case res.Status == domain.StatusBreached && cfg.ChallengeStatus != domain.StatusBreached:
		return outcomeBreached
	case res.Status == domain.StatusPassed && cfg.ChallengeStatus != domain.StatusPassed:
		return outcomePassed
	default:
		return outcomeSynced
	}
}

// dailyPnL sums ledger rows since UTC midnight. A ledger failure degrades to
// zero rather than failing the account check.
func (r *Referee) dailyPnL(ctx context.Context, email string, log *logrus.Entry) float64 {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	pctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	sum, err := r.profitLedger.SumSince(pctx, email, midnight)
	if err != nil {
		log.WithError(err).Warn("daily pnl lookup failed")
		return 0
	}
	return sum
}

// persistSnapshot upserts the live trading state. The snapshot is written on
// every cycle, including terminal accounts, so the dashboard always reflects
// the latest observation.
func (r *Referee) persistSnapshot(ctx context.Context, st *domain.TradingState, log *logrus.Entry) {
	uctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	if err := r.tradingStates.Upsert(uctx, st); err != nil {
		log.WithError(err).Error("trading state write failed")
	}
}

// recordError marks the account's snapshot row as errored so the dashboard
// surfaces unreachable accounts, and counts the failed check.
func (r *Referee) recordError(email string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.callTimeout)
	defer cancel()
	if err := r.tradingStates.UpsertError(ctx, email, time.Now().UTC()); err != nil {
		r.logger.WithError(err).WithField("user_email", email).Error("error snapshot write failed")
	}
	if r.metrics != nil {
		r.metrics.AccountChecksTotal.WithLabelValues("error").Inc()
	}
}

// archiveEquity appends one row to the equity history archive when one is
// configured. Archive failures are logged and otherwise ignored.
func (r *Referee) archiveEquity(ctx context.Context, email string, balance, equity, dailyPnL float64, status domain.ChallengeStatus, at time.Time, log *logrus.Entry) {
	if r.equityHistory == nil {
		return
	}
	actx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	err := r.equityHistory.Append(actx, &domain.EquitySnapshot{
		UserEmail:  email,
		Balance:    balance,
		Equity:     equity,
		DailyPnL:   dailyPnL,
		Status:     status,
		ObservedAt: at,
	})
	if err != nil {
		log.WithError(err).Warn("equity history append failed")
	}
}

func (r *Referee) observeCall(broker, call string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.AdapterCallDuration.WithLabelValues(broker, call).Observe(time.Since(start).Seconds())
}
