// Package evaluator decides challenge outcomes from equity observations.
// All functions are pure: no I/O, no clock, no mutation of inputs.
package evaluator

import (
	"fmt"

	"challenge-monitor/internal/domain"
)

// Result is the outcome of one evaluation.
type Result struct {
	Status domain.ChallengeStatus
	Reason string
}

// Evaluate maps (config, current equity) to a challenge status.
//
// Rules, in order:
//  1. breached/passed are terminal and short-circuit unchanged
//  2. an un-bootstrapped account (AccountSize == 0) stays active
//  3. equity strictly below AccountSize - MaxDrawdownLimit breaches;
//     equity exactly at the breach threshold does NOT breach
//  4. equity at or above AccountSize + ProfitTarget passes
//  5. otherwise active
func Evaluate(cfg domain.ChallengeConfig, equity float64) Result {
	if cfg.ChallengeStatus.Terminal() {
		return Result{Status: cfg.ChallengeStatus, Reason: "already evaluated"}
	}

	if !cfg.Bootstrapped() {
		return Result{Status: domain.StatusActive, Reason: "no challenge parameters"}
	}

	breachThreshold := cfg.AccountSize - cfg.MaxDrawdownLimit
	passThreshold := cfg.AccountSize + cfg.ProfitTarget

	if equity < breachThreshold {
		return Result{
			Status: domain.StatusBreached,
			Reason: fmt.Sprintf("equity %.2f < breach level %.2f", equity, breachThreshold),
		}
	}

	if equity >= passThreshold {
		return Result{
			Status: domain.StatusPassed,
			Reason: fmt.Sprintf("equity %.2f >= target %.2f", equity, passThreshold),
		}
	}

	return Result{
		Status: domain.StatusActive,
		Reason: fmt.Sprintf("equity %.2f (breach %.2f, target %.2f)", equity, breachThreshold, passThreshold),
	}
}
