package evaluator

import "challenge-monitor/internal/domain"

// Default bootstrap parameters, as a fraction of the first observed balance.
const (
	BootstrapDrawdownPct = 0.10
	BootstrapTargetPct   = 0.10
)

// Bootstrap derives challenge parameters from the first observed positive
// balance. It fires only when the config has no parameters yet
// (AccountSize == 0) and balance is positive; every later call is a no-op.
// The input is never mutated: the returned config is a new value that the
// caller both persists and passes forward to Evaluate within the same cycle.
func Bootstrap(cfg domain.ChallengeConfig, balance float64) (domain.ChallengeConfig, bool) {
	if cfg.Bootstrapped() || balance <= 0 {
		return cfg, false
	}

	out := cfg
	out.AccountSize = balance
	out.MaxDrawdownLimit = balance * BootstrapDrawdownPct
	out.ProfitTarget = balance * BootstrapTargetPct
	return out, true
}
