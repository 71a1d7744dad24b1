// Package weight implements the anti-whale vote weighting function.
package weight

import "math"

// Config holds the runtime weighting parameters. All three are operator
// configuration, never compiled-in constants.
type Config struct {
	MinVote    float64 // dust floor: cumulative totals below it weigh zero
	Multiplier float64 // log10 multiplier
	Cap        float64 // per-wallet weight ceiling
}

// DefaultConfig returns the weighting parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		MinVote:    1.0,
		Multiplier: 3.0,
		Cap:        10.0,
	}
}

// Weight maps a wallet's cumulative token total for one submission to its
// bounded score contribution:
//
//	weight(total) = 0                                  if total < MinVote
//	weight(total) = min(log10(total+1)*Multiplier, Cap) otherwise
//
// The input must be the cumulative per-(sender, submission) total, not a
// single transaction amount. That makes the result order-independent and
// insensitive to how a wallet splits its transfers.
func Weight(total float64, cfg Config) float64 {
	if total < cfg.MinVote {
		return 0
	}
	w := math.Log10(total+1) * cfg.Multiplier
	if w > cfg.Cap {
		return cfg.Cap
	}
	return w
}
