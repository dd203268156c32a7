// Package risk scores relay transactions against the sender's history and
// list memberships. Scores are additive over independent weighted flags;
// crossing the block threshold rejects the transaction, crossing the
// auto-blacklist threshold also writes the sender to the primary blacklist.
package risk

import (
	"time"
)

// Verdict is the scorer's decision on a transaction.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictBlock Verdict = "block"
)

// Flag names. The name doubles as the operator-visible reason fragment.
const (
	FlagBlacklisted   = "blacklisted"
	FlagGreylisted    = "greylisted"
	FlagHighFrequency = "high_frequency"
	FlagManyReceivers = "many_receivers"
	FlagLargeAmount   = "large_amount"
	FlagUnusualAmount = "unusual_amount"
	FlagRoundNumber   = "round_number"
	FlagDustAmount    = "dust_amount"
	FlagAnalysisError = "analysis_error"
)

// Default flag weights.
const (
	weightBlacklisted   = 100
	weightGreylisted    = 40
	weightHighFrequency = 25
	weightManyReceivers = 30
	weightLargeAmount   = 30
	weightUnusualAmount = 20
	weightRoundNumber   = 5
	weightDustAmount    = 15
)

// Flag is one triggered signal and its contribution to the score.
type Flag struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// Transaction carries the fields of a relay request that the scorer
// evaluates.
type Transaction struct {
	Identity  string
	Receiver  string
	Amount    float64
	Timestamp time.Time
}

// Assessment is the result of scoring one transaction. The score is the
// exact sum of the triggered flag weights; nothing else contributes.
type Assessment struct {
	ID              string    `json:"id"`
	Identity        string    `json:"identity"`
	Score           int       `json:"score"`
	Flags           []Flag    `json:"flags"`
	Verdict         Verdict   `json:"verdict"`
	AutoBlacklisted bool      `json:"auto_blacklisted"`
	// Degraded marks an assessment made with the store unreachable: scoring
	// failed open and the result understates risk.
	Degraded    bool      `json:"degraded,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// FlagNames returns the triggered flag names in evaluation order.
func (a *Assessment) FlagNames() []string {
	names := make([]string, len(a.Flags))
	for i, f := range a.Flags {
		names[i] = f.Name
	}
	return names
}

// Config tunes thresholds and pattern bounds. Zero values take defaults.
type Config struct {
	// BlockThreshold rejects the transaction at or above this score.
	BlockThreshold int
	// BlacklistThreshold additionally writes the sender to the primary
	// blacklist at or above this score.
	BlacklistThreshold int
	// LargeAmountCeiling triggers the large-amount flag above it.
	LargeAmountCeiling float64
	// DustFloor triggers the dust flag for positive amounts below it.
	DustFloor float64
	// HighFrequencyCount triggers the frequency flag at or above this many
	// transactions in the tracker's recent window.
	HighFrequencyCount int64
	// ManyReceiversCount triggers the receiver-spray flag at or above this
	// many distinct receivers.
	ManyReceiversCount int64
}

func (c Config) withDefaults() Config {
	if c.BlockThreshold <= 0 {
		c.BlockThreshold = 80
	}
	if c.BlacklistThreshold <= 0 {
		c.BlacklistThreshold = 100
	}
	if c.LargeAmountCeiling <= 0 {
		c.LargeAmountCeiling = 1e9
	}
	if c.DustFloor <= 0 {
		c.DustFloor = 0.000001
	}
	if c.HighFrequencyCount <= 0 {
		c.HighFrequencyCount = 10
	}
	if c.ManyReceiversCount <= 0 {
		c.ManyReceiversCount = 20
	}
	return c
}
