package risk

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mbd888/relayguard/internal/audit"
	"github.com/mbd888/relayguard/internal/blacklist"
	"github.com/mbd888/relayguard/internal/idgen"
	"github.com/mbd888/relayguard/internal/logging"
	"github.com/mbd888/relayguard/internal/metrics"
	"github.com/mbd888/relayguard/internal/pattern"
)

// Scorer evaluates transactions. It consults the blocklists, folds the
// transaction into the sender's pattern record, and sums the triggered
// flag weights.
type Scorer struct {
	lists    *blacklist.Service
	patterns *pattern.Tracker
	auditor  *audit.Recorder
	cfg      Config
	now      func() time.Time
}

// NewScorer creates a Scorer.
func NewScorer(lists *blacklist.Service, patterns *pattern.Tracker, auditor *audit.Recorder, cfg Config) *Scorer {
	return &Scorer{
		lists:    lists,
		patterns: patterns,
		auditor:  auditor,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// SetNowFunc overrides the clock. Test use only.
func (s *Scorer) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Assess scores tx and applies the verdict side effects: audit records and,
// past the blacklist threshold, the auto-blacklist write.
//
// A blacklisted sender short-circuits to score 100 without touching the
// pattern state: blocked traffic must not pollute history, and the sender
// is already on the list so there is nothing further to learn.
func (s *Scorer) Assess(ctx context.Context, tx Transaction) *Assessment {
	a := &Assessment{
		ID:          idgen.WithPrefix("risk_"),
		Identity:    tx.Identity,
		EvaluatedAt: s.now().UTC(),
	}

	status := s.lists.Check(ctx, tx.Identity)
	if status.Blocked {
		a.Score = 100
		a.Flags = []Flag{{Name: FlagBlacklisted, Weight: weightBlacklisted}}
		a.Verdict = VerdictBlock
		s.finish(ctx, tx, a)
		return a
	}
	a.Degraded = status.Degraded

	rec, err := s.observe(ctx, tx)
	if err != nil {
		return s.failOpen(ctx, tx, a, err)
	}

	grey, err := s.lists.IsGreylisted(ctx, tx.Identity)
	if err != nil {
		return s.failOpen(ctx, tx, a, err)
	}

	s.accumulate(a, tx, rec, grey)

	if a.Score >= s.cfg.BlockThreshold {
		a.Verdict = VerdictBlock
	} else {
		a.Verdict = VerdictAllow
	}

	if a.Score >= s.cfg.BlacklistThreshold {
		s.autoBlacklist(ctx, a)
	}

	s.finish(ctx, tx, a)
	return a
}

// observe folds tx into the sender's history and returns the updated
// snapshot, the way the scorer sees it: this request included.
func (s *Scorer) observe(ctx context.Context, tx Transaction) (pattern.Record, error) {
	at := tx.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	if err := s.patterns.Observe(ctx, tx.Identity, tx.Amount, tx.Receiver, at); err != nil {
		return pattern.Record{}, err
	}
	return s.patterns.Snapshot(ctx, tx.Identity)
}

// accumulate evaluates each flag independently and sums the weights of
// those that fire. Evaluation order fixes the flag order in the result.
func (s *Scorer) accumulate(a *Assessment, tx Transaction, rec pattern.Record, grey bool) {
	add := func(name string, weight int, fired bool) {
		if fired {
			a.Flags = append(a.Flags, Flag{Name: name, Weight: weight})
			a.Score += weight
		}
	}

	add(FlagGreylisted, weightGreylisted, grey)
	add(FlagHighFrequency, weightHighFrequency, rec.RecentCount >= s.cfg.HighFrequencyCount)
	add(FlagManyReceivers, weightManyReceivers,
		rec.UniqueReceivers >= s.cfg.ManyReceiversCount || rec.ReceiversCapped)
	add(FlagLargeAmount, weightLargeAmount, tx.Amount > s.cfg.LargeAmountCeiling)
	add(FlagUnusualAmount, weightUnusualAmount, unusualAmount(tx.Amount, rec))
	add(FlagRoundNumber, weightRoundNumber, tx.Amount > 0 && math.Mod(tx.Amount, 1000) == 0)
	add(FlagDustAmount, weightDustAmount, tx.Amount > 0 && tx.Amount < s.cfg.DustFloor)
}

// unusualAmount compares tx.Amount to the sender's own average. A sender
// needs at least five prior transactions before deviation means anything.
// The current transaction is already folded into rec, so the average is
// recomputed over the history without it.
func unusualAmount(amount float64, rec pattern.Record) bool {
	prior := rec.TotalTransactions - 1
	if prior < 5 {
		return false
	}
	avg := (rec.TotalVolume - amount) / float64(prior)
	if avg <= 0 {
		return false
	}
	return amount > avg*10 || amount < avg/10
}

// autoBlacklist writes the sender to the primary blacklist. The add is
// idempotent set semantics, so two concurrent crossings produce one entry.
func (s *Scorer) autoBlacklist(ctx context.Context, a *Assessment) {
	reason := fmt.Sprintf("auto: %s (score %d)", strings.Join(a.FlagNames(), ","), a.Score)
	if err := s.lists.Add(ctx, a.Identity, reason); err != nil {
		logging.L(ctx).Error("auto-blacklist write failed", "identity", a.Identity, "error", err)
		return
	}
	a.AutoBlacklisted = true
	metrics.AutoBlacklistsTotal.Inc()
	logging.L(ctx).Warn("sender auto-blacklisted",
		"identity", a.Identity, "score", a.Score, "flags", a.FlagNames())

	s.auditor.Record(ctx, audit.Record{
		Kind:     audit.KindAutoBlacklist,
		Identity: a.Identity,
		Score:    a.Score,
		Flags:    a.FlagNames(),
		Reason:   reason,
	})
}

// failOpen is the degraded scoring path: the store died mid-assessment, so
// the verdict is Allow with the analysis-error flag, and the event is
// recorded for operator review. The emergency blocklist was already
// enforced before scoring began.
func (s *Scorer) failOpen(ctx context.Context, tx Transaction, a *Assessment, err error) *Assessment {
	logging.L(ctx).Warn("risk analysis degraded, failing open",
		"identity", tx.Identity, "error", err)
	metrics.StoreDegradedTotal.WithLabelValues("risk").Inc()

	a.Degraded = true
	a.Verdict = VerdictAllow
	a.Flags = append(a.Flags, Flag{Name: FlagAnalysisError, Weight: 0})

	s.auditor.Record(ctx, audit.Record{
		Kind:     audit.KindDegraded,
		Identity: tx.Identity,
		Receiver: tx.Receiver,
		Amount:   tx.Amount,
		Flags:    a.FlagNames(),
		Reason:   err.Error(),
	})
	return a
}

// finish records metrics and the audit trail for a completed assessment.
func (s *Scorer) finish(ctx context.Context, tx Transaction, a *Assessment) {
	metrics.RiskScore.Observe(float64(a.Score))

	switch {
	case a.Verdict == VerdictBlock:
		s.auditor.Record(ctx, audit.Record{
			Kind:     audit.KindBlocked,
			Identity: a.Identity,
			Receiver: tx.Receiver,
			Amount:   tx.Amount,
			Score:    a.Score,
			Flags:    a.FlagNames(),
		})
	case a.Score > 0:
		s.auditor.Record(ctx, audit.Record{
			Kind:     audit.KindSuspicious,
			Identity: a.Identity,
			Receiver: tx.Receiver,
			Amount:   tx.Amount,
			Score:    a.Score,
			Flags:    a.FlagNames(),
		})
	}
}
