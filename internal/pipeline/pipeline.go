// Package pipeline runs the per-request decision sequence: rate limit,
// then risk assessment, with every rejection and degradation recorded and
// broadcast. Request authentication runs in front of this as middleware;
// by the time a transaction reaches the pipeline its signature has been
// verified.
package pipeline

import (
	"context"
	"time"

	"github.com/mbd888/relayguard/internal/audit"
	"github.com/mbd888/relayguard/internal/logging"
	"github.com/mbd888/relayguard/internal/metrics"
	"github.com/mbd888/relayguard/internal/ratelimit"
	"github.com/mbd888/relayguard/internal/realtime"
	"github.com/mbd888/relayguard/internal/risk"
)

// Rejection reasons returned to callers. The internal score never leaves
// the engine; callers only see the category.
const (
	ReasonRateLimited = "rate_limit_exceeded"
	ReasonBlocked     = "blocked"
)

// Outcome is the pipeline's final answer for one transaction.
type Outcome struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
	Assessment *risk.Assessment
}

// Pipeline orders the decision stages. hub may be nil (no live feed).
type Pipeline struct {
	limiter *ratelimit.Limiter
	scorer  *risk.Scorer
	auditor *audit.Recorder
	hub     *realtime.Hub
}

// New creates a Pipeline.
func New(limiter *ratelimit.Limiter, scorer *risk.Scorer, auditor *audit.Recorder, hub *realtime.Hub) *Pipeline {
	return &Pipeline{limiter: limiter, scorer: scorer, auditor: auditor, hub: hub}
}

// Process runs tx through the pipeline to completion. There is no
// mid-flight abort: a stage either decides or falls back per its own
// degradation policy.
func (p *Pipeline) Process(ctx context.Context, tx risk.Transaction) Outcome {
	ctx = logging.WithIdentity(ctx, tx.Identity)

	d := p.limiter.Allow(ctx, tx.Identity)
	if d.Degraded {
		p.auditor.Record(ctx, audit.Record{
			Kind:     audit.KindDegraded,
			Identity: tx.Identity,
			Reason:   "rate limiter failed open",
		})
	}
	if !d.Allowed {
		metrics.DecisionsTotal.WithLabelValues("block").Inc()
		p.broadcast(realtime.EventRateLimited, realtime.Threat{
			Identity: tx.Identity,
			Reason:   ReasonRateLimited,
		})
		return Outcome{Allowed: false, Reason: ReasonRateLimited, RetryAfter: d.RetryAfter}
	}

	a := p.scorer.Assess(ctx, tx)

	if a.Verdict == risk.VerdictBlock {
		metrics.DecisionsTotal.WithLabelValues("block").Inc()
		evt := realtime.EventBlocked
		if a.AutoBlacklisted {
			evt = realtime.EventAutoBlacklist
		}
		p.broadcast(evt, realtime.Threat{
			Identity: tx.Identity,
			Receiver: tx.Receiver,
			Amount:   tx.Amount,
			Score:    a.Score,
			Flags:    a.FlagNames(),
			Reason:   ReasonBlocked,
		})
		return Outcome{Allowed: false, Reason: ReasonBlocked, Assessment: a}
	}

	metrics.DecisionsTotal.WithLabelValues("allow").Inc()
	switch {
	case a.Degraded:
		p.broadcast(realtime.EventDegraded, realtime.Threat{
			Identity: tx.Identity,
			Flags:    a.FlagNames(),
		})
	case a.Score > 0:
		p.broadcast(realtime.EventSuspicious, realtime.Threat{
			Identity: tx.Identity,
			Receiver: tx.Receiver,
			Amount:   tx.Amount,
			Score:    a.Score,
			Flags:    a.FlagNames(),
		})
	}
	return Outcome{Allowed: true, Assessment: a}
}

func (p *Pipeline) broadcast(t realtime.EventType, threat realtime.Threat) {
	if p.hub != nil {
		p.hub.BroadcastThreat(t, threat)
	}
}
