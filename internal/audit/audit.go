// Package audit records the decisions worth reviewing later: suspicious
// transactions, blocked requests, and auto-blacklist events. The hot path
// is a bounded list in the shared store; an optional PostgreSQL archive
// keeps the full history.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mbd888/relayguard/internal/idgen"
	"github.com/mbd888/relayguard/internal/logging"
	"github.com/mbd888/relayguard/internal/store"
)

// Kind classifies an audit record.
type Kind string

const (
	KindSuspicious    Kind = "suspicious"
	KindBlocked       Kind = "blocked"
	KindAutoBlacklist Kind = "auto_blacklist"
	KindDegraded      Kind = "degraded"
)

// Record is one audit entry.
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Identity  string    `json:"identity"`
	Receiver  string    `json:"receiver,omitempty"`
	Amount    float64   `json:"amount,omitempty"`
	Score     int       `json:"score"`
	Flags     []string  `json:"flags,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ArchiveStore is the long-term archive behind the hot list. Implementations
// must be safe for concurrent use.
type ArchiveStore interface {
	Insert(ctx context.Context, r Record) error
	Recent(ctx context.Context, kind Kind, limit int) ([]Record, error)
	Close() error
}

// maxHotEntries bounds each hot list in the shared store.
const maxHotEntries = 1000

// archiveTimeout bounds each background archive write.
const archiveTimeout = 5 * time.Second

// Recorder writes audit records. Writes to the hot list are synchronous;
// the archive write happens in the background and is best-effort, so a slow
// or absent database never sits on the decision path.
type Recorder struct {
	store   store.Store
	archive ArchiveStore // nil disables archiving
	now     func() time.Time
}

// NewRecorder creates a Recorder. archive may be nil.
func NewRecorder(st store.Store, archive ArchiveStore) *Recorder {
	return &Recorder{store: st, archive: archive, now: time.Now}
}

// Record writes r to the hot list for its kind and queues the archive
// write. Hot list failures are logged, not returned: losing an audit entry
// must not fail the request that produced it.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if rec.ID == "" {
		rec.ID = idgen.WithPrefix("aud_")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now().UTC()
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		logging.L(ctx).Error("audit record marshal failed", "error", err)
		return
	}

	key := hotKey(rec.Kind)
	if err := r.store.LPush(ctx, key, string(raw)); err != nil {
		logging.L(ctx).Warn("audit hot list write failed", "kind", rec.Kind, "error", err)
	} else if err := r.store.LTrim(ctx, key, 0, maxHotEntries-1); err != nil {
		logging.L(ctx).Warn("audit hot list trim failed", "kind", rec.Kind, "error", err)
	}

	if r.archive != nil {
		go r.archiveWrite(rec)
	}
}

// archiveWrite runs detached from the request context.
func (r *Recorder) archiveWrite(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := r.archive.Insert(ctx, rec); err != nil {
		logging.L(ctx).Warn("audit archive write failed", "id", rec.ID, "error", err)
	}
}

// Recent returns up to limit newest hot-list records of the given kind.
func (r *Recorder) Recent(ctx context.Context, kind Kind, limit int) ([]Record, error) {
	if limit <= 0 || limit > maxHotEntries {
		limit = 100
	}
	raws, err := r.store.LRange(ctx, hotKey(kind), 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(raws))
	for _, raw := range raws {
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue // Skip entries written by older builds
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// hotKey maps a record kind to its shared-store list. Suspicious scoring
// events and threat events (blocks, auto-blacklists, degraded decisions)
// land in separate lists because operators poll them at different rates.
func hotKey(kind Kind) string {
	if kind == KindSuspicious {
		return store.KeySuspiciousLog
	}
	return store.KeyThreatLog
}
