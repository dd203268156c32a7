// Package blacklist maintains the two blocklist tiers for sender addresses:
// a compiled-in emergency list that works with every backend down, and a
// store-backed primary list operators edit at runtime. A greylist marks
// senders under observation without blocking them.
package blacklist

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mbd888/relayguard/internal/logging"
	"github.com/mbd888/relayguard/internal/metrics"
	"github.com/mbd888/relayguard/internal/store"
)

// Tier identifies which list matched a blocked address.
type Tier string

const (
	TierNone      Tier = "none"
	TierPrimary   Tier = "primary"
	TierEmergency Tier = "emergency"
)

// Status is the result of a blocklist check.
type Status struct {
	Blocked bool   `json:"blocked"`
	Tier    Tier   `json:"tier"`
	Reason  string `json:"reason,omitempty"`
	// Degraded is set when the primary list was unreachable and the check
	// fell through open. The emergency tier is never degraded.
	Degraded bool `json:"degraded,omitempty"`
}

// Entry is one primary blacklist or greylist record.
type Entry struct {
	Address string    `json:"address"`
	Reason  string    `json:"reason"`
	AddedAt time.Time `json:"added_at"`
}

// Stats summarizes list sizes for the operator surface.
type Stats struct {
	Blacklisted int64 `json:"blacklisted"`
	Greylisted  int64 `json:"greylisted"`
	Emergency   int   `json:"emergency"`
}

// Service answers blocklist questions against both tiers.
type Service struct {
	store     store.Store
	emergency *Emergency
	now       func() time.Time
}

// NewService creates a blocklist service over st with the given emergency
// tier.
func NewService(st store.Store, emergency *Emergency) *Service {
	return &Service{store: st, emergency: emergency, now: time.Now}
}

// SetNowFunc overrides the clock. Test use only.
func (s *Service) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Check looks address up in the emergency tier first, then the primary
// list. An unreachable store degrades the primary check to open; blocking
// all traffic on a backend outage would be a self-inflicted denial of
// service, and the emergency tier still catches the addresses that must
// never pass.
func (s *Service) Check(ctx context.Context, address string) Status {
	addr := strings.ToLower(address)

	if reason, blocked := s.emergency.Check(addr); blocked {
		metrics.BlacklistHitsTotal.WithLabelValues(string(TierEmergency)).Inc()
		return Status{Blocked: true, Tier: TierEmergency, Reason: reason}
	}

	member, err := s.store.SIsMember(ctx, store.KeyBlacklistAddresses, addr)
	if err != nil {
		logging.L(ctx).Warn("primary blacklist unavailable, failing open", "error", err)
		metrics.StoreDegradedTotal.WithLabelValues("blacklist").Inc()
		return Status{Blocked: false, Tier: TierNone, Degraded: true}
	}
	if !member {
		return Status{Blocked: false, Tier: TierNone}
	}

	metrics.BlacklistHitsTotal.WithLabelValues(string(TierPrimary)).Inc()
	st := Status{Blocked: true, Tier: TierPrimary}
	if e, ok := s.entry(ctx, store.KeyBlacklistReasons, addr); ok {
		st.Reason = e.Reason
	}
	return st
}

// IsGreylisted reports whether address is under observation. Greylist
// membership never blocks; it only feeds the risk score.
func (s *Service) IsGreylisted(ctx context.Context, address string) (bool, error) {
	return s.store.SIsMember(ctx, store.KeyGreylistAddresses, strings.ToLower(address))
}

// Add puts address on the primary blacklist. Adding an address twice is a
// no-op that keeps the original entry; the first reason stands.
func (s *Service) Add(ctx context.Context, address, reason string) error {
	addr := strings.ToLower(address)
	added, err := s.store.SAdd(ctx, store.KeyBlacklistAddresses, addr)
	if err != nil {
		return err
	}
	if added == 0 {
		return nil
	}
	return s.writeEntry(ctx, store.KeyBlacklistReasons, addr, reason)
}

// Remove takes address off the primary blacklist. Emergency entries cannot
// be removed.
func (s *Service) Remove(ctx context.Context, address string) error {
	addr := strings.ToLower(address)
	if err := s.store.SRem(ctx, store.KeyBlacklistAddresses, addr); err != nil {
		return err
	}
	return s.store.HDel(ctx, store.KeyBlacklistReasons, addr)
}

// Greylist puts address under observation.
func (s *Service) Greylist(ctx context.Context, address, reason string) error {
	addr := strings.ToLower(address)
	if _, err := s.store.SAdd(ctx, store.KeyGreylistAddresses, addr); err != nil {
		return err
	}
	return s.writeEntry(ctx, store.KeyGreylistReasons, addr, reason)
}

// Ungreylist clears the observation mark.
func (s *Service) Ungreylist(ctx context.Context, address string) error {
	addr := strings.ToLower(address)
	if err := s.store.SRem(ctx, store.KeyGreylistAddresses, addr); err != nil {
		return err
	}
	return s.store.HDel(ctx, store.KeyGreylistReasons, addr)
}

// List returns every primary blacklist entry.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	return s.list(ctx, store.KeyBlacklistAddresses, store.KeyBlacklistReasons)
}

// ListGreylist returns every greylist entry.
func (s *Service) ListGreylist(ctx context.Context) ([]Entry, error) {
	return s.list(ctx, store.KeyGreylistAddresses, store.KeyGreylistReasons)
}

// Stats reports list sizes.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	black, err := s.store.SCard(ctx, store.KeyBlacklistAddresses)
	if err != nil {
		return Stats{}, err
	}
	grey, err := s.store.SCard(ctx, store.KeyGreylistAddresses)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Blacklisted: black, Greylisted: grey, Emergency: s.emergency.Size()}, nil
}

func (s *Service) list(ctx context.Context, setKey, reasonKey string) ([]Entry, error) {
	members, err := s.store.SMembers(ctx, setKey)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(members))
	for _, addr := range members {
		if e, ok := s.entry(ctx, reasonKey, addr); ok {
			entries = append(entries, e)
		} else {
			entries = append(entries, Entry{Address: addr})
		}
	}
	return entries, nil
}

func (s *Service) writeEntry(ctx context.Context, reasonKey, addr, reason string) error {
	e := Entry{Address: addr, Reason: reason, AddedAt: s.now().UTC()}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.store.HSet(ctx, reasonKey, addr, string(raw))
}

func (s *Service) entry(ctx context.Context, reasonKey, addr string) (Entry, bool) {
	raw, ok, err := s.store.HGet(ctx, reasonKey, addr)
	if err != nil || !ok {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry{}, false
	}
	return e, true
}
