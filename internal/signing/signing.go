// Package signing authenticates inbound relay requests: HMAC-SHA256
// signatures over a canonical payload, bounded timestamp skew, and one-shot
// nonces that block replays.
package signing

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mbd888/relayguard/internal/logging"
	"github.com/mbd888/relayguard/internal/store"
	"github.com/mbd888/relayguard/pkg/sigv1"
)

var (
	ErrMissingHeaders  = errors.New("missing signature headers")
	ErrStaleTimestamp  = errors.New("timestamp outside allowed skew")
	ErrBadSignature    = errors.New("signature mismatch")
	ErrReplayedNonce   = errors.New("nonce already used")
	ErrMalformedHeader = errors.New("malformed signature header")
)

// localNonceCap bounds the in-process replay cache used when the shared
// store is unreachable. Replay protection degrades to per-instance scope
// during an outage; signature and skew checks are unaffected.
const localNonceCap = 100_000

// Request carries the pieces of an HTTP request that participate in
// signature verification. Body must be the raw bytes as received.
type Request struct {
	Method    string
	Path      string
	Body      []byte
	Timestamp string
	Nonce     string
	Signature string
	ClientID  string
}

// Authenticator verifies signed requests. A nil Authenticator (signing
// disabled) accepts everything.
type Authenticator struct {
	secret  []byte
	maxSkew time.Duration
	store   store.Store
	local   *expirable.LRU[string, struct{}]
	now     func() time.Time
}

// New creates an Authenticator. Returns nil when secret is empty, which
// disables verification entirely.
func New(secret string, maxSkew time.Duration, st store.Store) *Authenticator {
	if secret == "" {
		return nil
	}
	if maxSkew <= 0 {
		maxSkew = 5 * time.Minute
	}
	return &Authenticator{
		secret:  []byte(secret),
		maxSkew: maxSkew,
		store:   st,
		local:   expirable.NewLRU[string, struct{}](localNonceCap, nil, 2*maxSkew),
		now:     time.Now,
	}
}

// SetNowFunc overrides the clock. Test use only.
func (a *Authenticator) SetNowFunc(now func() time.Time) {
	a.now = now
}

// Verify checks req in order: header presence, timestamp skew, signature,
// nonce replay. The nonce is recorded only after every other check passes,
// so a rejected request does not burn its nonce.
func (a *Authenticator) Verify(ctx context.Context, req Request) error {
	if a == nil {
		return nil
	}
	if req.Timestamp == "" || req.Nonce == "" || req.Signature == "" || req.ClientID == "" {
		return ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return ErrMalformedHeader
	}
	// Compare in milliseconds; converting the raw delta to a Duration would
	// overflow for absurd timestamps and wrap past the skew bound.
	skew := a.now().UnixMilli() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew < 0 || skew > a.maxSkew.Milliseconds() {
		return ErrStaleTimestamp
	}

	payload := sigv1.Payload(req.Method, req.Path, req.Body, ts, req.Nonce)
	if !sigv1.Verify(a.secret, payload, req.Signature) {
		return ErrBadSignature
	}

	return a.recordNonce(ctx, req.ClientID, req.Nonce)
}

// recordNonce claims the nonce atomically in the shared store. When the
// store is down it falls back to the per-instance cache rather than
// rejecting valid traffic.
func (a *Authenticator) recordNonce(ctx context.Context, clientID, nonce string) error {
	key := store.NonceKey(clientID, nonce)
	ok, err := a.store.SetNX(ctx, key, "1", 2*a.maxSkew)
	if err != nil {
		logging.L(ctx).Warn("nonce store unavailable, using local replay cache", "error", err)
		if _, seen := a.local.Get(key); seen {
			return ErrReplayedNonce
		}
		a.local.Add(key, struct{}{})
		return nil
	}
	if !ok {
		return ErrReplayedNonce
	}
	return nil
}
