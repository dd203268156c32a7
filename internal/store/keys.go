package store

// Key namespace shared with operator tooling. These names are a public
// contract: external scripts read and mutate the same keys.
const (
	KeyBlacklistAddresses = "blacklist:addresses"
	KeyBlacklistReasons   = "blacklist:reasons"
	KeyGreylistAddresses  = "greylist:addresses"
	KeyGreylistReasons    = "greylist:reasons"
	KeySuspiciousLog      = "suspicious_transactions"
	KeyThreatLog          = "threat_events"
)

// RateLimitKey is the per-identity fixed-window counter (TTL = window).
func RateLimitKey(identity string) string {
	return "ratelimit:" + identity
}

// PenaltyKey holds an identity's violation count and last violation time.
func PenaltyKey(identity string) string {
	return "ratelimit:" + identity + ":penalty"
}

// PatternKey is the per-identity rolling statistics hash.
func PatternKey(identity string) string {
	return "sender_pattern:" + identity
}

// PatternReceiversKey is the capped unique-receiver set for an identity.
func PatternReceiversKey(identity string) string {
	return "sender_pattern:" + identity + ":receivers"
}

// PatternRecentKey is the recent-window transaction counter for an identity.
func PatternRecentKey(identity string) string {
	return "sender_pattern:" + identity + ":recent"
}

// NonceKey records an accepted (identity, nonce) pair for replay rejection.
func NonceKey(identity, nonce string) string {
	return "nonce:" + identity + ":" + nonce
}
