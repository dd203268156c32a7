// Package sigv1 implements version 1 of the relayguard request signing
// contract. It is the single source of truth shared by every producer and
// the server: canonical body serialization, payload assembly, header names,
// and the HMAC-SHA256 signature itself.
//
// Any divergence between two implementations of this package's rules is a
// protocol bug, not a runtime condition to recover from.
package sigv1

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
)

// Version identifies the canonicalization and signing rules in this package.
const Version = "1"

// Request headers carried by every signed request.
const (
	HeaderTimestamp = "x-timestamp"
	HeaderNonce     = "x-nonce"
	HeaderSignature = "x-signature"
	HeaderClientID  = "x-client-id"
)

// Payload assembles the canonical signing payload:
//
//	method + "|" + path + "|" + canonicalBody + "|" + timestamp + "|" + nonce
//
// body must already be canonical JSON (see Canonicalize). timestamp is epoch
// milliseconds.
func Payload(method, path string, body []byte, timestampMs int64, nonce string) []byte {
	ts := strconv.FormatInt(timestampMs, 10)
	out := make([]byte, 0, len(method)+len(path)+len(body)+len(ts)+len(nonce)+4)
	out = append(out, method...)
	out = append(out, '|')
	out = append(out, path...)
	out = append(out, '|')
	out = append(out, body...)
	out = append(out, '|')
	out = append(out, ts...)
	out = append(out, '|')
	out = append(out, nonce...)
	return out
}

// Sign computes the hex-encoded HMAC-SHA256 of payload under secret.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a hex signature against the expected HMAC in constant time.
func Verify(secret, payload []byte, signature string) bool {
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// NewNonce returns an opaque single-use token: base64 of 16 random bytes.
func NewNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return base64.StdEncoding.EncodeToString(b)
}
