package signing

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/relayguard/internal/logging"
	"github.com/mbd888/relayguard/internal/metrics"
	"github.com/mbd888/relayguard/pkg/sigv1"
)

// Middleware verifies the request signature before the handler runs. With a
// nil Authenticator every request passes through untouched.
func Middleware(auth *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		// Handlers downstream still need to read the body.
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		req := Request{
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			Body:      body,
			Timestamp: c.GetHeader(sigv1.HeaderTimestamp),
			Nonce:     c.GetHeader(sigv1.HeaderNonce),
			Signature: c.GetHeader(sigv1.HeaderSignature),
			ClientID:  c.GetHeader(sigv1.HeaderClientID),
		}

		if err := auth.Verify(c.Request.Context(), req); err != nil {
			reason := failureReason(err)
			metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
			logging.L(c.Request.Context()).Warn("request rejected",
				"reason", reason, "client_id", req.ClientID)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
			return
		}

		if req.ClientID != "" {
			c.Request = c.Request.WithContext(
				logging.WithIdentity(c.Request.Context(), req.ClientID))
		}
		c.Next()
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingHeaders):
		return "missing_headers"
	case errors.Is(err, ErrStaleTimestamp):
		return "stale_timestamp"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrReplayedNonce):
		return "replayed_nonce"
	case errors.Is(err, ErrMalformedHeader):
		return "malformed_header"
	default:
		return "unknown"
	}
}
