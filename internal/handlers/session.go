package handlers

import (
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/vitrinehub/api/internal/platform/requestctx"
)

// SessionHeader carries the storefront cart session identifier. A fresh ULID
// is minted when the client does not send one; the value in effect is always
// echoed back so the storefront can persist it.
const SessionHeader = "X-Session-ID"

const maxSessionIDLength = 64

// SessionMiddleware resolves the cart session identifier for the request and
// stores it on the context.
func SessionMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := sanitizeSessionID(r.Header.Get(SessionHeader))
			if sessionID == "" {
				sessionID = ulid.Make().String()
			}

			w.Header().Set(SessionHeader, sessionID)
			ctx := requestctx.WithSessionID(r.Context(), sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sanitizeSessionID keeps client-sent identifiers to a safe charset so they
// can be embedded in storage keys and logs.
func sanitizeSessionID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		}
		if b.Len() >= maxSessionIDLength {
			break
		}
	}
	return b.String()
}
