package auth

import (
	"strings"
	"time"

	"github.com/parley-chat/parley/internal/shared"
)

const (
	// HeaderName is the token carrier header on both transports.
	HeaderName = "Authorization"
	// BearerPrefix is the literal, case-sensitive value prefix.
	BearerPrefix = "Bearer "
)

// TokenFromHeader extracts the raw token from an Authorization header value.
// A missing header, wrong prefix, or empty remainder all report false: the
// deliberate "absent token" signal, distinct from a malformed token.
func TokenFromHeader(value string) (string, bool) {
	if !strings.HasPrefix(value, BearerPrefix) {
		return "", false
	}
	token := value[len(BearerPrefix):]
	if token == "" {
		return "", false
	}
	return token, true
}

// Extractor turns a transport carrier value into a validated principal.
type Extractor struct {
	codec *Codec
	clock func() time.Time
}

// NewExtractor constructs an Extractor verifying with codec.
func NewExtractor(codec *Codec) *Extractor {
	return &Extractor{codec: codec, clock: time.Now}
}

// Authenticate composes header extraction and token verification. It
// returns nil for an absent carrier value, a wrong prefix, or a token that
// fails verification; callers proceed unauthenticated and defer the
// decision to downstream access checks.
func (e *Extractor) Authenticate(headerValue string) *shared.Principal {
	token, ok := TokenFromHeader(headerValue)
	if !ok {
		return nil
	}
	return e.codec.Verify(token, e.clock())
}
