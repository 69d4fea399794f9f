package session

import (
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Identity is the caller identity peeked from a bearer token. The storefront
// never verifies signatures; the commerce API is the authority and rejects
// forged tokens on every call that matters.
type Identity struct {
	Subject string
	Expires time.Time
}

// Authenticated reports whether the identity is usable at the given instant.
func (id Identity) Authenticated(now time.Time) bool {
	if id.Subject == "" {
		return false
	}
	return id.Expires.IsZero() || now.Before(id.Expires)
}

// InspectToken parses a bearer token without verification to read its subject
// and expiry. Malformed tokens yield a zero Identity.
func InspectToken(raw string) Identity {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}
	}
	tok, err := jwt.Parse([]byte(raw), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return Identity{}
	}
	return Identity{Subject: tok.Subject(), Expires: tok.Expiration()}
}
