package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kedaipet/storefront/internal/common"
)

// CookieName is the session id cookie issued to every storefront visitor.
const CookieName = "storefront_session"

type ctxKey string

const sessionIDKey ctxKey = "sessionID"

// WithSessionID attaches the session id to the context.
func WithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sid)
}

// SessionID extracts the session id from the context.
func SessionID(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(sessionIDKey).(string)
	return sid, ok && sid != ""
}

// Middleware wires session and identity context into HTTP handlers.
type Middleware struct {
	CookieTTL time.Duration
	Secure    bool
	Now       func() time.Time
}

func (m Middleware) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Attach ensures every request carries a session id, minting a cookie for new
// visitors, and peeks the bearer token into the context when one is present.
// Expired tokens are ignored so the customer degrades to a guest instead of
// getting an error page.
func (m Middleware) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sid := ""
		if cookie, err := r.Cookie(CookieName); err == nil {
			sid = strings.TrimSpace(cookie.Value)
		}
		if sid == "" {
			sid = uuid.NewString()
			ttl := m.CookieTTL
			if ttl <= 0 {
				ttl = 2 * time.Hour
			}
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    sid,
				Path:     "/",
				MaxAge:   int(ttl / time.Second),
				HttpOnly: true,
				Secure:   m.Secure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx = WithSessionID(ctx, sid)

		if token := extractBearer(r); token != "" {
			if id := InspectToken(token); id.Authenticated(m.now()) {
				ctx = common.WithBearerToken(ctx, token)
				ctx = common.WithUserID(ctx, id.Subject)
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests without an authenticated identity. Used for
// member-only surfaces such as addresses and the wishlist.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.UserID(r.Context()); !ok {
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "sign in to continue", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearer(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
