package common

import "context"

type ctxKey string

const (
	userIDKey      ctxKey = "auth/user-id"
	bearerTokenKey ctxKey = "auth/bearer-token"
)

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithBearerToken stores the raw upstream bearer token on the context so
// outbound calls can forward it unchanged.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey, token)
}

// BearerToken extracts the raw bearer token from the context if present.
func BearerToken(ctx context.Context) (string, bool) {
	v := ctx.Value(bearerTokenKey)
	if v == nil {
		return "", false
	}
	token, ok := v.(string)
	return token, ok
}
