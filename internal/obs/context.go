package obs

import "context"

// routePatternKey carries the matched chi pattern through the context.
type routePatternKey struct{}

// WithRoutePattern attaches the matched route pattern, keeping metric labels
// bounded to declared routes rather than raw URLs.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext returns the stored pattern, or empty.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routePatternKey{}).(string); ok {
		return v
	}
	return ""
}
