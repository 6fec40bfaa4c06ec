package clients

import "context"

type userIDKey struct{}

// WithUserID stamps the acting LMS user onto the context. Outbound requests
// made through HTTPClient carry it in the X-User-ID header.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFrom reports the acting user stored on the context, if any
func UserIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok && id > 0
}
