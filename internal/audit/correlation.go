package audit

import "context"

type correlationKey struct{}

// WithCorrelation tags a context with the correlation id of the inbound
// message being handled.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationFrom returns the correlation id carried by ctx, or "".
func CorrelationFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
