package domain

import "context"

// Trigger sources of portfolio commands.
const (
	SourceTelegram  = "telegram"
	SourceScheduler = "scheduler"
	SourceAPI       = "api"
)

type sourceKey struct{}

// WithSource returns a context carrying the source of the command being handled.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the command source stored in ctx, empty when unset.
func SourceFrom(ctx context.Context) string {
	source, _ := ctx.Value(sourceKey{}).(string)
	return source
}
