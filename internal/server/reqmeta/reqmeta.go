// Package reqmeta carries request metadata that is recorded in the access log
// but is not part of any operation's arguments.
package reqmeta

import "context"

// ClientInfo describes the remote caller of a request.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

type ctxKey struct{}

// WithClientInfo returns a copy of ctx carrying info.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// ClientInfoFrom returns the ClientInfo stored in ctx, or the zero value.
func ClientInfoFrom(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(ctxKey{}).(ClientInfo)
	return info
}
