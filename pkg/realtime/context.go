package realtime

import (
	"context"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/config"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
)

type providerCtxKey struct{}

// NewContext injects the shared provider so downstream consumers can reach
// it without ambient globals.
func NewContext(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, providerCtxKey{}, p)
}

// FromContext returns the injected provider. When none was injected it
// returns a safe fully-disconnected fallback instead of failing, and warns
// in development mode so the missing injection gets noticed before
// production.
func FromContext(ctx context.Context) *Provider {
	if p, ok := ctx.Value(providerCtxKey{}).(*Provider); ok && p != nil {
		return p
	}
	logger := logging.NewLoggerWithComponent("realtime-provider")
	if config.IsDevelopment() {
		logger.Warn("realtime.FromContext called without an injected provider; returning disconnected fallback")
	}
	return NewDisconnectedProvider(logger)
}
