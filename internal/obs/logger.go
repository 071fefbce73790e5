// Package obs bundles weblet's ambient observability stack: a zap logger
// factory and the Prometheus collectors shared by the concurrency, cron,
// and httpd packages.
package obs

import "go.uber.org/zap"

// NewLogger builds a *zap.Logger: production config by default, or a
// development config (console-encoded, debug level) when dev is true.
func NewLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
