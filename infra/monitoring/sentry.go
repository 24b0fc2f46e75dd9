package monitoring

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/drgrieve/TeslaChargingManager/config"
	coremon "github.com/drgrieve/TeslaChargingManager/core/monitoring"
)

// NewSentryMonitor initializes Sentry using the provided configuration and
// returns a Monitor implementation. An empty DSN disables reporting.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
		ServerName:       cfg.SiteName,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	return &sentryMonitor{site: cfg.SiteName}, nil
}

type sentryMonitor struct {
	site string
}

func (s *sentryMonitor) withTags(tags map[string]string, fn func()) {
	sentry.WithScope(func(scope *sentry.Scope) {
		if s.site != "" {
			scope.SetTag("site", s.site)
		}
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		fn()
	})
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.withTags(tags, func() { sentry.CaptureException(err) })
}

func (s *sentryMonitor) CapturePanic(v any, tags map[string]string) {
	s.withTags(tags, func() { sentry.CurrentHub().Recover(v) })
}

func (s *sentryMonitor) Flush(timeout time.Duration) { sentry.Flush(timeout) }
