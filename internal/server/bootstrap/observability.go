package bootstrap

import (
	"context"

	"mediasvc/internal/config"
	"mediasvc/internal/logging"
	"mediasvc/internal/observability"
)

// InitObservability reads the observability block of the config file. A
// broken block disables observability instead of failing startup. The
// returned cleanup flushes exporters within the server shutdown timeout.
func InitObservability(cfg config.Config, logger logging.Logger) (*observability.Observability, func()) {
	logger = logging.OrNop(logger)

	obs, err := observability.New(cfg.Source)
	if err != nil {
		logger.Warn("Observability disabled: %v", err)
		return nil, func() {}
	}

	settings := obs.Config()
	logger.Info("Observability: metrics=%t tracing=%t exporter=%s",
		settings.Metrics.Enabled, settings.Tracing.Enabled, settings.Tracing.Exporter)

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return obs, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := obs.Shutdown(ctx); err != nil {
			logger.Warn("Observability shutdown error: %v", err)
		}
	}
}
