package upstream

import (
	"time"

	"github.com/cassiopeia-dash/gateway/internal/logging"
	"github.com/cassiopeia-dash/gateway/internal/metrics"
)

const defaultTelemetryBaseURL = "http://rust_iss:3000"

// TelemetryConfig configures the orbital-telemetry/open-science-data
// upstream. It is an adjacent internal service: plain JSON, no auth.
// The service reports its own failures inside 200 responses, so the client
// decodes the application envelope instead of trusting transport status.
type TelemetryConfig struct {
	BaseURL string
}

// NewTelemetry builds the telemetry upstream client.
func NewTelemetry(cfg TelemetryConfig, log *logging.Logger, mts *metrics.Metrics) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTelemetryBaseURL
	}
	return NewClient(Config{
		Name:              "telemetry",
		BaseURL:           cfg.BaseURL,
		Timeout:           5 * time.Second,
		MaxAttempts:       3,
		RetryDelay:        100 * time.Millisecond,
		DecodeAppEnvelope: true,
	}, log, mts)
}
