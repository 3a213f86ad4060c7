package upstream

import (
	"net/http"
	"time"

	"github.com/cassiopeia-dash/gateway/internal/envelope"
	"github.com/cassiopeia-dash/gateway/internal/logging"
	"github.com/cassiopeia-dash/gateway/internal/metrics"
)

const defaultImageryBaseURL = "https://api.jwstapi.com"

// ImageryConfig configures the space-telescope image upstream. APIKey is
// required and sent as the x-api-key header; Email is an optional identity
// header some deployments expect.
type ImageryConfig struct {
	BaseURL string
	APIKey  string
	Email   string
}

// NewImagery builds the imagery upstream client.
func NewImagery(cfg ImageryConfig, log *logging.Logger, mts *metrics.Metrics) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, envelope.NewError(envelope.CodeConfigurationError,
			"imagery upstream: API key is required", http.StatusInternalServerError)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultImageryBaseURL
	}
	headers := map[string]string{"x-api-key": cfg.APIKey}
	if cfg.Email != "" {
		headers["email"] = cfg.Email
	}
	return NewClient(Config{
		Name:        "imagery",
		BaseURL:     cfg.BaseURL,
		Timeout:     12 * time.Second,
		MaxAttempts: 2,
		RetryDelay:  500 * time.Millisecond,
		Headers:     headers,
	}, log, mts)
}
