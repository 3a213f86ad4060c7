package upstream

import (
	"net/http"
	"time"

	"github.com/cassiopeia-dash/gateway/internal/envelope"
	"github.com/cassiopeia-dash/gateway/internal/logging"
	"github.com/cassiopeia-dash/gateway/internal/metrics"
)

const defaultAstronomyBaseURL = "https://api.astronomyapi.com/api/v2"

// AstronomyConfig configures the astronomy events upstream. AppID and
// Secret are required; the upstream authenticates with basic auth.
type AstronomyConfig struct {
	BaseURL string
	AppID   string
	Secret  string
}

// NewAstronomy builds the astronomy upstream client. Missing credentials
// fail fast at construction, not per request.
func NewAstronomy(cfg AstronomyConfig, log *logging.Logger, mts *metrics.Metrics) (*Client, error) {
	if cfg.AppID == "" || cfg.Secret == "" {
		return nil, envelope.NewError(envelope.CodeConfigurationError,
			"astronomy upstream: app ID and secret are required", http.StatusInternalServerError)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAstronomyBaseURL
	}
	return NewClient(Config{
		Name:          "astronomy",
		BaseURL:       cfg.BaseURL,
		Timeout:       10 * time.Second,
		MaxAttempts:   1,
		BasicAuthUser: cfg.AppID,
		BasicAuthPass: cfg.Secret,
	}, log, mts)
}
