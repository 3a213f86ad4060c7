// Package upstream provides the HTTP clients for the external data sources
// the gateway aggregates. A single resilient client implementation carries
// per-upstream configuration (base address, auth, timeout, bounded retry)
// and maps every raw HTTP outcome into the uniform result envelope.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cassiopeia-dash/gateway/internal/envelope"
	"github.com/cassiopeia-dash/gateway/internal/logging"
	"github.com/cassiopeia-dash/gateway/internal/metrics"
)

const (
	defaultUserAgent = "cassiopeia-gateway/1.0"
	maxBodySize      = 8 << 20
)

// Config carries per-upstream construction-time settings. Credentials are a
// configuration concern, never a per-call parameter.
type Config struct {
	// Name identifies the upstream in logs and metrics.
	Name string
	// BaseURL is the upstream base address, without trailing slash.
	BaseURL string
	// Timeout is the hard per-request timeout.
	Timeout time.Duration
	// MaxAttempts is the total number of invocation attempts. 3 means one
	// call plus two retries. Minimum 1.
	MaxAttempts int
	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration

	// BasicAuthUser/BasicAuthPass enable basic auth when both are set.
	BasicAuthUser string
	BasicAuthPass string
	// Headers are attached verbatim to every request (API keys, identity).
	Headers map[string]string
	// UserAgent overrides the default gateway user agent.
	UserAgent string

	// DecodeAppEnvelope enables decoding of the application-level
	// {ok:false, error:{...}} convention some upstreams use inside 200
	// responses. The embedded failure is passed through unmodified.
	DecodeAppEnvelope bool

	// HTTPClient overrides the transport. Tests inject httptest clients.
	HTTPClient *http.Client
}

// Client issues classified HTTP calls against one upstream.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logging.Logger
	mts  *metrics.Metrics
}

// NewClient builds a client from cfg. A missing base URL is a fatal
// configuration error.
func NewClient(cfg Config, log *logging.Logger, mts *metrics.Metrics) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, envelope.NewError(envelope.CodeConfigurationError,
			fmt.Sprintf("upstream %s: base URL is not configured", cfg.Name), http.StatusInternalServerError)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if log == nil {
		log = logging.NewDefault("upstream-" + cfg.Name)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{cfg: cfg, http: httpClient, log: log, mts: mts}, nil
}

// Name returns the upstream name.
func (c *Client) Name() string { return c.cfg.Name }

// BaseURL returns the configured base address without trailing slash.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// GetJSON performs a GET against path with the given query and classifies
// the outcome. Retries apply only to transport failures and 5xx responses;
// 4xx is final on the first attempt.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values) envelope.Result[json.RawMessage] {
	target := c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var last envelope.Result[json.RawMessage]
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return c.fail(envelope.CodeNetworkError, ctx.Err().Error(), http.StatusGatewayTimeout)
			case <-time.After(c.cfg.RetryDelay):
			}
		}

		res, retryable := c.attempt(ctx, target)
		if res.OK || !retryable {
			return res
		}
		last = res
		c.log.Warn(ctx, "upstream attempt failed", map[string]any{
			"upstream": c.cfg.Name,
			"attempt":  attempt,
			"code":     res.Err.Code,
		})
	}
	return last
}

// attempt issues one request. The bool reports whether the failure is
// transient (network error or 5xx) and worth retrying.
func (c *Client) attempt(ctx context.Context, target string) (envelope.Result[json.RawMessage], bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return c.fail(envelope.CodeInternalError, "build request: "+err.Error(), http.StatusInternalServerError), false
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.BasicAuthUser != "" || c.cfg.BasicAuthPass != "" {
		req.SetBasicAuth(c.cfg.BasicAuthUser, c.cfg.BasicAuthPass)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.record("network_error")
		return c.fail(envelope.CodeNetworkError, classifyTransportError(c.cfg.Name, err), http.StatusGatewayTimeout), true
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		c.record("network_error")
		return c.fail(envelope.CodeNetworkError, "read response body: "+err.Error(), http.StatusBadGateway), true
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		c.record("client_error")
		return c.fail(envelope.CodeUpstreamClientError,
			fmt.Sprintf("%s responded %d: %s", c.cfg.Name, resp.StatusCode, trimBody(body)), resp.StatusCode), false
	case resp.StatusCode >= 500:
		c.record("server_error")
		return c.fail(envelope.CodeUpstreamServerError,
			fmt.Sprintf("%s responded %d: %s", c.cfg.Name, resp.StatusCode, trimBody(body)), resp.StatusCode), true
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.record("server_error")
		return c.fail(envelope.CodeUpstreamServerError,
			fmt.Sprintf("%s responded with unexpected status %d", c.cfg.Name, resp.StatusCode), http.StatusBadGateway), false
	}

	if !json.Valid(body) {
		c.record("server_error")
		return c.fail(envelope.CodeUpstreamServerError,
			fmt.Sprintf("%s returned an undecodable payload", c.cfg.Name), http.StatusBadGateway), false
	}

	if c.cfg.DecodeAppEnvelope {
		if failure, reported := decodeAppFailure(body); reported {
			c.record("reported_failure")
			return envelope.Fail[json.RawMessage](failure), false
		}
	}

	c.record("ok")
	return envelope.Ok(json.RawMessage(body)), false
}

func (c *Client) fail(code, message string, statusHint int) envelope.Result[json.RawMessage] {
	return envelope.Fail[json.RawMessage](envelope.NewError(code, message, statusHint))
}

func (c *Client) record(outcome string) {
	if c.mts != nil {
		c.mts.RecordUpstreamAttempt(c.cfg.Name, outcome)
	}
}

// decodeAppFailure inspects a 2xx body for the {ok:false, ...} convention.
// The embedded code and message are passed through; absent fields fall back
// to the generic reported-failure tag.
func decodeAppFailure(body []byte) (*envelope.Error, bool) {
	var probe struct {
		OK    *bool           `json:"ok"`
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.OK == nil || *probe.OK {
		return nil, false
	}

	failure := envelope.NewError(envelope.CodeUpstreamReportedFailure,
		"upstream reported a failure", http.StatusBadGateway)
	if len(probe.Error) == 0 {
		return failure, true
	}

	var structured struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(probe.Error, &structured); err == nil && (structured.Code != "" || structured.Message != "") {
		if structured.Code != "" {
			failure.Code = structured.Code
		}
		if structured.Message != "" {
			failure.Message = structured.Message
		}
		failure.TraceID = structured.TraceID
		return failure, true
	}

	var plain string
	if err := json.Unmarshal(probe.Error, &plain); err == nil && plain != "" {
		failure.Message = plain
	}
	return failure, true
}

func classifyTransportError(name string, err error) string {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Sprintf("timeout connecting to %s: %v", name, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timeout connecting to %s: %v", name, err)
	default:
		return fmt.Sprintf("network error connecting to %s: %v", name, err)
	}
}

func readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("response exceeds %d bytes", maxBodySize)
	}
	return body, nil
}

func trimBody(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "...(truncated)"
	}
	return s
}
