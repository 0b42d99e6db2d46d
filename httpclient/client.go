// Package httpclient is the probing HTTP client the detector sends every
// request through: it resolves which endpoint to hit via the rotator,
// injects the configured auth header, executes the request through the
// fault-tolerance executor (retries, backoff, circuit breaker), and hands
// the response headers to the header analyzer before returning a
// ProbeResult the tier tester and detector build their findings from. The
// request lifecycle (pick endpoint, build request, execute, classify,
// record) mirrors the teacher client's DoRequest/executeRequestWithRetries
// dispatch, generalized from a single fixed base URL to a rotated pool of
// endpoints.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/suenot/rate-limit-optimizer/collaborators"
	"github.com/suenot/rate-limit-optimizer/faulttolerance"
	"github.com/suenot/rate-limit-optimizer/headeranalyzer"
	"github.com/suenot/rate-limit-optimizer/helpers"
	"github.com/suenot/rate-limit-optimizer/logger"
	"github.com/suenot/rate-limit-optimizer/ratelimit"
	"github.com/suenot/rate-limit-optimizer/response"
	"github.com/suenot/rate-limit-optimizer/rotator"
)

// ProbeResult is everything one probe request revealed.
type ProbeResult struct {
	RequestID       string
	Endpoint        string
	StatusCode      int
	Latency         time.Duration
	Limits          []ratelimit.RateLimit
	RetryAfter      time.Duration
	RetryAfterFound bool
	Err             error
	Attempts        int
}

// Client sends probe requests against a target site's rotated endpoint
// pool, with retries, backoff, and circuit breaking handled by an
// Executor and rate-limit disclosures extracted by a headeranalyzer.Analyzer.
type Client struct {
	httpClient *http.Client
	Logger     logger.Logger
	Rotator    *rotator.Rotator
	Executor   *faulttolerance.Executor
	Analyzer   *headeranalyzer.Analyzer
	BaseURL    string
	Auth       collaborators.AuthConfig
}

// New builds a Client from a validated Config and the endpoint rotator /
// executor it should use. Callers assembling a detector run construct the
// rotator and executor once and share them across every tier tester.
func New(cfg *collaborators.Config, rot *rotator.Rotator, executor *faulttolerance.Executor, log logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Network.Timeout},
		Logger:     log,
		Rotator:    rot,
		Executor:   executor,
		Analyzer:   headeranalyzer.New(),
		BaseURL:    cfg.Target.BaseURL,
		Auth:       cfg.Target.Auth,
	}
}

// Probe sends a single method request against the rotator's next endpoint
// and returns what it learned: status, latency, any disclosed rate limits,
// and the underlying error if every retry was exhausted.
func (c *Client) Probe(ctx context.Context, method string) (ProbeResult, error) {
	if method == "" {
		method = http.MethodGet
	}

	endpoint, err := c.Rotator.NextEndpoint()
	if err != nil {
		return ProbeResult{}, err
	}

	requestID := uuid.New().String()

	var latency time.Duration
	outcome := c.Executor.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, nil)
		if err != nil {
			return nil, err
		}
		c.applyAuth(req)
		req.Header.Set("X-Request-Id", requestID)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		latency = time.Since(start)
		return resp, err
	})

	result := ProbeResult{RequestID: requestID, Endpoint: endpoint, Latency: latency, Err: outcome.Err, Attempts: outcome.Attempts}

	var inferred *ratelimit.RateLimit
	if outcome.Response != nil {
		result.StatusCode = outcome.Response.StatusCode
		result.Limits = c.Analyzer.Extract(outcome.Response.Header, time.Now())
		if len(result.Limits) > 0 {
			inferred = &result.Limits[0]
		}
		if retryAfter, ok := helpers.ParseRetryAfter(outcome.Response.Header, time.Now()); ok {
			result.RetryAfter = retryAfter
			result.RetryAfterFound = true
		}

		if result.Err == nil {
			result.Err = response.ClassifyResponse(outcome.Response, c.Logger)
		}
	}

	c.Rotator.RecordResult(endpoint, result.StatusCode, latency, inferred)

	return result, result.Err
}

// applyAuth injects the configured credential into req, per the site's
// AuthConfig.Type.
func (c *Client) applyAuth(req *http.Request) {
	switch c.Auth.Type {
	case collaborators.AuthAPIKey:
		header := c.Auth.APIKeyHeader
		if header == "" {
			header = "X-Api-Key"
		}
		req.Header.Set(header, c.Auth.APIKeyValue)
	case collaborators.AuthBearerToken:
		req.Header.Set("Authorization", "Bearer "+c.Auth.Token)
	case collaborators.AuthBasic:
		req.SetBasicAuth(c.Auth.Username, c.Auth.Password)
	case collaborators.AuthNone:
		// no credential to attach
	}
}
