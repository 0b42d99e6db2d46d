package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/suenot/rate-limit-optimizer/collaborators"
	"github.com/suenot/rate-limit-optimizer/faulttolerance"
	"github.com/suenot/rate-limit-optimizer/logger"
	"github.com/suenot/rate-limit-optimizer/rotator"
)

func newTestClient(t *testing.T, server *httptest.Server, auth collaborators.AuthConfig) *Client {
	t.Helper()
	cfg := &collaborators.Config{
		Target: collaborators.TargetSite{
			BaseURL:   server.URL,
			Endpoints: []string{"/probe"},
			Auth:      auth,
		},
		Network: collaborators.NetworkConfig{Timeout: 2 * time.Second},
	}
	rot := rotator.New(rotator.PolicyRandom, cfg.Target.Endpoints, 1)
	policy := faulttolerance.DefaultRetryPolicy()
	policy.BaseDelay = time.Millisecond
	policy.MaxDelay = 5 * time.Millisecond
	executor := faulttolerance.NewExecutor(policy, nil, nil, nil, nil)
	return New(cfg, rot, executor, logger.NopLogger())
}

func TestProbe_SuccessExtractsLimits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "100")
		w.Header().Set("X-RateLimit-Remaining", "99")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server, collaborators.AuthConfig{Type: collaborators.AuthNone})
	result, err := client.Probe(context.Background(), http.MethodGet)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Len(t, result.Limits, 1)
	assert.Equal(t, 100, result.Limits[0].Ceiling)
}

func TestProbe_InjectsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server, collaborators.AuthConfig{Type: collaborators.AuthBearerToken, Token: "secret-token"})
	_, err := client.Probe(context.Background(), http.MethodGet)

	assert.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestProbe_InjectsAPIKeyHeader(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server, collaborators.AuthConfig{Type: collaborators.AuthAPIKey, APIKeyValue: "my-key"})
	_, err := client.Probe(context.Background(), http.MethodGet)

	assert.NoError(t, err)
	assert.Equal(t, "my-key", gotKey)
}

func TestProbe_ReturnsErrorOnNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server, collaborators.AuthConfig{Type: collaborators.AuthNone})
	result, err := client.Probe(context.Background(), http.MethodGet)

	assert.Error(t, err)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
}
