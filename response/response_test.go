package response

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleAPIErrorResponse_StructuredJSON(t *testing.T) {
	body := `{"error":"rate_limited","detail":"try again later","type":"RateLimitExceeded"}`
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}

	err := HandleAPIErrorResponse(resp, nil)
	apiErr, ok := err.(*APIError)
	assert.True(t, ok)
	assert.Equal(t, "rate_limited", apiErr.Message)
	assert.Equal(t, "try again later", apiErr.Detail)
	assert.Equal(t, "RateLimitExceeded", apiErr.Type)
}

func TestHandleAPIErrorResponse_HTMLFallsBackToStatusText(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusBadGateway,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader("<html>gateway down</html>")),
	}

	err := HandleAPIErrorResponse(resp, nil)
	apiErr, ok := err.(*APIError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Message)
	assert.Contains(t, apiErr.Raw, "gateway down")
}

func TestHandleAPIErrorResponse_NilResponse(t *testing.T) {
	err := HandleAPIErrorResponse(nil, nil)
	assert.Error(t, err)
}

func TestHandleAPISuccessResponse_DrainsBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
	}
	err := HandleAPISuccessResponse(resp, nil)
	assert.NoError(t, err)
}

func TestAPIError_ErrorStringPrefersMessage(t *testing.T) {
	e := &APIError{Message: "boom", Raw: "raw body"}
	assert.Equal(t, "boom", e.Error())

	e2 := &APIError{Raw: "raw only"}
	assert.Equal(t, "raw only", e2.Error())
}
