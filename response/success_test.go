package response

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func probeResponse(method string, status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Request: &http.Request{
			Method: method,
			URL: &url.URL{
				Scheme: "http",
				Host:   "api.example.com",
				Path:   "/widgets/1",
			},
		},
	}
}

func TestClassifyResponse_SuccessStatusIsNil(t *testing.T) {
	resp := probeResponse(http.MethodDelete, http.StatusOK)

	err := ClassifyResponse(resp, nil)

	assert.NoError(t, err, "a 2xx response should classify as success regardless of method")
}

func TestClassifyResponse_ErrorStatusReturnsAPIError(t *testing.T) {
	resp := probeResponse(http.MethodDelete, http.StatusBadRequest)

	err := ClassifyResponse(resp, nil)

	assert.Error(t, err)
	apiErr, ok := err.(*APIError)
	assert.True(t, ok, "error should be an *APIError")
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClassifyResponse_NilResponse(t *testing.T) {
	err := ClassifyResponse(nil, nil)

	assert.Error(t, err)
}
