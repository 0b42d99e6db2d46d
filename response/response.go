// Package response classifies and decodes HTTP responses coming back from
// a probed API: success handling, structured error extraction, and the
// content-type sniffing needed to tell a JSON error body from an HTML one
// (some APIs serve an HTML error page from a CDN or gateway in front of
// the real service).
package response

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/suenot/rate-limit-optimizer/logger"
)

// APIError is a structured representation of a non-2xx response body,
// preferring the "error"/"message"/"detail" fields most JSON APIs use and
// falling back to the raw body when the response isn't JSON.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	Detail     string
	Raw        string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Raw != "" {
		return e.Raw
	}
	return http.StatusText(e.StatusCode)
}

type structuredError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Type    string `json:"type"`
}

// isJSONResponse reports whether resp's Content-Type header names a JSON
// media type.
func isJSONResponse(resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	return strings.Contains(ct, "json")
}

// isHTMLResponse reports whether resp's Content-Type header names an HTML
// media type, the telltale sign of an error page served by an intermediary
// rather than the API itself.
func isHTMLResponse(resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	return strings.Contains(ct, "html")
}

// HandleAPISuccessResponse drains and discards resp's body. Probing traffic
// never needs the decoded payload - only the status code and headers drive
// detection - so unlike the client this module is grounded on, there is no
// out parameter to unmarshal into.
func HandleAPISuccessResponse(resp *http.Response, log logger.Logger) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		if log != nil {
			log.Warn("failed to drain response body")
		}
	}
	return nil
}

// HandleAPIErrorResponse builds an *APIError from a non-2xx response,
// preferring a structured JSON body and falling back to raw text (or a
// generic status message for an HTML error page).
func HandleAPIErrorResponse(resp *http.Response, log logger.Logger) error {
	if resp == nil {
		return &APIError{Message: "no response received"}
	}
	if resp.Body == nil {
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if log != nil {
			log.Warn("failed to read error response body")
		}
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Raw: string(body)}

	switch {
	case isJSONResponse(resp):
		var se structuredError
		if err := json.Unmarshal(body, &se); err == nil {
			apiErr.Message = firstNonEmpty(se.Error, se.Message)
			apiErr.Detail = se.Detail
			apiErr.Type = se.Type
		}
	case isHTMLResponse(resp):
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}

// ClassifyResponse is the single entry point a prober calls once a request
// has completed: any 2xx status drains the body and reports success,
// anything else is turned into an *APIError. Used for every probe method
// (GET, HEAD, DELETE, ...) since detection never depends on the verb.
func ClassifyResponse(resp *http.Response, log logger.Logger) error {
	if resp == nil {
		return &APIError{Message: "no response received"}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return HandleAPISuccessResponse(resp, log)
	}
	return HandleAPIErrorResponse(resp, log)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
