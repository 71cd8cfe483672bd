package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"proconnect/internal/models"
)

// HTTPError is the raw failure behind a classified AppError.
type HTTPError struct {
	Status int
	Body   models.ErrorResponse
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body.Error)
}

// codeForStatus picks an error code when the response body carries none.
func codeForStatus(status int) string {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return models.CodeValidation
	case status == http.StatusUnauthorized:
		return models.CodeUnauthorized
	case status == http.StatusForbidden:
		return models.CodeForbidden
	case status == http.StatusNotFound:
		return models.CodeNotFound
	case status == http.StatusConflict:
		return models.CodeInvalidTransition
	case status == http.StatusTooManyRequests:
		return models.CodeRateLimited
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return models.CodeNetworkFailure
	default:
		return models.CodeInternal
	}
}

// classify turns an error response into an AppError carrying the server's code.
func classify(status int, data []byte) error {
	var body models.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = http.StatusText(status)
		}
	}

	code := body.Code
	if code == "" {
		code = codeForStatus(status)
	}
	return &models.AppError{
		Code:    code,
		Message: body.Error,
		Err:     &HTTPError{Status: status, Body: body},
	}
}

// StatusOf returns the HTTP status behind err, or 0 when err did not come from a response.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}
