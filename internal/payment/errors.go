package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrPaymentNotFound = errors.New("payment not found")

// ValidationError is returned before any request reaches the gateway.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// APIError covers transport failures and non-2xx gateway responses.
type APIError struct {
	Op           string
	StatusCode   int
	Status       string
	StatusDetail string
	Message      string
	Cause        json.RawMessage
	Body         string
	Err          error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: gateway connection error: %v", e.Op, e.Err)
	}

	if e.Status == "" && e.StatusDetail == "" && e.Message == "" {
		return fmt.Sprintf("%s: gateway API error (%d): %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: gateway API error (%d): %s - %s", e.Op, e.StatusCode,
		DescribeStatus(orUnknown(e.Status)), DescribeStatusDetail(orUnknown(e.StatusDetail)))
	if e.Message != "" {
		fmt.Fprintf(&b, " | message: %s", e.Message)
	}
	if len(e.Cause) > 0 && string(e.Cause) != "null" && string(e.Cause) != "[]" {
		fmt.Fprintf(&b, " | cause: %s", e.Cause)
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// Is lets callers match a 404 with errors.Is(err, ErrPaymentNotFound).
func (e *APIError) Is(target error) bool {
	return target == ErrPaymentNotFound && e.StatusCode == http.StatusNotFound
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

type errorBody struct {
	Status       json.RawMessage `json:"status"`
	StatusDetail string          `json:"status_detail"`
	Message      string          `json:"message"`
	Error        string          `json:"error"`
	Cause        json.RawMessage `json:"cause"`
}

func newAPIError(op string, statusCode int, body []byte) *APIError {
	apiErr := &APIError{Op: op, StatusCode: statusCode, Body: string(body)}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apiErr
	}

	// status is a string on payments and the HTTP code on generic errors
	var status string
	if err := json.Unmarshal(parsed.Status, &status); err == nil {
		apiErr.Status = status
	} else if parsed.Error != "" {
		apiErr.Status = "unknown"
	}
	apiErr.StatusDetail = parsed.StatusDetail
	apiErr.Message = parsed.Message
	apiErr.Cause = parsed.Cause
	return apiErr
}
