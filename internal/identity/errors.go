package identity

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is an error response from the identity service.
type APIError struct {
	Status int
	// Code is the leading token of the service message, e.g. EMAIL_EXISTS.
	Code string
	// Message is the full service message, e.g. "WEAK_PASSWORD : Password
	// should be at least 6 characters".
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("identity: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("identity: %s (status %d)", e.Message, e.Status)
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// readAPIError builds an APIError from a non-2xx response.
func readAPIError(res *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("identity: read error body (status %d): %w", res.StatusCode, err)
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error.Message == "" {
		return &APIError{Status: res.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{
		Status:  res.StatusCode,
		Code:    errorCode(eb.Error.Message),
		Message: eb.Error.Message,
	}
}

// errorCode extracts CODE from "CODE" or "CODE : detail".
func errorCode(msg string) string {
	code, _, _ := strings.Cut(msg, ":")
	return strings.TrimSpace(code)
}
