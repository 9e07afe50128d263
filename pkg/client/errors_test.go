package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{
			name:       "client error should not retry",
			errorClass: ErrorClassClient,
			expected:   false,
		},
		{
			name:       "server error should retry",
			errorClass: ErrorClassServer,
			expected:   true,
		},
		{
			name:       "rate limit should retry",
			errorClass: ErrorClassRateLimit,
			expected:   true,
		},
		{
			name:       "network error should retry",
			errorClass: ErrorClassNetwork,
			expected:   true,
		},
		{
			name:       "empty error class should not retry",
			errorClass: "",
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := shouldRetry(tt.errorClass)
			if result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "error with wrapped error",
			apiError: &APIError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Message:    "internal server error",
				Err:        errors.New("connection refused"),
			},
			expected: "tidemark server error (status 500): internal server error: connection refused",
		},
		{
			name: "error without wrapped error",
			apiError: &APIError{
				StatusCode: 404,
				ErrorClass: ErrorClassClient,
				Message:    "not found",
				Err:        nil,
			},
			expected: "tidemark client error (status 404): not found",
		},
		{
			name: "rate limit error",
			apiError: &APIError{
				StatusCode: 429,
				ErrorClass: ErrorClassRateLimit,
				Message:    "rate limit exceeded",
				Err:        nil,
			},
			expected: "tidemark rate_limit error (status 429): rate limit exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.apiError.Error()
			if result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	wrappedErr := errors.New("wrapped error")
	apiError := &APIError{
		StatusCode: 500,
		ErrorClass: ErrorClassServer,
		Message:    "server error",
		Err:        wrappedErr,
	}

	unwrapped := apiError.Unwrap()
	if unwrapped != wrappedErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, wrappedErr)
	}

	// Test errors.Is
	if !errors.Is(apiError, wrappedErr) {
		t.Error("errors.Is should work with wrapped error")
	}
}

func TestAPIError_UnwrapNil(t *testing.T) {
	apiError := &APIError{
		StatusCode: 404,
		ErrorClass: ErrorClassClient,
		Message:    "not found",
		Err:        nil,
	}

	unwrapped := apiError.Unwrap()
	if unwrapped != nil {
		t.Errorf("Unwrap() = %v, want nil", unwrapped)
	}
}

func TestParseErrorResponse(t *testing.T) {
	tests := []struct {
		name            string
		statusCode      int
		body            string
		requestID       string
		expectedMessage string
		expectedClass   ErrorClass
	}{
		{
			name:            "api error envelope",
			statusCode:      400,
			body:            `{"error":{"code":400,"message":"granularity must be specified with aggregates"}}`,
			requestID:       "req-123",
			expectedMessage: "granularity must be specified with aggregates",
			expectedClass:   ErrorClassClient,
		},
		{
			name:            "non-json body falls back to status",
			statusCode:      502,
			body:            "Bad Gateway",
			expectedMessage: "502 Bad Gateway",
			expectedClass:   ErrorClassServer,
		},
		{
			name:            "envelope without message falls back to status",
			statusCode:      429,
			body:            `{"error":{}}`,
			expectedMessage: "429 Too Many Requests",
			expectedClass:   ErrorClassRateLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.requestID != "" {
				header.Set("X-Request-ID", tt.requestID)
			}
			resp := &http.Response{
				StatusCode: tt.statusCode,
				Status:     httpStatusLine(tt.statusCode),
				Header:     header,
				Body:       io.NopCloser(strings.NewReader(tt.body)),
			}

			apiErr := ParseErrorResponse(resp)

			if apiErr.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.statusCode)
			}
			if apiErr.Message != tt.expectedMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.expectedMessage)
			}
			if apiErr.ErrorClass != tt.expectedClass {
				t.Errorf("ErrorClass = %q, want %q", apiErr.ErrorClass, tt.expectedClass)
			}
			if apiErr.RequestID != tt.requestID {
				t.Errorf("RequestID = %q, want %q", apiErr.RequestID, tt.requestID)
			}
		})
	}
}

// httpStatusLine formats a status line the way net/http responses carry it.
func httpStatusLine(code int) string {
	return fmt.Sprintf("%d %s", code, http.StatusText(code))
}
