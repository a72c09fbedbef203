// internal/types_test.go - Unit tests for error classification
package internal

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network code", NewError(ErrorCodeNetwork, "dial failed", nil), true},
		{"timeout code", NewError(ErrorCodeTimeout, "slow", nil), true},
		{"server code", NewError(ErrorCodeServer, "HTTP 503", nil), true},
		{"client code", NewError(ErrorCodeClient, "HTTP 404", nil), false},
		{"validation code", NewError(ErrorCodeValidation, "bad bbox", nil), false},
		{"client code wins over text", NewError(ErrorCodeClient, "fetch rejected", nil), false},
		{"wrapper defers to cause", NewError(ErrorCodeTileLoad, "tile 1_1", NewError(ErrorCodeServer, "HTTP 502", nil)), true},
		{"wrapped with fmt", fmt.Errorf("region 00100: %w", NewError(ErrorCodeNetwork, "reset", nil)), true},
		{"untyped network timeout", errors.New("Network timeout"), true},
		{"untyped failed to fetch", errors.New("TypeError: Failed to fetch"), true},
		{"untyped 503", errors.New("HTTP 503: Service Unavailable"), true},
		{"untyped 404", errors.New("HTTP 404: Not Found"), false},
		{"untyped validation", errors.New("invalid postal code"), false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetriable(tt.err); got != tt.want {
				t.Errorf("IsRetriable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(ErrorCodeProcessing, "decode failed", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
	if err.Error() != "decode failed: boom" {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if CodeOf(fmt.Errorf("outer: %w", err)) != ErrorCodeProcessing {
		t.Errorf("Expected code %s", ErrorCodeProcessing)
	}
}
