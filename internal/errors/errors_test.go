package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestWrap(t *testing.T) {
	inner := fmt.Errorf("db down")
	err := Wrap(ErrInternalServer, inner)

	if err.Code != "INTERNAL_ERROR" {
		t.Errorf("expected code INTERNAL_ERROR, got %s", err.Code)
	}
	if !errors.Is(err, inner) {
		t.Error("expected wrapped error to unwrap to inner")
	}
	if ErrInternalServer.Internal != nil {
		t.Error("sentinel must not be mutated")
	}
}

func TestWithRetryAfter(t *testing.T) {
	err := WithRetryAfter(ErrAccountLocked, 90*time.Second)
	if err.StatusCode != http.StatusLocked {
		t.Errorf("expected 423, got %d", err.StatusCode)
	}
	if err.RetryAfter != 90*time.Second {
		t.Errorf("expected retry after 90s, got %s", err.RetryAfter)
	}
}

func TestExternal(t *testing.T) {
	t.Run("server_status_kept", func(t *testing.T) {
		err := External(http.StatusGatewayTimeout, "timed out", nil)
		if err.StatusCode != http.StatusGatewayTimeout {
			t.Errorf("expected 504, got %d", err.StatusCode)
		}
		if err.Code != "EXTERNAL_API_ERROR" {
			t.Errorf("expected EXTERNAL_API_ERROR, got %s", err.Code)
		}
	})

	t.Run("client_status_becomes_bad_gateway", func(t *testing.T) {
		err := External(http.StatusNotFound, "missing", nil)
		if err.StatusCode != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", err.StatusCode)
		}
		if err.Detail != "missing" {
			t.Errorf("expected detail to be kept, got %q", err.Detail)
		}
	})
}
