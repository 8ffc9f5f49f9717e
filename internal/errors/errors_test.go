package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeParamNotFound, "test error message")

	if err.Code != ErrCodeParamNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeParamNotFound, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(ErrCodeStorage, "failed to write run", cause)

	if err.Code != ErrCodeStorage {
		t.Errorf("expected code %s, got %s", ErrCodeStorage, err.Code)
	}

	if err.Cause != cause {
		t.Errorf("expected cause to be set")
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *WattsError
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeOutputNotFound, "missing csv"),
			wantCode: "OUTPUT-001",
			wantMsg:  "missing csv",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeStorage, "copy failed", fmt.Errorf("permission denied")),
			wantCode: "STORAGE-001",
			wantMsg:  "permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()

			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}

			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain message '%s', got: %s", tt.wantMsg, errStr)
			}
		})
	}
}

func TestWithSuggestion(t *testing.T) {
	err := New(ErrCodeConfiguration, "bad").
		WithSuggestion("first").
		WithSuggestions("second", "third").
		WithDocs("https://example.org/docs")

	if len(err.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(err.Suggestions))
	}
	out := err.Error()
	if !strings.Contains(out, "Suggestions:") || !strings.Contains(out, "• third") {
		t.Errorf("suggestions not rendered: %s", out)
	}
	if !strings.Contains(out, "Documentation: https://example.org/docs") {
		t.Errorf("docs not rendered: %s", out)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("postrun: %w", NewOutputNotFoundError("ALEAF", "/tmp/out.csv"))

	if !errors.Is(err, ErrOutputNotFound) {
		t.Error("wrapped OutputNotFound should match the sentinel")
	}
	if errors.Is(err, ErrExecution) {
		t.Error("OutputNotFound should not match ErrExecution")
	}
	if CodeOf(err) != ErrCodeOutputNotFound {
		t.Errorf("CodeOf = %s, want %s", CodeOf(err), ErrCodeOutputNotFound)
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf a plain error should be empty")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *WattsError
		code ErrorCode
		want string
	}{
		{"configuration", NewConfigurationError("ALEAF_DIR", "ALEAF"), ErrCodeConfiguration, "ALEAF_DIR environment variable is not set"},
		{"missing parameter", NewMissingParameterError("Fuel.txt", []string{"a", "b"}), ErrCodeMissingParameter, "a, b"},
		{"not found", NewParamNotFoundError("radius"), ErrCodeParamNotFound, "radius"},
		{"invalid", NewParamInvalidError("x", []int{1}), ErrCodeParamInvalid, "[]int"},
		{"execution", NewExecutionError("OpenMC", 2, "boom\n"), ErrCodeExecution, "status 2:\nboom"},
		{"output", NewOutputNotFoundError("PyARC", "r.json"), ErrCodeOutputNotFound, "r.json"},
		{"storage", NewStorageError("append", fmt.Errorf("disk full")), ErrCodeStorage, "disk full"},
		{"run not found", NewRunNotFoundError("abc"), ErrCodeRunNotFound, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.code)
			}
			if !strings.Contains(tt.err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", tt.err.Error(), tt.want)
			}
		})
	}
}
