package exitcode

import (
	"errors"
	"fmt"
	"testing"

	werrors "github.com/felixgeelhaar/watts/internal/errors"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected int
	}{
		{"Success", Success, 0},
		{"GeneralError", GeneralError, 1},
		{"UsageError", UsageError, 2},
		{"ConfigurationError", ConfigurationError, 3},
		{"ParameterError", ParameterError, 4},
		{"ExecutionError", ExecutionError, 5},
		{"OutputError", OutputError, 6},
		{"StorageError", StorageError, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.expected {
				t.Errorf("Exit code %s = %d, want %d", tt.name, tt.code, tt.expected)
			}
		})
	}
}

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error returns success", nil, Success},
		{"configuration", werrors.NewConfigurationError("ALEAF_DIR", "ALEAF"), ConfigurationError},
		{"missing parameter", werrors.NewMissingParameterError("t", []string{"x"}), ParameterError},
		{"wrapped execution", fmt.Errorf("run: %w", werrors.NewExecutionError("OpenMC", 1, "")), ExecutionError},
		{"output", werrors.NewOutputNotFoundError("ALEAF", "x.csv"), OutputError},
		{"storage", werrors.NewStorageError("append", errors.New("disk full")), StorageError},
		{"unknown flag", errors.New("unknown flag: --foo"), UsageError},
		{"required flag", errors.New(`required flag(s) "params" not set`), UsageError},
		{"generic", errors.New("something else"), GeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineExitCode(tt.err); got != tt.expected {
				t.Errorf("DetermineExitCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestGetExitCodeDescription(t *testing.T) {
	if got := GetExitCodeDescription(OutputError); got != "Expected output not found" {
		t.Errorf("unexpected description %q", got)
	}
	if got := GetExitCodeDescription(99); got != "Unknown error" {
		t.Errorf("unexpected description %q", got)
	}
}
