package exitcode

import (
	"os"
	"strings"

	"github.com/felixgeelhaar/watts/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ConfigurationError indicates missing environment or configuration
	ConfigurationError = 3

	// ParameterError indicates a missing, unknown or invalid parameter
	ParameterError = 4

	// ExecutionError indicates the external tool failed
	ExecutionError = 5

	// OutputError indicates an expected output artifact was absent
	OutputError = 6

	// StorageError indicates the results database could not be written or read
	StorageError = 7

	// Interrupted indicates the run was cancelled by a signal
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	switch code := errors.CodeOf(err); {
	case strings.HasPrefix(string(code), "CONFIG-"):
		return ConfigurationError
	case strings.HasPrefix(string(code), "PARAM-"):
		return ParameterError
	case strings.HasPrefix(string(code), "EXEC-"):
		return ExecutionError
	case strings.HasPrefix(string(code), "OUTPUT-"):
		return OutputError
	case strings.HasPrefix(string(code), "STORAGE-"):
		return StorageError
	}

	// Cobra reports usage problems as plain errors
	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ConfigurationError:
		return "Configuration error"
	case ParameterError:
		return "Parameter error"
	case ExecutionError:
		return "External tool failed"
	case OutputError:
		return "Expected output not found"
	case StorageError:
		return "Results database error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
