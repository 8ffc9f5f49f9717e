package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfiguration ErrorCode = "CONFIG-001"
	ErrCodeConfigInvalid ErrorCode = "CONFIG-002"

	// Parameter errors (PARAM-001 to PARAM-099)
	ErrCodeMissingParameter ErrorCode = "PARAM-001"
	ErrCodeParamNotFound    ErrorCode = "PARAM-002"
	ErrCodeParamInvalid     ErrorCode = "PARAM-003"
	ErrCodeTemplateInvalid  ErrorCode = "PARAM-004"

	// Execution errors (EXEC-001 to EXEC-099)
	ErrCodeExecution          ErrorCode = "EXEC-001"
	ErrCodeExecutableNotFound ErrorCode = "EXEC-002"

	// Output errors (OUTPUT-001 to OUTPUT-099)
	ErrCodeOutputNotFound ErrorCode = "OUTPUT-001"
	ErrCodeOutputInvalid  ErrorCode = "OUTPUT-002"

	// Storage errors (STORAGE-001 to STORAGE-099)
	ErrCodeStorage     ErrorCode = "STORAGE-001"
	ErrCodeRunNotFound ErrorCode = "STORAGE-002"
)

// Sentinels for errors.Is matching. A WattsError matches a sentinel when the
// codes are equal, regardless of message or cause.
var (
	ErrConfiguration      = New(ErrCodeConfiguration, "configuration error")
	ErrMissingParameter   = New(ErrCodeMissingParameter, "missing parameter")
	ErrParamNotFound      = New(ErrCodeParamNotFound, "parameter not found")
	ErrParamInvalid       = New(ErrCodeParamInvalid, "invalid parameter")
	ErrExecution          = New(ErrCodeExecution, "execution failed")
	ErrExecutableNotFound = New(ErrCodeExecutableNotFound, "executable not found")
	ErrOutputNotFound     = New(ErrCodeOutputNotFound, "output not found")
	ErrStorage            = New(ErrCodeStorage, "storage error")
	ErrRunNotFound        = New(ErrCodeRunNotFound, "run not found")
)

// WattsError represents an enhanced error with code, suggestions, and documentation
type WattsError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *WattsError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *WattsError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a WattsError with the same code
func (e *WattsError) Is(target error) bool {
	t, ok := target.(*WattsError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new WattsError
func New(code ErrorCode, message string) *WattsError {
	return &WattsError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new WattsError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *WattsError {
	return &WattsError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *WattsError) WithSuggestion(suggestion string) *WattsError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *WattsError) WithSuggestions(suggestions ...string) *WattsError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *WattsError) WithDocs(url string) *WattsError {
	e.DocsURL = url
	return e
}

// CodeOf returns the code of the first WattsError in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var we *WattsError
	if stderrors.As(err, &we) {
		return we.Code
	}
	return ""
}

// Common error constructors

// NewConfigurationError creates an error for a required environment variable that is unset
func NewConfigurationError(envVar, plugin string) *WattsError {
	return New(ErrCodeConfiguration, fmt.Sprintf("%s environment variable is not set", envVar)).
		WithSuggestion(fmt.Sprintf("Export %s pointing at the %s installation", envVar, plugin)).
		WithSuggestion("Run 'watts config view' to check the active configuration")
}

// NewMissingParameterError creates an error for template placeholders without a parameter
func NewMissingParameterError(template string, keys []string) *WattsError {
	return New(ErrCodeMissingParameter,
		fmt.Sprintf("template %s references undefined parameters: %s", template, strings.Join(keys, ", "))).
		WithSuggestion("Define the parameters in your parameter file").
		WithSuggestion("Run 'watts params show' to list the parameters that are set")
}

// NewParamNotFoundError creates an error for a lookup of an absent key
func NewParamNotFoundError(key string) *WattsError {
	return New(ErrCodeParamNotFound, fmt.Sprintf("parameter not found: %s", key))
}

// NewParamInvalidError creates an error for an unsupported parameter value
func NewParamInvalidError(key string, value any) *WattsError {
	return New(ErrCodeParamInvalid, fmt.Sprintf("parameter %s has unsupported type %T", key, value)).
		WithSuggestion("Use a number, string or boolean value")
}

// NewExecutionError creates an error for a tool that exited with a non-zero status
func NewExecutionError(plugin string, exitCode int, stderr string) *WattsError {
	msg := fmt.Sprintf("%s exited with status %d", plugin, exitCode)
	if s := strings.TrimSpace(stderr); s != "" {
		msg += ":\n" + s
	}
	return New(ErrCodeExecution, msg).
		WithSuggestion("Rerun with --show-stdout --show-stderr to see the tool output")
}

// NewExecutableNotFoundError creates an error for a tool executable that cannot be located
func NewExecutableNotFoundError(plugin, path string) *WattsError {
	return New(ErrCodeExecutableNotFound, fmt.Sprintf("%s executable '%s' is missing", plugin, path)).
		WithSuggestion("Check that the tool is installed and on your PATH")
}

// NewOutputNotFoundError creates an error for an expected output artifact that is absent
func NewOutputNotFoundError(plugin, path string) *WattsError {
	return New(ErrCodeOutputNotFound, fmt.Sprintf("%s output not found: %s", plugin, path)).
		WithSuggestion("Inspect the tool log for errors").
		WithSuggestion("Check that the tool's case configuration matches the plugin options")
}

// NewStorageError creates a database persistence error
func NewStorageError(op string, cause error) *WattsError {
	return Wrap(ErrCodeStorage, fmt.Sprintf("database %s failed", op), cause).
		WithSuggestion("Check free disk space and permissions on the results directory")
}

// NewRunNotFoundError creates an error for a run ID that is not in the database
func NewRunNotFoundError(id string) *WattsError {
	return New(ErrCodeRunNotFound, fmt.Sprintf("run not found: %s", id)).
		WithSuggestion("Run 'watts results list' to see stored runs")
}
