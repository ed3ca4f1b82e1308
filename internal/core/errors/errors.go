package errors

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeValidationError ErrorCode = "VALIDATION_ERROR"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
	CodeNotSupported    ErrorCode = "NOT_SUPPORTED"

	// Whole-run failures.
	CodeLibraryNotFound      ErrorCode = "LIBRARY_NOT_FOUND"
	CodeNoPublishedVersions  ErrorCode = "NO_PUBLISHED_VERSIONS"
	CodeRegistryUnavailable  ErrorCode = "REGISTRY_UNAVAILABLE"
	CodeMissingExpansionFile ErrorCode = "MISSING_EXPANSION_FILE"
	CodeMalformedExpansion   ErrorCode = "MALFORMED_EXPANSION"
	CodeNoVersionsAnalyzed   ErrorCode = "NO_VERSIONS_ANALYZED"

	// Version, file and cell level failures.
	CodeFetchFailure           ErrorCode = "FETCH_FAILURE"
	CodeParseFailure           ErrorCode = "PARSE_FAILURE"
	CodeMacroExpansionOverflow ErrorCode = "MACRO_EXPANSION_OVERFLOW"
	CodeMetricUnavailable      ErrorCode = "METRIC_UNAVAILABLE"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

const (
	CtxPath      = "path"
	CtxOperation = "operation"
	CtxLibrary   = "library"
	CtxVersion   = "version"
	CtxLine      = "line"
	CtxColumn    = "column"
	CtxMacro     = "macro"
	CtxMetric    = "metric"
)

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) > 0 {
		msg += fmt.Sprintf(" %v", e.Context)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Newf(code ErrorCode, format string, args ...interface{}) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext attaches a key/value to the first DomainError in err's chain,
// wrapping err as an internal error when it carries none.
func AddContext(err error, key string, value interface{}) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return err
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]interface{}{key: value},
	}
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost DomainError in err's chain.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsFatal reports whether err aborts the whole run.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeLibraryNotFound, CodeNoPublishedVersions, CodeRegistryUnavailable,
		CodeMissingExpansionFile, CodeMalformedExpansion, CodeNoVersionsAnalyzed:
		return true
	}
	return false
}

// ExitCode maps an error to the process exit status. Every fatal category
// gets its own status so wrappers can tell them apart.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch CodeOf(err) {
	case CodeLibraryNotFound:
		return 3
	case CodeNoPublishedVersions:
		return 4
	case CodeRegistryUnavailable:
		return 5
	case CodeMissingExpansionFile:
		return 6
	case CodeMalformedExpansion:
		return 7
	case CodeNoVersionsAnalyzed:
		return 8
	}
	return 1
}
