package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeLibraryNotFound, "crate not found")
		if err.Error() != "[LIBRARY_NOT_FOUND] crate not found" {
			t.Errorf("expected [LIBRARY_NOT_FOUND] crate not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("connection refused")
		err := Wrap(original, CodeRegistryUnavailable, "registry request failed")
		expected := "[REGISTRY_UNAVAILABLE] registry request failed: connection refused"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
		if !errors.Is(err, original) {
			t.Error("expected wrapped error to unwrap to the original")
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeFetchFailure, "corrupt archive")
		if !IsCode(err, CodeFetchFailure) {
			t.Error("expected IsCode to return true for CodeFetchFailure")
		}
		if IsCode(err, CodeParseFailure) {
			t.Error("expected IsCode to return false for CodeParseFailure")
		}
	})

	t.Run("IsCodeThroughFmtWrap", func(t *testing.T) {
		err := fmt.Errorf("version 1.0.0: %w", New(CodeParseFailure, "no file parsed"))
		if !IsCode(err, CodeParseFailure) {
			t.Error("expected IsCode to see through fmt wrapping")
		}
	})

	t.Run("AddContext", func(t *testing.T) {
		err := AddContext(New(CodeParseFailure, "syntax error"), CtxPath, "src/lib.rs")
		var de *DomainError
		if !errors.As(err, &de) {
			t.Fatal("expected DomainError")
		}
		if de.Context[CtxPath] != "src/lib.rs" {
			t.Errorf("expected path context, got %v", de.Context)
		}

		plain := AddContext(errors.New("boom"), CtxOperation, "extract")
		if !IsCode(plain, CodeInternal) {
			t.Error("expected plain errors to be wrapped as internal")
		}
	})
}

func TestFatalAndExitCodes(t *testing.T) {
	tests := []struct {
		code  ErrorCode
		fatal bool
		exit  int
	}{
		{CodeLibraryNotFound, true, 3},
		{CodeNoPublishedVersions, true, 4},
		{CodeRegistryUnavailable, true, 5},
		{CodeMissingExpansionFile, true, 6},
		{CodeMalformedExpansion, true, 7},
		{CodeNoVersionsAnalyzed, true, 8},
		{CodeFetchFailure, false, 1},
		{CodeParseFailure, false, 1},
		{CodeMetricUnavailable, false, 1},
	}
	for _, tt := range tests {
		err := New(tt.code, "x")
		if got := IsFatal(err); got != tt.fatal {
			t.Errorf("IsFatal(%s) = %v, want %v", tt.code, got, tt.fatal)
		}
		if got := ExitCode(err); got != tt.exit {
			t.Errorf("ExitCode(%s) = %d, want %d", tt.code, got, tt.exit)
		}
	}
	if ExitCode(nil) != 0 {
		t.Error("expected exit code 0 for nil error")
	}
	if ExitCode(errors.New("plain")) != 1 {
		t.Error("expected exit code 1 for plain error")
	}
}
