package cli

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/roach88/nodom/internal/compiler"
)

// Error codes for CLI output (E001-E007).
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeUnreachable = "E007" // Server unreachable or refused the request
)

// Description error codes (E101-E104). Rule problems use the rules
// package's E12x codes.
const (
	ErrCodeService = "E101" // Unknown or non-string service
	ErrCodeLayout  = "E102" // Layout is not concrete data
	ErrCodeData    = "E103" // Data is not a concrete object
	ErrCodeActions = "E104" // Malformed action rule
)

// loadErrorCode maps a compiler.LoadError to its CLI code.
func loadErrorCode(le *compiler.LoadError) string {
	switch {
	case errors.Is(le.Err, fs.ErrNotExist), le.Reason == "not a directory":
		return ErrCodeNotFound
	case le.Reason == "scanning directory":
		return ErrCodeScanError
	case le.Reason == "no CUE files found":
		return ErrCodeNoFiles
	case le.Reason == "loading CUE files", le.Reason == "no CUE instances loaded":
		return ErrCodeLoadFailed
	}
	return ErrCodeGeneric
}

// compileErrorCode maps a compiler.CompileError field to its CLI code.
func compileErrorCode(field string) string {
	top, _, _ := strings.Cut(field, ".")
	top, _, _ = strings.Cut(top, "[")
	switch top {
	case "cue":
		return ErrCodeBuildFailed
	case "service":
		return ErrCodeService
	case "layout":
		return ErrCodeLayout
	case "data":
		return ErrCodeData
	case "actions":
		return ErrCodeActions
	}
	return ErrCodeGeneric
}
