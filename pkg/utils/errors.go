package utils

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"

	"k8s.io/klog/v2"
)

// Sentinel errors for request shape failures.
// Use errors.Is() to check for these rather than string matching.
var (
	// ErrMissingParameter indicates a required request field is absent
	ErrMissingParameter = errors.New("missing parameter")

	// ErrInvalidParameter indicates an invalid parameter was provided
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ErrorType classifies errors for sanitization purposes
type ErrorType int

const (
	// ErrorTypeInternal indicates an internal error with implementation details
	ErrorTypeInternal ErrorType = iota

	// ErrorTypeUser indicates a user-facing error that should be sanitized
	ErrorTypeUser

	// ErrorTypeValidation indicates a validation error (safe to show to users)
	ErrorTypeValidation
)

// SanitizedError wraps an error with classification and sanitization
type SanitizedError struct {
	originalErr  error
	sanitizedMsg string
	errorType    ErrorType
	field        string
}

// Error implements the error interface, returning the sanitized message
func (e *SanitizedError) Error() string {
	return e.sanitizedMsg
}

// Unwrap returns the original error for error unwrapping
func (e *SanitizedError) Unwrap() error {
	return e.originalErr
}

// Field returns the request field a validation error refers to
func (e *SanitizedError) Field() string {
	return e.field
}

// Log logs the full error details at the appropriate level
func (e *SanitizedError) Log() {
	msg := fmt.Sprintf("Error: %s", e.sanitizedMsg)
	if e.originalErr != nil {
		msg = fmt.Sprintf("%s (internal: %v)", msg, e.originalErr)
	}

	switch e.errorType {
	case ErrorTypeInternal:
		klog.Errorf("[INTERNAL ERROR] %s", msg)
	case ErrorTypeUser:
		klog.Warningf("[USER ERROR] %s", msg)
	case ErrorTypeValidation:
		klog.V(4).Infof("[VALIDATION ERROR] %s", msg)
	}
}

// NewUserError creates a user-facing error with sanitization
func NewUserError(err error, operation string) *SanitizedError {
	if err == nil {
		err = fmt.Errorf("operation failed")
	}

	return &SanitizedError{
		originalErr:  err,
		sanitizedMsg: fmt.Sprintf("%s failed: %s", operation, SanitizeErrorMessage(err.Error())),
		errorType:    ErrorTypeUser,
	}
}

// NewValidationError creates a validation error (safe to show to users).
// It wraps ErrInvalidParameter so callers can match it with errors.Is.
func NewValidationError(field, reason string) *SanitizedError {
	return &SanitizedError{
		originalErr:  fmt.Errorf("%w: %s: %s", ErrInvalidParameter, field, reason),
		sanitizedMsg: fmt.Sprintf("validation failed for %s: %s", field, reason),
		errorType:    ErrorTypeValidation,
		field:        field,
	}
}

// NewMissingParameterError creates a validation error for an absent field
func NewMissingParameterError(field string) *SanitizedError {
	return &SanitizedError{
		originalErr:  fmt.Errorf("%w: %s", ErrMissingParameter, field),
		sanitizedMsg: fmt.Sprintf("%s is missing", field),
		errorType:    ErrorTypeValidation,
		field:        field,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var se *SanitizedError
	if errors.As(err, &se) {
		return se.errorType == ErrorTypeValidation
	}
	return false
}

// Regular expressions for sanitization
var (
	// Match IPv4 addresses (e.g., 192.168.1.1, 10.0.0.1)
	ipv4Pattern = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(:\d+)?\b`)

	// Match IPv6 addresses (basic pattern)
	ipv6Pattern = regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b`)

	// Unix absolute paths with at least one component
	unixPathPattern = regexp.MustCompile(`(^|\s)/[a-zA-Z0-9_\-]+(?:/[a-zA-Z0-9_.\-]+)*`)

	// Match SSH key fingerprints
	fingerprintPattern = regexp.MustCompile(`SHA256:[A-Za-z0-9+/=]+`)

	// Match goroutine dumps and stack frames
	stackTracePattern = regexp.MustCompile(`\n\s+at\s+.*|goroutine\s+\d+.*`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeErrorMessage removes management addresses, key fingerprints and
// filesystem paths from messages returned to CSI callers
func SanitizeErrorMessage(msg string) string {
	msg = ipv4Pattern.ReplaceAllString(msg, "[IP-ADDRESS]")
	msg = ipv6Pattern.ReplaceAllString(msg, "[IP-ADDRESS]")
	msg = fingerprintPattern.ReplaceAllString(msg, "[FINGERPRINT]")
	msg = unixPathPattern.ReplaceAllStringFunc(msg, func(match string) string {
		prefix := ""
		if len(match) > 0 && match[0] != '/' {
			prefix = match[:1]
			match = match[1:]
		}
		base := filepath.Base(match)
		if base != "." && base != "/" {
			return fmt.Sprintf("%s[PATH]/%s", prefix, base)
		}
		return prefix + "[PATH]"
	})
	msg = stackTracePattern.ReplaceAllString(msg, "")
	msg = whitespacePattern.ReplaceAllString(msg, " ")
	return strings.TrimSpace(msg)
}

// RedactAddresses replaces each management address, with and without its
// port, so DNS names the patterns above cannot recognise stay out of msg
func RedactAddresses(msg string, addresses []string) string {
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, addr, "[ARRAY-ADDRESS]")
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			msg = strings.ReplaceAll(msg, host, "[ARRAY-ADDRESS]")
		}
	}
	return msg
}

// GetSanitizedMessage extracts the sanitized message from any error
func GetSanitizedMessage(err error) string {
	if err == nil {
		return ""
	}

	var se *SanitizedError
	if errors.As(err, &se) {
		return se.sanitizedMsg
	}

	return SanitizeErrorMessage(err.Error())
}
