package mock

import (
	"sync"

	"k8s.io/klog/v2"
)

// ErrorMode defines the type of error to inject
type ErrorMode int

const (
	// ErrorModeNone indicates no error injection
	ErrorModeNone ErrorMode = iota
	// ErrorModeLunCollision answers map_vol with LUN_ALREADY_IN_USE, as when another
	// controller claims the LUN between mapping_list and map_vol
	ErrorModeLunCollision
	// ErrorModeSSHTimeout simulates SSH connection timeout
	ErrorModeSSHTimeout
	// ErrorModeCommandFail fails mutating commands with a generic completion code
	ErrorModeCommandFail
	// ErrorModeAccessDenied rejects mutating commands for the logged in user
	ErrorModeAccessDenied
)

// ErrorInjector manages error injection for testing
type ErrorInjector struct {
	mode         ErrorMode
	operationNum int
	triggerAfter int
	limit        int
	injected     int
	mu           sync.Mutex // Protect operation counter
}

// NewErrorInjector creates a new error injector from configuration
func NewErrorInjector(config MockArrayConfig) *ErrorInjector {
	return &ErrorInjector{
		mode:         ParseErrorMode(config.ErrorMode),
		triggerAfter: config.ErrorAfterN,
	}
}

// ParseErrorMode converts string error mode to ErrorMode constant
func ParseErrorMode(s string) ErrorMode {
	switch s {
	case "lun_collision":
		return ErrorModeLunCollision
	case "ssh_timeout":
		return ErrorModeSSHTimeout
	case "command_fail":
		return ErrorModeCommandFail
	case "access_denied":
		return ErrorModeAccessDenied
	case "none", "":
		return ErrorModeNone
	default:
		klog.Warningf("Unknown error mode %q, using none", s)
		return ErrorModeNone
	}
}

// SetMode switches the injection mode. limit caps how many errors are injected; 0 means no cap.
func (e *ErrorInjector) SetMode(mode ErrorMode, afterN, limit int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
	e.triggerAfter = afterN
	e.limit = limit
	e.operationNum = 0
	e.injected = 0
}

// ShouldFailSSHConnect returns true if SSH connection should timeout
func (e *ErrorInjector) ShouldFailSSHConnect() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != ErrorModeSSHTimeout {
		return false
	}
	return e.trigger()
}

// ShouldFailMap returns whether map_vol should fail and the XCLI completion code to answer with
func (e *ErrorInjector) ShouldFailMap() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var code string
	switch e.mode {
	case ErrorModeLunCollision:
		code = "LUN_ALREADY_IN_USE"
	case ErrorModeCommandFail:
		code = "COMMAND_FAILED"
	case ErrorModeAccessDenied:
		code = "ACCESS_DENIED"
	default:
		return false, ""
	}

	if !e.trigger() {
		return false, ""
	}
	return true, code
}

// ShouldFailUnmap returns whether unmap_vol should fail and the XCLI completion code to answer with
func (e *ErrorInjector) ShouldFailUnmap() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var code string
	switch e.mode {
	case ErrorModeCommandFail:
		code = "COMMAND_FAILED"
	case ErrorModeAccessDenied:
		code = "ACCESS_DENIED"
	default:
		return false, ""
	}

	if !e.trigger() {
		return false, ""
	}
	return true, code
}

// trigger counts one operation; callers hold mu
func (e *ErrorInjector) trigger() bool {
	e.operationNum++
	if e.operationNum <= e.triggerAfter {
		return false
	}
	if e.limit > 0 && e.injected >= e.limit {
		return false
	}
	e.injected++
	return true
}

// Reset resets the operation counter for test isolation
func (e *ErrorInjector) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.operationNum = 0
	e.injected = 0
}
