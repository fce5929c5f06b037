package security

import (
	"fmt"
	"sync"
	"time"
)

// SecurityMetrics tracks security-related counters
type SecurityMetrics struct {
	mu sync.RWMutex

	// Authentication metrics
	ArrayLoginAttempts   int64 `json:"array_login_attempts"`
	ArrayLoginSuccesses  int64 `json:"array_login_successes"`
	ArrayLoginFailures   int64 `json:"array_login_failures"`
	SSHHostKeyMismatches int64 `json:"ssh_host_key_mismatches"`

	// Volume operation metrics
	VolumeAttachRequests  int64 `json:"volume_attach_requests"`
	VolumeAttachSuccesses int64 `json:"volume_attach_successes"`
	VolumeAttachFailures  int64 `json:"volume_attach_failures"`
	VolumeDetachRequests  int64 `json:"volume_detach_requests"`
	VolumeDetachSuccesses int64 `json:"volume_detach_successes"`
	VolumeDetachFailures  int64 `json:"volume_detach_failures"`

	// Security violation metrics
	ValidationFailures       int64 `json:"validation_failures"`
	CommandInjectionAttempts int64 `json:"command_injection_attempts"`
	CircuitBreakerOpens      int64 `json:"circuit_breaker_opens"`

	// Severity counters
	InfoEvents     int64 `json:"info_events"`
	WarningEvents  int64 `json:"warning_events"`
	ErrorEvents    int64 `json:"error_events"`
	CriticalEvents int64 `json:"critical_events"`

	LastArrayLogin        time.Time `json:"last_array_login"`
	LastSecurityViolation time.Time `json:"last_security_violation"`
}

// globalMetrics is the global security metrics instance
var (
	globalMetrics *SecurityMetrics
	metricsOnce   sync.Once
)

// GetMetrics returns the global security metrics instance
func GetMetrics() *SecurityMetrics {
	metricsOnce.Do(func() {
		globalMetrics = &SecurityMetrics{}
	})
	return globalMetrics
}

// RecordEvent records a security event in metrics
func (m *SecurityMetrics) RecordEvent(event *SecurityEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch event.Severity {
	case SeverityInfo:
		m.InfoEvents++
	case SeverityWarning:
		m.WarningEvents++
	case SeverityError:
		m.ErrorEvents++
	case SeverityCritical:
		m.CriticalEvents++
	}

	switch event.EventType {
	case EventArrayLoginAttempt:
		m.ArrayLoginAttempts++
		m.LastArrayLogin = event.Timestamp
	case EventArrayLoginSuccess:
		m.ArrayLoginSuccesses++
	case EventArrayLoginFailure:
		m.ArrayLoginFailures++
	case EventSSHHostKeyMismatch:
		m.SSHHostKeyMismatches++
		m.LastSecurityViolation = event.Timestamp

	case EventVolumeAttachRequest:
		m.VolumeAttachRequests++
	case EventVolumeAttachSuccess:
		m.VolumeAttachSuccesses++
	case EventVolumeAttachFailure:
		m.VolumeAttachFailures++
	case EventVolumeDetachRequest:
		m.VolumeDetachRequests++
	case EventVolumeDetachSuccess:
		m.VolumeDetachSuccesses++
	case EventVolumeDetachFailure:
		m.VolumeDetachFailures++

	case EventValidationFailure:
		m.ValidationFailures++
		m.LastSecurityViolation = event.Timestamp
	case EventCommandInjectionAttempt:
		m.CommandInjectionAttempts++
		m.LastSecurityViolation = event.Timestamp
	case EventCircuitBreakerOpen:
		m.CircuitBreakerOpens++
	}
}

// Reset resets all metrics to zero
func (m *SecurityMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ArrayLoginAttempts = 0
	m.ArrayLoginSuccesses = 0
	m.ArrayLoginFailures = 0
	m.SSHHostKeyMismatches = 0
	m.VolumeAttachRequests = 0
	m.VolumeAttachSuccesses = 0
	m.VolumeAttachFailures = 0
	m.VolumeDetachRequests = 0
	m.VolumeDetachSuccesses = 0
	m.VolumeDetachFailures = 0
	m.ValidationFailures = 0
	m.CommandInjectionAttempts = 0
	m.CircuitBreakerOpens = 0
	m.InfoEvents = 0
	m.WarningEvents = 0
	m.ErrorEvents = 0
	m.CriticalEvents = 0
	m.LastArrayLogin = time.Time{}
	m.LastSecurityViolation = time.Time{}
}

// Snapshot returns a copy of the current counters
func (m *SecurityMetrics) Snapshot() SecurityMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return SecurityMetrics{
		ArrayLoginAttempts:       m.ArrayLoginAttempts,
		ArrayLoginSuccesses:      m.ArrayLoginSuccesses,
		ArrayLoginFailures:       m.ArrayLoginFailures,
		SSHHostKeyMismatches:     m.SSHHostKeyMismatches,
		VolumeAttachRequests:     m.VolumeAttachRequests,
		VolumeAttachSuccesses:    m.VolumeAttachSuccesses,
		VolumeAttachFailures:     m.VolumeAttachFailures,
		VolumeDetachRequests:     m.VolumeDetachRequests,
		VolumeDetachSuccesses:    m.VolumeDetachSuccesses,
		VolumeDetachFailures:     m.VolumeDetachFailures,
		ValidationFailures:       m.ValidationFailures,
		CommandInjectionAttempts: m.CommandInjectionAttempts,
		CircuitBreakerOpens:      m.CircuitBreakerOpens,
		InfoEvents:               m.InfoEvents,
		WarningEvents:            m.WarningEvents,
		ErrorEvents:              m.ErrorEvents,
		CriticalEvents:           m.CriticalEvents,
		LastArrayLogin:           m.LastArrayLogin,
		LastSecurityViolation:    m.LastSecurityViolation,
	}
}

// String returns a human-readable representation of the metrics
func (m *SecurityMetrics) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return fmt.Sprintf("SecurityMetrics{"+
		"Login(attempts=%d, success=%d, failures=%d, key_mismatches=%d), "+
		"Attach(requests=%d, success=%d, failures=%d), "+
		"Detach(requests=%d, success=%d, failures=%d), "+
		"Violations(validation=%d, cmd_injection=%d, circuit_breaker=%d), "+
		"Severity(info=%d, warning=%d, error=%d, critical=%d)}",
		m.ArrayLoginAttempts, m.ArrayLoginSuccesses, m.ArrayLoginFailures, m.SSHHostKeyMismatches,
		m.VolumeAttachRequests, m.VolumeAttachSuccesses, m.VolumeAttachFailures,
		m.VolumeDetachRequests, m.VolumeDetachSuccesses, m.VolumeDetachFailures,
		m.ValidationFailures, m.CommandInjectionAttempts, m.CircuitBreakerOpens,
		m.InfoEvents, m.WarningEvents, m.ErrorEvents, m.CriticalEvents)
}
