package security

import "time"

// EventCategory represents the category of a security event
type EventCategory string

const (
	// CategoryAuthentication represents array login events
	CategoryAuthentication EventCategory = "authentication"

	// CategoryVolumeOperation represents attach and detach operations
	CategoryVolumeOperation EventCategory = "volume_operation"

	// CategorySecurityViolation represents rejected or suspicious input
	CategorySecurityViolation EventCategory = "security_violation"
)

// EventSeverity represents the severity level of a security event
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityError    EventSeverity = "error"
	SeverityCritical EventSeverity = "critical"
)

// EventOutcome represents the outcome of a security event
type EventOutcome string

const (
	OutcomeSuccess EventOutcome = "success"
	OutcomeFailure EventOutcome = "failure"
	OutcomeDenied  EventOutcome = "denied"
	OutcomeUnknown EventOutcome = "unknown"
)

// EventType represents specific types of security events
type EventType string

const (
	// Authentication events
	EventArrayLoginAttempt  EventType = "array_login_attempt"
	EventArrayLoginSuccess  EventType = "array_login_success"
	EventArrayLoginFailure  EventType = "array_login_failure"
	EventSSHHostKeyMismatch EventType = "ssh_host_key_mismatch"

	// Volume operation events
	EventVolumeAttachRequest EventType = "volume_attach_request"
	EventVolumeAttachSuccess EventType = "volume_attach_success"
	EventVolumeAttachFailure EventType = "volume_attach_failure"
	EventVolumeDetachRequest EventType = "volume_detach_request"
	EventVolumeDetachSuccess EventType = "volume_detach_success"
	EventVolumeDetachFailure EventType = "volume_detach_failure"

	// Security violation events
	EventValidationFailure       EventType = "validation_failure"
	EventCommandInjectionAttempt EventType = "command_injection_attempt"
	EventCircuitBreakerOpen      EventType = "circuit_breaker_open"
)

// SecurityEvent represents a security-relevant event in the system
type SecurityEvent struct {
	// Core event fields
	Timestamp time.Time     `json:"timestamp"`
	EventType EventType     `json:"event_type"`
	Category  EventCategory `json:"category"`
	Severity  EventSeverity `json:"severity"`
	Outcome   EventOutcome  `json:"outcome"`
	Message   string        `json:"message"`

	// Identity fields
	Username  string `json:"username,omitempty"`
	TargetIP  string `json:"target_ip,omitempty"`
	NodeID    string `json:"node_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Resource fields
	VolumeID     string `json:"volume_id,omitempty"`
	Host         string `json:"host,omitempty"`
	LUN          string `json:"lun,omitempty"`
	Connectivity string `json:"connectivity,omitempty"`

	// Operation details
	Operation string            `json:"operation,omitempty"`
	Duration  time.Duration     `json:"duration_ms,omitempty"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewSecurityEvent creates a new security event with timestamp
func NewSecurityEvent(eventType EventType, category EventCategory, severity EventSeverity, message string) *SecurityEvent {
	return &SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Category:  category,
		Severity:  severity,
		Message:   message,
		Details:   make(map[string]string),
	}
}

// WithOutcome sets the outcome for the event
func (e *SecurityEvent) WithOutcome(outcome EventOutcome) *SecurityEvent {
	e.Outcome = outcome
	return e
}

// WithIdentity sets identity information for the event
func (e *SecurityEvent) WithIdentity(username, nodeID string) *SecurityEvent {
	e.Username = username
	e.NodeID = nodeID
	return e
}

// WithTarget sets the array endpoint
func (e *SecurityEvent) WithTarget(targetIP string) *SecurityEvent {
	e.TargetIP = targetIP
	return e
}

// WithError sets error information
func (e *SecurityEvent) WithError(err error) *SecurityEvent {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDetail adds a custom detail field
func (e *SecurityEvent) WithDetail(key, value string) *SecurityEvent {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}
