package security

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// Logger provides centralized security event logging
type Logger struct {
	metrics *SecurityMetrics
}

// globalLogger is the global security logger instance
var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger returns the global security logger instance
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		globalLogger = &Logger{
			metrics: GetMetrics(),
		}
	})
	return globalLogger
}

// NewLogger creates a new security logger with its own counters
func NewLogger() *Logger {
	return &Logger{
		metrics: &SecurityMetrics{},
	}
}

// Metrics returns the counters this logger records into
func (l *Logger) Metrics() *SecurityMetrics {
	return l.metrics
}

// severityMapping defines how a severity level maps to klog behavior
type severityMapping struct {
	logFunc func(args ...interface{})
}

var severityMap = map[EventSeverity]severityMapping{
	SeverityInfo:     {logFunc: func(args ...interface{}) { klog.V(2).Info(args...) }},
	SeverityWarning:  {logFunc: klog.Warning},
	SeverityError:    {logFunc: klog.Error},
	SeverityCritical: {logFunc: klog.Error},
}

// LogEvent logs a security event with structured logging
func (l *Logger) LogEvent(event *SecurityEvent) {
	l.metrics.RecordEvent(event)

	mapping, ok := severityMap[event.Severity]
	if !ok {
		mapping = severityMap[SeverityInfo]
	}
	mapping.logFunc(FormatEvent(event))

	// For critical events, also log as JSON for easy parsing
	if event.Severity == SeverityCritical {
		if jsonBytes, err := json.Marshal(event); err == nil {
			klog.Errorf("CRITICAL_SECURITY_EVENT: %s", string(jsonBytes))
		}
	}
}

// FormatEvent formats a security event as a single structured log line
func FormatEvent(event *SecurityEvent) string {
	msg := fmt.Sprintf("[SECURITY] category=%s type=%s severity=%s outcome=%s msg=%q",
		event.Category, event.EventType, event.Severity, event.Outcome, event.Message)

	fields := []struct{ key, value string }{
		{"request_id", event.RequestID},
		{"username", event.Username},
		{"target_ip", event.TargetIP},
		{"node_id", event.NodeID},
		{"volume_id", event.VolumeID},
		{"host", event.Host},
		{"lun", event.LUN},
		{"connectivity", event.Connectivity},
		{"operation", event.Operation},
	}
	for _, f := range fields {
		if f.value != "" {
			msg += fmt.Sprintf(" %s=%s", f.key, f.value)
		}
	}

	if event.Duration > 0 {
		msg += fmt.Sprintf(" duration_ms=%d", event.Duration.Milliseconds())
	}
	if event.Error != "" {
		msg += fmt.Sprintf(" error=%q", event.Error)
	}

	keys := make([]string, 0, len(event.Details))
	for k := range event.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		msg += fmt.Sprintf(" %s=%q", k, event.Details[k])
	}

	msg += fmt.Sprintf(" timestamp=%s", event.Timestamp.Format("2006-01-02T15:04:05.000Z"))
	return msg
}

// LogArrayLoginAttempt logs an attempt to open a session on an array endpoint
func (l *Logger) LogArrayLoginAttempt(username, address string) {
	event := NewSecurityEvent(
		EventArrayLoginAttempt,
		CategoryAuthentication,
		SeverityInfo,
		"Array login attempt",
	).WithIdentity(username, "").
		WithTarget(address).
		WithOutcome(OutcomeUnknown)
	l.LogEvent(event)
}

// LogArrayLoginSuccess logs an established array session
func (l *Logger) LogArrayLoginSuccess(username, address string) {
	event := NewSecurityEvent(
		EventArrayLoginSuccess,
		CategoryAuthentication,
		SeverityInfo,
		"Array session established",
	).WithIdentity(username, "").
		WithTarget(address).
		WithOutcome(OutcomeSuccess)
	l.LogEvent(event)
}

// LogArrayLoginFailure logs a failed array login
func (l *Logger) LogArrayLoginFailure(username, address string, err error) {
	event := NewSecurityEvent(
		EventArrayLoginFailure,
		CategoryAuthentication,
		SeverityError,
		"Array login failed",
	).WithIdentity(username, "").
		WithTarget(address).
		WithOutcome(OutcomeFailure).
		WithError(err)
	l.LogEvent(event)
}

// LogSSHHostKeyMismatch logs an SSH host key mismatch (critical security event)
func (l *Logger) LogSSHHostKeyMismatch(address string, err error) {
	event := NewSecurityEvent(
		EventSSHHostKeyMismatch,
		CategorySecurityViolation,
		SeverityCritical,
		"SSH host key verification failed - possible MITM attack",
	).WithTarget(address).
		WithOutcome(OutcomeDenied).
		WithError(err)
	l.LogEvent(event)
}

// LogCircuitBreakerOpen logs an array endpoint being taken out of rotation
func (l *Logger) LogCircuitBreakerOpen(address string) {
	event := NewSecurityEvent(
		EventCircuitBreakerOpen,
		CategoryAuthentication,
		SeverityWarning,
		"Array endpoint circuit breaker opened",
	).WithTarget(address).
		WithOutcome(OutcomeDenied)
	l.LogEvent(event)
}

// LogValidationFailure logs a request rejected for its shape or content
func (l *Logger) LogValidationFailure(operation, field, reason string) {
	event := NewSecurityEvent(
		EventValidationFailure,
		CategorySecurityViolation,
		SeverityWarning,
		"Request validation failed",
	).WithOutcome(OutcomeDenied).
		WithDetail("field", field).
		WithDetail("reason", reason)
	event.Operation = operation
	l.LogEvent(event)
}

// LogCommandInjectionAttempt logs an identifier rejected before it reached an array CLI
func (l *Logger) LogCommandInjectionAttempt(field, value string) {
	event := NewSecurityEvent(
		EventCommandInjectionAttempt,
		CategorySecurityViolation,
		SeverityCritical,
		"Unsafe value rejected before array command",
	).WithOutcome(OutcomeDenied).
		WithDetail("field", field).
		WithDetail("value", value)
	l.LogEvent(event)
}

// OperationLogConfig defines the configuration for a logging operation
type OperationLogConfig struct {
	Operation   string
	Category    EventCategory
	SuccessType EventType
	FailureType EventType
	RequestType EventType
	SuccessSev  EventSeverity
	FailureSev  EventSeverity
	SuccessMsg  string
	FailureMsg  string
	RequestMsg  string
}

// operationConfigs defines the logging configuration for all operations
var operationConfigs = map[string]OperationLogConfig{
	"VolumeAttach": {Operation: "ControllerPublishVolume", Category: CategoryVolumeOperation, SuccessType: EventVolumeAttachSuccess, FailureType: EventVolumeAttachFailure, RequestType: EventVolumeAttachRequest, SuccessSev: SeverityInfo, FailureSev: SeverityError, SuccessMsg: "Volume mapped to host", FailureMsg: "Volume mapping failed", RequestMsg: "Volume mapping requested"},
	"VolumeDetach": {Operation: "ControllerUnpublishVolume", Category: CategoryVolumeOperation, SuccessType: EventVolumeDetachSuccess, FailureType: EventVolumeDetachFailure, RequestType: EventVolumeDetachRequest, SuccessSev: SeverityInfo, FailureSev: SeverityWarning, SuccessMsg: "Volume unmapped from host", FailureMsg: "Volume unmapping failed", RequestMsg: "Volume unmapping requested"},
}

// EventField is a functional option for configuring SecurityEvent fields
type EventField func(*SecurityEvent)

// WithVolume sets the volume id
func WithVolume(volumeID string) EventField {
	return func(e *SecurityEvent) {
		e.VolumeID = volumeID
	}
}

// WithNode sets the CSI node id
func WithNode(nodeID string) EventField {
	return func(e *SecurityEvent) {
		e.NodeID = nodeID
	}
}

// WithMapping sets the array host, LUN and transport of a mapping
func WithMapping(host string, lun string, connectivity string) EventField {
	return func(e *SecurityEvent) {
		e.Host = host
		e.LUN = lun
		e.Connectivity = connectivity
	}
}

// WithRequestID sets the gRPC request id
func WithRequestID(id string) EventField {
	return func(e *SecurityEvent) {
		e.RequestID = id
	}
}

// WithDuration sets operation duration
func WithDuration(d time.Duration) EventField {
	return func(e *SecurityEvent) {
		e.Duration = d
	}
}

// WithError sets error information
func WithError(err error) EventField {
	return func(e *SecurityEvent) {
		if err != nil {
			e.Error = err.Error()
		}
	}
}

// LogOperation logs an operation using the table-driven configuration
func (l *Logger) LogOperation(config OperationLogConfig, outcome EventOutcome, fields ...EventField) {
	var eventType EventType
	var severity EventSeverity
	var message string

	switch outcome {
	case OutcomeSuccess:
		eventType = config.SuccessType
		severity = config.SuccessSev
		message = config.SuccessMsg
	case OutcomeFailure:
		eventType = config.FailureType
		severity = config.FailureSev
		message = config.FailureMsg
	default:
		eventType = config.RequestType
		severity = SeverityInfo
		message = config.RequestMsg
	}

	event := NewSecurityEvent(eventType, config.Category, severity, message)
	event.Operation = config.Operation
	event.Outcome = outcome

	for _, field := range fields {
		field(event)
	}

	l.LogEvent(event)
}

// LogVolumeAttach logs ControllerPublishVolume events
func (l *Logger) LogVolumeAttach(requestID, volumeID, nodeID, host, lun, connectivity string, outcome EventOutcome, err error, duration time.Duration) {
	l.LogOperation(operationConfigs["VolumeAttach"], outcome,
		WithRequestID(requestID),
		WithVolume(volumeID),
		WithNode(nodeID),
		WithMapping(host, lun, connectivity),
		WithDuration(duration),
		WithError(err))
}

// LogVolumeDetach logs ControllerUnpublishVolume events
func (l *Logger) LogVolumeDetach(requestID, volumeID, nodeID, host string, outcome EventOutcome, err error, duration time.Duration) {
	l.LogOperation(operationConfigs["VolumeDetach"], outcome,
		WithRequestID(requestID),
		WithVolume(volumeID),
		WithNode(nodeID),
		WithMapping(host, "", ""),
		WithDuration(duration),
		WithError(err))
}
