package security

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewSecurityEvent(t *testing.T) {
	event := NewSecurityEvent(
		EventArrayLoginAttempt,
		CategoryAuthentication,
		SeverityInfo,
		"Test message",
	)

	if event.EventType != EventArrayLoginAttempt {
		t.Errorf("Expected EventType %s, got %s", EventArrayLoginAttempt, event.EventType)
	}
	if event.Category != CategoryAuthentication {
		t.Errorf("Expected Category %s, got %s", CategoryAuthentication, event.Category)
	}
	if event.Timestamp.IsZero() {
		t.Error("Expected Timestamp to be set, got zero time")
	}
	if event.Details == nil {
		t.Error("Expected Details map to be initialized")
	}
}

func TestFormatEvent(t *testing.T) {
	event := NewSecurityEvent(
		EventVolumeAttachSuccess,
		CategoryVolumeOperation,
		SeverityInfo,
		"Volume mapped to host",
	).WithOutcome(OutcomeSuccess).
		WithIdentity("admin", "worker-1;;500143802426baf4").
		WithDetail("b", "2").
		WithDetail("a", "1")
	event.VolumeID = "a9k:vol1"
	event.LUN = "7"
	event.Duration = 1500 * time.Millisecond

	msg := FormatEvent(event)

	expected := []string{
		"[SECURITY]",
		"category=volume_operation",
		"type=volume_attach_success",
		"outcome=success",
		"username=admin",
		"volume_id=a9k:vol1",
		"lun=7",
		"duration_ms=1500",
		`a="1" b="2"`,
	}
	for _, s := range expected {
		if !strings.Contains(msg, s) {
			t.Errorf("Expected %q in %q", s, msg)
		}
	}
	if strings.Contains(msg, "connectivity=") {
		t.Error("Empty fields must be omitted")
	}
}

func TestLogOperation_SelectsTypeByOutcome(t *testing.T) {
	tests := []struct {
		outcome  EventOutcome
		expected func(m *SecurityMetrics) int64
	}{
		{OutcomeSuccess, func(m *SecurityMetrics) int64 { return m.VolumeAttachSuccesses }},
		{OutcomeFailure, func(m *SecurityMetrics) int64 { return m.VolumeAttachFailures }},
		{OutcomeUnknown, func(m *SecurityMetrics) int64 { return m.VolumeAttachRequests }},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			l := NewLogger()
			l.LogVolumeAttach("req-1", "a9k:vol1", "n;;w", "host1", "1", "fc", tt.outcome, nil, time.Second)

			snap := l.Metrics().Snapshot()
			if got := tt.expected(&snap); got != 1 {
				t.Errorf("Expected counter 1 for outcome %s, got %d", tt.outcome, got)
			}
		})
	}
}

func TestArrayLoginEvents(t *testing.T) {
	l := NewLogger()

	l.LogArrayLoginAttempt("admin", "10.0.0.1")
	l.LogArrayLoginFailure("admin", "10.0.0.1", errors.New("ssh: unable to authenticate"))
	l.LogArrayLoginAttempt("admin", "10.0.0.2")
	l.LogArrayLoginSuccess("admin", "10.0.0.2")

	snap := l.Metrics().Snapshot()
	if snap.ArrayLoginAttempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", snap.ArrayLoginAttempts)
	}
	if snap.ArrayLoginFailures != 1 || snap.ArrayLoginSuccesses != 1 {
		t.Errorf("Unexpected login counters: %s", l.Metrics().String())
	}
	if snap.ErrorEvents != 1 {
		t.Errorf("Expected one error-severity event, got %d", snap.ErrorEvents)
	}
}

func TestSecurityViolationEvents(t *testing.T) {
	l := NewLogger()

	l.LogValidationFailure("ControllerPublishVolume", "volume_capability", "missing")
	l.LogCommandInjectionAttempt("host", "h;reboot")
	l.LogCircuitBreakerOpen("10.0.0.9")

	snap := l.Metrics().Snapshot()
	if snap.ValidationFailures != 1 {
		t.Errorf("Expected 1 validation failure, got %d", snap.ValidationFailures)
	}
	if snap.CommandInjectionAttempts != 1 {
		t.Errorf("Expected 1 injection attempt, got %d", snap.CommandInjectionAttempts)
	}
	if snap.CircuitBreakerOpens != 1 {
		t.Errorf("Expected 1 breaker open, got %d", snap.CircuitBreakerOpens)
	}
	if snap.LastSecurityViolation.IsZero() {
		t.Error("Expected LastSecurityViolation to be set")
	}
}

func TestGetLogger_Singleton(t *testing.T) {
	if GetLogger() != GetLogger() {
		t.Error("GetLogger must return the same instance")
	}
}
