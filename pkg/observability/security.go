package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/security"
)

// securityCollector exports the audit counters kept by pkg/security at scrape time
type securityCollector struct {
	source *security.SecurityMetrics

	events           *prometheus.Desc
	eventsBySeverity *prometheus.Desc
	lastViolation    *prometheus.Desc
}

func newSecurityCollector(source *security.SecurityMetrics) *securityCollector {
	return &securityCollector{
		source: source,
		events: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "security", "events_total"),
			"Total number of audit events by event type",
			[]string{"event"}, nil,
		),
		eventsBySeverity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "security", "events_by_severity_total"),
			"Total number of audit events by severity",
			[]string{"severity"}, nil,
		),
		lastViolation: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "security", "last_violation_timestamp_seconds"),
			"Unix time of the last validation failure, injection attempt or host key mismatch (0 if none)",
			nil, nil,
		),
	}
}

func (c *securityCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.events
	ch <- c.eventsBySeverity
	ch <- c.lastViolation
}

func (c *securityCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()

	for event, value := range map[string]int64{
		"array_login_attempt":       snap.ArrayLoginAttempts,
		"array_login_success":       snap.ArrayLoginSuccesses,
		"array_login_failure":       snap.ArrayLoginFailures,
		"ssh_host_key_mismatch":     snap.SSHHostKeyMismatches,
		"volume_attach_request":     snap.VolumeAttachRequests,
		"volume_attach_success":     snap.VolumeAttachSuccesses,
		"volume_attach_failure":     snap.VolumeAttachFailures,
		"volume_detach_request":     snap.VolumeDetachRequests,
		"volume_detach_success":     snap.VolumeDetachSuccesses,
		"volume_detach_failure":     snap.VolumeDetachFailures,
		"validation_failure":        snap.ValidationFailures,
		"command_injection_attempt": snap.CommandInjectionAttempts,
		"circuit_breaker_open":      snap.CircuitBreakerOpens,
	} {
		ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(value), event)
	}

	for severity, value := range map[string]int64{
		"info":     snap.InfoEvents,
		"warning":  snap.WarningEvents,
		"error":    snap.ErrorEvents,
		"critical": snap.CriticalEvents,
	} {
		ch <- prometheus.MustNewConstMetric(c.eventsBySeverity, prometheus.CounterValue, float64(value), severity)
	}

	var last float64
	if !snap.LastSecurityViolation.IsZero() {
		last = float64(snap.LastSecurityViolation.Unix())
	}
	ch <- prometheus.MustNewConstMetric(c.lastViolation, prometheus.GaugeValue, last)
}
