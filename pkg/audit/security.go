// Package audit provides security audit logging for SIEM consumption.
// Events are logged in structured JSON under the "security_audit" logger
// name so they can be filtered and alerted on separately.
package audit

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/auth"
	"github.com/ekaya-inc/downtime-engine/pkg/logging"
	"github.com/ekaya-inc/downtime-engine/pkg/middleware"
	"github.com/ekaya-inc/downtime-engine/pkg/sql"
)

// maxAuditedValue bounds how much of a rejected value is kept in the log.
const maxAuditedValue = 100

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a request value.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventParameterValidation is logged when request values fail validation.
	EventParameterValidation SecurityEventType = "parameter_validation_failure"
)

// SecurityEvent represents an auditable security event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	Endpoint  string            `json:"endpoint"`
	Subject   string            `json:"subject,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// InjectionDetails describes one flagged value.
type InjectionDetails struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit"), now: time.Now}
}

func (a *SecurityAuditor) event(r *http.Request, eventType SecurityEventType, severity string, details any) SecurityEvent {
	return SecurityEvent{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		RequestID: middleware.RequestIDFromContext(r.Context()),
		Endpoint:  r.Method + " " + r.URL.Path,
		Subject:   auth.SubjectFromContext(r.Context()),
		ClientIP:  middleware.ClientIP(r),
		Details:   details,
		Severity:  severity,
	}
}

// LogInjectionAttempt records values libinjection flagged in r, at ERROR
// level with "critical" severity. values maps field names to the submitted
// text; only flagged fields are logged.
func (a *SecurityAuditor) LogInjectionAttempt(r *http.Request, findings []sql.InjectionFinding, values map[string]string) {
	if len(findings) == 0 {
		return
	}
	details := make([]InjectionDetails, 0, len(findings))
	fields := make([]string, 0, len(findings))
	for _, f := range findings {
		details = append(details, InjectionDetails{
			Field:       f.Field,
			Value:       logging.TruncateString(values[f.Field], maxAuditedValue),
			Fingerprint: f.Fingerprint,
		})
		fields = append(fields, f.Field)
	}

	event := a.event(r, EventSQLInjectionAttempt, "critical", details)
	// Marshaling these known types cannot fail.
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", event.RequestID),
		zap.String("endpoint", event.Endpoint),
		zap.Strings("fields", fields),
		zap.String("client_ip", event.ClientIP),
		zap.String("subject", event.Subject),
		zap.String("severity", event.Severity),
	)
}

// LogParameterValidation records a validation failure at WARN level; these
// are usually user errors rather than attacks.
func (a *SecurityAuditor) LogParameterValidation(r *http.Request, errorMessage string) {
	event := a.event(r, EventParameterValidation, "warning", map[string]string{"error": errorMessage})
	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Parameter validation failed",
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", event.RequestID),
		zap.String("endpoint", event.Endpoint),
		zap.String("error", errorMessage),
		zap.String("client_ip", event.ClientIP),
		zap.String("subject", event.Subject),
		zap.String("severity", event.Severity),
	)
}
