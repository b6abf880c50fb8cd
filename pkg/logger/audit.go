package logger

import (
	"context"
	"log/slog"
	"time"
)

// SecurityEvent is one structured security-audit log record. This stream
// complements the durable audit_entries table; it exists so SIEM tooling
// can consume auth events without database access.
type SecurityEvent struct {
	EventType     string
	AccountID     string
	Username      string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	RiskScore     int
	RiskLevel     string
	Metadata      map[string]string
}

// SecurityLogger emits structured security events over slog.
type SecurityLogger struct {
	logger *slog.Logger
}

// NewSecurityLogger creates a security event logger.
func NewSecurityLogger(logger *slog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger}
}

// LogAuthEvent logs a login/logout/refresh outcome.
func (sl *SecurityLogger) LogAuthEvent(event SecurityEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	if event.RiskLevel != "" {
		attrs = append(attrs,
			slog.Int("risk_score", event.RiskScore),
			slog.String("risk_level", event.RiskLevel))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	sl.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogSecurityAction logs lockouts, device blocks, alert transitions.
func (sl *SecurityLogger) LogSecurityAction(eventType, accountID string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", eventType),
		slog.String("account_id", accountID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}
	sl.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
}
