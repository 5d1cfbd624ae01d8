package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string // Masked before logging
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security and marketplace audit records.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAuthAttempt logs registration, login and logout outcomes
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := al.base("auth", event.EventType)
	attrs = append(attrs, slog.Bool("success", event.Success))

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogLockout records an account being locked after repeated failures.
func (al *AuditLogger) LogLockout(userID string, until time.Time) {
	attrs := al.base("auth", "account_locked")
	attrs = append(attrs,
		slog.String("user_id", userID),
		slog.String("locked_until", until.UTC().Format(time.RFC3339)),
	)
	al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
}

// LogSwapTransition records a swap request leaving the pending state.
func (al *AuditLogger) LogSwapTransition(swapID, actorID, status string, metadata map[string]string) {
	attrs := al.base("swap", "swap_"+status)
	attrs = append(attrs,
		slog.String("swap_id", swapID),
		slog.String("actor_id", actorID),
	)
	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}

// LogBookAction records catalog and moderation changes.
func (al *AuditLogger) LogBookAction(eventType, bookID, actorID string, metadata map[string]string) {
	attrs := al.base("book", eventType)
	attrs = append(attrs,
		slog.String("book_id", bookID),
		slog.String("actor_id", actorID),
	)
	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}

func (al *AuditLogger) base(auditType, eventType string) []slog.Attr {
	return []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", eventType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
}
