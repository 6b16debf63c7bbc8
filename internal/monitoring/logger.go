package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger provides structured logging with claim-pipeline helpers
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// NewLogger creates a JSON logger on stdout
func NewLogger(level slog.Level) *Logger {
	return NewLoggerWithWriter(os.Stdout, level)
}

// NewLoggerWithWriter creates a JSON logger on w
func NewLoggerWithWriter(w io.Writer, level slog.Level) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level)

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lv,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{Logger: slog.New(handler), level: lv}
}

// ParseLevel maps debug|info|warn|error to a slog level; unknown values are info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the level of this logger and every logger derived from it
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// ForClaim returns a logger that stamps claim_id on every line
func (l *Logger) ForClaim(claimID string) *Logger {
	return &Logger{Logger: l.With("claim_id", claimID), level: l.level}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// StageLogger logs the outcome of one pipeline stage
func (l *Logger) StageLogger(claimID, stage string, duration time.Duration, err error) {
	if err != nil {
		l.Error("Pipeline stage failed",
			"claim_id", claimID,
			"stage", stage,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	l.Info("Pipeline stage completed",
		"claim_id", claimID,
		"stage", stage,
		"duration_ms", duration.Milliseconds(),
	)
}

// ProviderLogger logs external provider calls
func (l *Logger) ProviderLogger(provider, operation string, duration time.Duration, success bool) {
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}

	l.Log(context.Background(), level, "Provider Call",
		"provider", provider,
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
		"success", success,
	)
}

// DecisionLogger logs the final decision for a claim
func (l *Logger) DecisionLogger(claimID, decision string, fraudScore int, costTotal int64) {
	l.Info("Claim decided",
		"claim_id", claimID,
		"decision", decision,
		"fraud_score", fraudScore,
		"cost_total", costTotal,
	)
}

// CacheLogger logs cache refreshes
func (l *Logger) CacheLogger(operation, name string, ok bool, duration time.Duration) {
	l.Debug("Cache Operation",
		"operation", operation,
		"cache", name,
		"ok", ok,
		"duration_ms", duration.Milliseconds(),
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

var startTime = time.Now()
