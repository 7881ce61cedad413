// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Mask replaces the value of any attribute whose key looks sensitive.
const Mask = "***REDACTED***"

var sensitiveKeys = []string{"api_key", "apikey", "token", "secret", "password", "authorization", "credential"}

// New returns a JSON logger writing to w at level. Attributes with
// sensitive-looking keys are masked.
func New(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: redact,
	}))
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if IsSensitive(a.Key) {
		return slog.String(a.Key, Mask)
	}
	return a
}
