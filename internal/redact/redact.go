package redact

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// The pipeline promises that scanned text and credentials never reach a log
// line. Every component logs through this package; raw input stays inside
// the scan call stack.

var (
	authHeaderRe  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	bearerRe      = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	apiKeyValueRe = regexp.MustCompile(`(?i)(api[_-]?key(?:s)?\s*[:=]\s*)([A-Za-z0-9._\-+/=]+)`)
	headerKeyRe   = regexp.MustCompile(`(?i)(x-api-key|x-sentra-key)\s*[:=]\s*([A-Za-z0-9._\-+/=]+)`)
	tokenishKeyRe = regexp.MustCompile(`(?i)(key|token|secret)\s*[:=]\s*([A-Za-z0-9._\-+/=]{6,})`)
	textFieldRe   = regexp.MustCompile(`(?i)("?(?:text|prompt|input)"?\s*[:=]\s*)("[^"]*"|\S+)`)
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
)

// SetLogger installs the process logger. Call once at startup.
func SetLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	logger = l.Sugar()
	mu.Unlock()
}

// NewLogger builds the standard zap logger for the given level string.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(strings.TrimSpace(level)); err == nil && level != "" {
		cfg.Level = lvl
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// String redacts credentials and scanned-text fields from a free-form string.
func String(s string) string {
	if s == "" {
		return s
	}
	out := s
	out = authHeaderRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = bearerRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyValueRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = headerKeyRe.ReplaceAllString(out, "${1}=[REDACTED]")
	out = tokenishKeyRe.ReplaceAllStringFunc(out, func(m string) string {
		if strings.Contains(m, "[REDACTED]") {
			return m
		}
		sub := tokenishKeyRe.FindStringSubmatch(m)
		if len(sub) < 3 {
			return m
		}
		return sub[1] + "=[REDACTED]"
	})
	out = textFieldRe.ReplaceAllString(out, "${1}[REDACTED_TEXT]")
	for strings.Contains(out, "[REDACTED][REDACTED]") {
		out = strings.ReplaceAll(out, "[REDACTED][REDACTED]", "[REDACTED]")
	}
	return out
}

// Sprintf formats like fmt.Sprintf and redacts the result.
func Sprintf(format string, args ...interface{}) string {
	return String(fmt.Sprintf(format, args...))
}

// Logf emits a redacted info-level log line.
func Logf(format string, args ...interface{}) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Info(Sprintf(format, args...))
}

// Warnf emits a redacted warn-level log line.
func Warnf(format string, args ...interface{}) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Warn(Sprintf(format, args...))
}

// Errorf emits a redacted error-level log line.
func Errorf(format string, args ...interface{}) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Error(Sprintf(format, args...))
}
