package logs

import (
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

var (
	githubTokenPattern = regexp.MustCompile(`\b(gh[poushr]_[A-Za-z0-9]{36,255}|github_pat_[A-Za-z0-9_]{22,255})\b`)
	bearerPattern      = regexp.MustCompile(`\b(Bearer\s+)([A-Za-z0-9\-\._~\+\/]+=*)`)
)

// secretSet is shared by a RedactingCore and every child created by With.
type secretSet struct {
	mu     sync.RWMutex
	values map[string]struct{}
}

// RedactingCore wraps a zapcore.Core and masks release-feed credentials in
// messages and string fields.
type RedactingCore struct {
	zapcore.Core
	secrets *secretSet
}

// NewRedactingCore wraps core.
func NewRedactingCore(core zapcore.Core) *RedactingCore {
	return &RedactingCore{
		Core:    core,
		secrets: &secretSet{values: make(map[string]struct{})},
	}
}

// RegisterSecret masks value wherever it appears from now on. Short values are ignored.
func (c *RedactingCore) RegisterSecret(value string) {
	if len(value) < 8 {
		return
	}
	c.secrets.mu.Lock()
	c.secrets.values[value] = struct{}{}
	c.secrets.mu.Unlock()
}

func (c *RedactingCore) redact(s string) string {
	c.secrets.mu.RLock()
	for secret := range c.secrets.values {
		if strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, maskValue(secret))
		}
	}
	c.secrets.mu.RUnlock()

	s = githubTokenPattern.ReplaceAllStringFunc(s, maskValue)
	return bearerPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := bearerPattern.FindStringSubmatch(m)
		return parts[1] + maskValue(parts[2])
	})
}

func (c *RedactingCore) redactField(f zapcore.Field) zapcore.Field {
	switch f.Type {
	case zapcore.StringType:
		f.String = c.redact(f.String)
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil {
			msg := err.Error()
			if redacted := c.redact(msg); redacted != msg {
				return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: redacted}
			}
		}
	}
	return f
}

// Write masks the entry before handing it to the wrapped core
func (c *RedactingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = c.redact(entry.Message)
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = c.redactField(f)
	}
	return c.Core.Write(entry, out)
}

// With masks context fields and keeps the shared secret set
func (c *RedactingCore) With(fields []zapcore.Field) zapcore.Core {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = c.redactField(f)
	}
	return &RedactingCore{Core: c.Core.With(out), secrets: c.secrets}
}

// Check registers this core, not the wrapped one, so Write goes through redaction
func (c *RedactingCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

// maskValue keeps the first 3 and last 2 characters
func maskValue(value string) string {
	if len(value) <= 5 {
		return "****"
	}
	if len(value) <= 8 {
		return value[:2] + "****"
	}
	return value[:3] + "***" + value[len(value)-2:]
}
