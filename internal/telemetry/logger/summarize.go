// Package logger provides structured logging for EntMesh.
package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// Keys whose values are opaque user bytes. The platform never interprets
// them, so log lines only carry a size summary, not the content.
var opaqueKeys = []string{
	"payload",
	"configuration",
	"config",
	"extended_data",
	"response",
	"chunk",
}

// maxInlineBytes is the largest opaque value logged verbatim.
const maxInlineBytes = 32

// summarizeOpaque rewrites attributes carrying opaque entity bytes into
// a short size summary so log volume stays bounded and user data stays
// out of the logs.
func summarizeOpaque(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = summarizeOpaque(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	if !isOpaqueKey(a.Key) {
		return a
	}

	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if len(s) > maxInlineBytes {
			return slog.String(a.Key, Summary([]byte(s)))
		}
	case slog.KindAny:
		if b, ok := a.Value.Any().([]byte); ok {
			return slog.String(a.Key, Summary(b))
		}
	}
	return a
}

func isOpaqueKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, opaque := range opaqueKeys {
		if keyLower == opaque {
			return true
		}
	}
	return false
}

// Summary renders an opaque byte payload as "<n bytes>" with a short
// hex prefix for small values. Use this when pre-formatting a value
// before logging.
func Summary(b []byte) string {
	if b == nil {
		return "<nil>"
	}
	if len(b) <= 8 {
		return fmt.Sprintf("<%d bytes: %x>", len(b), b)
	}
	return fmt.Sprintf("<%d bytes: %x...>", len(b), b[:8])
}
