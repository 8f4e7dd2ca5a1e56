package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits one step below [slog.LevelDebug] and gates the raw
// JSON bodies the LLM client writes before posting a chat or generate
// request. At this level every prompt, every tool schema, and every
// streamed line can end up in the log, so it is only worth enabling
// when a backend and the client disagree about a payload. The value -8
// keeps the same distance from Debug that Debug keeps from Info.
const LevelTrace = slog.Level(-8)

// ParseLogLevel maps the config file's log_level string to an
// [slog.Level]. Matching ignores case and surrounding whitespace;
// "trace" selects [LevelTrace], "warning" is accepted as an alias for
// "warn", and the empty string means Info. Anything else is an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLogLevelNames is a ReplaceAttr hook for slog handlers that
// labels [LevelTrace] records "TRACE". slog prints unknown levels
// relative to the nearest named one ("DEBUG-4"), which reads like a
// bug in the output.
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
