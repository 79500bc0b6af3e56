package logging

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// RedactedPlaceholder replaces the value of any "_secret_"-prefixed extra
// field when a logger's RedactSensitive is set.
const RedactedPlaceholder = "***REDACTED***"

func (l *ContextLogger) render(level Level, msg string, extra map[string]any) string {
	sanitized := sanitizeExtra(extra, l.redact)
	if l.format == FormatText {
		return renderText(level, l.traceID, l.moduleID, msg, sanitized)
	}
	return renderJSON(level, l.name, l.traceID, l.moduleID, l.callerID, msg, sanitized)
}

// sanitizeExtra redacts "_secret_"-prefixed keys when redact is set, and
// stringifies any value json.Marshal can't handle on its own, so rendering
// never fails on an odd field (spec.md: "non-serializable values
// stringified").
func sanitizeExtra(extra map[string]any, redact bool) map[string]any {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		if redact && strings.HasPrefix(k, "_secret_") {
			out[k] = RedactedPlaceholder
			continue
		}
		out[k] = stringifyIfUnmarshalable(v)
	}
	return out
}

func stringifyIfUnmarshalable(v any) any {
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return v
}

type jsonLine struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	TraceID   string         `json:"trace_id"`
	ModuleID  string         `json:"module_id"`
	CallerID  string         `json:"caller_id"`
	Logger    string         `json:"logger"`
	Extra     map[string]any `json:"extra,omitempty"`
}

func renderJSON(level Level, name, traceID, moduleID, callerID, msg string, extra map[string]any) string {
	line := jsonLine{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		TraceID:   traceID,
		ModuleID:  moduleID,
		CallerID:  callerID,
		Logger:    name,
		Extra:     extra,
	}
	b, err := json.Marshal(line)
	if err != nil {
		return fmt.Sprintf(`{"level":"ERROR","message":"logging: failed to marshal log line: %v"}`+"\n", err)
	}
	return string(b) + "\n"
}

// renderText follows spec.md §4.8.3's text format exactly: "YYYY-MM-DD
// HH:MM:SS [LEVEL] [trace=…] [module=…] message key=value…". caller_id has
// no place in the text line; it is JSON-only.
func renderText(level Level, traceID, moduleID, msg string, extra map[string]any) string {
	var b strings.Builder
	b.WriteString(time.Now().UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, " [%s]", level.String())
	if traceID != "" {
		fmt.Fprintf(&b, " [trace=%s]", traceID)
	}
	if moduleID != "" {
		fmt.Fprintf(&b, " [module=%s]", moduleID)
	}
	b.WriteByte(' ')
	b.WriteString(msg)

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, extra[k])
	}
	b.WriteByte('\n')
	return b.String()
}
