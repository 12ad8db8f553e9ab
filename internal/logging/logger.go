// Package logging provides the structured JSON logger used by every
// component. Call sites pass alternating key-value pairs after the message;
// errors are flattened to strings so entries stay machine-readable.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is the log severity.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Config holds logger configuration.
type Config struct {
	Level       string `json:"level"`
	Output      string `json:"output"` // stdout, stderr, or a file path
	Component   string `json:"component"`
	IncludeFile bool   `json:"include_file"`
	JSONFormat  bool   `json:"json_format"`
}

// Logger emits structured entries. Loggers are cheap to derive and safe for
// concurrent use; derived loggers share the output writer and its mutex.
type Logger struct {
	out         *syncWriter
	level       Level
	component   string
	traceID     string
	fields      map[string]interface{}
	includeFile bool
	jsonFormat  bool
}

// syncWriter serializes writes from all derived loggers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) writeLine(line string) {
	s.mu.Lock()
	fmt.Fprintln(s.w, line)
	s.mu.Unlock()
}

// New creates a logger. An unopenable file output falls back to stdout.
func New(cfg *Config) *Logger {
	var w io.Writer = os.Stdout
	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		w = os.Stderr
	default:
		if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			w = f
		}
	}

	return &Logger{
		out:         &syncWriter{w: w},
		level:       ParseLevel(cfg.Level),
		component:   cfg.Component,
		fields:      map[string]interface{}{},
		includeFile: cfg.IncludeFile,
		jsonFormat:  cfg.JSONFormat,
	}
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultOnce.Do(func() {
		if defaultLogger == nil {
			defaultLogger = New(&Config{Level: "INFO", Component: "app", JSONFormat: true})
		}
	})
	return defaultLogger
}

// SetDefault installs the process-wide logger. Called once from main after
// configuration is loaded.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// WithComponent derives a logger tagged with a component name.
func WithComponent(component string) *Logger {
	return Default().WithComponent(component)
}

// WithComponent derives a logger tagged with a component name.
func (l *Logger) WithComponent(component string) *Logger {
	d := l.derive()
	d.component = component
	return d
}

// WithTraceID derives a logger carrying a trace id on every entry.
func (l *Logger) WithTraceID(traceID string) *Logger {
	d := l.derive()
	d.traceID = traceID
	return d
}

// WithField derives a logger with one sticky field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	d := l.derive()
	d.fields[key] = value
	return d
}

// WithFields derives a logger with several sticky fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	d := l.derive()
	for k, v := range fields {
		d.fields[k] = v
	}
	return d
}

func (l *Logger) derive() *Logger {
	fields := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	d := *l
	d.fields = fields
	return &d
}

// Debug logs at DEBUG level with alternating key-value args.
func (l *Logger) Debug(msg string, args ...interface{}) { l.emit(DEBUG, msg, args) }

// Info logs at INFO level with alternating key-value args.
func (l *Logger) Info(msg string, args ...interface{}) { l.emit(INFO, msg, args) }

// Warn logs at WARN level with alternating key-value args.
func (l *Logger) Warn(msg string, args ...interface{}) { l.emit(WARN, msg, args) }

// Error logs at ERROR level with alternating key-value args.
func (l *Logger) Error(msg string, args ...interface{}) { l.emit(ERROR, msg, args) }

// Fatal logs at FATAL level and exits the process.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.emit(FATAL, msg, args)
	os.Exit(1)
}

type entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) emit(level Level, msg string, args []interface{}) {
	if level < l.level {
		return
	}

	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		Component: l.component,
		TraceID:   l.traceID,
	}
	e.Fields = l.collectFields(args)

	if l.includeFile {
		if _, file, line, ok := runtime.Caller(2); ok {
			if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
				file = file[idx+1:]
			}
			e.File = file
			e.Line = line
		}
	}

	if l.jsonFormat {
		data, err := json.Marshal(e)
		if err != nil {
			data, _ = json.Marshal(entry{
				Timestamp: e.Timestamp, Level: e.Level,
				Message: e.Message, Component: e.Component,
			})
		}
		l.out.writeLine(string(data))
		return
	}
	l.out.writeLine(formatText(e))
}

// collectFields merges sticky fields with per-call key-value args. Errors
// are stringified and a dangling key is kept rather than dropped.
func (l *Logger) collectFields(args []interface{}) map[string]interface{} {
	if len(l.fields) == 0 && len(args) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(l.fields)+len(args)/2+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		if i+1 >= len(args) {
			fields[key] = "(missing value)"
			break
		}
		switch v := args[i+1].(type) {
		case error:
			if v != nil {
				fields[key] = v.Error()
			} else {
				fields[key] = nil
			}
		default:
			fields[key] = v
		}
	}
	return fields
}

func formatText(e entry) string {
	var b strings.Builder
	if len(e.Timestamp) >= 19 {
		b.WriteString(e.Timestamp[:19])
	} else {
		b.WriteString(e.Timestamp)
	}
	fmt.Fprintf(&b, " [%-5s]", e.Level)
	if e.Component != "" {
		fmt.Fprintf(&b, " [%s]", e.Component)
	}
	if e.TraceID != "" {
		fmt.Fprintf(&b, " {%s}", shortTrace(e.TraceID))
	}
	b.WriteString(" ")
	b.WriteString(e.Message)

	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
		}
	}
	if e.File != "" {
		fmt.Fprintf(&b, " (%s:%d)", e.File, e.Line)
	}
	return b.String()
}

func shortTrace(traceID string) string {
	if len(traceID) > 8 {
		return traceID[:8]
	}
	return traceID
}
