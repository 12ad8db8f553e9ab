package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newCapturedLogger(jsonFormat bool, level Level) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &Logger{
		out:        &syncWriter{w: buf},
		level:      level,
		component:  "test",
		fields:     map[string]interface{}{},
		jsonFormat: jsonFormat,
	}, buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"ERROR", ERROR},
		{"fatal", FATAL},
		{"nonsense", INFO},
		{"", INFO},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newCapturedLogger(true, WARN)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Error("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2 above the WARN floor", len(lines))
	}
}

func TestJSONEntryShape(t *testing.T) {
	l, buf := newCapturedLogger(true, INFO)

	l.Info("Order executed", "symbol", "cmt_btcusdt", "size", 0.5, "error", errors.New("partial fill"))

	var e struct {
		Level     string                 `json:"level"`
		Message   string                 `json:"message"`
		Component string                 `json:"component"`
		Fields    map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatal(err)
	}
	if e.Level != "INFO" || e.Message != "Order executed" || e.Component != "test" {
		t.Errorf("entry = %+v", e)
	}
	if e.Fields["symbol"] != "cmt_btcusdt" || e.Fields["size"] != 0.5 {
		t.Errorf("fields = %v", e.Fields)
	}
	if e.Fields["error"] != "partial fill" {
		t.Errorf("error field = %v, want flattened string", e.Fields["error"])
	}
}

func TestDerivedLoggersAreIndependent(t *testing.T) {
	l, buf := newCapturedLogger(true, INFO)

	derived := l.WithComponent("risk").WithField("symbol", "cmt_ethusdt")
	derived.Info("Exposure updated")
	l.Info("Parent untouched")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"component":"risk"`) || !strings.Contains(lines[0], "cmt_ethusdt") {
		t.Errorf("derived entry = %s", lines[0])
	}
	if strings.Contains(lines[1], "cmt_ethusdt") {
		t.Errorf("parent entry inherited the derived field: %s", lines[1])
	}
}

func TestTextFormat(t *testing.T) {
	l, buf := newCapturedLogger(false, INFO)

	l.Warn("Mirror fetch failed", "symbol", "cmt_btcusdt", "attempt", 2)

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "[WARN ]") || !strings.Contains(line, "[test]") {
		t.Errorf("line = %q", line)
	}
	// Fields render sorted so the text form is stable.
	if !strings.Contains(line, "attempt=2 symbol=cmt_btcusdt") {
		t.Errorf("fields not sorted in %q", line)
	}
}

func TestDanglingKeyIsKept(t *testing.T) {
	l, buf := newCapturedLogger(true, INFO)

	l.Info("msg", "orphan")

	if !strings.Contains(buf.String(), `"orphan":"(missing value)"`) {
		t.Errorf("entry = %s", buf.String())
	}
}
