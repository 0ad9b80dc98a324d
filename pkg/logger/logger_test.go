package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		err  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseLevel(%q) error = %v, want error %v", tt.in, err, tt.err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: LevelWarn, Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	LogMethod(l, "f()V", 3, 7)
	if buf.Len() != 0 {
		t.Errorf("debug record written at warn level: %q", buf.String())
	}
	LogInconsistency(l, "f()V", 12, "2", "1", "stack depth")
	out := buf.String()
	for _, want := range []string{"level=WARN", "offset=12", "expected=2", "actual=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q lacks %q", out, want)
		}
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: LevelDebug, Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	LogMethod(l, "f()V", 3, 7)
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rec["method"] != "f()V" || rec["blocks"] != float64(3) || rec["iterations"] != float64(7) {
		t.Errorf("record = %v", rec)
	}
}

func TestInit(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Level: LevelInfo, Output: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() { defaultLogger = nil }()
	Info("hello", "k", 1)
	Debug("hidden")
	With("class", "A").Info("scoped")
	out := buf.String()
	if !strings.Contains(out, "msg=hello k=1") {
		t.Errorf("output %q lacks info record", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level")
	}
	if !strings.Contains(out, "class=A") {
		t.Errorf("output %q lacks With attribute", out)
	}
}
