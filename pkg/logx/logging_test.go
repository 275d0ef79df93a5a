package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

// NewConsole and New set zerolog globals, so these tests run serially.
func TestNewConsoleLevel(t *testing.T) {
	tests := []struct {
		level     string
		infoOn    bool
		warnOn    bool
		debugOnly bool
	}{
		{level: "debug", infoOn: true, warnOn: true, debugOnly: true},
		{level: "warn", infoOn: false, warnOn: true},
		{level: "bogus", infoOn: true, warnOn: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.level, func(t *testing.T) {
					l := NewConsole(tt.level)
			if got := l.Enabled(LevelInfo); got != tt.infoOn {
				t.Fatalf("Enabled(info) = %v", got)
			}
			if got := l.Enabled(LevelWarn); got != tt.warnOn {
				t.Fatalf("Enabled(warn) = %v", got)
			}
			if got := l.Enabled(LevelDebug); got != tt.debugOnly {
				t.Fatalf("Enabled(debug) = %v", got)
			}
		})
	}
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "info").With(String("comp", "main"))
	l.Debug("hidden")
	l.Error("startup failed", Err(errors.New("boom")), Int("n", 2))

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if got["comp"] != "main" || got["message"] != "startup failed" || got["n"] != float64(2) {
		t.Fatalf("entry = %v", got)
	}
	if _, ok := got["err"]; !ok && got["error"] == nil {
		t.Fatalf("missing err field: %v", got)
	}
}
