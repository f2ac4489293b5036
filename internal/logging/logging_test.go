package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): got %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "scheduler", LevelWarn)

	l.Debugf("dropped")
	l.Infof("dropped")
	l.Warnf("kept id=%s", "T1")
	l.Errorf("kept too")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("below-threshold lines should be dropped: %q", out)
	}
	if !strings.Contains(out, "WARN scheduler: kept id=T1") {
		t.Errorf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "ERROR scheduler: kept too") {
		t.Errorf("missing error line: %q", out)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "daemon", LevelInfo)
	l.WithComponent("store").Infof("loaded")

	if !strings.Contains(buf.String(), "INFO store: loaded") {
		t.Errorf("component tag not applied: %q", buf.String())
	}
}

func TestNilLoggerSafe(t *testing.T) {
	var l *Logger
	l.Infof("no panic") // must not crash
}
