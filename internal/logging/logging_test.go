package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesLogfmtWithInheritedFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, Debug).(*logfmtLogger)
	base.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	logger := Component(base, "state").With(F("session", "s-1"))

	logger.Debug("parameter set", F("param", "qc.fov.min"), F("old", 0.75), F("new", 0.5))

	line := strings.TrimSpace(buf.String())
	want := `ts=2026-01-02T03:04:05Z level=debug msg="parameter set" component=state session=s-1 param=qc.fov.min old=0.75 new=0.5`
	if line != want {
		t.Fatalf("unexpected line:\n got=%s\nwant=%s", line, want)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Warn)
	logger.Info("hidden")
	logger.Error("shown", F("err", errors.New("boom now")), F("lanes", []string{"a", "b"}))
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, `err="boom now"`) || !strings.Contains(out, "lanes=a,b") {
		t.Fatalf("unexpected error line: %q", out)
	}
	if logger.Enabled(Info) || !logger.Enabled(Error) {
		t.Fatalf("unexpected Enabled results")
	}
}

func TestNopLoggerDropsEverything(t *testing.T) {
	logger := Nop()
	if logger.Enabled(Error) {
		t.Fatalf("nop logger should not enable any level")
	}
	logger.Error("ignored")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": Debug, " WARNING ": Warn, "error": Error, "": Info, "bogus": Info}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", raw, got, want)
		}
	}
}

func TestNewRunIDIsUnique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == "" || a == b {
		t.Fatalf("expected distinct ids, got %q and %q", a, b)
	}
}
