package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogTime(t *testing.T) {
	ts, ok := logTime(`time=2024-03-01T10:00:00.123+01:00 level=INFO msg="hello"`)
	if !ok || ts.Year() != 2024 || ts.Month() != time.March {
		t.Fatalf("unquoted: %v %v", ts, ok)
	}
	if _, ok := logTime(`time="2024-03-01T10:00:00Z" level=INFO`); !ok {
		t.Fatalf("quoted timestamp not parsed")
	}
	for _, line := range []string{"", "no timestamp here", "time=", `time="unterminated`, "time=yesterday level=INFO"} {
		if _, ok := logTime(line); ok {
			t.Fatalf("%q parsed as timestamp", line)
		}
	}
}

func TestFilterLines(t *testing.T) {
	var out strings.Builder
	in := strings.NewReader("keep a\ndrop b\nkeep c")
	if err := filterLines(in, &out, func(l string) bool { return strings.HasPrefix(l, "keep") }); err != nil {
		t.Fatalf("filterLines: %v", err)
	}
	if got := out.String(); got != "keep a\nkeep c\n" {
		t.Fatalf("out = %q", got)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestFilterLinesReportsWriteError(t *testing.T) {
	err := filterLines(strings.NewReader("a\nb\n"), failingWriter{}, func(string) bool { return true })
	if err == nil {
		t.Fatalf("expected write error")
	}
}

func TestLogSinkPrune(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "flowwatch.log")
	old := time.Now().Add(-10 * 24 * time.Hour).Format(time.RFC3339Nano)
	recent := time.Now().Add(-time.Hour).Format(time.RFC3339Nano)
	content := strings.Join([]string{
		"time=" + old + ` level=INFO msg="old entry"`,
		"time=" + recent + ` level=INFO msg="recent entry"`,
		"continuation line without timestamp",
	}, "\n") + "\n"
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := &logSink{}
	if err := s.open(logPath); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.prune(time.Now().Add(-7 * 24 * time.Hour)); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, err := s.Write([]byte("after prune\n")); err != nil {
		t.Fatalf("write after prune: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := string(data)
	if strings.Contains(got, "old entry") {
		t.Fatalf("old entry kept:\n%s", got)
	}
	for _, want := range []string{"recent entry", "continuation line", "after prune"} {
		if !strings.Contains(got, want) {
			t.Fatalf("%q missing:\n%s", want, got)
		}
	}
	if tmp, _ := filepath.Glob(filepath.Join(dir, "*.tmp")); len(tmp) != 0 {
		t.Fatalf("temp files left behind: %v", tmp)
	}
}

func TestLogSinkWithoutFile(t *testing.T) {
	s := &logSink{}
	if err := s.prune(time.Now()); err != nil {
		t.Fatalf("prune with no path: %v", err)
	}
	if n, err := s.Write([]byte("dropped")); err != nil || n != len("dropped") {
		t.Fatalf("Write = %d, %v", n, err)
	}

	if err := s.open(filepath.Join(t.TempDir(), "missing", "flowwatch.log")); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.prune(time.Now()); err != nil {
		t.Fatalf("prune of empty file: %v", err)
	}
}
