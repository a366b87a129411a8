package main

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// logSink is the file half of the log output. The slog handler writes
// through it, so pruning can swap the underlying file without rebuilding
// the default logger.
type logSink struct {
	mu   sync.Mutex
	path string
	file *os.File
}

var logs = &logSink{}

func logFilePath(dataDir string) string {
	if p := os.Getenv("FLOWWATCH_LOG_FILE"); p != "" {
		return p
	}
	return filepath.Join(dataDir, "flowwatch.log")
}

// setupLogger installs a text handler writing to stdout and the log file.
// A file that cannot be opened only disables persistence.
func setupLogger(dataDir string) {
	path := logFilePath(dataDir)
	err := logs.open(path)

	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, logs), &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(handler).With("app", "flowwatch"))

	if err != nil {
		slog.Error("Persistent logging disabled", "file", path, "err", err)
		return
	}
	slog.Info("Persistent logging enabled", "file", path)
}

func closeLogger() {
	_ = logs.Close()
}

func (s *logSink) open(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.closeLocked()
	s.path = path
	return s.reopenLocked()
}

func (s *logSink) reopenLocked() error {
	if s.path == "" || s.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.file = f
	return nil
}

// Write drops output while no file is open.
func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return len(p), nil
	}
	return s.file.Write(p)
}

func (s *logSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *logSink) closeLocked() error {
	if s.file == nil {
		return nil
	}
	err := errors.Join(s.file.Sync(), s.file.Close())
	s.file = nil
	return err
}

// prunePersistentLogs drops log lines older than the configured retention.
func prunePersistentLogs(ctx *AppContext) {
	days := ctx.Config.Retention.LogDays
	if days <= 0 {
		return
	}
	retention := time.Duration(days) * 24 * time.Hour
	if err := logs.prune(time.Now().Add(-retention)); err != nil {
		slog.Error("Failed to prune persistent logs", "err", err, "retention", retention.String())
		return
	}
	slog.Info("Persistent logs pruned", "retention", retention.String())
}

// prune rewrites the log file without entries stamped before cutoff.
// Lines without a timestamp are kept. Writers block for the duration.
func (s *logSink) prune(cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}

	in, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	err = filterLines(in, tmp, func(line string) bool {
		ts, ok := logTime(line)
		return !ok || !ts.Before(cutoff)
	})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		_ = s.closeLocked()
		err = os.Rename(tmp.Name(), s.path)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
	}
	return errors.Join(err, s.reopenLocked())
}

// filterLines copies the lines of in for which keep returns true.
func filterLines(in io.Reader, out io.Writer, keep func(string) bool) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 2<<20)
	w := bufio.NewWriter(out)
	for sc.Scan() {
		if line := sc.Text(); keep(line) {
			_, _ = w.WriteString(line)
			_ = w.WriteByte('\n')
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return w.Flush()
}

// logTime reads the time= attribute written by slog's text handler.
func logTime(line string) (time.Time, bool) {
	_, rest, ok := strings.Cut(line, "time=")
	if !ok {
		return time.Time{}, false
	}
	raw, _, _ := strings.Cut(rest, " ")
	if quoted, ok := strings.CutPrefix(rest, `"`); ok {
		if raw, _, ok = strings.Cut(quoted, `"`); !ok {
			return time.Time{}, false
		}
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	return ts, err == nil
}
