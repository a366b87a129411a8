// Package store reads and writes JSON history documents crash-safely.
//
// Save writes <file>.tmp, keeps the previous canonical file as <file>.bak
// and swaps the temp file into place with a rename. Load never fails hard:
// malformed content is moved aside to <file>.corrupted and the caller gets
// an empty document.
package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

const (
	tmpSuffix       = ".tmp"
	backupSuffix    = ".bak"
	corruptedSuffix = ".corrupted"
)

// ErrCorrupt is returned (wrapped) by Load when the file could not be decoded.
var ErrCorrupt = errors.New("store: corrupted document")

// Load decodes path into a T. The returned value is always usable: on any
// failure it is the zero T. A missing file is not an error.
func Load[T any](path string) (T, error) {
	var empty T

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return empty, nil
		}
		// Permission or I/O trouble: leave the file where it is.
		return empty, fmt.Errorf("read %s: %w", path, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		quarantine := path + corruptedSuffix
		if rerr := os.Rename(path, quarantine); rerr != nil {
			slog.Error("Failed to quarantine corrupted document", "file", path, "err", rerr)
		} else {
			slog.Warn("Corrupted document moved aside", "file", path, "to", quarantine)
		}
		return empty, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return v, nil
}

// Save encodes v and atomically replaces path with it.
func Save[T any](path string, v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmpPath := path + tmpSuffix
	if err := writeSynced(tmpPath, data); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if _, err := os.Stat(path); err == nil {
		if err := backup(path, path+backupSuffix); err != nil {
			// A stale backup is not worth losing the write over.
			slog.Warn("Failed to refresh backup", "file", path, "err", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// backup points bak at the current contents of path. A hard link keeps the
// canonical file in place until the final rename; filesystems without link
// support get a copy.
func backup(path, bak string) error {
	if err := os.Remove(bak); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Link(path, bak); err == nil {
		return nil
	}
	return copyFile(path, bak)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
