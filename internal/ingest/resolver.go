package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// PsutilResolver resolves pids through gopsutil's process table.
type PsutilResolver struct{}

func (PsutilResolver) Resolve(pid uint32) (string, string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", "", fmt.Errorf("pid %d: %w", pid, err)
	}
	name, err := p.Name()
	if err != nil {
		return "", "", fmt.Errorf("pid %d name: %w", pid, err)
	}
	if strings.TrimSpace(name) == "" {
		return "", "", fmt.Errorf("pid %d: empty name", pid)
	}
	// Exe needs ptrace-level access for foreign processes; a missing path
	// still leaves a usable name.
	exe, _ := p.Exe()
	if exe != "" && !filepath.IsAbs(exe) {
		exe = ""
	}
	return name, exe, nil
}
