package main

import (
	"errors"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"flowwatch/internal/ingest"
	"flowwatch/internal/kernelsrc"
)

// openKernelSource is replaced in tests.
var openKernelSource = func(cfg KernelSourceConfig) (ingest.Source, error) {
	src, err := kernelsrc.Open(kernelsrc.Config{
		ObjectPath:   cfg.ObjectPath,
		StatsMap:     cfg.StatsMap,
		PollInterval: time.Duration(cfg.PollMS) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// StartEngine loads both histories and starts sampling, then tries to attach
// the kernel event source. A missing source leaves per-process data empty.
func (ctx *AppContext) StartEngine() {
	if err := os.MkdirAll(ctx.Config.DataDir, 0755); err != nil {
		ctx.LogError("Cannot create data directory, saves will be retried", "dir", ctx.Config.DataDir, "err", err)
	}

	// The ledger subscribes before the first tick so that tick becomes its baseline.
	ctx.Traffic.Start()
	ctx.Sampler.Start(ctx.Settings().SampleInterval)
	ctx.Apps.Start()
	ctx.startKernelSource()
}

func (ctx *AppContext) startKernelSource() {
	if !ctx.Config.KernelSource.Enabled {
		ctx.setKernelStatus(false, "disabled in config")
		slog.Info("Per-process attribution disabled")
		return
	}
	src, err := openKernelSource(ctx.Config.KernelSource)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, kernelsrc.ErrUnavailable) {
			slog.Warn("Kernel event source unavailable, per-process data will be empty", "err", err)
		} else {
			slog.Error("Kernel event source failed to start", "err", err)
		}
		ctx.setKernelStatus(false, reason)
		return
	}
	ctx.Ingest.Start(src)
	ctx.setKernelStatus(true, "")
}

// StopEngine shuts down in reverse order and writes both documents.
func (ctx *AppContext) StopEngine() {
	ctx.Ingest.Stop()
	ctx.setKernelStatus(false, "stopped")
	ctx.Sampler.Stop()
	ctx.Apps.Stop()
	ctx.Traffic.Stop()
	slog.Info("Engine stopped, histories saved")
}

// goSafe runs fn in a goroutine that logs instead of crashing on panic.
func goSafe(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Goroutine panicked", "task", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
