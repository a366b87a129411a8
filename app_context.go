package main

import (
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"flowwatch/internal/ingest"
	"flowwatch/internal/ledger"
	"flowwatch/internal/netif"
	"flowwatch/internal/sampler"
)

// AppContext holds the application dependencies and state. It is built once
// in main and passed to every surface.
type AppContext struct {
	Config   *Config
	Location *time.Location

	Sampler  *sampler.Sampler
	Ingest   *ingest.Ingestor
	Traffic  *ledger.UsageLedger
	Apps     *ledger.AppUsageLedger
	Realtime *RealtimeView
	Bot      *BotContext

	settings atomic.Pointer[Settings]
	kernel   kernelState
}

// BotContext holds bot-specific interaction state
type BotContext struct {
	mu            sync.Mutex
	StartTime     time.Time
	PendingAction string
}

// kernelState records whether per-process attribution is running.
type kernelState struct {
	mu     sync.Mutex
	active bool
	reason string
}

// RealtimeView is the only reader of the ingestor's realtime accumulators.
// The first read covers an unknown window and is thrown away; later reads
// closer together than minGap return the cached result so several clients
// cannot starve each other.
type RealtimeView struct {
	src    *ingest.Ingestor
	minGap time.Duration
	now    func() time.Time

	mu     sync.Mutex
	primed bool
	last   map[string]ingest.ProcessSpeed
	lastAt time.Time
}

// InitApp wires the engine against the host's interfaces and processes.
func InitApp(cfg *Config) *AppContext {
	return newAppContext(cfg, netif.NewPsutilSource(), ingest.PsutilResolver{})
}

func newAppContext(cfg *Config, ifaces netif.Source, resolver ingest.Resolver) *AppContext {
	loc := cfg.Location()
	settings := settingsFromConfig(cfg)

	smp := sampler.New(ifaces, settings.Selector())
	ing := ingest.New(resolver)

	app := &AppContext{
		Config:   cfg,
		Location: loc,
		Sampler:  smp,
		Ingest:   ing,
		Traffic: ledger.NewUsageLedger(cfg.TrafficHistoryPath(), smp, ledger.Options{
			Location:      loc,
			Interval:      cfg.SaveInterval(),
			RetentionDays: cfg.Retention.TrafficDays,
		}),
		Apps: ledger.NewAppUsageLedger(cfg.AppHistoryPath(), ing, ledger.Options{
			Location:      loc,
			Interval:      cfg.FlushInterval(),
			RetentionDays: cfg.Retention.AppDays,
		}),
		Realtime: &RealtimeView{src: ing, minGap: time.Second, now: time.Now},
		Bot:      &BotContext{StartTime: time.Now()},
	}
	app.settings.Store(&settings)
	return app
}

// Settings returns the current snapshot.
func (ctx *AppContext) Settings() Settings {
	if s := ctx.settings.Load(); s != nil {
		return *s
	}
	return Settings{}
}

// SetSettings replaces the snapshot and pushes the parts the engine cares
// about into the sampler.
func (ctx *AppContext) SetSettings(s Settings) {
	prev := ctx.settings.Swap(&s)
	if prev != nil && prev.sameSelection(s) && prev.SampleInterval == s.SampleInterval {
		return
	}
	ctx.Sampler.SetSelector(s.Selector())
	if ctx.Sampler.Running() && (prev == nil || prev.SampleInterval != s.SampleInterval) {
		ctx.Sampler.Start(s.SampleInterval)
	}
	slog.Info("Settings updated", "pinned", s.PinnedInterface, "interval", s.SampleInterval.String(), "overlay", s.OverlayMode().String())
}

// ReloadSettings rereads the config file and applies the user-tunable
// parts. Paths, listeners and the bot need a restart.
func (ctx *AppContext) ReloadSettings() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx.SetSettings(settingsFromConfig(cfg))
	return nil
}

// KernelStatus reports whether per-process attribution is active and, when
// it is not, why.
func (ctx *AppContext) KernelStatus() (bool, string) {
	ctx.kernel.mu.Lock()
	defer ctx.kernel.mu.Unlock()
	return ctx.kernel.active, ctx.kernel.reason
}

func (ctx *AppContext) setKernelStatus(active bool, reason string) {
	ctx.kernel.mu.Lock()
	ctx.kernel.active, ctx.kernel.reason = active, reason
	ctx.kernel.mu.Unlock()
}

// BotContext Methods
func (b *BotContext) SetPendingAction(action string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.PendingAction = action
}

func (b *BotContext) GetPendingAction() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.PendingAction
}

func (b *BotContext) ClearPendingAction() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.PendingAction = ""
}

// TakePendingAction returns and clears the pending action in one step.
func (b *BotContext) TakePendingAction() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := b.PendingAction
	b.PendingAction = ""
	return a
}

// Read returns per-process speeds in bytes/s.
func (r *RealtimeView) Read() map[string]ingest.ProcessSpeed {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !r.primed {
		r.src.RealtimeSpeeds()
		r.primed = true
		r.lastAt = now
		r.last = map[string]ingest.ProcessSpeed{}
		return copySpeeds(r.last)
	}
	if now.Sub(r.lastAt) < r.minGap {
		return copySpeeds(r.last)
	}
	r.last = r.src.RealtimeSpeeds()
	r.lastAt = now
	return copySpeeds(r.last)
}

func copySpeeds(m map[string]ingest.ProcessSpeed) map[string]ingest.ProcessSpeed {
	out := make(map[string]ingest.ProcessSpeed, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (ctx *AppContext) LogError(msg string, args ...any) {
	slog.Error(msg, args...)
}

func (ctx *AppContext) LogInfo(msg string, args ...any) {
	slog.Info(msg, args...)
}
