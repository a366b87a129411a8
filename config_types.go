package main

type Config struct {
	DataDir      string             `json:"data_dir"`
	Timezone     string             `json:"timezone"`
	Sampling     SamplingConfig     `json:"sampling"`
	Persistence  PersistenceConfig  `json:"persistence"`
	Retention    RetentionConfig    `json:"retention"`
	KernelSource KernelSourceConfig `json:"kernel_source"`
	Interfaces   InterfacesConfig   `json:"interfaces"`
	HTTP         HTTPConfig         `json:"http"`
	Telegram     TelegramConfig     `json:"telegram"`
	Overlay      OverlayConfig      `json:"overlay"`
}

type SamplingConfig struct {
	IntervalMS int `json:"interval_ms"`
}

type PersistenceConfig struct {
	SaveSeconds  int `json:"save_seconds"`
	FlushSeconds int `json:"flush_seconds"`
}

// RetentionConfig is in days. TrafficDays 0 keeps interface history forever.
type RetentionConfig struct {
	AppDays     int `json:"app_days"`
	TrafficDays int `json:"traffic_days"`
	LogDays     int `json:"log_days"`
}

type KernelSourceConfig struct {
	Enabled    bool   `json:"enabled"`
	ObjectPath string `json:"object_path"`
	StatsMap   string `json:"stats_map"`
	PollMS     int    `json:"poll_ms"`
}

type InterfacesConfig struct {
	Pinned  string   `json:"pinned"`
	Exclude []string `json:"exclude"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

type TelegramConfig struct {
	BotToken      string            `json:"bot_token"`
	AllowedUserID int64             `json:"allowed_user_id"`
	DailyReport   DailyReportConfig `json:"daily_report"`
}

// DailyReportConfig.Spec is a standard 5-field cron expression.
type DailyReportConfig struct {
	Enabled bool   `json:"enabled"`
	Spec    string `json:"spec"`
}

// OverlayConfig holds window-behaviour flags for display front-ends.
type OverlayConfig struct {
	LockOnTop    bool `json:"lock_on_top"`
	PinToDesktop bool `json:"pin_to_desktop"`
	AutoHide     bool `json:"auto_hide"`
}
