package main

import "github.com/goccy/go-json"

const (
	defaultSampleIntervalMS = 1000
	defaultSaveSeconds      = 60
	defaultFlushSeconds     = 30
	defaultAppRetentionDays = 90
	defaultLogRetentionDays = 7
	defaultHTTPListen       = "127.0.0.1:8787"
	defaultReportSpec       = "0 21 * * *"
	defaultStatsMap         = "proc_stats"
)

func defaultConfigTemplate() Config {
	return Config{
		DataDir:     defaultDataDir(),
		Timezone:    "",
		Sampling:    SamplingConfig{IntervalMS: defaultSampleIntervalMS},
		Persistence: PersistenceConfig{SaveSeconds: defaultSaveSeconds, FlushSeconds: defaultFlushSeconds},
		Retention:   RetentionConfig{AppDays: defaultAppRetentionDays, TrafficDays: 0, LogDays: defaultLogRetentionDays},
		KernelSource: KernelSourceConfig{
			Enabled:    true,
			ObjectPath: "bpf/flowwatch_bpfel.o",
			StatsMap:   defaultStatsMap,
			PollMS:     1000,
		},
		Interfaces: InterfacesConfig{Pinned: "", Exclude: []string{}},
		HTTP:       HTTPConfig{Enabled: true, Listen: defaultHTTPListen},
		Telegram: TelegramConfig{
			DailyReport: DailyReportConfig{Enabled: false, Spec: defaultReportSpec},
		},
		Overlay: OverlayConfig{},
	}
}

// fillMissingConfigFields adds every key of the default template that the
// user's file lacks, leaving explicit values alone. Reports whether anything
// was added.
func fillMissingConfigFields(configMap map[string]interface{}) bool {
	defaults := defaultConfigTemplate()
	defaultBytes, err := json.Marshal(defaults)
	if err != nil {
		return false
	}
	var defaultMap map[string]interface{}
	if err := json.Unmarshal(defaultBytes, &defaultMap); err != nil {
		return false
	}
	return fillMissingMap(configMap, defaultMap)
}

func fillMissingMap(configMap, defaultMap map[string]interface{}) bool {
	changed := false
	for key, defaultValue := range defaultMap {
		currentValue, exists := configMap[key]
		if !exists || currentValue == nil {
			configMap[key] = defaultValue
			changed = true
			continue
		}

		currentMap, currentIsMap := currentValue.(map[string]interface{})
		defaultSubMap, defaultIsMap := defaultValue.(map[string]interface{})
		if currentIsMap && defaultIsMap {
			if fillMissingMap(currentMap, defaultSubMap) {
				changed = true
			}
		}
	}
	return changed
}

// sanitize clamps values a hand-edited file may have broken.
func (c *Config) sanitize() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	if c.Sampling.IntervalMS <= 0 {
		c.Sampling.IntervalMS = defaultSampleIntervalMS
	}
	if c.Persistence.SaveSeconds <= 0 {
		c.Persistence.SaveSeconds = defaultSaveSeconds
	}
	if c.Persistence.FlushSeconds <= 0 {
		c.Persistence.FlushSeconds = defaultFlushSeconds
	}
	if c.Retention.AppDays <= 0 {
		c.Retention.AppDays = defaultAppRetentionDays
	}
	if c.Retention.TrafficDays < 0 {
		c.Retention.TrafficDays = 0
	}
	if c.Retention.LogDays < 0 {
		c.Retention.LogDays = 0
	}
	if c.KernelSource.StatsMap == "" {
		c.KernelSource.StatsMap = defaultStatsMap
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = defaultHTTPListen
	}
	if c.Telegram.DailyReport.Spec == "" {
		c.Telegram.DailyReport.Spec = defaultReportSpec
	}
	if c.Interfaces.Exclude == nil {
		c.Interfaces.Exclude = []string{}
	}
}
