package main

import "flowwatch/internal/report"

func SetupCommandRegistry() *CommandRegistry {
	r := NewCommandRegistry()

	// Usage
	r.Register("today", &PeriodCmd{Range: report.Day})
	r.Register("week", &PeriodCmd{Range: report.Week})
	r.Register("month", &PeriodCmd{Range: report.Month})
	r.Register("apps", &AppsCmd{})
	r.Register("speed", &SpeedCmd{})

	// Maintenance
	r.Register("resettoday", &ResetTodayCmd{})
	r.Register("status", &StatusCmd{})
	r.Register("config", &ConfigCmd{})

	r.Register("help", &HelpCmd{registry: r})
	r.Alias("start", "help")
	r.Alias("t", "today")

	return r
}
