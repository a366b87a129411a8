package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"flowwatch/internal/format"
	"flowwatch/internal/report"
)

const appListLimit = 10

func rangeTitle(r report.Range) string {
	switch r {
	case report.Week:
		return "📅 *This week*"
	case report.Month:
		return "🗓 *This month*"
	default:
		return "📊 *Today*"
	}
}

// getPeriodText renders interface usage over r ending at now.
func getPeriodText(ctx *AppContext, r report.Range, now time.Time) string {
	p := report.PeriodFor(r, now, ctx.Location)
	s := report.Traffic(ctx.Traffic.DailyRecords(), p)

	var b strings.Builder
	fmt.Fprintf(&b, "%s ─ %s\n", rangeTitle(r), p.Label)
	b.WriteString("─────────────────────\n")
	fmt.Fprintf(&b, "⬇️ Download: `%s`\n", format.FormatUsage(s.TotalDownload))
	fmt.Fprintf(&b, "⬆️ Upload:   `%s`\n", format.FormatUsage(s.TotalUpload))
	fmt.Fprintf(&b, "Σ Total:    `%s`\n", format.FormatUsage(s.TotalDownload+s.TotalUpload))

	if r != report.Day && len(s.Days) > 0 {
		total := s.TotalDownload + s.TotalUpload
		b.WriteString("\n```\n")
		for _, d := range s.Days {
			dayTotal := d.DownloadBytes + d.UploadBytes
			fmt.Fprintf(&b, "%s %s %8s\n", shortDate(d.Date), format.ShareBar(dayTotal, total), format.FormatUsage(dayTotal))
		}
		b.WriteString("```")
	}
	return b.String()
}

// getAppsText renders the per-process ranking for r.
func getAppsText(ctx *AppContext, r report.Range, now time.Time) string {
	p := report.PeriodFor(r, now, ctx.Location)
	s := report.Apps(ctx.Apps.DailyAppRecords(), p)

	var b strings.Builder
	fmt.Fprintf(&b, "🧩 *Apps* ─ %s\n", p.Label)
	if len(s.Apps) == 0 {
		if active, _ := ctx.KernelStatus(); !active {
			b.WriteString("\n_Per-process tracking is not running on this host._")
		} else {
			b.WriteString("\n_No per-process traffic recorded yet._")
		}
		return b.String()
	}

	fmt.Fprintf(&b, "⬇️ `%s`  ⬆️ `%s`\n", format.FormatUsage(s.TotalDownload), format.FormatUsage(s.TotalUpload))
	b.WriteString("```\n")
	for _, a := range s.Top(appListLimit) {
		fmt.Fprintf(&b, "%-14s ↓%8s ↑%8s\n", format.Truncate(a.ProcessName, 14), format.FormatUsage(a.DownloadBytes), format.FormatUsage(a.UploadBytes))
	}
	b.WriteString("```")
	if extra := len(s.Apps) - appListLimit; extra > 0 {
		fmt.Fprintf(&b, "\n_…and %d more_", extra)
	}
	return b.String()
}

// getSpeedText renders the latest interface sample and the busiest
// processes right now.
func getSpeedText(ctx *AppContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💨 *SPEED* ─ %s\n\n", time.Now().In(ctx.Location).Format("15:04:05"))

	sample, ok := ctx.Sampler.Latest()
	if !ok {
		b.WriteString("⏳ _Waiting for the first sample..._")
		return b.String()
	}
	fmt.Fprintf(&b, "🌐 Interface: `%s`\n", sample.InterfaceName)
	fmt.Fprintf(&b, "⬇️ `%s`   ⬆️ `%s`\n", format.FormatSpeed(sample.DownloadSpeed), format.FormatSpeed(sample.UploadSpeed))

	speeds := ctx.Realtime.Read()
	if len(speeds) == 0 {
		return b.String()
	}
	names := make([]string, 0, len(speeds))
	for name := range speeds {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		si, sj := speeds[names[i]], speeds[names[j]]
		if ti, tj := si.Download+si.Upload, sj.Download+sj.Upload; ti != tj {
			return ti > tj
		}
		return names[i] < names[j]
	})
	if len(names) > 5 {
		names = names[:5]
	}
	b.WriteString("\n🔥 *Top now:*\n```\n")
	for _, n := range names {
		sp := speeds[n]
		fmt.Fprintf(&b, "%-14s ↓%9s ↑%9s\n", format.Truncate(n, 14), format.FormatSpeed(sp.Download), format.FormatSpeed(sp.Upload))
	}
	b.WriteString("```")
	return b.String()
}

func getStatusText(ctx *AppContext) string {
	var b strings.Builder
	b.WriteString("🛰 *FlowWatch status*\n\n")

	iface := ctx.Sampler.Interface()
	if iface == "" {
		iface = "none"
	}
	fmt.Fprintf(&b, "🌐 Interface: `%s`\n", iface)
	fmt.Fprintf(&b, "⏱ Bot uptime: `%s`\n", format.FormatDuration(time.Since(ctx.Bot.StartTime)))
	if start := ctx.Sampler.TrafficStartTime(); !start.IsZero() {
		fmt.Fprintf(&b, "🔄 Counting since: `%s`\n", start.In(ctx.Location).Format("02/01 15:04"))
	}

	active, reason := ctx.KernelStatus()
	if active {
		c := ctx.Ingest.Counters()
		fmt.Fprintf(&b, "🧩 Per-process: `on` (%d events, %d unattributed)\n", c.Accepted, c.Dropped)
	} else {
		fmt.Fprintf(&b, "🧩 Per-process: `off` _%s_\n", reason)
	}
	fmt.Fprintf(&b, "🪟 Overlay: `%s`\n", ctx.Settings().OverlayMode())
	return b.String()
}

// getDailyReportText is the scheduled summary: today's usage plus the top
// processes.
func getDailyReportText(ctx *AppContext, now time.Time) string {
	var b strings.Builder
	b.WriteString("🌙 *Daily traffic report*\n\n")
	b.WriteString(getPeriodText(ctx, report.Day, now))

	s := report.Apps(ctx.Apps.DailyAppRecords(), report.PeriodFor(report.Day, now, ctx.Location))
	if top := s.Top(5); len(top) > 0 {
		b.WriteString("\n\n🔝 *Top apps:*\n")
		for i, a := range top {
			fmt.Fprintf(&b, "%d. `%s` %s\n", i+1, format.Truncate(a.ProcessName, 20), format.FormatUsage(a.Total()))
		}
	}
	return b.String()
}

func getHelpText(r *CommandRegistry) string {
	var b strings.Builder
	b.WriteString("🤖 *FlowWatch commands*\n\n")
	for _, c := range r.List() {
		fmt.Fprintf(&b, "/%s - %s\n", c.Name, c.Description)
	}
	b.WriteString("\n💡 _/apps accepts day, week or month._")
	return b.String()
}

// shortDate trims the year from a date key for compact tables.
func shortDate(date string) string {
	if len(date) == len("2006-01-02") {
		return date[5:]
	}
	return date
}
