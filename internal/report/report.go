// Package report builds period summaries over the daily ledgers.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"flowwatch/internal/model"
)

type Range string

const (
	Day   Range = "day"
	Week  Range = "week"
	Month Range = "month"
)

// ParseRange accepts day, week or month (case-insensitive). Empty means day.
func ParseRange(s string) (Range, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "day", "today":
		return Day, nil
	case "week":
		return Week, nil
	case "month":
		return Month, nil
	}
	return "", fmt.Errorf("unknown range %q", s)
}

// Period is an inclusive span of date keys.
type Period struct {
	Range Range  `json:"range"`
	Start string `json:"start"`
	End   string `json:"end"`
	Label string `json:"label"`
}

// Contains compares keys as strings; the fixed-width layout keeps that in
// date order.
func (p Period) Contains(date string) bool {
	return date >= p.Start && date <= p.End
}

// PeriodFor returns the span of r ending today. Weeks start on Monday.
func PeriodFor(r Range, now time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := today.Format(model.DateLayout)

	switch r {
	case Week:
		diff := (int(today.Weekday()) + 6) % 7
		start := today.AddDate(0, 0, -diff)
		return Period{
			Range: Week,
			Start: start.Format(model.DateLayout),
			End:   end,
			Label: fmt.Sprintf("This week %s - %s", start.Format("01/02"), start.AddDate(0, 0, 6).Format("01/02")),
		}
	case Month:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		return Period{
			Range: Month,
			Start: start.Format(model.DateLayout),
			End:   end,
			Label: today.Format("January 2006"),
		}
	default:
		return Period{Range: Day, Start: end, End: end, Label: "Today"}
	}
}

// TrafficSummary is the interface usage over a period.
type TrafficSummary struct {
	Period        Period                     `json:"period"`
	Days          []model.DailyTrafficRecord `json:"days"`
	TotalDownload int64                      `json:"totalDownload"`
	TotalUpload   int64                      `json:"totalUpload"`
}

// Traffic filters records to p and totals them. Days are sorted by date.
func Traffic(records []model.DailyTrafficRecord, p Period) TrafficSummary {
	s := TrafficSummary{Period: p, Days: []model.DailyTrafficRecord{}}
	for _, r := range records {
		if !p.Contains(r.Date) {
			continue
		}
		s.Days = append(s.Days, r)
		s.TotalDownload += r.DownloadBytes
		s.TotalUpload += r.UploadBytes
	}
	sort.Slice(s.Days, func(i, j int) bool { return s.Days[i].Date < s.Days[j].Date })
	return s
}

// AppTotal is one process aggregated across the days of a period. The
// ratios are relative to the largest single direction in the summary.
type AppTotal struct {
	ProcessName   string  `json:"processName"`
	DownloadBytes int64   `json:"downloadBytes"`
	UploadBytes   int64   `json:"uploadBytes"`
	DownloadRatio float64 `json:"downloadRatio"`
	UploadRatio   float64 `json:"uploadRatio"`
}

func (a AppTotal) Total() int64 { return a.DownloadBytes + a.UploadBytes }

type AppSummary struct {
	Period        Period     `json:"period"`
	Apps          []AppTotal `json:"apps"`
	TotalDownload int64      `json:"totalDownload"`
	TotalUpload   int64      `json:"totalUpload"`
}

// Apps aggregates per-process usage over p, sorted by total descending.
func Apps(records []model.DailyAppTrafficRecord, p Period) AppSummary {
	byName := make(map[string]*AppTotal)
	for _, day := range records {
		if !p.Contains(day.Date) {
			continue
		}
		for _, app := range day.Apps {
			t, ok := byName[app.ProcessName]
			if !ok {
				t = &AppTotal{ProcessName: app.ProcessName}
				byName[app.ProcessName] = t
			}
			t.DownloadBytes += app.DownloadBytes
			t.UploadBytes += app.UploadBytes
		}
	}

	s := AppSummary{Period: p, Apps: make([]AppTotal, 0, len(byName))}
	var peak int64
	for _, t := range byName {
		s.TotalDownload += t.DownloadBytes
		s.TotalUpload += t.UploadBytes
		peak = max(peak, t.DownloadBytes, t.UploadBytes)
		s.Apps = append(s.Apps, *t)
	}
	sort.Slice(s.Apps, func(i, j int) bool {
		if ti, tj := s.Apps[i].Total(), s.Apps[j].Total(); ti != tj {
			return ti > tj
		}
		return s.Apps[i].ProcessName < s.Apps[j].ProcessName
	})
	if peak > 0 {
		for i := range s.Apps {
			s.Apps[i].DownloadRatio = float64(s.Apps[i].DownloadBytes) / float64(peak)
			s.Apps[i].UploadRatio = float64(s.Apps[i].UploadBytes) / float64(peak)
		}
	}
	return s
}

// Top returns at most n entries of s.Apps.
func (s AppSummary) Top(n int) []AppTotal {
	if n <= 0 || n >= len(s.Apps) {
		return s.Apps
	}
	return s.Apps[:n]
}
