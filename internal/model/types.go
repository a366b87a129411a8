package model

import "time"

// DateLayout is the host-local day key used by every history document.
const DateLayout = "2006-01-02"

// StatsSample is published by the sampler on every tick.
type StatsSample struct {
	DownloadSpeed float64   `json:"downloadSpeed"` // bytes/s
	UploadSpeed   float64   `json:"uploadSpeed"`   // bytes/s
	TotalDownload int64     `json:"totalDownload"`
	TotalUpload   int64     `json:"totalUpload"`
	InterfaceName string    `json:"interfaceName"`
	Time          time.Time `json:"time"`
}

// TrafficBaseline holds the counters a tracked interface was baselined at
// and the counters seen on the previous tick.
type TrafficBaseline struct {
	BaselineReceived int64
	BaselineSent     int64
	LastReceived     int64
	LastSent         int64
}

// DailyTrafficRecord is one day of interface totals.
type DailyTrafficRecord struct {
	Date          string `json:"date"`
	DownloadBytes int64  `json:"downloadBytes"`
	UploadBytes   int64  `json:"uploadBytes"`
}

// TrafficHistory is the persisted interface usage document.
type TrafficHistory struct {
	Records []DailyTrafficRecord `json:"records"`
}

// AppTrafficRecord is one process' totals within a day.
type AppTrafficRecord struct {
	ProcessName   string `json:"processName"`
	DownloadBytes int64  `json:"downloadBytes"`
	UploadBytes   int64  `json:"uploadBytes"`
}

// DailyAppTrafficRecord groups per-process totals for one day.
type DailyAppTrafficRecord struct {
	Date string             `json:"date"`
	Apps []AppTrafficRecord `json:"apps"`
}

// AppTrafficHistory is the persisted per-process usage document.
type AppTrafficHistory struct {
	Records []DailyAppTrafficRecord `json:"records"`
}

// RawEvent is a single attributed network I/O observation.
type RawEvent struct {
	PID        uint32
	Bytes      int64
	IsDownload bool
	IPv6       bool
	Comm       string // kernel-side task name, may be empty
}

// TrafficDelta is a per-process byte pair handed out by a flush or a
// realtime read.
type TrafficDelta struct {
	Download int64 `json:"download"`
	Upload   int64 `json:"upload"`
}

// Total returns download + upload.
func (d TrafficDelta) Total() int64 {
	return d.Download + d.Upload
}

// IsZero reports whether no bytes were observed.
func (d TrafficDelta) IsZero() bool {
	return d.Download == 0 && d.Upload == 0
}
