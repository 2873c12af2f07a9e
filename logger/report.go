package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	fetches        int64
	fetchFailures  int64
	analyses       int64
	unavailable    int64
	componentWarns sync.Map // map[string]*int64
	componentErrs  sync.Map // map[string]*int64
	channels       sync.Map // map[string]*channelStat
)

// ReportStats is a point-in-time copy of the counters behind the runtime
// report.
type ReportStats struct {
	Fetches       int64                       `json:"fetches"`
	FetchFailures int64                       `json:"fetch_failures"`
	Analyses      int64                       `json:"analyses"`
	Unavailable   int64                       `json:"unavailable"`
	Warnings      map[string]int64            `json:"warnings"`
	Errors        map[string]int64            `json:"errors"`
	Channels      map[string]map[string]int64 `json:"channels"`
}

func bump(m *sync.Map, component string) {
	if component == "" {
		component = "unknown"
	}
	v, _ := m.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordWarn(component string)  { bump(&componentWarns, component) }
func recordError(component string) { bump(&componentErrs, component) }

// IncrementFetch counts one option-chain download attempt of size bytes.
func IncrementFetch(ok bool, size int) {
	if !ok {
		atomic.AddInt64(&fetchFailures, 1)
		return
	}
	atomic.AddInt64(&fetches, 1)
	recordChannel("nse_fetch", size)
}

// IncrementAnalysis counts a finished analysis cycle. Cycles that ended in
// "data unavailable" are tracked separately.
func IncrementAnalysis(available bool) {
	if !available {
		atomic.AddInt64(&unavailable, 1)
		return
	}
	atomic.AddInt64(&analyses, 1)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func snapshotCounters(m *sync.Map) map[string]int64 {
	out := map[string]int64{}
	m.Range(func(k, v any) bool {
		out[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	return out
}

// Snapshot returns the current report counters.
func Snapshot() ReportStats {
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		cs := v.(*channelStat)
		channelData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	return ReportStats{
		Fetches:       atomic.LoadInt64(&fetches),
		FetchFailures: atomic.LoadInt64(&fetchFailures),
		Analyses:      atomic.LoadInt64(&analyses),
		Unavailable:   atomic.LoadInt64(&unavailable),
		Warnings:      snapshotCounters(&componentWarns),
		Errors:        snapshotCounters(&componentErrs),
		Channels:      channelData,
	}
}

// StartReport logs a runtime report every interval until ctx is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func logReport(log *Log) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := Snapshot()
	log.WithComponent("report").WithFields(Fields{
		"fetches":        stats.Fetches,
		"fetch_failures": stats.FetchFailures,
		"analyses":       stats.Analyses,
		"unavailable":    stats.Unavailable,
		"warnings":       stats.Warnings,
		"errors":         stats.Errors,
		"channels":       stats.Channels,
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  mem.HeapAlloc / 1024 / 1024,
	}).Info("runtime report")
}
