package dashboard

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"optionflow/logger"
)

// resourceSnapshot is one sample of process resources plus pipeline counters.
type resourceSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	HeapAlloc     uint64    `json:"heap_alloc"`
	HeapSys       uint64    `json:"heap_sys"`
	NumGC         uint32    `json:"num_gc"`
	Goroutines    int       `json:"goroutines"`
	Fetches       int64     `json:"fetches"`
	FetchFailures int64     `json:"fetch_failures"`
	Analyses      int64     `json:"analyses"`
	Unavailable   int64     `json:"unavailable"`
}

type resourceSampler struct {
	mu       sync.RWMutex
	items    []resourceSnapshot
	limit    int
	interval time.Duration

	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
	log     *logger.Log
}

var (
	readMemStatsFn = runtime.ReadMemStats
	goroutinesFn   = runtime.NumGoroutine
	reportFn       = logger.Snapshot
)

func newResourceSampler(limit int, interval time.Duration, log *logger.Log) *resourceSampler {
	if limit <= 0 {
		limit = 200
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &resourceSampler{
		limit:    limit,
		interval: interval,
		log:      log,
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	if s == nil || s.running.Swap(true) {
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx)
	}()
}

func (s *resourceSampler) stop() {
	if s == nil {
		return
	}
	if cancel := s.cancel; cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.running.Store(false)
}

func (s *resourceSampler) snapshot() []resourceSnapshot {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]resourceSnapshot, len(s.items))
	copy(out, s.items)
	return out
}

func (s *resourceSampler) append(snapshot resourceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, snapshot)
	if len(s.items) > s.limit {
		s.items = append([]resourceSnapshot(nil), s.items[len(s.items)-s.limit:]...)
	}
}

func (s *resourceSampler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.append(s.sample())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.append(s.sample())
		}
	}
}

func (s *resourceSampler) sample() resourceSnapshot {
	var mem runtime.MemStats
	readMemStatsFn(&mem)
	report := reportFn()

	return resourceSnapshot{
		Timestamp:     time.Now(),
		HeapAlloc:     mem.HeapAlloc,
		HeapSys:       mem.HeapSys,
		NumGC:         mem.NumGC,
		Goroutines:    goroutinesFn(),
		Fetches:       report.Fetches,
		FetchFailures: report.FetchFailures,
		Analyses:      report.Analyses,
		Unavailable:   report.Unavailable,
	}
}
