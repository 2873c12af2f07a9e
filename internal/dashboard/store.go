package dashboard

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"optionflow/internal/channel"
	"optionflow/internal/metrics"
)

// resultStore keeps the latest analysis per symbol.
type resultStore struct {
	mu     sync.RWMutex
	latest map[string]channel.AnalysisMessage
	recent string
}

func newResultStore() *resultStore {
	return &resultStore{latest: make(map[string]channel.AnalysisMessage)}
}

func (s *resultStore) put(msg channel.AnalysisMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[msg.Symbol] = msg
	s.recent = msg.Symbol
}

func (s *resultStore) get(symbol string) (channel.AnalysisMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.latest[symbol]
	return msg, ok
}

// last returns the most recently published analysis of any symbol.
func (s *resultStore) last() (channel.AnalysisMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.recent == "" {
		return channel.AnalysisMessage{}, false
	}
	msg, ok := s.latest[s.recent]
	return msg, ok
}

// all returns the latest analysis of every symbol, ordered by symbol.
func (s *resultStore) all() []channel.AnalysisMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]channel.AnalysisMessage, 0, len(s.latest))
	for _, msg := range s.latest {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// metricStore keeps a bounded history of emitted metrics.
type metricStore struct {
	mu    sync.RWMutex
	items []metrics.Metric
	limit int
}

func newMetricStore(limit int) *metricStore {
	if limit <= 0 {
		limit = 200
	}
	return &metricStore{limit: limit}
}

func (s *metricStore) handle(metric metrics.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, metric)
	if len(s.items) > s.limit {
		s.items = append([]metrics.Metric(nil), s.items[len(s.items)-s.limit:]...)
	}
}

func (s *metricStore) snapshot() []metrics.Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]metrics.Metric, len(s.items))
	copy(out, s.items)
	return out
}

type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore is a logrus hook that keeps the most recent log lines for the
// dashboard. It stops recording once closed.
type logStore struct {
	mu      sync.RWMutex
	items   []logRecord
	limit   int
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	if limit <= 0 {
		limit = 200
	}
	ls := &logStore{limit: limit}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}

	for k, v := range entry.Data {
		if k == "component" {
			record.Component, _ = v.(string)
			continue
		}
		if record.Fields == nil {
			record.Fields = make(map[string]interface{}, len(entry.Data))
		}
		switch val := v.(type) {
		case error:
			record.Fields[k] = val.Error()
		case fmt.Stringer:
			record.Fields[k] = val.String()
		default:
			record.Fields[k] = val
		}
	}

	s.mu.Lock()
	s.items = append(s.items, record)
	if len(s.items) > s.limit {
		s.items = append([]logRecord(nil), s.items[len(s.items)-s.limit:]...)
	}
	s.mu.Unlock()
	return nil
}

func (s *logStore) snapshot() []logRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]logRecord, len(s.items))
	copy(out, s.items)
	return out
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
