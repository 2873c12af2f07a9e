package writer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	appconfig "optionflow/config"
	"optionflow/internal/analytics"
	"optionflow/internal/channel"
)

type memStore struct {
	mu   sync.Mutex
	objs map[string][]byte
	meta map[string]map[string]string
	err  error
}

func newMemStore() *memStore {
	return &memStore{objs: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (m *memStore) Put(_ context.Context, key string, data []byte, meta map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.objs[key] = append([]byte(nil), data...)
	m.meta[key] = meta
	return nil
}

func (m *memStore) Location(key string) string { return "mem://" + key }

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objs))
	for k := range m.objs {
		out = append(out, k)
	}
	return out
}

func archiveConfig() *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Optionflow.Version = "1.2.3"
	cfg.Storage.Archive = appconfig.ArchiveConfig{Enabled: true, Prefix: "analysis", FlushInterval: time.Hour, Compression: "snappy"}
	return cfg
}

func analysed(t *testing.T, symbol string) channel.AnalysisMessage {
	t.Helper()
	res, err := analytics.AnalyzeRows([]analytics.StrikeRow{
		{Strike: 100, CEVolume: 1000, CEOIChange: 50, PEVolume: 100, PEOIChange: -20},
		{Strike: 200, CEVolume: 200, CEOIChange: -30, PEVolume: 500, PEOIChange: 40},
	}, analytics.DefaultLimits)
	if err != nil {
		t.Fatalf("AnalyzeRows: %v", err)
	}
	return channel.AnalysisMessage{CycleID: "cycle-1", Symbol: symbol, AnalyzedAt: time.Unix(1700000000, 0), Result: res}
}

func TestRecordsOf(t *testing.T) {
	recs := recordsOf(analysed(t, "NIFTY"))
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	r := recs[1]
	if r.Symbol != "NIFTY" || r.CycleID != "cycle-1" || r.Strike != 200 || r.AnalyzedAt != 1700000000000 {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.Support != 200 || r.Resistance != 100 || r.Trend != string(analytics.TrendNeutral) {
		t.Fatalf("aggregates not copied: %+v", r)
	}
	if recordsOf(channel.AnalysisMessage{Unavailable: true}) != nil {
		t.Fatal("unavailable cycles must not produce records")
	}
}

func TestEncodeParquet(t *testing.T) {
	for _, codec := range []string{"snappy", "gzip", "none"} {
		data, err := encodeParquet(recordsOf(analysed(t, "NIFTY")), codec)
		if err != nil {
			t.Fatalf("%s: encode: %v", codec, err)
		}
		if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
			t.Fatalf("%s: output is not a parquet file", codec)
		}
	}
}

func TestObjectKey(t *testing.T) {
	a := NewArchiverWithStore(archiveConfig(), newMemStore())
	key := a.objectKey("NIFTY", time.Date(2024, 3, 7, 9, 15, 0, 0, time.UTC))
	if !strings.HasPrefix(key, "analysis/symbol=NIFTY/2024/03/07/NIFTY_strikes_20240307T091500Z_") || !strings.HasSuffix(key, ".parquet") {
		t.Fatalf("unexpected key %s", key)
	}
}

func TestArchiverFlushWritesPerSymbol(t *testing.T) {
	store := newMemStore()
	a := NewArchiverWithStore(archiveConfig(), store)

	a.Add(analysed(t, "NIFTY"))
	a.Add(analysed(t, "NIFTY"))
	a.Add(analysed(t, "BANKNIFTY"))
	a.Add(channel.AnalysisMessage{Symbol: "FINNIFTY", Unavailable: true})

	if got := a.GetStats().Buffered; got != 6 {
		t.Fatalf("expected 6 buffered rows, got %d", got)
	}

	a.flush(context.Background(), "test")

	keys := store.keys()
	if len(keys) != 2 {
		t.Fatalf("expected one file per symbol, got %v", keys)
	}
	stats := a.GetStats()
	if stats.FilesWritten != 2 || stats.RowsWritten != 6 || stats.Buffered != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	for _, k := range keys {
		if store.meta[k]["optionflow-version"] != "1.2.3" {
			t.Fatalf("metadata missing on %s: %v", k, store.meta[k])
		}
	}

	a.flush(context.Background(), "empty")
	if len(store.keys()) != 2 {
		t.Fatal("empty flush must not write")
	}
}

func TestArchiverStoreError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("denied")
	a := NewArchiverWithStore(archiveConfig(), store)

	a.Add(analysed(t, "NIFTY"))
	a.flush(context.Background(), "test")

	if stats := a.GetStats(); stats.Errors != 1 || stats.FilesWritten != 0 || stats.Buffered != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestArchiverFlushesOnShutdown(t *testing.T) {
	store := newMemStore()
	a := NewArchiverWithStore(archiveConfig(), store)

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Start(ctx); err == nil {
		t.Fatal("second Start must fail")
	}

	a.Add(analysed(t, "NIFTY"))
	cancel()
	a.Stop()

	if len(store.keys()) != 1 {
		t.Fatalf("expected shutdown flush, got %v", store.keys())
	}
}

func TestArchiverUpdatesCatalog(t *testing.T) {
	cfg := archiveConfig()
	cfg.Storage.Archive.Catalog = true
	store := newMemStore()
	a := NewArchiverWithStore(cfg, store)
	a.now = func() time.Time { return time.Date(2024, 3, 7, 9, 15, 0, 0, time.UTC) }

	a.Add(analysed(t, "NIFTY"))
	a.Add(analysed(t, "BANKNIFTY"))
	a.flush(context.Background(), "test")

	var parquetFiles, manifests int
	for _, k := range store.keys() {
		switch {
		case strings.HasSuffix(k, ".parquet"):
			parquetFiles++
		case strings.HasPrefix(k, "analysis/metadata/manifest-"):
			manifests++
		}
	}
	if parquetFiles != 2 || manifests != 2 {
		t.Fatalf("expected 2 data files and 2 manifests, got keys %v", store.keys())
	}
	if _, ok := store.objs["analysis/metadata/metadata.json"]; !ok {
		t.Fatal("table metadata not written")
	}
	if tm := a.table.Metadata(); len(tm.Snapshots) != 2 || tm.Location != "mem://analysis" {
		t.Fatalf("unexpected table metadata: %+v", tm)
	}
	if stats := a.GetStats(); stats.Errors != 0 {
		t.Fatalf("unexpected errors: %+v", stats)
	}
}
