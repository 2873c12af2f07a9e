// Package writer ships finished analyses out of the process: a parquet
// archive of strike rows and a Kafka feed of results.
package writer

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	appconfig "optionflow/config"
	"optionflow/internal/channel"
	"optionflow/internal/metadata"
	"optionflow/internal/objectstore"
	"optionflow/logger"
)

// Archiver buffers analysed strike rows per symbol and writes one parquet
// object per symbol on every flush.
type Archiver struct {
	cfg     appconfig.ArchiveConfig
	version string
	store   objectstore.Store
	table   *metadata.Table

	mu     sync.Mutex
	buffer map[string][]StrikeRecord

	ctx     context.Context
	wg      sync.WaitGroup
	running atomic.Bool
	now     func() time.Time
	log     *logger.Log

	filesWritten atomic.Int64
	rowsWritten  atomic.Int64
	errorsCount  atomic.Int64
}

// NewArchiver resolves the archive destination from cfg.
func NewArchiver(ctx context.Context, cfg *appconfig.Config) (*Archiver, error) {
	store, err := objectstore.ForArchive(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive store: %w", err)
	}
	return NewArchiverWithStore(cfg, store), nil
}

func NewArchiverWithStore(cfg *appconfig.Config, store objectstore.Store) *Archiver {
	a := &Archiver{
		cfg:     cfg.Storage.Archive,
		version: cfg.Optionflow.Version,
		store:   store,
		buffer:  make(map[string][]StrikeRecord),
		now:     time.Now,
		log:     logger.GetLogger(),
	}
	if a.cfg.Catalog {
		a.table = metadata.NewTable(store, a.cfg.Prefix, "strikes")
	}
	a.log.WithComponent("archiver").WithFields(logger.Fields{
		"prefix":         a.cfg.Prefix,
		"flush_interval": a.cfg.FlushInterval.String(),
		"compression":    a.cfg.Compression,
		"catalog":        a.cfg.Catalog,
	}).Info("analysis archiver initialized")
	return a
}

// Add buffers the rows of msg. Unavailable cycles are ignored.
func (a *Archiver) Add(msg channel.AnalysisMessage) {
	records := recordsOf(msg)
	if len(records) == 0 {
		return
	}
	a.mu.Lock()
	a.buffer[msg.Symbol] = append(a.buffer[msg.Symbol], records...)
	a.mu.Unlock()
}

// Start runs the flush loop until ctx is cancelled; the buffer is flushed
// once more on the way out.
func (a *Archiver) Start(ctx context.Context) error {
	if a.running.Swap(true) {
		return fmt.Errorf("archiver already running")
	}
	a.ctx = ctx

	interval := a.cfg.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	a.wg.Add(1)
	go a.flushWorker(interval)
	return nil
}

func (a *Archiver) Stop() {
	a.log.WithComponent("archiver").Info("stopping archiver")
	a.wg.Wait()
	a.running.Store(false)
	a.log.WithComponent("archiver").WithFields(logger.Fields{
		"files_written": a.filesWritten.Load(),
		"rows_written":  a.rowsWritten.Load(),
		"errors":        a.errorsCount.Load(),
	}).Info("archiver stopped")
}

func (a *Archiver) flushWorker(interval time.Duration) {
	defer a.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.flush(context.WithoutCancel(a.ctx), "shutdown")
			return
		case <-ticker.C:
			a.flush(a.ctx, "interval")
		}
	}
}

// flush writes and clears every buffered symbol. Rows whose upload fails
// are dropped.
func (a *Archiver) flush(ctx context.Context, reason string) {
	a.mu.Lock()
	buffers := a.buffer
	a.buffer = make(map[string][]StrikeRecord)
	a.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	symbols := make([]string, 0, len(buffers))
	for s := range buffers {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	a.log.WithComponent("archiver").WithFields(logger.Fields{
		"symbols": len(symbols),
		"reason":  reason,
	}).Debug("flushing archive buffers")

	for _, symbol := range symbols {
		a.write(ctx, symbol, buffers[symbol])
	}
}

func (a *Archiver) write(ctx context.Context, symbol string, records []StrikeRecord) {
	ts := a.now().UTC()
	key := a.objectKey(symbol, ts)
	log := a.log.WithComponent("archiver").WithFields(logger.Fields{
		"symbol": symbol,
		"key":    key,
		"rows":   len(records),
	})

	start := time.Now()
	data, err := encodeParquet(records, a.cfg.Compression)
	if err != nil {
		a.errorsCount.Add(1)
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	err = a.store.Put(ctx, key, data, map[string]string{
		"content-type":       "parquet",
		"compression":        a.cfg.Compression,
		"optionflow-version": a.version,
		"symbol":             symbol,
	})
	if err != nil {
		a.errorsCount.Add(1)
		log.WithError(err).WithEnv("S3_BUCKET").Error("failed to store archive file")
		return
	}

	a.filesWritten.Add(1)
	a.rowsWritten.Add(int64(len(records)))
	logger.LogPerformanceEntry(log, "archiver", "write_parquet", time.Since(start), logger.Fields{
		"file_size": len(data),
		"location":  a.store.Location(key),
	})
	logger.LogDataFlowEntry(log, "result_channel", "archive", len(records), "strike_rows")

	if a.table == nil {
		return
	}
	err = a.table.AddFile(ctx, metadata.DataFile{
		Path:        a.store.Location(key),
		FileSize:    int64(len(data)),
		RecordCount: int64(len(records)),
		Partition: map[string]any{
			"symbol": symbol,
			"year":   ts.Year(),
			"month":  int(ts.Month()),
			"day":    ts.Day(),
		},
		Timestamp: ts,
	})
	if err != nil {
		a.errorsCount.Add(1)
		log.WithError(err).Warn("failed to update archive catalog")
	}
}

// objectKey lays files out as prefix/symbol=SYM/YYYY/MM/DD/SYM_strikes_<utc>_<id>.parquet.
func (a *Archiver) objectKey(symbol string, ts time.Time) string {
	ts = ts.UTC()
	name := fmt.Sprintf("%s_strikes_%s_%s.parquet", symbol, ts.Format("20060102T150405Z"), uuid.NewString()[:8])
	return path.Join(
		a.cfg.Prefix,
		"symbol="+symbol,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
		name,
	)
}

type ArchiverStats struct {
	FilesWritten int64
	RowsWritten  int64
	Errors       int64
	Buffered     int
}

func (a *Archiver) GetStats() ArchiverStats {
	a.mu.Lock()
	buffered := 0
	for _, recs := range a.buffer {
		buffered += len(recs)
	}
	a.mu.Unlock()
	return ArchiverStats{
		FilesWritten: a.filesWritten.Load(),
		RowsWritten:  a.rowsWritten.Load(),
		Errors:       a.errorsCount.Load(),
		Buffered:     buffered,
	}
}
