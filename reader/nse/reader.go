package nse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"optionflow/config"
	"optionflow/internal/channel"
	"optionflow/internal/metrics"
	"optionflow/logger"
	"optionflow/models"
)

const sourceName = "nse"

// Fetcher returns the raw option-chain payload for a symbol.
type Fetcher interface {
	FetchRaw(ctx context.Context, symbol string) ([]byte, error)
}

// Reader polls every configured symbol on a fixed grid and feeds the raw
// payloads into the pipeline.
type Reader struct {
	fetcher  Fetcher
	channels *channel.Channels
	symbols  []string
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Log
}

func NewReader(cfg *config.Config, fetcher Fetcher, ch *channel.Channels) *Reader {
	log := logger.GetLogger()
	r := &Reader{
		fetcher:  fetcher,
		channels: ch,
		symbols:  append([]string(nil), cfg.Source.NSE.Symbols...),
		interval: cfg.Source.NSE.Interval,
		log:      log,
	}

	log.WithComponent("nse_reader").WithFields(logger.Fields{
		"symbols":  r.symbols,
		"interval": r.interval.String(),
	}).Info("nse reader initialized")

	return r
}

// Start launches one worker per symbol. Each worker fetches immediately and
// then on every interval boundary.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("reader already running")
	}
	if r.interval <= 0 {
		return fmt.Errorf("invalid poll interval %s", r.interval)
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)

	for _, symbol := range r.symbols {
		r.wg.Add(1)
		go r.worker(symbol)
	}

	r.log.WithComponent("nse_reader").WithFields(logger.Fields{"workers": len(r.symbols)}).Info("nse reader started")
	return nil
}

// Stop cancels the workers and waits for them to exit.
func (r *Reader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	r.log.WithComponent("nse_reader").Info("stopping nse reader")
	cancel()
	r.wg.Wait()
	r.log.WithComponent("nse_reader").Info("nse reader stopped")
}

func (r *Reader) worker(symbol string) {
	defer r.wg.Done()

	log := r.log.WithComponent("nse_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"worker": "chain_fetcher",
	})
	log.Info("starting chain worker")

	r.poll(symbol)

	now := time.Now()
	timer := time.NewTimer(now.Truncate(r.interval).Add(r.interval).Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-timer.C:
			start := time.Now()
			r.poll(symbol)
			if d := time.Since(start); d > r.interval {
				log.WithFields(logger.Fields{
					"duration_ms": d.Milliseconds(),
					"interval":    r.interval.String(),
				}).Warn("fetch took longer than interval")
			}
			timer.Reset(time.Until(time.Now().Truncate(r.interval).Add(r.interval)))
		}
	}
}

func (r *Reader) poll(symbol string) {
	log := r.log.WithComponent("nse_reader").WithFields(logger.Fields{
		"symbol":    symbol,
		"operation": "fetch_chain",
	})

	start := time.Now()
	body, err := r.fetcher.FetchRaw(r.ctx, symbol)
	if err != nil && !(errors.Is(err, ErrEmptyChain) && body != nil) {
		if r.ctx.Err() != nil {
			return
		}
		logger.IncrementFetch(false, 0)
		metrics.ObserveFetch(r.log, symbol, false)
		log.WithError(err).Warn("failed to fetch option chain")
		return
	}
	if err != nil {
		log.WithError(err).Warn("option chain has no entries")
	}

	logger.IncrementFetch(true, len(body))
	metrics.ObserveFetch(r.log, symbol, true)
	logger.LogPerformanceEntry(log, "nse_reader", "fetch_chain", time.Since(start), logger.Fields{"bytes": len(body)})

	msg := models.RawChainMessage{
		Symbol:    symbol,
		Source:    sourceName,
		Data:      body,
		Timestamp: time.Now(),
	}
	if !r.channels.SendRaw(r.ctx, msg) && r.ctx.Err() == nil {
		metrics.EmitDropMetric(r.log, metrics.DropMetricChainRaw, symbol, "reader")
		log.Warn("raw channel full; dropping option chain")
	}
}
