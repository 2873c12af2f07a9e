package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	appconfig "optionflow/config"
	"optionflow/internal/analytics"
	"optionflow/internal/channel"
	"optionflow/internal/metrics"
	"optionflow/logger"
	"optionflow/models"
)

// AnalyzerStats counts what the worker pool has done since start.
type AnalyzerStats struct {
	MessagesProcessed int64 `json:"messages_processed"`
	Analyses          int64 `json:"analyses"`
	Unavailable       int64 `json:"unavailable"`
	ResultsDropped    int64 `json:"results_dropped"`
}

// Analyzer turns raw chain payloads into analysis results.
type Analyzer struct {
	config   *appconfig.Config
	channels *channel.Channels
	limits   analytics.Limits
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	messagesProcessed atomic.Int64
	analyses          atomic.Int64
	unavailable       atomic.Int64
	resultsDropped    atomic.Int64
}

func NewAnalyzer(cfg *appconfig.Config, ch *channel.Channels) *Analyzer {
	return &Analyzer{
		config:   cfg,
		channels: ch,
		limits:   Limits(cfg.Analysis),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Limits maps the analysis section to selector limits. Zero values keep
// the defaults.
func Limits(cfg appconfig.AnalysisConfig) analytics.Limits {
	limits := analytics.DefaultLimits
	if cfg.TopBuyers > 0 {
		limits.TopBuyers = cfg.TopBuyers
	}
	if cfg.TopWriters > 0 {
		limits.TopWriters = cfg.TopWriters
	}
	return limits
}

func (a *Analyzer) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("analyzer already running")
	}
	a.running = true
	a.ctx = ctx
	a.mu.Unlock()

	numWorkers := a.config.Processor.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	log := a.log.WithComponent("analyzer").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{"workers": numWorkers}).Info("starting analyzer workers")

	for i := 0; i < numWorkers; i++ {
		a.wg.Add(1)
		go a.worker(i)
	}

	a.wg.Add(1)
	go a.metricsReporter()

	return nil
}

// Stop waits for the workers. They exit when the context passed to Start
// is cancelled or the raw channel is closed.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	a.log.WithComponent("analyzer").Info("stopping analyzer")
	a.wg.Wait()
	a.log.WithComponent("analyzer").Info("analyzer stopped")
}

func (a *Analyzer) GetStats() AnalyzerStats {
	return AnalyzerStats{
		MessagesProcessed: a.messagesProcessed.Load(),
		Analyses:          a.analyses.Load(),
		Unavailable:       a.unavailable.Load(),
		ResultsDropped:    a.resultsDropped.Load(),
	}
}

func (a *Analyzer) worker(workerID int) {
	defer a.wg.Done()

	log := a.log.WithComponent("analyzer").WithFields(logger.Fields{
		"worker_id": workerID,
		"worker":    "analyzer",
	})
	log.Info("starting analyzer worker")

	for {
		select {
		case <-a.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case raw, ok := <-a.channels.Raw:
			if !ok {
				log.Info("raw channel closed, worker stopping")
				return
			}

			start := time.Now()
			msg := a.Process(raw)
			a.messagesProcessed.Add(1)

			logger.LogPerformanceEntry(log, "analyzer", "analyze_chain", time.Since(start), logger.Fields{
				"worker_id": workerID,
				"symbol":    raw.Symbol,
				"cycle_id":  msg.CycleID,
				"rows":      len(msg.Result.Rows),
			})

			if !a.channels.SendResult(a.ctx, msg) && a.ctx.Err() == nil {
				a.resultsDropped.Add(1)
				metrics.EmitDropMetric(a.log, metrics.DropMetricChainResult, raw.Symbol, "analyzer")
				log.Warn("result channel full; dropping analysis")
			}
		}
	}
}

// Process analyses one raw payload. It never fails: payloads that cannot
// be analysed produce a message with Unavailable set.
func (a *Analyzer) Process(raw models.RawChainMessage) channel.AnalysisMessage {
	msg := channel.AnalysisMessage{
		CycleID:   uuid.NewString(),
		Symbol:    raw.Symbol,
		Source:    raw.Source,
		FetchedAt: raw.Timestamp,
	}

	log := a.log.WithComponent("analyzer").WithFields(logger.Fields{
		"symbol":   raw.Symbol,
		"source":   raw.Source,
		"cycle_id": msg.CycleID,
	})

	res, err := a.analyze(raw.Data)
	msg.AnalyzedAt = time.Now()
	if err != nil {
		msg.Unavailable = true
		msg.Reason = err.Error()
		a.unavailable.Add(1)
		logger.IncrementAnalysis(false)
		metrics.ObserveUnavailable(a.log, raw.Symbol)
		if errors.Is(err, analytics.ErrDataUnavailable) {
			log.WithError(err).Warn("option chain data unavailable")
		} else {
			log.WithError(err).Error("failed to analyse option chain")
		}
		return msg
	}

	msg.Result = res
	a.analyses.Add(1)
	logger.IncrementAnalysis(true)
	metrics.ObserveAnalysis(a.log, raw.Symbol, res)

	log.WithFields(logger.Fields{
		"pcr":         res.PCR,
		"trend":       string(res.Trend),
		"max_pain":    res.MaxPain,
		"support":     res.Support,
		"resistance":  res.Resistance,
		"final_trend": string(res.FinalTrend),
		"rows":        len(res.Rows),
		"skipped":     res.Stats.Skipped,
	}).Info("option chain analysed")
	logger.LogDataFlowEntry(log, "raw_channel", "result_channel", len(res.Rows), "strike_rows")

	return msg
}

func (a *Analyzer) analyze(data []byte) (analytics.Result, error) {
	if len(data) == 0 {
		return analytics.Result{}, fmt.Errorf("%w: empty payload", analytics.ErrDataUnavailable)
	}
	var chain models.RawChain
	if err := json.Unmarshal(data, &chain); err != nil {
		return analytics.Result{}, fmt.Errorf("decode option chain: %w", err)
	}
	return analytics.Analyze(&chain, a.limits)
}

func (a *Analyzer) metricsReporter() {
	defer a.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			stats := a.GetStats()
			rawLen, rawCap, resultLen, resultCap := a.channels.Sizes()
			a.log.WithComponent("analyzer").WithFields(logger.Fields{
				"messages_processed": stats.MessagesProcessed,
				"analyses":           stats.Analyses,
				"unavailable":        stats.Unavailable,
				"results_dropped":    stats.ResultsDropped,
				"raw_channel_len":    rawLen,
				"raw_channel_cap":    rawCap,
				"result_channel_len": resultLen,
				"result_channel_cap": resultCap,
			}).Info("analyzer metrics")
		}
	}
}
