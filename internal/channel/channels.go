package channel

import (
	"context"
	"sync"
	"time"

	"optionflow/internal/analytics"
	"optionflow/logger"
	"optionflow/models"
)

// AnalysisMessage is one finished analysis cycle for a symbol. When
// Unavailable is set Result is empty and Reason says why.
type AnalysisMessage struct {
	CycleID     string           `json:"cycle_id"`
	Symbol      string           `json:"symbol"`
	Source      string           `json:"source"`
	FetchedAt   time.Time        `json:"fetched_at"`
	AnalyzedAt  time.Time        `json:"analyzed_at"`
	Unavailable bool             `json:"unavailable"`
	Reason      string           `json:"reason,omitempty"`
	Result      analytics.Result `json:"result"`
}

type ChannelStats struct {
	RawSent       int64 `json:"raw_sent"`
	ResultSent    int64 `json:"result_sent"`
	RawDropped    int64 `json:"raw_dropped"`
	ResultDropped int64 `json:"result_dropped"`
}

// Channels connects readers to the analyzer (Raw) and the analyzer to the
// presentation layer (Result).
type Channels struct {
	Raw    chan models.RawChainMessage
	Result chan AnalysisMessage

	stats      ChannelStats
	statsMutex sync.RWMutex
	closeOnce  sync.Once
	log        *logger.Log
}

func NewChannels(rawBufferSize, resultBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:    make(chan models.RawChainMessage, rawBufferSize),
		Result: make(chan AnalysisMessage, resultBufferSize),
		log:    log,
	}

	log.WithComponent("chain_channels").WithFields(logger.Fields{
		"raw_buffer_size":    rawBufferSize,
		"result_buffer_size": resultBufferSize,
	}).Info("option chain channels initialized")

	return c
}

// Close closes both channels. Calling it again is a no-op.
func (c *Channels) Close() {
	c.closeOnce.Do(func() {
		close(c.Raw)
		close(c.Result)
		c.log.WithComponent("chain_channels").Info("option chain channels closed")
	})
}

func (c *Channels) IncrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementResultSent() {
	c.statsMutex.Lock()
	c.stats.ResultSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementResultDropped() {
	c.statsMutex.Lock()
	c.stats.ResultDropped++
	c.statsMutex.Unlock()
}

// SendRaw never blocks: a full buffer drops the payload.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawChainMessage) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}

	select {
	case c.Raw <- msg:
		c.IncrementRawSent()
		logger.RecordChannelMessage("chain_raw", len(msg.Data))
		return true
	default:
		c.IncrementRawDropped()
		return false
	}
}

// SendResult never blocks: a full buffer drops the result.
func (c *Channels) SendResult(ctx context.Context, msg AnalysisMessage) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}

	select {
	case c.Result <- msg:
		c.IncrementResultSent()
		logger.RecordChannelMessage("chain_result", len(msg.Result.Rows))
		return true
	default:
		c.IncrementResultDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// Sizes reports current occupancy and capacity of both buffers.
func (c *Channels) Sizes() (rawLen, rawCap, resultLen, resultCap int) {
	return len(c.Raw), cap(c.Raw), len(c.Result), cap(c.Result)
}
