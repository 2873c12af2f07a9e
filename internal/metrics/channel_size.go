package metrics

import (
	"context"
	"time"

	"optionflow/internal/channel"
	"optionflow/logger"
)

// StartChannelSizeMetrics samples buffer occupancy every interval (one
// second when interval <= 0) until ctx is cancelled.
func StartChannelSizeMetrics(ctx context.Context, channels *channel.Channels, interval time.Duration) {
	if !IsEnabled("raw_buffer_length") || channels == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ObserveBuffers(log, channels)
			}
		}
	}()
}
