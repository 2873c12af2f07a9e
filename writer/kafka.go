package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	kafka "github.com/segmentio/kafka-go"

	appconfig "optionflow/config"
	"optionflow/internal/channel"
	"optionflow/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher sends every analysis, keyed by symbol, to a Kafka topic.
// Publish only queues; a single goroutine does the writes.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	queue  chan channel.AnalysisMessage

	ctx     context.Context
	wg      sync.WaitGroup
	running atomic.Bool
	log     *logger.Log

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

func NewKafkaPublisher(cfg *appconfig.Config) (*KafkaPublisher, error) {
	kc := cfg.Storage.Kafka
	if len(kc.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(kc.Brokers...),
		Topic:    kc.Topic,
		Balancer: &kafka.Hash{},
	}
	p := newKafkaPublisher(w, kc.Topic, kc.QueueSize)
	p.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"brokers": kc.Brokers,
		"topic":   kc.Topic,
	}).Info("kafka publisher initialized")
	return p, nil
}

func newKafkaPublisher(w messageWriter, topic string, queueSize int) *KafkaPublisher {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		queue:  make(chan channel.AnalysisMessage, queueSize),
		log:    logger.GetLogger(),
	}
}

func (p *KafkaPublisher) Start(ctx context.Context) error {
	if p.running.Swap(true) {
		return fmt.Errorf("kafka publisher already running")
	}
	p.ctx = ctx
	p.wg.Add(1)
	go p.run()
	return nil
}

// Publish queues msg and reports false when the queue is full.
func (p *KafkaPublisher) Publish(msg channel.AnalysisMessage) bool {
	select {
	case p.queue <- msg:
		return true
	default:
		p.dropped.Add(1)
		p.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
			"symbol":   msg.Symbol,
			"cycle_id": msg.CycleID,
		}).Warn("kafka queue full, dropping analysis")
		return false
	}
}

func (p *KafkaPublisher) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case msg := <-p.queue:
			p.write(msg)
		}
	}
}

func (p *KafkaPublisher) write(msg channel.AnalysisMessage) {
	log := p.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"symbol":   msg.Symbol,
		"cycle_id": msg.CycleID,
	})

	data, err := json.Marshal(msg)
	if err != nil {
		p.failed.Add(1)
		log.WithError(err).Warn("failed to marshal analysis")
		return
	}

	err = p.writer.WriteMessages(p.ctx, kafka.Message{
		Key:   []byte(msg.Symbol),
		Value: data,
		Time:  msg.AnalyzedAt,
		Headers: []kafka.Header{
			{Key: "cycle_id", Value: []byte(msg.CycleID)},
			{Key: "source", Value: []byte(msg.Source)},
		},
	})
	if err != nil {
		p.failed.Add(1)
		log.WithError(err).Warn("failed to write message")
		return
	}
	p.published.Add(1)
	log.WithFields(logger.Fields{"topic": p.topic, "bytes": len(data)}).Debug("analysis written to kafka")
}

// Stop waits for the writer goroutine, which exits once the Start context
// is cancelled, then closes the Kafka writer.
func (p *KafkaPublisher) Stop() {
	p.log.WithComponent("kafka_publisher").Info("stopping kafka publisher")
	p.wg.Wait()
	if err := p.writer.Close(); err != nil {
		p.log.WithComponent("kafka_publisher").WithError(err).Warn("failed to close kafka writer")
	}
	p.running.Store(false)
	p.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"published": p.published.Load(),
		"dropped":   p.dropped.Load(),
		"failed":    p.failed.Load(),
	}).Info("kafka publisher stopped")
}
