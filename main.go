package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"optionflow/config"
	"optionflow/internal/channel"
	"optionflow/internal/dashboard"
	"optionflow/internal/metrics"
	"optionflow/internal/render/console"
	"optionflow/internal/symbols"
	"optionflow/logger"
	"optionflow/processor"
	"optionflow/reader/nse"
	"optionflow/reader/replay"
	"optionflow/writer"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	replayFrom := flag.String("replay", "", "Analyze a captured chain (file path or s3://bucket/key) instead of polling NSE")
	replaySymbol := flag.String("symbol", "", "Symbol to label a replayed chain with (defaults to the first configured symbol)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service": cfg.Optionflow.Name,
		"version": cfg.Optionflow.Version,
		"env":     env,
	}).Info("starting optionflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	level := cfg.Logging.Level
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level = v
	}
	if strings.EqualFold(strings.TrimSpace(level), "report") {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	metrics.Configure(cfg.Metrics)
	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Optionflow.Name)
	}

	channels := channel.NewChannels(cfg.Channels.RawBuffer, cfg.Channels.ResultBuffer)
	defer channels.Close()

	metrics.StartChannelSizeMetrics(ctx, channels, 5*time.Second)

	analyzer := processor.NewAnalyzer(cfg, channels)
	if err := analyzer.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start analyzer")
		os.Exit(1)
	}

	dash, err := dashboard.NewServer(cfg.Dashboard, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	if dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx, cfg.Optionflow.Name); err != nil {
				log.WithError(err).Error("dashboard stopped with error")
			}
		}()
	}

	sinks := resultSinks{dashboard: dash}
	if cfg.Console.Enabled && !config.IsProductionLike(env) {
		sinks.console = console.NewRenderer(os.Stdout)
	}

	if cfg.Storage.Archive.Enabled {
		sinks.archive, err = writer.NewArchiver(ctx, cfg)
		if err != nil {
			log.WithError(err).Error("failed to create archiver")
			os.Exit(1)
		}
		if err := sinks.archive.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start archiver")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("archive disabled; skipping parquet writer")
	}

	if cfg.Storage.Kafka.Enabled {
		sinks.kafka, err = writer.NewKafkaPublisher(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create kafka publisher")
			os.Exit(1)
		}
		if err := sinks.kafka.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start kafka publisher")
			os.Exit(1)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sinks.consume(ctx, channels)
	}()

	var reader *nse.Reader
	if *replayFrom != "" {
		symbol := symbols.ToNSE(*replaySymbol)
		if symbol == "" {
			symbol = cfg.Source.NSE.Symbols[0]
		}
		if err := replay.NewSource(cfg.Storage.S3).Replay(ctx, *replayFrom, symbol, channels); err != nil {
			log.WithError(err).Error("replay failed")
			os.Exit(1)
		}
	} else {
		client, err := nse.NewClient(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create nse client")
			os.Exit(1)
		}
		reader = nse.NewReader(cfg, client, channels)
		if err := reader.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start nse reader")
			os.Exit(1)
		}
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if reader != nil {
		reader.Stop()
	}
	analyzer.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	if sinks.archive != nil {
		sinks.archive.Stop()
	}
	if sinks.kafka != nil {
		sinks.kafka.Stop()
	}
	log.Info("graceful shutdown completed")

	stats := channels.GetStats()
	log.WithFields(logger.Fields{
		"raw_sent":       stats.RawSent,
		"raw_dropped":    stats.RawDropped,
		"result_sent":    stats.ResultSent,
		"result_dropped": stats.ResultDropped,
	}).Info("optionflow stopped")
}

// resultSinks receives every finished cycle. Nil sinks are skipped.
type resultSinks struct {
	console   *console.Renderer
	dashboard *dashboard.Server
	archive   *writer.Archiver
	kafka     *writer.KafkaPublisher
}

func (s resultSinks) consume(ctx context.Context, channels *channel.Channels) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-channels.Result:
			if !ok {
				return
			}
			s.deliver(msg)
		}
	}
}

func (s resultSinks) deliver(msg channel.AnalysisMessage) {
	if s.console != nil {
		s.console.Render(msg)
	}
	s.dashboard.Publish(msg)
	if s.archive != nil {
		s.archive.Add(msg)
	}
	if s.kafka != nil {
		s.kafka.Publish(msg)
	}
}
