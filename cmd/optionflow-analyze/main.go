// Command optionflow-analyze runs a single analysis cycle over a captured
// chain (local file or s3://bucket/key) or a live NSE fetch and prints the
// result.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"optionflow/config"
	"optionflow/internal/analytics"
	"optionflow/internal/render/console"
	"optionflow/internal/render/heatmap"
	"optionflow/internal/symbols"
	"optionflow/logger"
	"optionflow/models"
	"optionflow/processor"
	"optionflow/reader/nse"
	"optionflow/reader/replay"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.GetLogger().WithError(err).Warn("Error loading .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		logger.GetLogger().WithComponent("analyze").WithError(err).Error("analysis failed")
		os.Exit(1)
	}
}

type options struct {
	configPath string
	from       string
	symbol     string
	heatmap    string
	asJSON     bool
	timeout    time.Duration
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("optionflow-analyze", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", config.DefaultConfigPath, "Path to configuration file")
	fs.StringVar(&o.from, "from", "", "Captured chain to analyze (file path or s3://bucket/key); empty fetches live")
	fs.StringVar(&o.symbol, "symbol", "", "Symbol to analyze (defaults to the first configured symbol)")
	fs.StringVar(&o.heatmap, "heatmap", "", "Write the strength heatmap HTML to this file")
	fs.BoolVar(&o.asJSON, "json", false, "Print the analysis as JSON instead of tables")
	fs.DurationVar(&o.timeout, "timeout", time.Minute, "Overall deadline for loading the chain")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	log := logger.GetLogger()
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, "stderr", 0); err != nil {
		return err
	}

	symbol := symbols.ToNSE(opts.symbol)
	if symbol == "" {
		symbol = cfg.Source.NSE.Symbols[0]
	}

	loadCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	data, source, err := load(loadCtx, cfg, opts.from, symbol)
	if err != nil {
		return err
	}

	msg := processor.NewAnalyzer(cfg, nil).Process(models.RawChainMessage{
		Symbol:    symbol,
		Source:    source,
		Data:      data,
		Timestamp: time.Now(),
	})

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	} else {
		console.NewRenderer(out).Render(msg)
	}

	if opts.heatmap != "" && !msg.Unavailable {
		if err := writeHeatmap(opts.heatmap, symbol, msg.Result.Rows); err != nil {
			return err
		}
		log.WithComponent("analyze").WithFields(logger.Fields{"path": opts.heatmap}).Info("heatmap written")
	}
	return nil
}

// load fetches the payload. An empty live chain is still returned so it is
// reported as unavailable rather than as a failure.
func load(ctx context.Context, cfg *config.Config, from, symbol string) ([]byte, string, error) {
	if from != "" {
		data, err := replay.NewSource(cfg.Storage.S3).Load(ctx, from)
		return data, "replay", err
	}

	client, err := nse.NewClient(cfg)
	if err != nil {
		return nil, "", err
	}
	data, err := client.FetchRaw(ctx, symbol)
	if err != nil && !(errors.Is(err, nse.ErrEmptyChain) && data != nil) {
		return nil, "", err
	}
	return data, "nse", nil
}

func writeHeatmap(path, symbol string, rows []analytics.StrikeRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create heatmap file: %w", err)
	}
	if err := heatmap.Render(f, symbol, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
