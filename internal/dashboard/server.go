package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"optionflow/config"
	"optionflow/internal/channel"
	"optionflow/internal/metrics"
	"optionflow/internal/render/heatmap"
	"optionflow/internal/symbols"
	"optionflow/logger"
)

//go:embed templates/*.tmpl assets/*
var embeddedFS embed.FS

// Server hosts the web dashboard: latest analysis per symbol, live updates
// over websocket, recent logs and metrics.
type Server struct {
	cfg               config.DashboardConfig
	log               *logger.Log
	results           *resultStore
	metricStore       *metricStore
	logStore          *logStore
	metricHandler     metrics.MetricHandlerID
	hub               *hub
	httpServer        *http.Server
	refreshIntervalMs int
	resourceSampler   *resourceSampler
}

// NewServer returns nil when the dashboard is disabled.
func NewServer(cfg config.DashboardConfig, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cfg.Address = normalizeAddress(cfg.Address)

	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}
	if cfg.MetricsHistory <= 0 {
		cfg.MetricsHistory = 200
	}

	metricStore := newMetricStore(cfg.MetricsHistory)
	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	return &Server{
		cfg:               cfg,
		log:               log,
		results:           newResultStore(),
		metricStore:       metricStore,
		logStore:          logStore,
		metricHandler:     metrics.RegisterMetricHandler(metricStore.handle),
		hub:               newHub(log),
		refreshIntervalMs: int(cfg.RefreshInterval / time.Millisecond),
		resourceSampler:   newResourceSampler(cfg.MetricsHistory, cfg.RefreshInterval, log),
	}, nil
}

// Publish records msg as the latest analysis for its symbol and pushes it
// to connected websocket clients. Safe to call on a nil Server.
func (s *Server) Publish(msg channel.AnalysisMessage) {
	if s == nil {
		return
	}
	s.results.put(msg)

	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("failed to encode analysis update")
		return
	}
	if !s.hub.publish(payload) {
		s.log.WithComponent("dashboard").WithField("symbol", msg.Symbol).Debug("websocket broadcast queue full, update skipped")
	}
}

// Run serves the dashboard until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	go s.hub.run(ctx)
	s.resourceSampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithComponent("dashboard").WithField("address", s.cfg.Address).Info("dashboard listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	s.logStore.close()
	s.resourceSampler.stop()
}

func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	tmpl := template.Must(template.New("dashboard").ParseFS(embeddedFS, "templates/index.tmpl"))
	router.SetHTMLTemplate(tmpl)

	if assetsFS, err := fs.Sub(embeddedFS, "assets"); err == nil {
		router.StaticFS("/assets", http.FS(assetsFS))
	}

	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.tmpl", gin.H{
			"AppName":           appName,
			"RefreshIntervalMs": s.refreshIntervalMs,
		})
	})

	router.GET("/api/analysis", func(c *gin.Context) {
		msg, ok := s.results.last()
		writeAnalysis(c, msg, ok)
	})

	router.GET("/api/analysis/:symbol", func(c *gin.Context) {
		msg, ok := s.results.get(symbols.ToNSE(c.Param("symbol")))
		writeAnalysis(c, msg, ok)
	})

	router.GET("/api/symbols", func(c *gin.Context) {
		all := s.results.all()
		payload := make([]gin.H, 0, len(all))
		for _, m := range all {
			payload = append(payload, gin.H{
				"symbol":      m.Symbol,
				"cycle_id":    m.CycleID,
				"analyzed_at": m.AnalyzedAt.Format(time.RFC3339Nano),
				"unavailable": m.Unavailable,
				"trend":       m.Result.Trend,
				"final_trend": m.Result.FinalTrend,
				"pcr":         m.Result.PCR,
			})
		}
		c.JSON(http.StatusOK, gin.H{"symbols": payload})
	})

	router.GET("/api/heatmap/:symbol", func(c *gin.Context) {
		symbol := symbols.ToNSE(c.Param("symbol"))
		msg, ok := s.results.get(symbol)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no analysis for " + symbol})
			return
		}
		if msg.Unavailable {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "data unavailable", "reason": msg.Reason})
			return
		}
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusOK)
		if err := heatmap.Render(c.Writer, symbol, msg.Result.Rows); err != nil {
			s.log.WithComponent("dashboard").WithError(err).Warn("failed to render heatmap")
		}
	})

	router.GET("/api/metrics", func(c *gin.Context) {
		snapshot := s.metricStore.snapshot()
		payload := make([]gin.H, 0, len(snapshot))
		for _, m := range snapshot {
			payload = append(payload, gin.H{
				"timestamp": m.Timestamp.Format(time.RFC3339Nano),
				"component": m.Component,
				"name":      m.Name,
				"value":     m.Value,
				"type":      m.Type,
				"fields":    m.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"metrics": payload})
	})

	router.GET("/api/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
	})

	router.GET("/api/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshot()})
	})

	router.GET("/api/report", func(c *gin.Context) {
		c.JSON(http.StatusOK, logger.Snapshot())
	})

	if metrics.PrometheusEnabled() {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	router.GET("/ws", func(c *gin.Context) {
		all := s.results.all()
		initial := make([][]byte, 0, len(all))
		for _, m := range all {
			if b, err := json.Marshal(m); err == nil {
				initial = append(initial, b)
			}
		}
		s.hub.serve(c.Writer, c.Request, initial)
	})

	return router, nil
}

// writeAnalysis answers 404 for an unknown symbol and 503 while the latest
// cycle for it had no data.
func writeAnalysis(c *gin.Context, msg channel.AnalysisMessage, ok bool) {
	switch {
	case !ok:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no analysis available yet"})
	case msg.Unavailable:
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":    "data unavailable",
			"reason":   msg.Reason,
			"symbol":   msg.Symbol,
			"cycle_id": msg.CycleID,
		})
	default:
		c.JSON(http.StatusOK, msg)
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") && len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
		return "0.0.0.0" + addr
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil || !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
