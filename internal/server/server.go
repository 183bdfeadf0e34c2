package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Uscout07/casaway-speedtest/internal/config"
	"github.com/Uscout07/casaway-speedtest/internal/events"
	"github.com/Uscout07/casaway-speedtest/internal/history"
	"github.com/Uscout07/casaway-speedtest/internal/metrics"
	"github.com/Uscout07/casaway-speedtest/internal/probe"
	"github.com/Uscout07/casaway-speedtest/internal/scheduler"
	"github.com/Uscout07/casaway-speedtest/internal/speedtest"
	"github.com/Uscout07/casaway-speedtest/internal/storage"
	"github.com/Uscout07/casaway-speedtest/internal/targets"
	"github.com/Uscout07/casaway-speedtest/internal/workerpool"
	"github.com/Uscout07/casaway-speedtest/pkg/middleware"
)

// Server represents the web server
type Server struct {
	router     *gin.Engine
	cfg        *config.Config
	configPath string

	registry  *targets.Registry
	history   *history.Store
	metrics   *metrics.Metrics
	scheduler *scheduler.Scheduler
	runner    Runner
	exports   *storage.ExportStore
	publisher *events.Publisher
	amqpConn  *amqp.Connection

	log       *logrus.Logger
	startTime time.Time
	cfgMu     sync.RWMutex
}

// New creates a new server instance. Optional backends (redis rate
// limiting, export archive, event publishing) are wired only when
// configured.
func New(cfg *config.Config, configPath string, log *logrus.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	s := &Server{
		router:     router,
		cfg:        cfg,
		configPath: configPath,
		registry:   targets.NewRegistry(cfg.TargetServers(), cfg.Targets.ManifestURL, log),
		history:    history.New(cfg.History.MaxResults),
		metrics:    metrics.New(),
		log:        log,
		startTime:  time.Now(),
	}
	s.runner = BuildPipeline(cfg, s.registry, log)
	s.scheduler = scheduler.New(cfg.ScheduleInterval(), s.scheduledRun, log)

	if cfg.Storage.Endpoint != "" {
		client, err := storage.NewClient(cfg.Storage.Endpoint, cfg.Storage.AccessKey,
			cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.UseSSL)
		if err != nil {
			return nil, err
		}
		s.exports = storage.NewExportStore(client, log)
	}

	if cfg.Events.URL != "" {
		conn, err := amqp.Dial(cfg.Events.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		s.amqpConn = conn

		publisher, err := events.NewPublisher(conn, cfg.Events.Exchange, log)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to init publisher: %w", err)
		}
		s.publisher = publisher
	}

	s.setupRoutes()
	return s, nil
}

// BuildPipeline assembles the measurement pipeline from configuration.
// The one-shot CLI check shares this wiring.
func BuildPipeline(cfg *config.Config, registry *targets.Registry, log *logrus.Logger) *speedtest.Pipeline {
	prober := probe.New(cfg.ProbeTimeout(), log)
	fallbackProber := probe.New(cfg.FallbackTimeout(), log)
	pool := workerpool.New(cfg.SpeedTest.Workers, log)
	picker := speedtest.NewRankingPicker(registry, pool, prober, log)

	methods := []speedtest.Method{
		speedtest.NewStandard(prober, cfg.SpeedTest.PingCount, cfg.ProbeDelay(), cfg.SpeedTest.UploadSizes, log),
		speedtest.NewFallback(fallbackProber, log),
	}
	return speedtest.NewPipeline(picker, methods, cfg.Profile(), log)
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthz)

	api := s.router.Group("/api")
	if s.cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr: s.cfg.Redis.Addr,
			DB:   s.cfg.Redis.DB,
		})
		api.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RedisClient: client,
			Limit:       s.cfg.Server.RateLimit,
			Window:      s.cfg.RateWindow(),
			KeyPrefix:   "speedtest:rl:",
		}))
	}
	if s.cfg.Server.AuthToken != "" {
		api.Use(middleware.BearerAuth(middleware.NewStaticTokenVerifier(s.cfg.Server.AuthToken)))
	}
	{
		api.GET("/speedtest", s.runSpeedtest)
		api.POST("/speedtest", s.runSpeedtest)
		api.GET("/speedtest/history", s.getHistory)
		api.DELETE("/speedtest/history", s.clearHistory)
		api.GET("/speedtest/history/stats", s.getHistoryStats)
		api.GET("/speedtest/history/export/:format", s.exportHistory)
		api.POST("/speedtest/history/share", s.shareHistory)

		api.GET("/config", s.getConfig)
		api.PUT("/config", s.updateConfig)
		api.POST("/config/save", s.saveConfig)
		api.POST("/config/validate", s.validateConfig)

		api.GET("/metrics", s.getMetrics)
		api.GET("/metrics/performance", s.getRunStats)
		api.GET("/metrics/throughput", s.getThroughput)

		api.GET("/status", s.getStatus)
		api.POST("/schedule/start", s.startSchedule)
		api.POST("/schedule/stop", s.stopSchedule)

		api.GET("/targets", s.getTargets)
		api.POST("/targets/refresh", s.refreshTargets)
	}
}

// Run starts the server. When a measurement schedule is configured it
// is started alongside.
func (s *Server) Run() error {
	if s.exports != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.exports.EnsureBucket(ctx); err != nil {
			s.log.WithError(err).Warn("export bucket check failed")
		}
		cancel()
	}

	cfg := s.currentConfig()
	if cfg.Schedule.Enabled {
		if err := s.scheduler.Start(); err != nil {
			return err
		}
	}

	s.log.WithField("addr", cfg.Server.Addr).Info("http server listening")
	return s.router.Run(cfg.Server.Addr)
}

// Close stops background work and releases broker connections.
func (s *Server) Close() {
	s.scheduler.Stop()
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.amqpConn != nil {
		s.amqpConn.Close()
	}
}

func (s *Server) currentConfig() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// applyConfig swaps the configuration and rebuilds the measurement
// pipeline with the new calibration and timeouts. Middleware and
// backend wiring stay as booted.
func (s *Server) applyConfig(cfg *config.Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.runner = BuildPipeline(cfg, s.registry, s.log)
	s.cfgMu.Unlock()
}
