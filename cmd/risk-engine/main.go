package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riskd/risk-engine/config"
	"github.com/riskd/risk-engine/internal/cache"
	"github.com/riskd/risk-engine/internal/engine"
	"github.com/riskd/risk-engine/internal/estimator"
	"github.com/riskd/risk-engine/internal/limits"
	"github.com/riskd/risk-engine/internal/marketdata"
	"github.com/riskd/risk-engine/internal/notify"
	"github.com/riskd/risk-engine/internal/portfolio"
	"github.com/riskd/risk-engine/internal/resolution"
	"github.com/riskd/risk-engine/internal/risk"
	"github.com/riskd/risk-engine/internal/scenario"
	"github.com/riskd/risk-engine/internal/stream"
	"github.com/riskd/risk-engine/pkg/api"
	"github.com/riskd/risk-engine/pkg/metrics"
	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.GetLogger("main").Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.App.LogLevel, cfg.App.Environment)
	log := logger.GetLogger("main")
	log.Infof("Starting %s", cfg.App.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder := metrics.NewRecorder()
	if cfg.Metrics.Prometheus.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Prometheus.Port)
	}

	// Data access. The in-memory store serves every feed interface; seeded
	// reference data below stands in for an external data platform.
	store := marketdata.NewMemoryStore()
	seedReferenceData(store, cfg)

	builder := portfolio.NewBuilder(store, store)
	covariance := estimator.NewEstimator(store)
	calculator := risk.NewCalculator(store, covariance, cfg.Risk.WorkerCount, cfg.Risk.DefaultSeed)
	scenarioEngine := scenario.NewEngine(cfg.Risk.WorkerCount)
	scenarioStore := scenario.NewStore()

	var resultCache cache.Cache
	var redisCache *cache.RedisCache
	if cfg.Cache.Enabled {
		redisCache = cache.NewRedisCache(cfg.Cache.RedisAddr)
		resultCache = redisCache
	} else {
		resultCache = cache.NewMemoryCache()
	}

	eng := engine.New(
		store, store, store,
		builder, calculator, covariance,
		scenarioEngine, scenarioStore,
		resultCache, recorder,
		engine.Settings{
			BenchmarkSymbol: cfg.Risk.BenchmarkSymbol,
			RiskFreeRate:    cfg.Risk.RiskFreeRate,
			CacheTTL:        cfg.Cache.TTL,
		},
	)
	eng.StartJobs(ctx)

	// Notifications and event streaming.
	var dispatcher notify.Dispatcher
	var kafkaDispatcher *notify.KafkaDispatcher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaDispatcher = notify.NewKafkaDispatcher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, cfg.Kafka.WriteTimeout)
		dispatcher = kafkaDispatcher
	} else {
		dispatcher = notify.NewLogDispatcher()
	}

	hub := stream.NewHub()
	go hub.Run(ctx)

	// Limit monitoring.
	registry := limits.NewRegistry()
	source := limits.NewCalculatedSource(store, store, builder, calculator)
	checker := limits.NewChecker(registry, source,
		limits.NewNotifyListener(dispatcher, "limits"),
		limits.NewStreamListener(hub),
		limits.NewMetricsListener(recorder),
	)
	resolutionManager := resolution.NewManager(registry)

	go runLimitChecks(ctx, checker, registry, recorder, cfg.Limits.CheckInterval)

	apiServer := api.NewServer(
		api.Config{
			Host:         cfg.API.Host,
			Port:         cfg.API.Port,
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
		},
		eng, registry, checker, resolutionManager, scenarioStore, hub, recorder,
	)

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Errorf("API server error: %v", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infof("Received signal %v, initiating shutdown", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Errorf("API server shutdown error: %v", err)
	}
	cancel()

	if kafkaDispatcher != nil {
		if err := kafkaDispatcher.Close(); err != nil {
			log.Errorf("Kafka dispatcher shutdown error: %v", err)
		}
	}
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			log.Errorf("Redis cache shutdown error: %v", err)
		}
	}

	log.Info("Shutdown complete")
}

// serveMetrics exposes the prometheus scrape endpoint on its own port, apart
// from the API listener.
func serveMetrics(ctx context.Context, port int) {
	log := logger.GetLogger("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Metrics listening on :%d", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("Metrics server error: %v", err)
	}
}

// runLimitChecks runs one check cycle per configured portfolio on a fixed
// interval. Each portfolio's cycle is independent; a failing portfolio is
// logged and retried next tick.
func runLimitChecks(ctx context.Context, checker *limits.Checker, registry *limits.Registry, recorder *metrics.Recorder, interval time.Duration) {
	log := logger.GetLogger("limits.loop")
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, portfolioID := range registry.Portfolios() {
				report, err := checker.Check(ctx, portfolioID, now)
				if err != nil {
					log.Errorf("limit check for %s failed: %v", portfolioID, err)
					continue
				}
				recorder.RecordLimitCheck(portfolioID, report.Active, report.Warning, report.Breached)
				recorder.RecordOpenBreaches(portfolioID, openBreaches(registry, portfolioID))
			}
		}
	}
}

func openBreaches(registry *limits.Registry, portfolioID string) int {
	count := 0
	for _, b := range registry.ListBreaches(portfolioID) {
		if b.Status == models.BreachStatusActive {
			count++
		}
	}
	return count
}

// seedReferenceData loads demonstration market data so the service answers
// requests out of the box.
func seedReferenceData(store *marketdata.MemoryStore, cfg *config.Config) {
	window := cfg.Risk.LookbackWindow + 1

	// Deterministic synthetic price paths per symbol.
	seedSeries := func(symbol string, base, drift, amplitude float64) {
		prices := make([]float64, window)
		for i := range prices {
			t := float64(i)
			prices[i] = base * (1 + drift*t/float64(window) + amplitude*math.Sin(t/7))
		}
		store.SetPriceSeries(symbol, prices)
	}

	seedSeries("AAPL", 180, 0.08, 0.015)
	seedSeries("MSFT", 410, 0.06, 0.012)
	seedSeries("GOVT", 23, 0.01, 0.004)
	seedSeries(cfg.Risk.BenchmarkSymbol, 520, 0.05, 0.010)

	for i, factor := range []string{"equity_market", "rates", "credit"} {
		returns := make([]float64, window)
		for t := range returns {
			returns[t] = 0.0005*float64(i+1) + 0.01*math.Sin(float64(t)/float64(5+i))
		}
		store.SetFactorReturns(factor, returns)
	}

	store.SetFactorLoadings(models.AssetClassEquity, map[string]float64{
		"equity_market": 1.0,
		"rates":         -0.2,
		"credit":        0.1,
	})
	store.SetFactorLoadings(models.AssetClassBond, map[string]float64{
		"equity_market": 0.1,
		"rates":         0.9,
		"credit":        0.4,
	})

	store.SetModel(models.RiskModel{
		ID:     "var-historical-99",
		Type:   models.ModelTypeVaR,
		Method: models.VaRMethodHistorical,
		Parameters: models.ModelParameters{
			ConfidenceLevel: cfg.Risk.ConfidenceLevel,
			HoldingPeriod:   cfg.Risk.HoldingPeriod,
			LookbackWindow:  cfg.Risk.LookbackWindow,
		},
	})
	store.SetModel(models.RiskModel{
		ID:     "var-parametric-99",
		Type:   models.ModelTypeVaR,
		Method: models.VaRMethodParametric,
		Parameters: models.ModelParameters{
			ConfidenceLevel: cfg.Risk.ConfidenceLevel,
			HoldingPeriod:   cfg.Risk.HoldingPeriod,
			LookbackWindow:  cfg.Risk.LookbackWindow,
			CovMethod:       models.CovMethodEWMA,
			EwmaLambda:      cfg.Risk.EwmaLambda,
		},
	})
	store.SetModel(models.RiskModel{
		ID:     "var-montecarlo-99",
		Type:   models.ModelTypeVaR,
		Method: models.VaRMethodMonteCarlo,
		Parameters: models.ModelParameters{
			ConfidenceLevel: cfg.Risk.ConfidenceLevel,
			HoldingPeriod:   cfg.Risk.HoldingPeriod,
			LookbackWindow:  cfg.Risk.LookbackWindow,
			Simulations:     cfg.Risk.SimulationRuns,
			Distribution:    models.DistributionNormal,
			Seed:            cfg.Risk.DefaultSeed,
		},
	})
	store.SetModel(models.RiskModel{
		ID:     "factor-model",
		Type:   models.ModelTypeFactorModel,
		Method: models.VaRMethodParametric,
		Parameters: models.ModelParameters{
			ConfidenceLevel: cfg.Risk.ConfidenceLevel,
			HoldingPeriod:   cfg.Risk.HoldingPeriod,
			LookbackWindow:  cfg.Risk.LookbackWindow,
			Factors:         []string{"equity_market", "rates", "credit"},
			CovMethod:       models.CovMethodSample,
		},
	})

	store.SetPortfolio("sample-portfolio-1", []models.Position{
		{Symbol: "AAPL", Quantity: 100, AssetClass: models.AssetClassEquity, Sector: "technology"},
		{Symbol: "MSFT", Quantity: 150, AssetClass: models.AssetClassEquity, Sector: "technology"},
		{Symbol: "GOVT", Quantity: 200, AssetClass: models.AssetClassBond, Sector: "government"},
	})
}
