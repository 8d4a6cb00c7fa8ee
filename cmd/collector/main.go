// Command collector is the analytics collection engine's entrypoint: it
// wires config, warehouse, persistence, both platform clients, and the
// orchestrator, then serves /health and /metrics until signalled to stop
// (spec.md §6). Grounded in the corpus's cmd/periscope/main.go shape.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/injooinjoo/streaming-agent-sub004/internal/collector"
	"github.com/injooinjoo/streaming-agent-sub004/internal/config"
	"github.com/injooinjoo/streaming-agent-sub004/internal/logging"
	"github.com/injooinjoo/streaming-agent-sub004/internal/metrics"
	"github.com/injooinjoo/streaming-agent-sub004/internal/persistence"
	"github.com/injooinjoo/streaming-agent-sub004/internal/platform/chzzk"
	"github.com/injooinjoo/streaming-agent-sub004/internal/platform/soop"
	"github.com/injooinjoo/streaming-agent-sub004/internal/server"
	"github.com/injooinjoo/streaming-agent-sub004/internal/warehouse"
)

const serviceVersion = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	logger := logging.NewLoggerWithService("analytics-collector")
	config.LoadEnv(logger)
	logger.SetLevel(config.GetLogLevel())

	cfg := config.Load()

	wh, err := warehouse.Connect(cfg.Warehouse, logger)
	if err != nil {
		logger.WithError(err).Error("warehouse connection failed, exiting")
		return 1
	}
	defer wh.Disconnect()

	store := persistence.New(wh, logger)
	collectorMetrics := metrics.New(cfg.ServiceName, serviceVersion)

	soopClient := soop.NewClient(config.GetEnv("SOOP_API_HOST", ""), logger)
	chzzkClient := chzzk.NewClient(config.GetEnv("CHZZK_API_HOST", ""), logger)

	orch := collector.New(cfg, logger, store, collectorMetrics, collector.Clients{
		SOOP:  soopClient,
		CHZZK: chzzkClient,
	})

	health := metrics.NewHealthChecker(cfg.ServiceName, serviceVersion)
	health.AddCheck("warehouse", func() metrics.CheckResult {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if !wh.IsHealthy(ctx) {
			return metrics.CheckResult{Status: metrics.StatusUnhealthy, Message: "warehouse unreachable"}
		}
		return metrics.CheckResult{Status: metrics.StatusHealthy}
	})
	health.AddCheck("pools", func() metrics.CheckResult {
		soopSize, chzzkSize := orch.PoolSizes()
		return metrics.CheckResult{
			Status:  metrics.StatusHealthy,
			Message: "soop=" + strconv.Itoa(soopSize) + " chzzk=" + strconv.Itoa(chzzkSize),
		}
	})

	router := server.SetupRouter(logger, health, collectorMetrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx, cfg.HealthPort, router, logger)
	}()

	logger.Info("analytics collector starting")
	orchErr := orch.Run(ctx)

	stop()
	if err := <-serverErrCh; err != nil {
		logger.WithError(err).Warn("operational server exited with error")
	}

	if orchErr != nil {
		logger.WithError(orchErr).Error("orchestrator exited with error")
		return 1
	}
	logger.Info("analytics collector stopped cleanly")
	return 0
}
