package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evfleet/station-simulator/internal/cache"
	"github.com/evfleet/station-simulator/internal/config"
	"github.com/evfleet/station-simulator/internal/logger"
	"github.com/evfleet/station-simulator/internal/metrics"
	"github.com/evfleet/station-simulator/internal/notify"
	"github.com/evfleet/station-simulator/internal/registry"
	"github.com/evfleet/station-simulator/internal/supervisor"
)

func main() {
	// 1. Load configuration.
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logging.
	logCfg := &logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	}
	if err := logger.InitGlobalLogger(logCfg); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Global()
	log.Infof("station-simulator starting, pod=%s profile=%s", cfg.PodID, cfg.App.Profile)

	// 3. Initialize the local id-tag authorization cache.
	authCache := cache.New(cache.Config{
		ShardCount:      cfg.Cache.ShardCount,
		MaxEntriesShard: cfg.Cache.MaxSize,
		TTL:             cfg.Cache.TTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
	})
	defer authCache.Close()
	log.Info("authorization cache initialized")

	// 4. Initialize the station-ownership registry (optional: a Redis dial
	// failure is logged and the fleet runs without double-dial protection
	// rather than refusing to start).
	var reg *registry.Registry
	if cfg.Redis.Addr != "" {
		reg, err = registry.New(cfg.Redis)
		if err != nil {
			log.ErrorWithErr(err, "station-ownership registry unavailable, continuing without it")
		} else {
			log.Info("station-ownership registry initialized")
			defer reg.Close()
		}
	}

	// 5. Initialize the Kafka event producer and remote-command consumer
	// (optional: absence just means events aren't published externally and
	// no remote commands are accepted).
	var producer *notify.Producer
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.EventsTopic != "" {
		producer, err = notify.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.PodID, notify.ProducerConfig{
			RetryMax:        cfg.Kafka.Producer.RetryMax,
			ReturnSuccesses: cfg.Kafka.Producer.ReturnSuccesses,
			FlushFrequency:  cfg.Kafka.Producer.FlushFrequency,
		}, log)
		if err != nil {
			log.ErrorWithErr(err, "kafka event producer unavailable, continuing without it")
		} else {
			log.Info("kafka event producer initialized")
			defer producer.Close()
		}
	}

	// 6. Build the supervisor and start every station template.
	deps := supervisor.Deps{AuthCache: authCache}
	if reg != nil {
		deps.Registry = reg
		deps.RenewInterval = cfg.Redis.LeaseTTL / 2
	}
	if producer != nil {
		deps.Producer = producer
	}
	mgr := supervisor.New(cfg, deps, log)

	ctx, cancelStations := context.WithCancel(context.Background())
	defer cancelStations()
	if err := mgr.LoadAndStart(ctx); err != nil {
		log.Fatalf("failed to start station fleet: %v", err)
	}
	log.Infof("station fleet started: %d station(s)", len(mgr.Stations()))

	var consumer *notify.Consumer
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.CommandsTopic != "" {
		consumer, err = notify.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.CommandsTopic, log)
		if err != nil {
			log.ErrorWithErr(err, "kafka remote-command consumer unavailable, continuing without it")
		} else {
			if err := consumer.Start(mgr.HandleRemoteCommand); err != nil {
				log.ErrorWithErr(err, "failed to start kafka remote-command consumer")
			} else {
				log.Info("kafka remote-command consumer started")
			}
			defer consumer.Close()
		}
	}

	// 7. Start the Prometheus metrics endpoint.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		log.Infof("metrics server listening on %s", cfg.Monitoring.MetricsAddr)
		if err := http.ListenAndServe(cfg.Monitoring.MetricsAddr, mux); err != nil {
			log.ErrorWithErr(err, "metrics server failed")
		}
	}()

	// 8. Wait for a termination signal, then shut down the fleet.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down station-simulator...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	mgr.Stop(shutdownCtx)

	log.Info("station-simulator stopped")
}
