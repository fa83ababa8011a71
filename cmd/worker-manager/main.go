package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tucomercio/internal/cache"
	awsclient "tucomercio/internal/common/aws"
	"tucomercio/internal/common/camunda"
	"tucomercio/internal/common/config"
	"tucomercio/internal/common/database"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/common/observability"
	"tucomercio/internal/search"
	"tucomercio/internal/store"

	dn "tucomercio/internal/workers/communication/deliver-notification"
	fv "tucomercio/internal/workers/data-access/flush-view-counters"
	ib "tucomercio/internal/workers/search/index-business"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{"service": "worker-manager"})

	zapLog.Info("Starting worker manager...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New("worker-manager", log)
	defer obs.Shutdown(context.Background())

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = database.RetryWithBackoff(ctx, "Zeebe client initialization", 10, 2*time.Second, log, func() error {
		var err error
		zeebe, err = camunda.NewClient(cfg.Camunda.BrokerAddress, config.GetDuration(cfg.Camunda.RequestTimeout))
		return err
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zeebe.Close()

	deployed, err := zeebe.DeployProcesses(ctx)
	if err != nil {
		zapLog.Fatal("process deployment failed", zap.Error(err))
	}
	log.Info("processes deployed", map[string]interface{}{"count": deployed})

	// --- Init PostgreSQL with retry ---
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres setup failed", zap.Error(err))
	}
	defer pg.Close()
	if err := database.RetryWithBackoff(ctx, "PostgreSQL connection", 15, 2*time.Second, log, func() error {
		return pg.Ping(ctx)
	}); err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}

	// --- Init Elasticsearch with retry ---
	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		zapLog.Fatal("elasticsearch setup failed", zap.Error(err))
	}
	if err := database.RetryWithBackoff(ctx, "Elasticsearch connection", 15, 2*time.Second, log, func() error {
		return es.Ping(ctx)
	}); err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}

	// --- Init Redis with retry ---
	rc := database.NewRedis(cfg.Database.Redis, "worker-manager")
	defer rc.Close()
	if err := database.RetryWithBackoff(ctx, "Redis connection", 10, 2*time.Second, log, func() error {
		return rc.Ping(ctx)
	}); err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}

	st := store.New(pg.DB, obs)
	index := search.New(es.Client, es.Index, st, log)
	if err := index.EnsureIndex(ctx); err != nil {
		zapLog.Fatal("search index setup failed", zap.Error(err))
	}

	var workers []*camunda.CamundaWorker
	start := func(taskType string, handler camunda.JobHandler) {
		wcfg := config.GetWorkerConfig(cfg, taskType)
		if !wcfg.Enabled {
			log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
			return
		}
		workers = append(workers, camunda.NewWorker(zeebe.GetClient(), taskType, camunda.WorkerOptions{
			MaxJobsActive: wcfg.MaxJobsActive,
			Timeout:       config.GetDuration(wcfg.Timeout),
			Name:          "worker-manager",
		}, handler, log))
		log.Info("worker started", map[string]interface{}{
			"taskType":      taskType,
			"maxJobsActive": wcfg.MaxJobsActive,
			"timeout":       wcfg.Timeout,
		})
	}

	// --- Search ---
	start(ib.TaskType, ib.NewHandler(ib.NewConfig(cfg), search.NewSyncer(st, index), obs, log))

	// --- Communication ---
	if config.GetWorkerConfig(cfg, dn.TaskType).Enabled {
		var email dn.EmailSender
		var sms dn.SMSSender
		if cfg.Notifications.Email.Enabled {
			ses, err := awsclient.NewSESClient(ctx, cfg.Notifications.AWS.Region, cfg.Notifications.Email.FromEmail)
			if err != nil {
				zapLog.Fatal("ses client failed", zap.Error(err))
			}
			email = ses
		}
		if cfg.Notifications.SMS.Enabled {
			sns, err := awsclient.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Fatal("sns client failed", zap.Error(err))
			}
			sms = sns
		}
		handler, err := dn.NewHandler(dn.NewConfig(cfg), st, email, sms, obs, log)
		if err != nil {
			zapLog.Fatal("deliver-notification setup failed", zap.Error(err))
		}
		start(dn.TaskType, handler)
	}

	// --- Data access ---
	start(fv.TaskType, fv.NewHandler(fv.NewConfig(cfg), cache.NewViewCounter(rc.Client), st, obs, log))

	log.Info("workers registered", map[string]interface{}{"count": len(workers)})

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := zeebe.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("health/metrics server listening", map[string]interface{}{"address": cfg.Server.MetricsAddress})
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health/metrics server failed", map[string]interface{}{"error": err})
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	log.Info("Shutdown signal received, stopping workers...", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop(shutdownCtx)
	}
	_ = metricsServer.Shutdown(shutdownCtx)

	log.Info("Worker manager stopped", nil)
}
