package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tucomercio/internal/api"
	"tucomercio/internal/cache"
	"tucomercio/internal/common/auth"
	awsclient "tucomercio/internal/common/aws"
	"tucomercio/internal/common/camunda"
	"tucomercio/internal/common/config"
	"tucomercio/internal/common/database"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/common/observability"
	"tucomercio/internal/common/validation"
	"tucomercio/internal/realtime"
	"tucomercio/internal/search"
	"tucomercio/internal/services"
	"tucomercio/internal/storage"
	"tucomercio/internal/store"
	flushviews "tucomercio/internal/workers/data-access/flush-view-counters"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const viewFlushInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{"service": "api-server"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New("api-server", log)
	defer obs.Shutdown(context.Background())

	// --- Postgres ---
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres setup failed", zap.Error(err))
	}
	defer pg.Close()
	if err := database.RetryWithBackoff(ctx, "PostgreSQL connection", 15, 2*time.Second, log, func() error {
		return pg.Ping(ctx)
	}); err != nil {
		zapLog.Fatal("postgres unavailable", zap.Error(err))
	}
	if cfg.Database.Postgres.AutoMigrate {
		version, err := database.Migrate(pg.DB.DB)
		if err != nil {
			zapLog.Fatal("migrations failed", zap.Error(err))
		}
		log.Info("schema up to date", map[string]interface{}{"version": version})
	}

	// --- Redis ---
	rc := database.NewRedis(cfg.Database.Redis, "api-server")
	defer rc.Close()
	if err := database.RetryWithBackoff(ctx, "Redis connection", 10, 2*time.Second, log, func() error {
		return rc.Ping(ctx)
	}); err != nil {
		zapLog.Fatal("redis unavailable", zap.Error(err))
	}

	// --- Elasticsearch ---
	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		zapLog.Fatal("elasticsearch setup failed", zap.Error(err))
	}

	// --- Workflow engine ---
	var starter camunda.Starter = camunda.DisabledStarter{Logger: log}
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClient(cfg.Camunda.BrokerAddress, config.GetDuration(cfg.Camunda.RequestTimeout))
		if err != nil {
			zapLog.Fatal("zeebe client failed", zap.Error(err))
		}
		defer zeebe.Close()
		starter = zeebe
	}

	// --- Blob storage ---
	s3, err := awsclient.NewS3Client(ctx, cfg.Storage.Region, cfg.Storage.Bucket)
	if err != nil {
		zapLog.Fatal("s3 client failed", zap.Error(err))
	}

	verifier, err := auth.NewTokenVerifier(cfg.Auth.JWT.PublicKeyPEM, cfg.Auth.JWT.HMACSecret, cfg.Auth.JWT.Issuer, cfg.Auth.JWT.Audience)
	if err != nil {
		zapLog.Fatal("token verifier failed", zap.Error(err))
	}
	keycloak := auth.NewKeycloakClient(cfg.Auth.Keycloak.URL, cfg.Auth.Keycloak.Realm, cfg.Auth.Keycloak.ClientID, cfg.Auth.Keycloak.ClientSecret)

	st := store.New(pg.DB, obs)
	c := cache.New(rc.Client, log)
	views := cache.NewViewCounter(rc.Client)
	broker := realtime.NewBroker(rc.Client, log)
	presence := realtime.NewPresence(rc.Client, time.Duration(cfg.Realtime.PresenceTTL)*time.Second)
	hub := realtime.NewHub(log)

	index := search.New(es.Client, cfg.Database.Elasticsearch.Index, st, log)
	if err := index.EnsureIndex(ctx); err != nil {
		log.Warn("search index not ready, listings fall back to postgres", map[string]interface{}{"error": err})
	}

	var indexSync services.IndexSync = services.DirectIndexSync{Syncer: search.NewSyncer(st, index)}
	if cfg.Camunda.Enabled {
		indexSync = services.WorkflowIndexSync{Starter: starter}
	}

	notify := services.NewNotifications(st, broker, starter, cfg.Notifications, obs, log)
	svc := api.Services{
		Businesses: services.NewBusinesses(services.BusinessDeps{
			Store:    st,
			Search:   index,
			Views:    views,
			Uploads:  storage.New(s3, cfg.Storage),
			Index:    indexSync,
			Notify:   notify,
			Cache:    c,
			CacheTTL: time.Duration(cfg.Cache.BusinessTTL) * time.Second,
			Location: cfg.App.Location(),
			Logger:   log,
		}),
		Reviews:       services.NewReviews(st, broker, notify, indexSync, c, log),
		Favorites:     services.NewFavorites(st, broker, c, log),
		Chats:         services.NewChats(st, broker, presence, notify, log),
		Notifications: notify,
		Plans:         services.NewPlans(st),
		Campaigns:     services.NewCampaigns(st, notify, log),
		Promotions:    services.NewPromotions(st),
		Users:         services.NewUsers(st, keycloak, notify, c, time.Duration(cfg.Cache.ProfileTTL)*time.Second, log),
		Dashboard:     services.NewDashboard(st),
	}

	checks := map[string]api.Check{
		"postgres":      pg.Ping,
		"redis":         rc.Ping,
		"elasticsearch": es.Ping,
	}
	if zeebe != nil {
		checks["camunda"] = zeebe.HealthCheck
	}

	gateway := realtime.NewGateway(hub, verifier, realtime.NewTopicAuthorizer(st), presence, cfg.Realtime, cfg.Server.AllowedOrigins, log)
	router := api.NewRouter(api.Options{
		Services:  svc,
		Verifier:  verifier,
		Validator: validation.NewValidator(),
		Realtime:  gateway,
		Checks:    checks,
		Server:    cfg.Server,
		Logger:    log,
	})
	server := api.NewServer(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return broker.Run(gctx, hub.Dispatch)
	})
	if !cfg.Camunda.Enabled {
		// No timer process without the engine.
		flusher := flushviews.NewHandler(flushviews.NewConfig(cfg), views, st, obs, log)
		g.Go(func() error {
			flusher.Run(gctx, viewFlushInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zapLog.Fatal("api server stopped", zap.Error(err))
	}
	log.Info("api server stopped", nil)
}
