// Command gateway runs the upstream aggregation gateway: one HTTP surface
// in front of the astronomy, imagery and telemetry upstreams, plus the CMS
// and upload collaborators.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cassiopeia-dash/gateway/internal/app/httpapi"
	"github.com/cassiopeia-dash/gateway/internal/app/services/astro"
	"github.com/cassiopeia-dash/gateway/internal/app/services/cms"
	"github.com/cassiopeia-dash/gateway/internal/app/services/datasets"
	"github.com/cassiopeia-dash/gateway/internal/app/services/imagery"
	"github.com/cassiopeia-dash/gateway/internal/app/services/telemetry"
	"github.com/cassiopeia-dash/gateway/internal/app/storage"
	"github.com/cassiopeia-dash/gateway/internal/cache"
	"github.com/cassiopeia-dash/gateway/internal/config"
	"github.com/cassiopeia-dash/gateway/internal/logging"
	"github.com/cassiopeia-dash/gateway/internal/metrics"
	"github.com/cassiopeia-dash/gateway/internal/middleware"
	"github.com/cassiopeia-dash/gateway/internal/upstream"
)

func main() {
	configPath := flag.String("config", "config/gateway.yaml", "path to the gateway config file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := logging.NewDefault("gateway")
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "configuration error", err, nil)
		os.Exit(1)
	}

	mts := metrics.New(prometheus.DefaultRegisterer)

	provider, err := newCacheProvider(ctx, cfg.Cache, log)
	if err != nil {
		log.Error(ctx, "cache backend unavailable", err, nil)
		os.Exit(1)
	}
	defer provider.Close(ctx)

	deps, err := buildServices(cfg, provider, log, mts)
	if err != nil {
		log.Error(ctx, "service construction failed", err, nil)
		os.Exit(1)
	}

	router := httpapi.NewRouter(deps)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.Use(
		middleware.Tracing(log.Named("http")),
		middleware.Metrics("gateway", mts),
		middleware.CORS(cfg.Server.AllowedOrigins),
		middleware.Recovery(log.Named("recovery")),
	)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", map[string]any{"addr": cfg.Server.Addr})
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info(ctx, "shutting down", map[string]any{"signal": sig.String()})
	case err := <-errCh:
		log.Error(ctx, "server failed", err, nil)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "shutdown incomplete", err, nil)
	}
}

func newCacheProvider(ctx context.Context, cfg config.Cache, log *logging.Logger) (cache.Provider, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryProvider(), nil
	}
	provider := cache.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := provider.Ping(ctx); err != nil {
		return nil, err
	}
	log.Info(ctx, "using redis cache", map[string]any{"addr": cfg.RedisAddr})
	return provider, nil
}

func buildServices(cfg *config.Config, provider cache.Provider, log *logging.Logger, mts *metrics.Metrics) (httpapi.Deps, error) {
	astroClient, err := upstream.NewAstronomy(upstream.AstronomyConfig{
		BaseURL: cfg.Astronomy.BaseURL,
		AppID:   cfg.Astronomy.AppID,
		Secret:  cfg.Astronomy.Secret,
	}, log.Named("upstream-astronomy"), mts)
	if err != nil {
		return httpapi.Deps{}, err
	}

	imageryClient, err := upstream.NewImagery(upstream.ImageryConfig{
		BaseURL: cfg.Imagery.BaseURL,
		APIKey:  cfg.Imagery.APIKey,
		Email:   cfg.Imagery.Email,
	}, log.Named("upstream-imagery"), mts)
	if err != nil {
		return httpapi.Deps{}, err
	}

	telemetryClient, err := upstream.NewTelemetry(upstream.TelemetryConfig{
		BaseURL: cfg.Telemetry.BaseURL,
	}, log.Named("upstream-telemetry"), mts)
	if err != nil {
		return httpapi.Deps{}, err
	}

	deps := httpapi.Deps{
		Astro: astro.NewService(astroClient,
			cache.NewStore[[]json.RawMessage]("astro", provider, log, mts), log.Named("astro")),
		Imagery: imagery.NewService(imageryClient,
			cache.NewStore[imagery.Feed]("imagery", provider, log, mts), log.Named("imagery")),
		Telemetry: telemetry.NewService(telemetryClient,
			cache.NewStore[telemetry.Snapshot]("telemetry", provider, log, mts),
			cache.NewStore[telemetry.Dashboard]("dashboard", provider, log, mts),
			log.Named("telemetry")),
		Datasets: datasets.NewService(telemetryClient,
			cache.NewStore[[]datasets.Row]("datasets", provider, log, mts), log.Named("datasets"), 0),
		Log: log.Named("httpapi"),
	}

	if cfg.CMS.DSN != "" {
		repo, err := cms.NewRepository(cfg.CMS.DSN)
		if err != nil {
			return httpapi.Deps{}, err
		}
		deps.Pages = cms.NewService(repo, log.Named("cms"))
	}

	if cfg.Uploads.Dir != "" {
		fs, err := storage.NewFilesystem(cfg.Uploads.Dir)
		if err != nil {
			return httpapi.Deps{}, err
		}
		deps.Uploads = fs
	}

	return deps, nil
}
