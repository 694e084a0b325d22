// Package main is the entry point for the anthrogate server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"

	"anthrogate/internal/auth"
	"anthrogate/internal/config"
	"anthrogate/internal/httpapi"
	"anthrogate/internal/invoke"
	"anthrogate/internal/pipeline"
	"anthrogate/internal/ratelimit"
	"anthrogate/internal/resolve"
	"anthrogate/internal/storage/postgres"
	"anthrogate/internal/store"
	"anthrogate/internal/telemetry"
	"anthrogate/internal/usage"
)

// backingStore is the union of the Key Repository Contract and the custom-model-mapping listing
// GET /v1/models needs, satisfied by both store.MemoryStore and postgres.Store.
type backingStore interface {
	store.Store
	ListModelMappings(ctx context.Context) ([]string, error)
}

func main() {
	configPath := flag.String("config", "config.toml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting anthrogate",
		"version", "0.1.0",
		"http_port", cfg.Server.HTTPPort,
	)

	metrics := telemetry.NewMetrics(nil)

	var backing backingStore
	switch cfg.Database.Driver {
	case "postgres":
		slog.Info("initializing postgres storage",
			"host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
		pgStore, err := postgres.NewStore(&cfg.Database, cfg.Security.MetadataEncryptionKey)
		if err != nil {
			slog.Error("failed to initialize postgres storage", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		backing = pgStore
	default:
		slog.Info("using in-memory key repository", "driver", cfg.Database.Driver)
		backing = store.NewMemoryStore()
	}

	resolver := resolve.New(store.NewResolverAdapter(backing))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seedModelMappings(ctx, cfg, backing)

	bedrockClient, err := invoke.NewIAMClient(ctx, cfg.Bedrock.Region, cfg.Bedrock.AccessKeyID, cfg.Bedrock.SecretAccessKey)
	if err != nil {
		slog.Error("failed to initialize bedrock client", "error", err)
		os.Exit(1)
	}
	invoker := invoke.New(bedrockClient, cfg.Server.StreamingTimeout)

	authenticator := auth.New(backing, cfg.Security.MasterAPIKey, cfg.Security.RequireAPIKey)

	var limiter *ratelimit.Limiter
	if cfg.Security.RateLimitEnabled {
		limiter = ratelimit.New(float64(cfg.Security.RateLimitRequests), cfg.Security.WindowSeconds(), time.Hour)
		defer limiter.Stop()
	}

	recorder := usage.New(backing)

	p := pipeline.New(authenticator, limiter, resolver, invoker, recorder)

	server := httpapi.NewServer(p, backing, metrics, cfg.Security.APIKeyHeader)

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	httpServer := &http.Server{
		Addr:         httpAddr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("shutdown signal received")
		cancel()
	}()

	go func() {
		slog.Info("starting http server", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	slog.Info("anthrogate ready",
		"endpoint", fmt.Sprintf("http://localhost:%d/v1/messages", cfg.Server.HTTPPort),
		"metrics_endpoint", fmt.Sprintf("http://localhost:%d/metrics", cfg.Server.HTTPPort),
	)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("graceful shutdown did not complete cleanly", "error", err)
	}

	time.Sleep(2 * time.Second)
	slog.Info("anthrogate stopped")
}

// seedModelMappings populates tier-1 custom model mappings from the Bedrock control plane's live
// inference-profile inventory (§4.1), so clients requesting a profile anthrogate's built-in table
// doesn't yet know about still resolve without a config change. Best-effort: any failure here is
// logged and startup continues with the built-in table alone.
func seedModelMappings(ctx context.Context, cfg *config.Config, backing backingStore) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Bedrock.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Bedrock.AccessKeyID, cfg.Bedrock.SecretAccessKey, "")),
	)
	if err != nil {
		slog.Warn("skipping bedrock model seed, could not load AWS config", "error", err)
		return
	}
	resolve.SeedFromInferenceProfiles(ctx, bedrock.NewFromConfig(awsCfg), backing)
}
