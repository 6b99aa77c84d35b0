// Package main is the embedserve CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hyperjump/embedserve/internal/cache"
	"github.com/hyperjump/embedserve/internal/config"
	"github.com/hyperjump/embedserve/internal/embedding"
	"github.com/hyperjump/embedserve/internal/rpc"
	"github.com/hyperjump/embedserve/internal/server"
	"github.com/hyperjump/embedserve/internal/service"
	"github.com/hyperjump/embedserve/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

var version = "dev"

const defaultConfigPath = "/etc/embedserve/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present; when neither exists the config comes from the
// environment and defaults alone. Returns the path actually loaded ("" for none).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); statErr != nil {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	if err := config.LoadEnvFiles(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "embed":
		runEmbed()
	case "similarity":
		runSimilarity()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("embedserve version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (request previews, model resolution)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode, zap.String("version", version))
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("model_dir", cfg.Model.Dir),
		zap.String("model_name", cfg.Model.Name),
		zap.String("cache", cfg.Cache.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vectors, err := cache.New(ctx, cacheOptions(cfg))
	if err != nil {
		logger.Fatal("Failed to initialize cache", zap.Error(err))
	}
	if vectors != nil {
		defer vectors.Close()
	}

	svc := newService(cfg, service.NewModelLoader(cfg, logger), vectors, logger)
	defer svc.Close()

	httpSrv := server.NewServer(svc, &cfg.Server, logger)
	var grpcSrv *rpc.Server
	if cfg.GRPC.Enabled {
		grpcSrv = rpc.NewServer(svc, &cfg.GRPC, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if grpcSrv != nil {
		g.Go(func() error {
			if err := grpcSrv.Start(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		start := time.Now()
		if err := svc.Initialize(gctx); err != nil {
			logger.Error("model initialization failed; scoring requests will be rejected", zap.Error(err))
			return nil
		}
		info := svc.Info()
		logger.Info("model ready",
			zap.String("model", info.Model),
			zap.Int("dimensions", info.Dimensions),
			zap.Duration("took", time.Since(start)),
		)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Stop(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		if grpcSrv != nil {
			if err := grpcSrv.Stop(shutdownCtx); err != nil {
				logger.Warn("grpc shutdown", zap.Error(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server failed", zap.Error(err))
		os.Exit(1)
	}
}

func cacheOptions(cfg *config.Config) cache.Options {
	return cache.Options{
		Backend:    cfg.Cache.Backend,
		Size:       cfg.Cache.Size,
		SQLitePath: cfg.Cache.SQLitePath,
		Redis: cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.Cache.RedisTTL,
		},
	}
}

func newService(cfg *config.Config, loader service.Loader, vectors cache.Cache, logger *zap.Logger) *service.Service {
	return service.New(loader, service.Options{
		MaxTokens:        cfg.Embedding.MaxTokens,
		MaxBatchSize:     cfg.Embedding.MaxBatchSize,
		InferenceTimeout: cfg.Embedding.InferenceTimeout,
		Pooling:          embedding.PoolingMode(cfg.Embedding.Pooling),
		Cache:            vectors,
		Logger:           logger,
	})
}

func printUsage() {
	fmt.Println(`embedserve - Sentence embedding endpoint

Usage:
  embedserve server [flags]             Start the HTTP (and optional gRPC) server
  embedserve embed [flags] <text>...    Embed one or more texts
  embedserve similarity [flags] <a> <b> Cosine similarity of two texts
  embedserve status [flags]             Show model readiness
  embedserve version                    Show version
  embedserve help                       Show this help

Server Flags:
  --config string    Config file path (default: /etc/embedserve/config.yaml, or ./config.yaml)
  --debug            Enable debug logging

Embed / Similarity Flags:
  --config string    Config file path (for local mode)
  --server string    Server URL (default: http://localhost:5001). Use empty (--server "") to embed locally.
  --grpc string      gRPC address (e.g. localhost:50051); takes precedence over --server
  --mock             In local mode, use the deterministic mock encoder instead of the model
  --batch            Always send a batch payload, even for one text
  --output string    Output format: text, compact, or json (default: text)

Status Flags:
  --server string    Server URL (default: http://localhost:5001)
  --output string    Output format: text or json (default: text)

Environment:
  AZUREML_MODEL_DIR  Directory containing the model (takes priority)
  MODEL_NAME         Hub model identifier (default: text-embedding-3-large)

Examples:
  embedserve server
  embedserve embed "hello world"
  embedserve embed --output json first second
  embedserve embed --server "" --mock "offline text"
  embedserve similarity "a cat" "a kitten"
  embedserve status --output json`)
}
