package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultModelName is the hub identifier used when no model directory is mounted.
const DefaultModelName = "text-embedding-3-large"

// Pooling modes accepted in embedding.pooling.
const (
	PoolingMasked = "masked"
	PoolingAll    = "all"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5001
	}
	if cfg.Server.ScorePath == "" {
		cfg.Server.ScorePath = "/score"
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 10 << 20
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = int(cfg.Server.RateLimit)
		if cfg.Server.RateBurst < 1 {
			cfg.Server.RateBurst = 1
		}
	}
	if cfg.GRPC.Port == 0 {
		cfg.GRPC.Port = 50051
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = DefaultModelName
	}
	if cfg.Model.CacheDir == "" {
		cfg.Model.CacheDir = defaultCacheDir()
	}
	if cfg.Model.HubURL == "" {
		cfg.Model.HubURL = "https://huggingface.co"
	}
	if cfg.Model.Revision == "" {
		cfg.Model.Revision = "main"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 8192
	}
	if cfg.Embedding.MaxBatchSize == 0 {
		cfg.Embedding.MaxBatchSize = 256
	}
	if cfg.Embedding.Pooling == "" {
		cfg.Embedding.Pooling = PoolingMasked
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "none"
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 10000
	}
	if cfg.Cache.SQLitePath == "" {
		cfg.Cache.SQLitePath = filepath.Join(cfg.Model.CacheDir, "vectors.db")
	}
	if cfg.Cache.RedisAddr == "" {
		cfg.Cache.RedisAddr = "localhost:6379"
	}
	if cfg.Cache.RedisTTL == 0 {
		cfg.Cache.RedisTTL = 24 * time.Hour
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "embedserve", "models")
	}
	return filepath.Join(os.TempDir(), "embedserve", "models")
}
