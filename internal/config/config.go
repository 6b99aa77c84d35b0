// Package config provides configuration loading and structs for the embedding server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ScorePath      string        `yaml:"score_path"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RateLimit is requests per second across the replica; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// GRPCConfig holds gRPC listener settings.
type GRPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// ModelConfig says where the tokenizer and encoder are loaded from.
type ModelConfig struct {
	// Dir is a locally mounted model directory; it takes priority over Name.
	Dir string `yaml:"dir"`
	// Name is a hub model identifier used when Dir is empty.
	Name            string        `yaml:"name"`
	CacheDir        string        `yaml:"cache_dir"`
	HubURL          string        `yaml:"hub_url"`
	HubToken        string        `yaml:"-"`
	Revision        string        `yaml:"revision"`
	WaitTimeout     time.Duration `yaml:"wait_timeout"`
	ONNXLibraryPath string        `yaml:"onnx_library_path"`
}

// EmbeddingConfig holds tokenizer and inference settings.
type EmbeddingConfig struct {
	// Dimensions overrides the hidden size read from the model (0 = read from model).
	Dimensions       int           `yaml:"dimensions"`
	MaxTokens        int           `yaml:"max_tokens"`
	MaxBatchSize     int           `yaml:"max_batch_size"`
	InferenceTimeout time.Duration `yaml:"inference_timeout"`
	IntraOpThreads   int           `yaml:"intra_op_threads"`
	Lowercase        *bool         `yaml:"lowercase"`
	// Pooling is "masked" (attended tokens only) or "all" (padding included).
	Pooling string `yaml:"pooling"`
}

// LowercaseOrDefault returns whether the tokenizer lowercases input; defaults to true when unset.
func (e *EmbeddingConfig) LowercaseOrDefault() bool {
	if e.Lowercase != nil {
		return *e.Lowercase
	}
	return true
}

// CacheConfig selects the vector cache backend.
type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	Size          int           `yaml:"size"`
	SQLitePath    string        `yaml:"sqlite_path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"-"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
}

// Load reads and parses the config file at path, expands paths, overlays the
// environment and applies defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir := filepath.Dir(path)
		cfg.Model.Dir = expandPath(cfg.Model.Dir, configDir)
		cfg.Model.CacheDir = expandPath(cfg.Model.CacheDir, configDir)
		cfg.Cache.SQLitePath = expandPath(cfg.Cache.SQLitePath, configDir)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Embedding.Pooling {
	case PoolingMasked, PoolingAll:
	default:
		return fmt.Errorf("invalid embedding.pooling %q (want %q or %q)", cfg.Embedding.Pooling, PoolingMasked, PoolingAll)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" and other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
