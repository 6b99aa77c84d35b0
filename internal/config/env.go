package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables read at startup.
const (
	EnvModelDir    = "AZUREML_MODEL_DIR"
	EnvModelName   = "MODEL_NAME"
	EnvHubToken    = "HF_TOKEN"
	EnvONNXLibrary = "ONNXRUNTIME_LIB"
	EnvHost        = "EMBEDSERVE_HOST"
	EnvPort        = "EMBEDSERVE_PORT"
	EnvDebug       = "EMBEDSERVE_DEBUG"
	EnvRedisAddr   = "REDIS_ADDR"
	EnvRedisPass   = "REDIS_PASSWORD"
)

// LoadEnvFiles loads each existing .env file into the process environment.
// Variables that are already set are never overridden.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvModelDir); ok && v != "" {
		cfg.Model.Dir = v
	}
	if v, ok := os.LookupEnv(EnvModelName); ok && v != "" {
		cfg.Model.Name = v
	}
	if v, ok := os.LookupEnv(EnvHubToken); ok {
		cfg.Model.HubToken = v
	}
	if v, ok := os.LookupEnv(EnvONNXLibrary); ok && v != "" {
		cfg.Model.ONNXLibraryPath = v
	}
	if v, ok := os.LookupEnv(EnvHost); ok && v != "" {
		cfg.Server.Host = v
	}
	if v, ok := os.LookupEnv(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid %s: %q", EnvPort, v)
		}
		cfg.Server.Port = port
	}
	if v, ok := os.LookupEnv(EnvDebug); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", EnvDebug, v)
		}
		cfg.Debug = debug
	}
	if v, ok := os.LookupEnv(EnvRedisAddr); ok && v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v, ok := os.LookupEnv(EnvRedisPass); ok {
		cfg.Cache.RedisPassword = v
	}
	return nil
}
