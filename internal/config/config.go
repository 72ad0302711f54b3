// Package config loads service configuration from the environment and an
// optional YAML (or JSON) config file. Environment variables win over the
// file, the file wins over defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration.
type Config struct {
	HTTPPort          string
	DBPath            string
	DropDir           string
	APIBaseURL        string
	WorkerCount       int
	JobQueueSize      int
	JobTimeoutSec     int
	SnapshotBatchSize int
	EnableWatcher     bool
	StrictConfig      bool
}

type fileConfig struct {
	HTTPPort          string `json:"http_port" yaml:"http_port"`
	DBPath            string `json:"db_path" yaml:"db_path"`
	DropDir           string `json:"drop_dir" yaml:"drop_dir"`
	APIBaseURL        string `json:"api_base_url" yaml:"api_base_url"`
	WorkerCount       *int   `json:"worker_count" yaml:"worker_count"`
	JobQueueSize      *int   `json:"job_queue_size" yaml:"job_queue_size"`
	JobTimeoutSec     *int   `json:"job_timeout_sec" yaml:"job_timeout_sec"`
	SnapshotBatchSize *int   `json:"snapshot_batch_size" yaml:"snapshot_batch_size"`
	EnableWatcher     *bool  `json:"enable_watcher" yaml:"enable_watcher"`
}

const (
	defaultPort          = ":8000"
	defaultDBPath        = "runtime/ticklog.db"
	defaultDropDir       = "runtime/imports"
	minQueueSize         = 1
	defaultQueueSize     = 16
	maxQueueSize         = 256
	defaultWorkerCount   = 2
	defaultJobTimeoutSec = 300
	defaultSnapshotBatch = 100
)

// Load reads configuration from environment variables and applies sane defaults.
func Load() (Config, error) {
	cfg := Config{
		WorkerCount:       defaultWorkerCount,
		JobQueueSize:      defaultQueueSize,
		JobTimeoutSec:     defaultJobTimeoutSec,
		SnapshotBatchSize: defaultSnapshotBatch,
		EnableWatcher:     true,
		StrictConfig:      parseBoolEnv("STRICT_CONFIG"),
	}

	configPath := getEnv("CONFIG_PATH", filepath.Join("config", "config.yaml"))
	fileCfg, fileErr := loadFileConfig(configPath)
	if fileErr != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", configPath, fileErr)
		}
		if !errors.Is(fileErr, os.ErrNotExist) {
			log.Printf("config load failed (%s): %v (using defaults)", configPath, fileErr)
		}
	}

	cfg.DBPath = firstNonEmpty(os.Getenv("DB_PATH"), fileCfg.DBPath, defaultDBPath)
	cfg.DropDir = firstNonEmpty(os.Getenv("DROP_DIR"), fileCfg.DropDir, defaultDropDir)
	cfg.APIBaseURL = firstNonEmpty(os.Getenv("API_BASE_URL"), fileCfg.APIBaseURL)

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), fileCfg.HTTPPort, defaultPort)
	if legacyPort := os.Getenv("PORT"); legacyPort != "" && cfg.HTTPPort == defaultPort {
		cfg.HTTPPort = legacyPort
	}
	if !strings.HasPrefix(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}

	if fileCfg.WorkerCount != nil && *fileCfg.WorkerCount > 0 {
		cfg.WorkerCount = *fileCfg.WorkerCount
	}
	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Printf("invalid WORKER_COUNT=%q, using default %d", v, defaultWorkerCount)
			n = defaultWorkerCount
		}
		cfg.WorkerCount = n
	}

	if fileCfg.JobQueueSize != nil && *fileCfg.JobQueueSize > 0 {
		cfg.JobQueueSize = *fileCfg.JobQueueSize
	}
	if v := os.Getenv("JOB_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid JOB_QUEUE_SIZE=%q, using default %d", v, defaultQueueSize)
			n = defaultQueueSize
		}
		cfg.JobQueueSize = n
	}
	if cfg.JobQueueSize < minQueueSize {
		log.Printf("JOB_QUEUE_SIZE raised to minimum %d (was %d)", minQueueSize, cfg.JobQueueSize)
		cfg.JobQueueSize = minQueueSize
	}
	if cfg.JobQueueSize > maxQueueSize {
		log.Printf("JOB_QUEUE_SIZE capped at %d (was %d)", maxQueueSize, cfg.JobQueueSize)
		cfg.JobQueueSize = maxQueueSize
	}
	if cfg.JobQueueSize < cfg.WorkerCount {
		log.Printf("JOB_QUEUE_SIZE must be >= WORKER_COUNT; raising to %d", cfg.WorkerCount)
		cfg.JobQueueSize = cfg.WorkerCount
	}

	if fileCfg.JobTimeoutSec != nil && *fileCfg.JobTimeoutSec > 0 {
		cfg.JobTimeoutSec = *fileCfg.JobTimeoutSec
	}
	if v := os.Getenv("JOB_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid JOB_TIMEOUT_SEC: %w", err)
		}
		if n <= 0 {
			return cfg, fmt.Errorf("JOB_TIMEOUT_SEC must be positive")
		}
		cfg.JobTimeoutSec = n
	}

	if fileCfg.SnapshotBatchSize != nil && *fileCfg.SnapshotBatchSize > 0 {
		cfg.SnapshotBatchSize = *fileCfg.SnapshotBatchSize
	}
	if v := os.Getenv("SNAPSHOT_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Printf("invalid SNAPSHOT_BATCH_SIZE=%q, using default %d", v, defaultSnapshotBatch)
			n = defaultSnapshotBatch
		}
		cfg.SnapshotBatchSize = n
	}

	if fileCfg.EnableWatcher != nil {
		cfg.EnableWatcher = *fileCfg.EnableWatcher
	}
	if v := strings.TrimSpace(os.Getenv("ENABLE_WATCHER")); v != "" {
		cfg.EnableWatcher = parseBoolEnv("ENABLE_WATCHER")
	}

	if err := validateConfig(cfg); err != nil {
		if cfg.StrictConfig {
			return cfg, err
		}
		log.Printf("config validation failed: %v (continuing)", err)
	}

	return cfg, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.HTTPPort) == "" {
		return errors.New("HTTP_PORT is required")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH is required")
	}
	if cfg.EnableWatcher && strings.TrimSpace(cfg.DropDir) == "" {
		return errors.New("DROP_DIR is required when the watcher is enabled")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}
