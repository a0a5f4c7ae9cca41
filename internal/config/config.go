package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Service ServiceConfig `yaml:"service"`
	Log     LogConfig     `yaml:"log"`
	Broker  BrokerConfig  `yaml:"broker"`
	Storage StorageConfig `yaml:"storage"`
	Kernel  KernelConfig  `yaml:"kernel"`
	Limits  LimitsConfig  `yaml:"limits"`
	Metrics MetricsConfig `yaml:"metrics"`
	Health  HealthConfig  `yaml:"health"`
}

type ServiceConfig struct {
	Name string `yaml:"name"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type BrokerConfig struct {
	Brokers         []string `yaml:"brokers"`
	GroupID         string   `yaml:"group_id"`
	UploadTopic     string   `yaml:"upload_topic"`
	CompletedTopic  string   `yaml:"completed_topic"`
	FailedTopic     string   `yaml:"failed_topic"`
	DeadLetterTopic string   `yaml:"dead_letter_topic"` // empty = ack malformed without routing
	MaxInFlight     int      `yaml:"max_in_flight"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"` // "s3" | "gcs" | "minio" | "local"
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"` // default bucket when the envelope omits one
	LocalDir  string `yaml:"local_dir"`
}

type KernelConfig struct {
	TessellationEndpoint string        `yaml:"tessellation_endpoint"` // empty = CAD formats rejected
	TessellationTimeout  time.Duration `yaml:"tessellation_timeout"`
}

type LimitsConfig struct {
	MaxFileSizeMB    int64         `yaml:"max_file_size_mb"`
	JobTimeout       time.Duration `yaml:"job_timeout"`
	DownloadAttempts int           `yaml:"download_attempts"`
	TempDir          string        `yaml:"temp_dir"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type HealthConfig struct {
	Address string `yaml:"address"`
}

// MaxFileSizeBytes returns the configured size limit in bytes.
func (l LimitsConfig) MaxFileSizeBytes() int64 {
	return l.MaxFileSizeMB * 1024 * 1024
}

// MustLoad builds the configuration from an optional YAML file
// (GEOMETRY_CONFIG_FILE) with environment variables taking precedence.
// A .env file in the working directory is honored if present.
func MustLoad() Config {
	log.Println("[config] loading")

	// Optional, development convenience only.
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("GEOMETRY_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("[config] read %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("[config] parse %s: %v", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[config] invalid: %v", err)
	}

	return cfg
}

func defaults() Config {
	return Config{
		Service: ServiceConfig{Name: "geometry-service"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Broker: BrokerConfig{
			Brokers:        []string{"localhost:9092"},
			GroupID:        "geometry-service",
			UploadTopic:    "maliev.upload.completed",
			CompletedTopic: "maliev.geometry.analysis.completed",
			FailedTopic:    "maliev.geometry.analysis.failed",
			MaxInFlight:    4,
		},
		Storage: StorageConfig{
			Backend:   "minio",
			Endpoint:  "localhost:9000",
			AccessKey: "minioadmin",
			SecretKey: "minioadmin",
			Bucket:    "uploads",
		},
		Kernel: KernelConfig{
			TessellationTimeout: 60 * time.Second,
		},
		Limits: LimitsConfig{
			MaxFileSizeMB:    200,
			JobTimeout:       30 * time.Second,
			DownloadAttempts: 3,
			TempDir:          os.TempDir(),
		},
		Metrics: MetricsConfig{Enabled: true, Address: ":9090"},
		Health:  HealthConfig{Address: ":8080"},
	}
}

func applyEnv(cfg *Config) {
	cfg.Service.Name = getenvDefault("SERVICE_NAME", cfg.Service.Name)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Broker.Brokers = strings.Split(v, ",")
	}
	cfg.Broker.GroupID = getenvDefault("KAFKA_GROUP_ID", cfg.Broker.GroupID)
	cfg.Broker.UploadTopic = getenvDefault("UPLOAD_TOPIC", cfg.Broker.UploadTopic)
	cfg.Broker.CompletedTopic = getenvDefault("COMPLETED_TOPIC", cfg.Broker.CompletedTopic)
	cfg.Broker.FailedTopic = getenvDefault("FAILED_TOPIC", cfg.Broker.FailedTopic)
	cfg.Broker.DeadLetterTopic = getenvDefault("DEAD_LETTER_TOPIC", cfg.Broker.DeadLetterTopic)
	if v := os.Getenv("MAX_IN_FLIGHT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Broker.MaxInFlight = parsed
		}
	}

	cfg.Storage.Backend = getenvDefault("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Endpoint = getenvDefault("STORAGE_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.Region = getenvDefault("STORAGE_REGION", cfg.Storage.Region)
	cfg.Storage.AccessKey = getenvDefault("STORAGE_ACCESS_KEY", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = getenvDefault("STORAGE_SECRET_KEY", cfg.Storage.SecretKey)
	cfg.Storage.Bucket = getenvDefault("STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.LocalDir = getenvDefault("STORAGE_LOCAL_DIR", cfg.Storage.LocalDir)
	if v := os.Getenv("STORAGE_USE_SSL"); v != "" {
		cfg.Storage.UseSSL = v == "true"
	}

	cfg.Kernel.TessellationEndpoint = getenvDefault("TESSELLATION_ENDPOINT", cfg.Kernel.TessellationEndpoint)
	if v := os.Getenv("TESSELLATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Kernel.TessellationTimeout = d
		}
	}

	if v := os.Getenv("MAX_FILE_SIZE_MB"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.MaxFileSizeMB = parsed
		}
	}
	if v := os.Getenv("JOB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Limits.JobTimeout = d
		}
	}
	if v := os.Getenv("DOWNLOAD_ATTEMPTS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Limits.DownloadAttempts = parsed
		}
	}
	cfg.Limits.TempDir = getenvDefault("TEMP_DIR", cfg.Limits.TempDir)

	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
	cfg.Metrics.Address = getenvDefault("METRICS_ADDRESS", cfg.Metrics.Address)
	cfg.Health.Address = getenvDefault("HEALTH_ADDRESS", cfg.Health.Address)
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if len(c.Broker.Brokers) == 0 {
		return fmt.Errorf("at least one kafka broker is required")
	}
	if c.Broker.UploadTopic == "" {
		return fmt.Errorf("upload topic is required")
	}
	if c.Broker.CompletedTopic == "" || c.Broker.FailedTopic == "" {
		return fmt.Errorf("completed and failed topics are required")
	}
	if c.Broker.MaxInFlight < 1 {
		return fmt.Errorf("max_in_flight must be >= 1, got %d", c.Broker.MaxInFlight)
	}
	if c.Limits.MaxFileSizeMB < 1 {
		return fmt.Errorf("max_file_size_mb must be >= 1, got %d", c.Limits.MaxFileSizeMB)
	}
	if c.Limits.DownloadAttempts < 1 {
		return fmt.Errorf("download_attempts must be >= 1, got %d", c.Limits.DownloadAttempts)
	}
	if c.Limits.JobTimeout <= 0 {
		return fmt.Errorf("job_timeout must be positive, got %v", c.Limits.JobTimeout)
	}
	switch c.Storage.Backend {
	case "s3", "gcs", "minio":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("local_dir required for local storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
