package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/docprov-backend/internal/data/db"
	"github.com/yungbote/docprov-backend/internal/observability"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
	"github.com/yungbote/docprov-backend/internal/pkg/neo4jdb"
	"github.com/yungbote/docprov-backend/internal/realtime/bus"
	"github.com/yungbote/docprov-backend/internal/temporalx"
)

const configPathEnv = "DOCPROV_CONFIG"

type Config struct {
	HTTPAddr    string   `yaml:"http_addr"`
	LogMode     string   `yaml:"log_mode"`
	ServiceName string   `yaml:"service_name"`
	Environment string   `yaml:"environment"`
	Version     string   `yaml:"version"`
	CORSOrigins []string `yaml:"cors_origins"`

	Database   db.Config        `yaml:"database"`
	Versioning VersioningConfig `yaml:"versioning"`
	Composite  CompositeConfig  `yaml:"composite"`
	Events     bus.RedisConfig  `yaml:"events"`
	Temporal   temporalx.Config `yaml:"temporal"`
	Neo4j      neo4jdb.Config   `yaml:"neo4j"`

	Metrics observability.MetricsConfig `yaml:"metrics"`
	Otel    observability.OtelConfig    `yaml:"otel"`
}

type VersioningConfig struct {
	MaxNumberRetries int `yaml:"max_number_retries"`
}

type CompositeConfig struct {
	AutoRefresh           bool `yaml:"auto_refresh"`
	RecommendMinProcessed int  `yaml:"recommend_min_processed"`
}

func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		LogMode:     "development",
		ServiceName: "docprov",
		Environment: "development",
		Database: db.Config{
			Driver:       db.DriverPostgres,
			PostgresHost: "localhost",
			PostgresPort: "5432",
			PostgresUser: "postgres",
			PostgresName: "docprov",
		},
		Versioning: VersioningConfig{MaxNumberRetries: 5},
		Composite:  CompositeConfig{AutoRefresh: true, RecommendMinProcessed: 2},
		Events:     bus.RedisConfig{Channel: bus.DefaultChannel},
		Temporal:   temporalx.DefaultConfig(),
		Metrics:    observability.MetricsConfig{Enabled: true, ScrapeIntervalSeconds: 15},
	}
}

// LoadConfig layers the YAML file named by DOCPROV_CONFIG over the defaults,
// then applies environment overrides.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := DefaultConfig()
	if path := strings.TrimSpace(os.Getenv(configPathEnv)); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if log != nil {
			log.Info("config file loaded", "path", path)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Temporal = cfg.Temporal.Normalized()
	if cfg.Versioning.MaxNumberRetries <= 0 {
		cfg.Versioning.MaxNumberRetries = 5
	}
	if cfg.Composite.RecommendMinProcessed <= 0 {
		cfg.Composite.RecommendMinProcessed = 2
	}
	if strings.TrimSpace(cfg.Events.Channel) == "" {
		cfg.Events.Channel = bus.DefaultChannel
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envString("HTTP_ADDR", &cfg.HTTPAddr)
	envString("LOG_MODE", &cfg.LogMode)
	envString("SERVICE_NAME", &cfg.ServiceName)
	envString("APP_ENV", &cfg.Environment)
	envString("APP_VERSION", &cfg.Version)
	envString("METRICS_ADDR", &cfg.Metrics.Addr)
	envList("CORS_ORIGINS", &cfg.CORSOrigins)

	envString("DB_DRIVER", &cfg.Database.Driver)
	envString("POSTGRES_HOST", &cfg.Database.PostgresHost)
	envString("POSTGRES_PORT", &cfg.Database.PostgresPort)
	envString("POSTGRES_USER", &cfg.Database.PostgresUser)
	envString("POSTGRES_PASSWORD", &cfg.Database.PostgresPassword)
	envString("POSTGRES_NAME", &cfg.Database.PostgresName)
	envString("POSTGRES_SSLMODE", &cfg.Database.PostgresSSLMode)
	envString("SQLITE_PATH", &cfg.Database.SQLitePath)

	envString("REDIS_ADDR", &cfg.Events.Addr)
	envString("REDIS_PASSWORD", &cfg.Events.Password)
	envString("REDIS_CHANNEL", &cfg.Events.Channel)

	envString("TEMPORAL_ADDRESS", &cfg.Temporal.Address)
	envString("TEMPORAL_NAMESPACE", &cfg.Temporal.Namespace)
	envString("TEMPORAL_TASK_QUEUE", &cfg.Temporal.TaskQueue)
	envString("TEMPORAL_CLIENT_CERT_PATH", &cfg.Temporal.ClientCertPath)
	envString("TEMPORAL_CLIENT_KEY_PATH", &cfg.Temporal.ClientKeyPath)
	envString("TEMPORAL_CLIENT_CA_PATH", &cfg.Temporal.ClientCAPath)

	envString("NEO4J_URI", &cfg.Neo4j.URI)
	envString("NEO4J_USER", &cfg.Neo4j.User)
	envString("NEO4J_PASSWORD", &cfg.Neo4j.Password)
	envString("NEO4J_DATABASE", &cfg.Neo4j.Database)

	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Otel.Endpoint)
	if raw := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); raw != "" {
		cfg.Otel.Headers = observability.ParseHeaders(raw)
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SAMPLER_RATIO")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OTEL_SAMPLER_RATIO: %q is not a number", v)
		}
		cfg.Otel.SampleRatio = f
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns},
		{"REDIS_DB", &cfg.Events.DB},
		{"VERSION_NUMBER_MAX_RETRIES", &cfg.Versioning.MaxNumberRetries},
		{"COMPOSITE_RECOMMEND_MIN_PROCESSED", &cfg.Composite.RecommendMinProcessed},
		{"TEMPORAL_WORKER_CONCURRENCY", &cfg.Temporal.WorkerConcurrency},
		{"TEMPORAL_GROUP_TIMEOUT_SECONDS", &cfg.Temporal.GroupTimeoutSeconds},
		{"NEO4J_TIMEOUT_SECONDS", &cfg.Neo4j.TimeoutSeconds},
		{"METRICS_SCRAPE_INTERVAL_SECONDS", &cfg.Metrics.ScrapeIntervalSeconds},
	}
	for _, it := range ints {
		if err := envInt(it.key, it.dst); err != nil {
			return err
		}
	}
	bools := []struct {
		key string
		dst *bool
	}{
		{"COMPOSITE_AUTO_REFRESH", &cfg.Composite.AutoRefresh},
		{"TEMPORAL_AUTO_REGISTER_NAMESPACE", &cfg.Temporal.AutoRegisterNamespace},
		{"METRICS_ENABLED", &cfg.Metrics.Enabled},
		{"OTEL_ENABLED", &cfg.Otel.Enabled},
		{"OTEL_EXPORTER_OTLP_INSECURE", &cfg.Otel.Insecure},
	}
	for _, it := range bools {
		if err := envBool(it.key, it.dst); err != nil {
			return err
		}
	}
	return nil
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envList(key string, dst *[]string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func envInt(key string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, v)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	*dst = b
	return nil
}
