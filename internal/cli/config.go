package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config represents the complete system configuration structure
// Maps config file fields through YAML tags
type Config struct {
	Server struct {
		HTTPAddr        string        `yaml:"http_addr"`
		GRPCAddr        string        `yaml:"grpc_addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Ingest struct {
		WorkerCount      int           `yaml:"worker_count"`
		BufferSize       int           `yaml:"buffer_size"`
		TaskTimeout      time.Duration `yaml:"task_timeout"`
		SubscriberBuffer int           `yaml:"subscriber_buffer"`
	} `yaml:"ingest"`

	Dedup struct {
		TTL           time.Duration `yaml:"ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"dedup"`

	Predictor struct {
		Kind    string        `yaml:"kind"` // http | mean
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
		Model   string        `yaml:"model"`
	} `yaml:"predictor"`

	Lookups struct {
		Path string `yaml:"path"`
	} `yaml:"lookups"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`  // debug | info | warn | error
		Format string `yaml:"format"` // text | json
	} `yaml:"log"`
}

// 預設值（零值欄位套用）
const (
	defaultHTTPAddr         = ":5000"
	defaultGRPCAddr         = ":50051"
	defaultShutdownTimeout  = 10 * time.Second
	defaultWorkerCount      = 4
	defaultBufferSize       = 1024
	defaultTaskTimeout      = 5 * time.Second
	defaultSubscriberBuffer = 256
	defaultDedupTTL         = 60 * time.Second
	defaultSweepInterval    = 30 * time.Second
	defaultPredictorKind    = "mean"
	defaultPredictorTimeout = 2 * time.Second
	defaultModel            = "LightGBM"
	defaultLookupsPath      = "configs/lookup_tables.json"
	defaultMetricsPort      = 9090
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
)

// applyDefaults fills zero-valued fields.
func (c *Config) applyDefaults() {
	setString(&c.Server.HTTPAddr, defaultHTTPAddr)
	setString(&c.Server.GRPCAddr, defaultGRPCAddr)
	setDuration(&c.Server.ShutdownTimeout, defaultShutdownTimeout)

	setInt(&c.Ingest.WorkerCount, defaultWorkerCount)
	setInt(&c.Ingest.BufferSize, defaultBufferSize)
	setDuration(&c.Ingest.TaskTimeout, defaultTaskTimeout)
	setInt(&c.Ingest.SubscriberBuffer, defaultSubscriberBuffer)

	setDuration(&c.Dedup.TTL, defaultDedupTTL)
	setDuration(&c.Dedup.SweepInterval, defaultSweepInterval)

	setString(&c.Predictor.Kind, defaultPredictorKind)
	setDuration(&c.Predictor.Timeout, defaultPredictorTimeout)
	setString(&c.Predictor.Model, defaultModel)

	setString(&c.Lookups.Path, defaultLookupsPath)
	setInt(&c.Metrics.Port, defaultMetricsPort)

	setString(&c.Log.Level, defaultLogLevel)
	setString(&c.Log.Format, defaultLogFormat)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Ingest.WorkerCount < 0 {
		result = multierror.Append(result, fmt.Errorf("ingest.worker_count must be positive, got %d", c.Ingest.WorkerCount))
	}
	if c.Ingest.BufferSize < 0 {
		result = multierror.Append(result, fmt.Errorf("ingest.buffer_size must not be negative, got %d", c.Ingest.BufferSize))
	}
	if c.Dedup.TTL < 0 {
		result = multierror.Append(result, fmt.Errorf("dedup.ttl must not be negative, got %s", c.Dedup.TTL))
	}
	if c.Dedup.SweepInterval < 0 {
		result = multierror.Append(result, fmt.Errorf("dedup.sweep_interval must be positive, got %s", c.Dedup.SweepInterval))
	}

	switch strings.ToLower(c.Predictor.Kind) {
	case "mean":
	case "http":
		if c.Predictor.URL == "" {
			result = multierror.Append(result, fmt.Errorf("predictor.url is required when predictor.kind is http"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("predictor.kind must be http or mean, got %q", c.Predictor.Kind))
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		result = multierror.Append(result, fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		result = multierror.Append(result, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return result.ErrorOrNil()
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func setString(p *string, def string) {
	if *p == "" {
		*p = def
	}
}

func setInt(p *int, def int) {
	if *p == 0 {
		*p = def
	}
}

func setDuration(p *time.Duration, def time.Duration) {
	if *p == 0 {
		*p = def
	}
}
