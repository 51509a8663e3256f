package config

import (
	"fmt"
	"time"

	"github.com/af-corp/helmsman/internal/types"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Registry   RegistryConfig   `yaml:"registry"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Cost       CostConfig       `yaml:"cost"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Routing    RoutingConfig    `yaml:"routing"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + itoa(d.Port) + "/" + d.Name + "?sslmode=disable"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	s := ""
	for i > 0 {
		s = string(rune('0'+i%10)) + s
		i /= 10
	}
	return s
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	MetricsPort   int    `yaml:"metrics_port"`
	EmitterBuffer int    `yaml:"emitter_buffer"`
}

type RegistryConfig struct {
	CatalogPath     string        `yaml:"catalog_path"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RefreshTimeout  time.Duration `yaml:"refresh_timeout"`
}

type ClassifierConfig struct {
	MaxChars int `yaml:"max_chars"`
}

type CostConfig struct {
	CharsPerToken int     `yaml:"chars_per_token"`
	OutputRatio   float64 `yaml:"output_ratio"`
}

type TrackerConfig struct {
	EWMAAlpha   float64 `yaml:"ewma_alpha"`
	ErrorWindow int     `yaml:"error_window"`
}

type RoutingConfig struct {
	WeightPerf        float64             `yaml:"weight_perf"`
	WeightCost        float64             `yaml:"weight_cost"`
	WeightCapability  float64             `yaml:"weight_capability"`
	CacheTTL          time.Duration       `yaml:"cache_ttl"`
	CacheMaxEntries   int                 `yaml:"cache_max_entries"`
	MaxFallbacks      int                 `yaml:"max_fallbacks"`
	ClassRequirements map[string][]string `yaml:"class_requirements"`
}

// ParsedClassRequirements validates the per-class default capability
// requirements into their typed form.
func (r RoutingConfig) ParsedClassRequirements() (map[types.QueryClass][]types.Capability, error) {
	if r.ClassRequirements == nil {
		return nil, nil
	}
	out := make(map[types.QueryClass][]types.Capability, len(r.ClassRequirements))
	for rawClass, rawCaps := range r.ClassRequirements {
		class, ok := types.ParseQueryClass(rawClass)
		if !ok {
			return nil, fmt.Errorf("class_requirements: unknown query class %q", rawClass)
		}
		caps := make([]types.Capability, 0, len(rawCaps))
		for _, rawCap := range rawCaps {
			c, ok := types.ParseCapability(rawCap)
			if !ok {
				return nil, fmt.Errorf("class_requirements: unknown capability %q for class %q", rawCap, rawClass)
			}
			caps = append(caps, c)
		}
		out[class] = caps
	}
	return out, nil
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerMinute int64         `yaml:"requests_per_minute"`
	Window            time.Duration `yaml:"window"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      10 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "helmsman",
			User:            "helmsman",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			LogFormat:     "json",
			MetricsPort:   9090,
			EmitterBuffer: 1024,
		},
		Registry: RegistryConfig{
			CatalogPath:     "configs/catalog.yaml",
			RefreshInterval: 60 * time.Second,
			RefreshTimeout:  10 * time.Second,
		},
		Classifier: ClassifierConfig{
			MaxChars: 2000,
		},
		Cost: CostConfig{
			CharsPerToken: 4,
			OutputRatio:   0.5,
		},
		Tracker: TrackerConfig{
			EWMAAlpha:   0.2,
			ErrorWindow: 100,
		},
		Routing: RoutingConfig{
			WeightPerf:       0.3,
			WeightCost:       0.4,
			WeightCapability: 0.3,
			CacheTTL:         5 * time.Minute,
			CacheMaxEntries:  1024,
			MaxFallbacks:     2,
			ClassRequirements: map[string][]string{
				"code": {"code"},
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 600,
			Window:            time.Minute,
		},
	}
}
