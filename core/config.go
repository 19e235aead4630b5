package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the planner service. It is built once at
// startup and treated as read-only afterwards; every stage receives it by
// reference. Mutable runtime flags live in RuntimeFlags.
//
// Configuration priority, lowest to highest:
//  1. Defaults
//  2. Optional YAML file (PLANNER_CONFIG_FILE)
//  3. Environment variables
//  4. Functional options
type Config struct {
	Name string `yaml:"name" json:"name"`
	Port int    `yaml:"port" json:"port"`

	Providers ProvidersConfig `yaml:"providers" json:"providers"`
	Planning  PlanningConfig  `yaml:"planning" json:"planning"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`

	// EnvSource names where the environment came from (.env, .env.prerelease)
	// for the run fingerprint.
	EnvSource string `yaml:"env_source" json:"env_source"`
}

// ProvidersConfig selects and configures the external providers.
type ProvidersConfig struct {
	// MapAPIKey enables the real map provider when non-empty.
	MapAPIKey string `yaml:"map_api_key" json:"-"`
	// MapBaseURL overrides the map provider endpoint (tests, proxies).
	MapBaseURL string `yaml:"map_base_url" json:"map_base_url"`

	// LLMAPIKey enables the LLM provider when non-empty.
	LLMAPIKey  string `yaml:"llm_api_key" json:"-"`
	LLMBaseURL string `yaml:"llm_base_url" json:"llm_base_url"`
	LLMModel   string `yaml:"llm_model" json:"llm_model"`

	// RoutingProvider is one of real, fixture, auto.
	RoutingProvider string `yaml:"routing_provider" json:"routing_provider"`

	// StrictExternalData forbids silent fallback to heuristic data.
	StrictExternalData bool `yaml:"strict_external_data" json:"strict_external_data"`

	// DatasetPath points at the curated POI dataset (JSON or YAML array).
	DatasetPath string `yaml:"dataset_path" json:"dataset_path"`

	MapTimeout time.Duration `yaml:"map_timeout" json:"map_timeout"`
	LLMTimeout time.Duration `yaml:"llm_timeout" json:"llm_timeout"`
}

// PlanningConfig carries scheduler and budget knobs.
type PlanningConfig struct {
	MaxRepairRounds         int           `yaml:"max_repair_rounds" json:"max_repair_rounds"`
	RequestDeadline         time.Duration `yaml:"request_deadline" json:"request_deadline"`
	FoodMinPerPersonPerDay  float64       `yaml:"food_min_per_person_per_day" json:"food_min_per_person_per_day"`
	SpringFestivalDate      string        `yaml:"spring_festival_date" json:"spring_festival_date"` // 2006-01-02
}

// RateLimitConfig configures the global per-client token bucket.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Max     int           `yaml:"max" json:"max"`
	Window  time.Duration `yaml:"window" json:"window"`
}

// AuthConfig configures API authentication.
type AuthConfig struct {
	BearerToken          string `yaml:"bearer_token" json:"-"`
	AllowUnauthenticated bool   `yaml:"allow_unauthenticated" json:"allow_unauthenticated"`
	DiagnosticsToken     string `yaml:"diagnostics_token" json:"-"`
}

// CORSConfig configures cross-origin access to the HTTP API. Disabled by
// default; origins may use "*", exact values, "*.example.com" subdomain
// wildcards, or "http://localhost:*" port wildcards.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers" json:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials" json:"allow_credentials"`
	MaxAgeSeconds    int      `yaml:"max_age_seconds" json:"max_age_seconds"`
}

// RedisConfig configures the session/plan store backend.
type RedisConfig struct {
	URL string `yaml:"url" json:"url"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Endpoint    string `yaml:"endpoint" json:"endpoint"`
	ServiceName string `yaml:"service_name" json:"service_name"`
}

// Option is a functional option for configuring the service.
type Option func(*Config)

// WithPort sets the HTTP listen port.
func WithPort(port int) Option {
	return func(c *Config) { c.Port = port }
}

// WithDatasetPath sets the curated POI dataset location.
func WithDatasetPath(path string) Option {
	return func(c *Config) { c.Providers.DatasetPath = path }
}

// WithStrictExternalData toggles strict mode.
func WithStrictExternalData(strict bool) Option {
	return func(c *Config) { c.Providers.StrictExternalData = strict }
}

// NewConfig builds the configuration record from defaults, the optional YAML
// file, the environment, and finally the provided options.
func NewConfig(opts ...Option) (*Config, error) {
	c := defaultConfig()

	if path := os.Getenv("PLANNER_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		c.EnvSource = path
	}

	c.applyEnv()

	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func defaultConfig() *Config {
	return &Config{
		Name: "travel-planner",
		Port: 8080,
		Providers: ProvidersConfig{
			RoutingProvider: "auto",
			LLMModel:        "gpt-4o-mini",
			MapTimeout:      MapCallTimeout,
			LLMTimeout:      LLMCallTimeout,
		},
		Planning: PlanningConfig{
			MaxRepairRounds:        MaxRepairRounds,
			RequestDeadline:        DefaultRequestDeadline,
			FoodMinPerPersonPerDay: DefaultFoodMinPerPersonPerDay,
			SpringFestivalDate:     "2026-02-17",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Max:     60,
			Window:  time.Minute,
		},
		CORS: CORSConfig{
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Session-ID"},
			MaxAgeSeconds:  86400,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "travel-planner",
		},
		EnvSource: ".env",
	}
}

func (c *Config) applyEnv() {
	setString := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := strings.TrimSpace(os.Getenv(key)); v != "" {
				*dst = v
				return
			}
		}
	}

	setString(&c.Providers.MapAPIKey, "MAP_API_KEY", "AMAP_API_KEY")
	setString(&c.Providers.MapBaseURL, "MAP_BASE_URL")
	setString(&c.Providers.LLMAPIKey, "LLM_API_KEY", "OPENAI_API_KEY")
	setString(&c.Providers.LLMBaseURL, "LLM_BASE_URL")
	setString(&c.Providers.LLMModel, "LLM_MODEL")
	setString(&c.Providers.RoutingProvider, "ROUTING_PROVIDER")
	setString(&c.Providers.DatasetPath, "POI_DATASET_PATH")
	setString(&c.Auth.BearerToken, "API_BEARER_TOKEN")
	setString(&c.Auth.DiagnosticsToken, "DIAGNOSTICS_TOKEN")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Planning.SpringFestivalDate, "DEFAULT_SPRING_FESTIVAL_DATE")
	setString(&c.EnvSource, "ENV_SOURCE")

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("STRICT_EXTERNAL_DATA"); v != "" {
		c.Providers.StrictExternalData = isTruthy(v)
	}
	if v := os.Getenv("ALLOW_UNAUTHENTICATED_API"); v != "" {
		c.Auth.AllowUnauthenticated = isTruthy(v)
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORS.Enabled = true
		c.CORS.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.CORS.AllowedOrigins = append(c.CORS.AllowedOrigins, origin)
			}
		}
	}
	if v := os.Getenv("TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = isTruthy(v)
	}
	if v := os.Getenv("MAX_REPAIR_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Planning.MaxRepairRounds = n
		}
	}
	if v := os.Getenv("FOOD_MIN_PER_PERSON_PER_DAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.Planning.FoodMinPerPersonPerDay = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.Max = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.Window = time.Duration(n) * time.Second
		}
	}
}

func (c *Config) validate() error {
	switch c.Providers.RoutingProvider {
	case "real", "fixture", "auto":
	default:
		return fmt.Errorf("invalid ROUTING_PROVIDER %q: %w", c.Providers.RoutingProvider, ErrInputInvalid)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: %w", c.Port, ErrInputInvalid)
	}
	if c.Planning.MaxRepairRounds < 0 {
		return fmt.Errorf("invalid max repair rounds %d: %w", c.Planning.MaxRepairRounds, ErrInputInvalid)
	}
	return nil
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// RuntimeFlags holds the few flags that may change while the server runs.
// Readers snapshot it once per request via Load.
type RuntimeFlags struct {
	EngineVersion        string `json:"engine_version"`
	StrictRequiredFields bool   `json:"strict_required_fields"`
}

// FlagHolder is an atomic holder for RuntimeFlags.
type FlagHolder struct {
	v atomic.Value
}

// NewFlagHolder creates a holder seeded with the given flags.
func NewFlagHolder(flags RuntimeFlags) *FlagHolder {
	h := &FlagHolder{}
	h.v.Store(flags)
	return h
}

// Load returns the current flags snapshot.
func (h *FlagHolder) Load() RuntimeFlags {
	flags, _ := h.v.Load().(RuntimeFlags)
	return flags
}

// Store replaces the flags snapshot.
func (h *FlagHolder) Store(flags RuntimeFlags) {
	h.v.Store(flags)
}
