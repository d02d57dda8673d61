// Package config defines the najdeno configuration, its defaults and validation.
//
// Values are layered by viper: CLI flags, NAJDENO_* environment variables,
// the YAML config file, then the defaults below.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "NAJDENO"

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Matching   MatchingConfig   `mapstructure:"matching" yaml:"matching"`
	Similarity SimilarityConfig `mapstructure:"similarity" yaml:"similarity"`
	Handover   HandoverConfig   `mapstructure:"handover" yaml:"handover"`
	Ledger     LedgerConfig     `mapstructure:"ledger" yaml:"ledger"`
	Notify     NotifyConfig     `mapstructure:"notify" yaml:"notify"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

type LogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Weights are the per-signal weights of the composite match score.
// They must sum to 100.
type Weights struct {
	Semantic int `mapstructure:"semantic" yaml:"semantic"`
	Color    int `mapstructure:"color" yaml:"color"`
	Location int `mapstructure:"location" yaml:"location"`
	Time     int `mapstructure:"time" yaml:"time"`
	Image    int `mapstructure:"image" yaml:"image"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() int {
	return w.Semantic + w.Color + w.Location + w.Time + w.Image
}

type MatchingConfig struct {
	Weights   Weights `mapstructure:"weights" yaml:"weights"`
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`

	// Hard filters.
	MaxDistanceKm float64       `mapstructure:"max_distance_km" yaml:"max_distance_km"`
	MaxTimeWindow time.Duration `mapstructure:"max_time_window" yaml:"max_time_window"`

	// Location decay: 100 at zero distance down to LocationFloor at
	// MaxDistanceKm, then down to 0 at LocationCutoffKm.
	LocationFloor    float64 `mapstructure:"location_floor" yaml:"location_floor"`
	LocationCutoffKm float64 `mapstructure:"location_cutoff_km" yaml:"location_cutoff_km"`

	ProviderTimeout time.Duration `mapstructure:"provider_timeout" yaml:"provider_timeout"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
}

type SimilarityConfig struct {
	// Provider selects the semantic scorer: "lexical" or "openai".
	Provider string        `mapstructure:"provider" yaml:"provider"`
	OpenAI   OpenAIConfig  `mapstructure:"openai" yaml:"openai"`
	Rate     float64       `mapstructure:"rate" yaml:"rate"`
	Burst    int           `mapstructure:"burst" yaml:"burst"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

type HandoverConfig struct {
	CodeTTL     time.Duration `mapstructure:"code_ttl" yaml:"code_ttl"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Credits     int           `mapstructure:"credits" yaml:"credits"`
}

type LedgerConfig struct {
	// Endpoints are JSON-RPC URLs tried in order. An empty list disables
	// ledger recording.
	Endpoints       []string      `mapstructure:"endpoints" yaml:"endpoints"`
	ContractAddress string        `mapstructure:"contract_address" yaml:"contract_address"`
	PrivateKey      string        `mapstructure:"private_key" yaml:"private_key"`
	GasLimit        uint64        `mapstructure:"gas_limit" yaml:"gas_limit"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	Backoff         time.Duration `mapstructure:"backoff" yaml:"backoff"`
	HealthTimeout   time.Duration `mapstructure:"health_timeout" yaml:"health_timeout"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// IDSalt is mixed into the on-chain user identity hashes. Required when
	// ledger recording is enabled and must not change afterwards.
	IDSalt string `mapstructure:"id_salt" yaml:"id_salt"`
}

// Enabled reports whether any ledger endpoint is configured.
func (c LedgerConfig) Enabled() bool {
	return len(c.Endpoints) > 0
}

type NotifyConfig struct {
	// WebhookURL receives notification requests as JSON. When empty,
	// notifications are only logged.
	WebhookURL string        `mapstructure:"webhook_url" yaml:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "najdeno.sqlite3"},
		Server:   ServerConfig{Addr: ":8080"},
		Matching: MatchingConfig{
			Weights: Weights{
				Semantic: 40,
				Color:    10,
				Location: 20,
				Time:     10,
				Image:    20,
			},
			Threshold:        60,
			MaxDistanceKm:    0.6,
			MaxTimeWindow:    2 * time.Hour,
			LocationFloor:    50,
			LocationCutoffKm: 5,
			ProviderTimeout:  10 * time.Second,
			Concurrency:      8,
		},
		Similarity: SimilarityConfig{
			Provider: "lexical",
			OpenAI:   OpenAIConfig{Model: "gpt-4o-mini"},
			Rate:     5,
			Burst:    5,
			CacheTTL: time.Hour,
		},
		Handover: HandoverConfig{
			CodeTTL:     72 * time.Hour,
			MaxAttempts: 3,
			Credits:     50,
		},
		Ledger: LedgerConfig{
			GasLimit:      300000,
			MaxRetries:    3,
			Backoff:       2 * time.Second,
			HealthTimeout: 5 * time.Second,
			Timeout:       3 * time.Minute,
		},
		Notify: NotifyConfig{Timeout: 10 * time.Second},
	}
}

// SetDefaults registers every default with v so that environment variables
// and config files can override individual keys.
func SetDefaults(v *viper.Viper) {
	d := Default()
	defaults := map[string]any{
		"database.path":               d.Database.Path,
		"server.addr":                 d.Server.Addr,
		"server.jwt_secret":           d.Server.JWTSecret,
		"log.path":                    d.Log.Path,
		"matching.weights.semantic":   d.Matching.Weights.Semantic,
		"matching.weights.color":      d.Matching.Weights.Color,
		"matching.weights.location":   d.Matching.Weights.Location,
		"matching.weights.time":       d.Matching.Weights.Time,
		"matching.weights.image":      d.Matching.Weights.Image,
		"matching.threshold":          d.Matching.Threshold,
		"matching.max_distance_km":    d.Matching.MaxDistanceKm,
		"matching.max_time_window":    d.Matching.MaxTimeWindow,
		"matching.location_floor":     d.Matching.LocationFloor,
		"matching.location_cutoff_km": d.Matching.LocationCutoffKm,
		"matching.provider_timeout":   d.Matching.ProviderTimeout,
		"matching.concurrency":        d.Matching.Concurrency,
		"similarity.provider":         d.Similarity.Provider,
		"similarity.openai.api_key":   d.Similarity.OpenAI.APIKey,
		"similarity.openai.base_url":  d.Similarity.OpenAI.BaseURL,
		"similarity.openai.model":     d.Similarity.OpenAI.Model,
		"similarity.rate":             d.Similarity.Rate,
		"similarity.burst":            d.Similarity.Burst,
		"similarity.cache_ttl":        d.Similarity.CacheTTL,
		"handover.code_ttl":           d.Handover.CodeTTL,
		"handover.max_attempts":       d.Handover.MaxAttempts,
		"handover.credits":            d.Handover.Credits,
		"ledger.endpoints":            d.Ledger.Endpoints,
		"ledger.contract_address":     d.Ledger.ContractAddress,
		"ledger.private_key":          d.Ledger.PrivateKey,
		"ledger.gas_limit":            d.Ledger.GasLimit,
		"ledger.max_retries":          d.Ledger.MaxRetries,
		"ledger.backoff":              d.Ledger.Backoff,
		"ledger.health_timeout":       d.Ledger.HealthTimeout,
		"ledger.timeout":              d.Ledger.Timeout,
		"ledger.id_salt":              d.Ledger.IDSalt,
		"notify.webhook_url":          d.Notify.WebhookURL,
		"notify.timeout":              d.Notify.Timeout,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// BindEnv makes v read NAJDENO_* variables, mapping "ledger.private_key"
// to NAJDENO_LEDGER_PRIVATE_KEY.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes the configuration held by v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the rest of the system
// cannot work with.
func (c *Config) Validate() error {
	var errs []error

	w := c.Matching.Weights
	for name, weight := range map[string]int{
		"semantic": w.Semantic, "color": w.Color, "location": w.Location, "time": w.Time, "image": w.Image,
	} {
		if weight < 0 {
			errs = append(errs, fmt.Errorf("matching.weights.%s must not be negative", name))
		}
	}
	if w.Sum() != 100 {
		errs = append(errs, fmt.Errorf("matching.weights must sum to 100, got %d", w.Sum()))
	}
	if w.Image >= 100 {
		errs = append(errs, errors.New("matching.weights.image must be below 100"))
	}
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 100 {
		errs = append(errs, fmt.Errorf("matching.threshold must be within 0-100, got %v", c.Matching.Threshold))
	}
	if c.Matching.MaxDistanceKm <= 0 {
		errs = append(errs, errors.New("matching.max_distance_km must be positive"))
	}
	if c.Matching.LocationCutoffKm < c.Matching.MaxDistanceKm {
		errs = append(errs, errors.New("matching.location_cutoff_km must not be below max_distance_km"))
	}
	if c.Matching.MaxTimeWindow <= 0 {
		errs = append(errs, errors.New("matching.max_time_window must be positive"))
	}

	switch c.Similarity.Provider {
	case "lexical":
	case "openai":
		if c.Similarity.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("similarity.openai.api_key is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown similarity.provider %q", c.Similarity.Provider))
	}

	if c.Handover.MaxAttempts <= 0 {
		errs = append(errs, errors.New("handover.max_attempts must be positive"))
	}
	if c.Handover.CodeTTL <= 0 {
		errs = append(errs, errors.New("handover.code_ttl must be positive"))
	}

	if c.Ledger.Enabled() {
		if c.Ledger.ContractAddress == "" {
			errs = append(errs, errors.New("ledger.contract_address is required when endpoints are set"))
		}
		if c.Ledger.PrivateKey == "" {
			errs = append(errs, errors.New("ledger.private_key is required when endpoints are set"))
		}
		if c.Ledger.IDSalt == "" {
			errs = append(errs, errors.New("ledger.id_salt is required when endpoints are set"))
		}
		if c.Ledger.MaxRetries < 1 {
			errs = append(errs, errors.New("ledger.max_retries must be at least 1"))
		}
	}

	return errors.Join(errs...)
}
