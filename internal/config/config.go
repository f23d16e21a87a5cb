// Package config loads recall's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all recall configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Scoring   ScoringConfig   `toml:"scoring"`
	Tiers     TierConfig      `toml:"tiers"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Lexicon   LexiconConfig   `toml:"lexicon"`
	LLM       LLMConfig       `toml:"llm"`
	Logging   LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Bind               string `toml:"bind"`
	Port               int    `toml:"port"`
	Token              string `toml:"token"` // empty disables auth
	RateLimitPerMinute int    `toml:"rate_limit_per_minute"`
	MaxQueryChars      int    `toml:"max_query_chars"`
	MaxResultsLimit    int    `toml:"max_results_limit"`
}

type DatabaseConfig struct {
	Path           string `toml:"path"`
	PoolSize       int    `toml:"pool_size"`
	BurstFactor    int    `toml:"burst_factor"`
	AcquireTimeout string `toml:"acquire_timeout"` // Go duration, e.g. "5s"
}

type ScoringConfig struct {
	RecentDays          int     `toml:"recent_days"`
	DecayRate           float64 `toml:"decay_rate"`
	Floor               float64 `toml:"floor"`
	PermanenceBoost     float64 `toml:"permanence_boost"`
	EffectivenessWeight float64 `toml:"effectiveness_weight"`
	TemporalWeight      float64 `toml:"temporal_weight"`
}

type TierConfig struct {
	SurfaceCap              int     `toml:"surface_cap"`
	MidCap                  int     `toml:"mid_cap"`
	DeepCap                 int     `toml:"deep_cap"` // 0 means unbounded
	SurfaceMinEffectiveness float64 `toml:"surface_min_effectiveness"`
	SurfaceMaxAgeDays       int     `toml:"surface_max_age_days"`
	MidMinEffectiveness     float64 `toml:"mid_min_effectiveness"`
	MidMaxAgeDays           int     `toml:"mid_max_age_days"`
	FingerprintChars        int     `toml:"fingerprint_chars"`
}

type RetrievalConfig struct {
	DefaultMaxResults int `toml:"default_max_results"`
	MaxContentChars   int `toml:"max_content_chars"`
}

type LexiconConfig struct {
	File string `toml:"file"` // empty uses the built-in tables
}

type LLMConfig struct {
	Provider     string `toml:"provider"` // "", "claude-cli", "anthropic", "ollama"
	Model        string `toml:"model"`
	OllamaURL    string `toml:"ollama_url"`
	OllamaModel  string `toml:"ollama_model"`
	AnthropicKey string `toml:"anthropic_key"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
	File   string `toml:"file"`
}

// Default returns a Config with every default filled in.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:               "127.0.0.1",
			Port:               8001,
			RateLimitPerMinute: 60,
			MaxQueryChars:      5000,
			MaxResultsLimit:    10,
		},
		Database: DatabaseConfig{
			Path:           "", // resolved at runtime via store.DefaultDBPath()
			PoolSize:       5,
			BurstFactor:    2,
			AcquireTimeout: "5s",
		},
		Scoring: ScoringConfig{
			RecentDays:          30,
			DecayRate:           0.02,
			Floor:               0.1,
			PermanenceBoost:     1.5,
			EffectivenessWeight: 0.5,
			TemporalWeight:      0.5,
		},
		Tiers: TierConfig{
			SurfaceCap:              3,
			MidCap:                  8,
			DeepCap:                 0,
			SurfaceMinEffectiveness: 0.7,
			SurfaceMaxAgeDays:       30,
			MidMinEffectiveness:     0.4,
			MidMaxAgeDays:           90,
			FingerprintChars:        100,
		},
		Retrieval: RetrievalConfig{
			DefaultMaxResults: 5,
			MaxContentChars:   2000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns ~/.recall/config.toml, or $RECALL_CONFIG when set.
func DefaultPath() string {
	if p := os.Getenv("RECALL_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".recall", "config.toml")
}

// Load reads the TOML file at path over the defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("RECALL_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("RECALL_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("RECALL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.LLM.AnthropicKey == "" {
		c.LLM.AnthropicKey = v
	}
}

// Validate reports every setting that cannot work.
func (c *Config) Validate() error {
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		bad("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		bad("server.rate_limit_per_minute must be >= 0")
	}
	if c.Server.MaxQueryChars <= 0 {
		bad("server.max_query_chars must be positive")
	}
	if c.Server.MaxResultsLimit <= 0 {
		bad("server.max_results_limit must be positive")
	}

	if c.Database.PoolSize <= 0 {
		bad("database.pool_size must be positive")
	}
	if c.Database.BurstFactor < 1 {
		bad("database.burst_factor must be at least 1")
	}
	if _, err := c.Database.Timeout(); err != nil {
		bad("database.acquire_timeout: %v", err)
	}

	s := c.Scoring
	if s.RecentDays < 0 {
		bad("scoring.recent_days must be >= 0")
	}
	if s.DecayRate < 0 {
		bad("scoring.decay_rate must be >= 0")
	}
	for _, f := range []struct {
		name string
		val  float64
	}{
		{"scoring.floor", s.Floor},
		{"scoring.effectiveness_weight", s.EffectivenessWeight},
		{"scoring.temporal_weight", s.TemporalWeight},
		{"tiers.surface_min_effectiveness", c.Tiers.SurfaceMinEffectiveness},
		{"tiers.mid_min_effectiveness", c.Tiers.MidMinEffectiveness},
	} {
		if f.val < 0 || f.val > 1 {
			bad("%s %.2f outside [0,1]", f.name, f.val)
		}
	}
	if s.PermanenceBoost < 1 {
		bad("scoring.permanence_boost must be >= 1")
	}

	t := c.Tiers
	if t.SurfaceCap < 0 || t.MidCap < 0 || t.DeepCap < 0 {
		bad("tier caps must be >= 0")
	}
	if t.FingerprintChars <= 0 {
		bad("tiers.fingerprint_chars must be positive")
	}

	if c.Retrieval.DefaultMaxResults <= 0 {
		bad("retrieval.default_max_results must be positive")
	}
	if c.Retrieval.MaxContentChars <= 0 {
		bad("retrieval.max_content_chars must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		bad("logging.format %q must be text or json", c.Logging.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Timeout parses AcquireTimeout. Empty means the pool default.
func (d DatabaseConfig) Timeout() (time.Duration, error) {
	if d.AcquireTimeout == "" {
		return 0, nil
	}
	t, err := time.ParseDuration(d.AcquireTimeout)
	if err != nil {
		return 0, err
	}
	if t < 0 {
		return 0, fmt.Errorf("negative duration %s", d.AcquireTimeout)
	}
	return t, nil
}
