package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/nidhogg/hearsay/internal/embedding"
	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/rumor"
	"github.com/nidhogg/hearsay/internal/vectorstore"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Embedding  embedding.Config `json:"embedding"`
	Simulation SimulationConfig `json:"simulation"`
}

type ServerConfig struct {
	Port        int    `json:"port"`
	LogLevel    string `json:"log_level"`
	Environment string `json:"environment"` // "development" or "production"
}

type DatabaseConfig struct {
	Postgres PostgresConfig           `json:"postgres"`
	SQLite   SQLiteConfig             `json:"sqlite"`
	Neo4j    Neo4jConfig              `json:"neo4j"`
	Redis    RedisConfig              `json:"redis"`
	Qdrant   vectorstore.QdrantConfig `json:"qdrant"`
}

type PostgresConfig struct {
	DSN           string `json:"dsn"`
	MigrationsDir string `json:"migrations_dir"`
}

type SQLiteConfig struct {
	Path string `json:"path"`
}

type Neo4jConfig struct {
	URI         string  `json:"uri"`
	User        string  `json:"user"`
	Password    string  `json:"password"`
	DecayRate   float64 `json:"decay_rate"`   // relation strength lost per day
	MinStrength float64 `json:"min_strength"` // weaker ties carry no gossip
}

type RedisConfig struct {
	URL string `json:"url"`
}

// SimulationConfig tunes the memory bank, the rumor network and the world
// clock.
type SimulationConfig struct {
	MemoryCapacity    int      `json:"memory_capacity"`
	MemoryDecayRate   float64  `json:"memory_decay_rate"`
	RumorCapacity     int      `json:"rumor_capacity"`
	RumorDecayRate    float64  `json:"rumor_decay_rate"`
	ExpiryThreshold   float64  `json:"expiry_threshold"`
	SeedThreshold     float64  `json:"seed_threshold"`
	SeedChance        float64  `json:"seed_chance"`
	MutationChance    float64  `json:"mutation_chance"`
	SpreadRadius      float64  `json:"spread_radius"`
	SpreadProbability float64  `json:"spread_probability"`
	SocialRadius      float64  `json:"social_radius"`
	TickInterval      Duration `json:"tick_interval"` // wall time between clock ticks
	ClockSpeed        float64  `json:"clock_speed"`   // world seconds per wall second
	DayLength         Duration `json:"day_length"`    // world time between rumor passes
	RNGSeed           uint64   `json:"rng_seed"`      // 0 seeds from the wall clock
	ArchiveQueue      int      `json:"archive_queue"`
}

// Duration is a time.Duration read from JSON as "90s", "24h" and so on.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		d.Duration = time.Duration(t)
	case string:
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", t, err)
		}
		d.Duration = parsed
	default:
		return errors.New("invalid duration")
	}
	return nil
}

// Default returns the configuration used when a file omits a value.
func Default() *Config {
	opts := rumor.DefaultOptions()
	decay := memory.DefaultDecayConfig()
	return &Config{
		Server: ServerConfig{Port: 8080, LogLevel: "info", Environment: "development"},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{MigrationsDir: "migrations"},
			Neo4j:    Neo4jConfig{DecayRate: 0.01, MinStrength: 0.2},
			Qdrant:   vectorstore.QdrantConfig{Host: "localhost", Port: 6334},
		},
		Embedding: embedding.Config{Provider: "hash", Dimension: embedding.DefaultHashDimension},
		Simulation: SimulationConfig{
			MemoryCapacity:    memory.DefaultCapacity,
			MemoryDecayRate:   decay.Rate,
			RumorCapacity:     opts.Capacity,
			RumorDecayRate:    opts.DecayRate,
			ExpiryThreshold:   opts.ExpiryThreshold,
			SeedThreshold:     opts.SeedThreshold,
			SeedChance:        opts.SeedChance,
			MutationChance:    opts.MutationChance,
			SpreadRadius:      50,
			SpreadProbability: 0.3,
			SocialRadius:      30,
			TickInterval:      Duration{time.Second},
			ClockSpeed:        60,
			DayLength:         Duration{24 * time.Hour},
			ArchiveQueue:      256,
		},
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file over Default and substitutes environment
// variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw JSON config over Default.
func Parse(data []byte) (*Config, error) {
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	cfg := Default()
	if err := json.Unmarshal([]byte(resolved), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the simulation cannot run with.
func (c *Config) Validate() error {
	s := c.Simulation
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	case s.TickInterval.Duration <= 0:
		return errors.New("simulation.tick_interval must be positive")
	case s.DayLength.Duration <= 0:
		return errors.New("simulation.day_length must be positive")
	case s.ClockSpeed <= 0:
		return errors.New("simulation.clock_speed must be positive")
	}
	for name, p := range map[string]float64{
		"seed_chance":        s.SeedChance,
		"mutation_chance":    s.MutationChance,
		"spread_probability": s.SpreadProbability,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("simulation.%s %.2f not in [0,1]", name, p)
		}
	}
	return nil
}

// RumorOptions converts the simulation section into network options.
func (s SimulationConfig) RumorOptions() rumor.Options {
	opts := rumor.DefaultOptions()
	opts.Capacity = s.RumorCapacity
	opts.DecayRate = s.RumorDecayRate
	opts.ExpiryThreshold = s.ExpiryThreshold
	opts.SeedThreshold = s.SeedThreshold
	opts.SeedChance = s.SeedChance
	opts.MutationChance = s.MutationChance
	return opts
}

// DecayConfig converts the simulation section into memory decay settings.
func (s SimulationConfig) DecayConfig() memory.DecayConfig {
	cfg := memory.DefaultDecayConfig()
	cfg.Rate = s.MemoryDecayRate
	return cfg
}
