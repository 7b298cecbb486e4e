package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"traffic-analytics/internal/analytics"
	"traffic-analytics/internal/stream"
)

type Config struct {
	Port             string        `yaml:"port"`
	RedisAddr        string        `yaml:"redis_addr"`
	Frequency        time.Duration `yaml:"frequency"`
	GapFill          string        `yaml:"gap_fill"`
	AlphabetSize     int           `yaml:"alphabet_size"`
	ExcludedFeatures []string      `yaml:"excluded_features"`
	StatsTTL         time.Duration `yaml:"stats_ttl"`
}

func Default() Config {
	return Config{
		Port:             "8080",
		RedisAddr:        "localhost:6379",
		Frequency:        stream.DefaultFrequency,
		GapFill:          stream.BackwardPropagate.String(),
		AlphabetSize:     analytics.DefaultAlphabetSize,
		ExcludedFeatures: stream.DefaultExcluded(),
		StatsTTL:         time.Hour,
	}
}

// Load starts from Default, applies the YAML file at path when it exists,
// then .env and the process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Printf("Config file %s not found, using defaults", path)
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Falling back to OS environment variables.")
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("GAP_FILL"); v != "" {
		c.GapFill = v
	}
	if v := os.Getenv("STREAM_FREQUENCY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid STREAM_FREQUENCY value: %w", err)
		}
		c.Frequency = d
	}
	if v := os.Getenv("ALPHABET_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ALPHABET_SIZE value: %w", err)
		}
		c.AlphabetSize = n
	}
	return nil
}

func (c Config) Validate() error {
	if c.Frequency <= 0 {
		return fmt.Errorf("frequency must be positive, got %s", c.Frequency)
	}
	if _, err := stream.ParseGapFillPolicy(c.GapFill); err != nil {
		return err
	}
	if c.AlphabetSize < 2 || c.AlphabetSize > analytics.MaxAlphabetSize {
		return fmt.Errorf("alphabet_size must be within 2..%d, got %d", analytics.MaxAlphabetSize, c.AlphabetSize)
	}
	return nil
}

// StreamOptions converts the stream settings. Validate must have passed.
func (c Config) StreamOptions() stream.Options {
	policy, _ := stream.ParseGapFillPolicy(c.GapFill)
	excluded := c.ExcludedFeatures
	if excluded == nil {
		excluded = []string{}
	}
	return stream.Options{
		Frequency: c.Frequency,
		GapFill:   policy,
		Excluded:  excluded,
	}
}
