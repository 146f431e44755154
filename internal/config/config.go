// Package config assembles runtime settings from an optional YAML file, a
// .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"fleetvrp/internal/model"
	"fleetvrp/internal/opt"
)

type Solver struct {
	Vehicles      int           `yaml:"vehicles"`
	Capacity      int           `yaml:"capacity"` // 0 leaves vehicles effectively unconstrained
	PickupMode    string        `yaml:"pickupMode"`
	Strategy      string        `yaml:"strategy"`
	MaxIterations int           `yaml:"maxIterations"`
	TimeBudget    time.Duration `yaml:"timeBudget"`
	Workers       int           `yaml:"workers"`
	SnapshotEvery int           `yaml:"snapshotEvery"`
}

type Server struct {
	Port              string        `yaml:"port"`
	RateRPS           float64       `yaml:"rateRps"`
	RateBurst         int           `yaml:"rateBurst"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	MatrixCacheSize   int           `yaml:"matrixCacheSize"`
}

type Storage struct {
	DatabaseURL   string `yaml:"databaseUrl"`
	Migrate       bool   `yaml:"migrate"`
	MigrationsDir string `yaml:"migrationsDir"`
}

type Events struct {
	RedisURL string `yaml:"redisUrl"`
}

type Auth struct {
	Mode       string `yaml:"mode"`
	HMACSecret string `yaml:"hmacSecret"`
	JWKSURL    string `yaml:"jwksUrl"`
}

type Callbacks struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Config struct {
	Solver    Solver    `yaml:"solver"`
	Server    Server    `yaml:"server"`
	Storage   Storage   `yaml:"storage"`
	Events    Events    `yaml:"events"`
	Auth      Auth      `yaml:"auth"`
	Callbacks Callbacks `yaml:"callbacks"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Solver: Solver{
			Vehicles:      3,
			PickupMode:    string(model.PickupCarried),
			Strategy:      string(opt.FirstImprovement),
			MaxIterations: 10000,
			TimeBudget:    2 * time.Second,
			Workers:       1,
			SnapshotEvery: 50,
		},
		Server: Server{
			Port:              "8080",
			RateBurst:         20,
			ReadHeaderTimeout: 5 * time.Second,
			MatrixCacheSize:   128,
		},
		Storage: Storage{
			Migrate:       true,
			MigrationsDir: "db/migrations",
		},
		Auth:      Auth{Mode: "dev"},
		Callbacks: Callbacks{MaxAttempts: 5, Timeout: 5 * time.Second},
	}
}

// LoadDotEnv loads .env style files into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Println("No .env file found (using environment variables)")
			return
		}
		log.Printf("config: .env ignored err=%v", err)
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, &model.InvalidInputError{Field: key, Reason: "not an integer: " + v})
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, &model.InvalidInputError{Field: key, Reason: "not a duration: " + v})
				return
			}
			*dst = d
		}
	}

	num("VRP_VEHICLES", &c.Solver.Vehicles)
	num("VRP_CAPACITY", &c.Solver.Capacity)
	str("VRP_PICKUP_MODE", &c.Solver.PickupMode)
	str("VRP_STRATEGY", &c.Solver.Strategy)
	num("VRP_MAX_ITERATIONS", &c.Solver.MaxIterations)
	dur("VRP_TIME_BUDGET", &c.Solver.TimeBudget)
	num("VRP_WORKERS", &c.Solver.Workers)

	str("PORT", &c.Server.Port)
	if v, ok := lookup("RATE_RPS"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, &model.InvalidInputError{Field: "RATE_RPS", Reason: "not a number: " + v})
		} else {
			c.Server.RateRPS = f
		}
	}
	num("RATE_BURST", &c.Server.RateBurst)

	str("DATABASE_URL", &c.Storage.DatabaseURL)
	if v, ok := lookup("DB_MIGRATE"); ok && v != "" {
		c.Storage.Migrate = v != "false"
	}
	str("REDIS_URL", &c.Events.RedisURL)
	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("AUTH_JWKS_URL", &c.Auth.JWKSURL)
	num("CALLBACK_MAX_ATTEMPTS", &c.Callbacks.MaxAttempts)
	return errors.Join(errs...)
}

// Validate reports the first out-of-range setting as an InvalidInputError.
func (c Config) Validate() error {
	s := c.Solver
	switch {
	case s.Vehicles < 1:
		return &model.InvalidInputError{Field: "solver.vehicles", Reason: "must be >= 1"}
	case s.Capacity < 0:
		return &model.InvalidInputError{Field: "solver.capacity", Reason: "must be >= 0"}
	case s.MaxIterations < 0:
		return &model.InvalidInputError{Field: "solver.maxIterations", Reason: "must be >= 0"}
	case s.TimeBudget < 0:
		return &model.InvalidInputError{Field: "solver.timeBudget", Reason: "must be >= 0"}
	case s.Workers < 0:
		return &model.InvalidInputError{Field: "solver.workers", Reason: "must be >= 0"}
	}
	if _, err := model.ParsePickupMode(s.PickupMode); err != nil {
		return err
	}
	if _, err := opt.ParseStrategy(s.Strategy); err != nil {
		return err
	}
	if c.Server.RateRPS < 0 || c.Server.RateBurst < 0 {
		return &model.InvalidInputError{Field: "server.rate", Reason: "must be >= 0"}
	}
	switch strings.ToLower(c.Auth.Mode) {
	case "dev", "hmac", "jwks":
	default:
		return &model.InvalidInputError{Field: "auth.mode", Reason: "must be dev, hmac or jwks"}
	}
	if strings.EqualFold(c.Auth.Mode, "hmac") && c.Auth.HMACSecret == "" {
		return &model.InvalidInputError{Field: "auth.hmacSecret", Reason: "required in hmac mode"}
	}
	if c.Callbacks.MaxAttempts < 1 {
		return &model.InvalidInputError{Field: "callbacks.maxAttempts", Reason: "must be >= 1"}
	}
	return nil
}

// Options converts the solver section into improver options.
func (s Solver) Options() opt.Options {
	strategy, _ := opt.ParseStrategy(s.Strategy)
	return opt.Options{
		Strategy:      strategy,
		MaxIterations: s.MaxIterations,
		TimeBudget:    s.TimeBudget,
		Workers:       s.Workers,
		SnapshotEvery: s.SnapshotEvery,
	}
}

// Mode is the parsed pickup mode; Validate has already vetted it.
func (s Solver) Mode() model.PickupMode {
	m, _ := model.ParsePickupMode(s.PickupMode)
	return m
}

// CapacityFor resolves the configured capacity for nodes: 0 becomes the
// total demand, which no route can exceed.
func (s Solver) CapacityFor(nodes []model.Node) int {
	if s.Capacity > 0 {
		return s.Capacity
	}
	return max(model.TotalDemand(nodes), 1)
}
