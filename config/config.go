package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"sigs.k8s.io/yaml"

	"github.com/hashmap-kz/pgreplmon/internal/logger"
	"github.com/hashmap-kz/pgreplmon/internal/pg"
	"github.com/hashmap-kz/pgreplmon/internal/report"
)

const (
	DefaultPrimaryPort = 5432
	DefaultStandbyPort = 5433

	maskedValue = "*****"
)

var sslModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// EndpointConfig holds per-role connection settings. Empty database, user
// and password fall back to the shared PostgresConfig values.
type EndpointConfig struct {
	Host     string `json:"host,omitempty" env:"HOST, default=localhost"`
	Port     int    `json:"port,omitempty" env:"PORT"`
	Database string `json:"database,omitempty" env:"DB"`
	User     string `json:"user,omitempty" env:"USER"`
	Password string `json:"password,omitempty" env:"PASSWORD"`
}

type PostgresConfig struct {
	Database string `json:"database,omitempty" env:"POSTGRES_DB, default=testdb"`
	User     string `json:"user,omitempty" env:"POSTGRES_USER, default=postgres"`
	Password string `json:"password,omitempty" env:"POSTGRES_PASSWORD"`
	SSLMode  string `json:"sslmode,omitempty" env:"PG_SSLMODE, default=disable"`
}

type CollectConfig struct {
	Interval         string `json:"interval,omitempty" env:"COLLECT_INTERVAL, default=15s"`
	ProbeTimeout     string `json:"probe_timeout,omitempty" env:"PROBE_TIMEOUT, default=5s"`
	ConsistencyTable string `json:"consistency_table,omitempty" env:"CONSISTENCY_TABLE, default=test_data"`

	// parsed by validate()
	IntervalParsed     time.Duration `json:"-"`
	ProbeTimeoutParsed time.Duration `json:"-"`
}

type HTTPConfig struct {
	ListenAddr string  `json:"listen_addr,omitempty" env:"EXPORTER_LISTEN_ADDR"`
	Port       int     `json:"port,omitempty" env:"EXPORTER_PORT, default=9188"`
	RateLimit  float64 `json:"rate_limit,omitempty" env:"HTTP_RATE_LIMIT, default=0"`
	RateBurst  int     `json:"rate_burst,omitempty" env:"HTTP_RATE_BURST, default=10"`
	Verbose    bool    `json:"verbose,omitempty" env:"HTTP_VERBOSE"`
}

type ReportConfig struct {
	Cron string `json:"cron,omitempty" env:"REPORT_CRON"`
}

type LogConfig struct {
	Level     string `json:"level,omitempty" env:"LOG_LEVEL, default=info"`
	Format    string `json:"format,omitempty" env:"LOG_FORMAT, default=text"`
	AddSource bool   `json:"add_source,omitempty" env:"LOG_ADD_SOURCE"`
}

type Config struct {
	Primary  EndpointConfig `json:"primary" env:", prefix=PRIMARY_"`
	Standby  EndpointConfig `json:"standby" env:", prefix=STANDBY_"`
	Postgres PostgresConfig `json:"postgres"`
	Collect  CollectConfig  `json:"collect"`
	HTTP     HTTPConfig     `json:"http"`
	Report   ReportConfig   `json:"report"`
	Log      LogConfig      `json:"log"`
}

// Load reads the optional config file, completes it from the environment and
// validates the result. Values from the file win over the environment.
func Load(ctx context.Context, path string) (*Config, error) {
	return load(ctx, path, envconfig.OsLookuper())
}

func load(ctx context.Context, path string, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := expandEnvs(string(data))
		if err := yaml.UnmarshalStrict([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if cfg.Primary.Port == 0 {
		cfg.Primary.Port = DefaultPrimaryPort
	}
	if cfg.Standby.Port == 0 {
		cfg.Standby.Port = DefaultStandbyPort
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvs replaces ${NAME} references; unset variables expand to "".
func expandEnvs(input string) string {
	return envRefRe.ReplaceAllStringFunc(input, func(ref string) string {
		name := envRefRe.FindStringSubmatch(ref)[1]
		return os.Getenv(name)
	})
}

func validate(cfg *Config) error {
	var errs []error

	for _, ep := range []struct {
		name string
		cfg  EndpointConfig
	}{
		{"primary", cfg.Primary},
		{"standby", cfg.Standby},
	} {
		if strings.TrimSpace(ep.cfg.Host) == "" {
			errs = append(errs, fmt.Errorf("%s.host is required", ep.name))
		}
		if ep.cfg.Port < 1 || ep.cfg.Port > 65535 {
			errs = append(errs, fmt.Errorf("%s.port must be in 1..65535, got %d", ep.name, ep.cfg.Port))
		}
	}

	if !slices.Contains(sslModes, cfg.Postgres.SSLMode) {
		errs = append(errs, fmt.Errorf("postgres.sslmode must be one of %v, got %q", sslModes, cfg.Postgres.SSLMode))
	}

	if d, err := parsePositiveDuration(cfg.Collect.Interval); err != nil {
		errs = append(errs, fmt.Errorf("collect.interval %w", err))
	} else {
		cfg.Collect.IntervalParsed = d
	}
	if d, err := parsePositiveDuration(cfg.Collect.ProbeTimeout); err != nil {
		errs = append(errs, fmt.Errorf("collect.probe_timeout %w", err))
	} else {
		cfg.Collect.ProbeTimeoutParsed = d
	}

	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be in 1..65535, got %d", cfg.HTTP.Port))
	}
	if cfg.HTTP.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("http.rate_limit must be >= 0"))
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("http.rate_burst must be > 0 when http.rate_limit is set"))
	}

	if cfg.Report.Cron != "" {
		if _, err := report.ParseSchedule(cfg.Report.Cron); err != nil {
			errs = append(errs, fmt.Errorf("report.cron: %w", err))
		}
	}

	if _, ok := logger.ParseLevel(cfg.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("log.level is unknown: %q", cfg.Log.Level))
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format))
	}

	return errors.Join(errs...)
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("cannot parse %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be > 0, got %s", s)
	}
	return d, nil
}

func (cfg *Config) PrimaryEndpoint() pg.Endpoint {
	return cfg.endpoint(pg.RolePrimary, cfg.Primary)
}

func (cfg *Config) StandbyEndpoint() pg.Endpoint {
	return cfg.endpoint(pg.RoleStandby, cfg.Standby)
}

func (cfg *Config) endpoint(role pg.Role, ep EndpointConfig) pg.Endpoint {
	return pg.Endpoint{
		Role:     role,
		Host:     ep.Host,
		Port:     ep.Port,
		Database: firstNonEmpty(ep.Database, cfg.Postgres.Database),
		User:     firstNonEmpty(ep.User, cfg.Postgres.User),
		Password: firstNonEmpty(ep.Password, cfg.Postgres.Password),
		SSLMode:  cfg.Postgres.SSLMode,
		AppName:  pg.DefaultApplicationName,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// String renders the config as indented JSON with passwords masked.
func (cfg *Config) String() string {
	c := *cfg
	for _, p := range []*string{&c.Primary.Password, &c.Standby.Password, &c.Postgres.Password} {
		if *p != "" {
			*p = maskedValue
		}
	}
	data, err := json.MarshalIndent(&c, "", "  ")
	if err != nil {
		return fmt.Sprintf("<cannot marshal config: %v>", err)
	}
	return string(data)
}
