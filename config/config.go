// Package config loads the synchronizer configuration: one YAML document
// per process, filled out with defaults and environment overrides.
package config

import (
	"flag"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/tradeready/internal/domain"
	"github.com/vadiminshakov/tradeready/internal/events"
	"github.com/vadiminshakov/tradeready/internal/services/fetcher"
)

// Duration decodes YAML strings like "30s" or "1m" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", raw)
	}

	*d = Duration(parsed)

	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the whole process configuration. One process runs one
// synchronizer, so the file is a single document rather than a list.
type Config struct {
	Gateway            GatewayConfig   `yaml:"gateway"`
	SessionID          string          `yaml:"session_id"`
	StatusInterval     Duration        `yaml:"status_interval"`
	ReadinessInterval  Duration        `yaml:"readiness_interval"`
	RequiredCategories []string        `yaml:"required_categories"`
	Dashboard          DashboardConfig `yaml:"dashboard"`
	NATS               NATSConfig      `yaml:"nats"`
	Probe              ProbeConfig     `yaml:"probe"`
	WALDir             string          `yaml:"wal_dir"`
}

// GatewayConfig points the fetch coordinator at the remote gateway.
// The API token is deliberately absent: it comes from the environment only.
type GatewayConfig struct {
	URL           string   `yaml:"url"`
	TradeLimit    int      `yaml:"trade_limit"`
	ActivityLimit int      `yaml:"activity_limit"`
	Timeouts      Timeouts `yaml:"timeouts"`
}

// Timeouts are per-source fetch deadlines. A zero value falls back to the
// coordinator default for that source.
type Timeouts struct {
	Config     Duration `yaml:"config"`
	Credential Duration `yaml:"credential"`
	Providers  Duration `yaml:"providers"`
	Trades     Duration `yaml:"trades"`
	Activity   Duration `yaml:"activity"`
	Stats      Duration `yaml:"stats"`
}

type DashboardConfig struct {
	Addr         string   `yaml:"addr"`
	TLSDomains   []string `yaml:"tls_domains"`
	CertCacheDir string   `yaml:"cert_cache_dir"`
}

// NATSConfig enables transition publishing when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ProbeConfig controls the advisory venue connectivity checks. The
// hyperliquid key may live here or in HYPERLIQUID_PRIVATE_KEY, the
// environment wins.
type ProbeConfig struct {
	Enabled        bool   `yaml:"enabled"`
	HyperliquidURL string `yaml:"hyperliquid_url"`
	HyperliquidKey string `yaml:"hyperliquid_key,omitempty"`
}

// Default returns the configuration used for every field the file leaves
// unset.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			TradeLimit:    20,
			ActivityLimit: domain.DefaultActivityLimit,
		},
		StatusInterval:    Duration(time.Minute),
		ReadinessInterval: Duration(30 * time.Second),
		Dashboard: DashboardConfig{
			Addr:         ":8080",
			CertCacheDir: "cert-cache",
		},
		NATS: NATSConfig{
			Subject: events.DefaultTransitionSubject,
		},
		Probe: ProbeConfig{
			HyperliquidURL: "https://api.hyperliquid.xyz",
		},
		WALDir: "./wal/status",
	}
}

// Get parses the command line and loads the configuration the process
// should run with. Without -config it picks up config.yaml when the file
// exists and otherwise runs on defaults plus environment overrides.
func Get() (*Config, error) {
	path := flag.String("config", "", "path to the yaml config")
	flag.Parse()

	if *path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			*path = "config.yaml"
		}
	}

	return Load(*path)
}

// Load reads the YAML document at path, fills unset fields with defaults,
// applies environment overrides and validates the result. An empty path
// skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrideString(&cfg.Gateway.URL, "GATEWAY_URL")
	overrideString(&cfg.SessionID, "SESSION_ID")
	overrideString(&cfg.NATS.URL, "NATS_URL")
	overrideString(&cfg.Dashboard.Addr, "DASHBOARD_ADDR")
	overrideString(&cfg.Probe.HyperliquidKey, "HYPERLIQUID_PRIVATE_KEY")
}

func overrideString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// Validate rejects configurations the synchronizer cannot run with. The
// returned error names the offending field.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Gateway.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Errorf("gateway.url %q is not an absolute url", c.Gateway.URL)
	}

	if c.StatusInterval <= 0 {
		return errors.New("status_interval must be positive")
	}

	if c.ReadinessInterval <= 0 {
		return errors.New("readiness_interval must be positive")
	}

	if c.Gateway.TradeLimit < 0 {
		return errors.New("gateway.trade_limit must not be negative")
	}

	if c.Gateway.ActivityLimit < 0 {
		return errors.New("gateway.activity_limit must not be negative")
	}

	for _, raw := range c.RequiredCategories {
		switch domain.Category(raw) {
		case domain.CategoryMarketData, domain.CategoryNews, domain.CategoryMetadata:
		default:
			return errors.Errorf("required_categories contains unknown category %q", raw)
		}
	}

	if len(c.Dashboard.TLSDomains) > 0 && c.Dashboard.CertCacheDir == "" {
		return errors.New("dashboard.cert_cache_dir is required when tls_domains are set")
	}

	return nil
}

// Categories converts the configured category names, falling back to the
// default ordering when none are set.
func (c *Config) Categories() []domain.Category {
	if len(c.RequiredCategories) == 0 {
		return domain.DefaultRequiredCategories()
	}

	out := make([]domain.Category, 0, len(c.RequiredCategories))
	for _, raw := range c.RequiredCategories {
		out = append(out, domain.Category(raw))
	}

	return out
}

// FetcherConfig maps the gateway section onto the fetch coordinator
// settings.
func (c *Config) FetcherConfig() fetcher.Config {
	return fetcher.Config{
		Timeouts: fetcher.Timeouts{
			Config:     c.Gateway.Timeouts.Config.Std(),
			Credential: c.Gateway.Timeouts.Credential.Std(),
			Providers:  c.Gateway.Timeouts.Providers.Std(),
			Trades:     c.Gateway.Timeouts.Trades.Std(),
			Activity:   c.Gateway.Timeouts.Activity.Std(),
			Stats:      c.Gateway.Timeouts.Stats.Std(),
		},
		TradeLimit:    c.Gateway.TradeLimit,
		ActivityLimit: c.Gateway.ActivityLimit,
	}
}
