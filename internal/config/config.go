// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/usn-result-scraper/internal/artifact/gcs"
	"github.com/JakeFAU/usn-result-scraper/internal/artifact/local"
	notifypubsub "github.com/JakeFAU/usn-result-scraper/internal/notify/pubsub"
	"github.com/JakeFAU/usn-result-scraper/internal/portal"
	"github.com/JakeFAU/usn-result-scraper/internal/scrape"
)

// Storage backends.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// LegacyPortalEnv is read when SCRAPER_PORTAL_URL is unset.
const LegacyPortalEnv = "RESULT_PORTAL_URL"

// ErrMissingPortalURL is returned when no results portal URL is configured.
var ErrMissingPortalURL = errors.New("portal.url is required (set SCRAPER_PORTAL_URL or " + LegacyPortalEnv + ")")

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Portal  PortalConfig  `mapstructure:"portal"`
	Scrape  ScrapeConfig  `mapstructure:"scrape"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PortalConfig describes the results portal and how hard to push it.
type PortalConfig struct {
	URL              string  `mapstructure:"url"`
	Report           string  `mapstructure:"report"`
	Format           string  `mapstructure:"format"`
	UserAgent        string  `mapstructure:"user_agent"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	MaxRPS           float64 `mapstructure:"max_rps"`
}

// ScrapeConfig governs the enumeration loop.
type ScrapeConfig struct {
	USNPrefix         string `mapstructure:"usn_prefix"`
	FailureThreshold  int    `mapstructure:"failure_threshold"`
	DelayMs           int    `mapstructure:"delay_ms"`
	BranchConcurrency int    `mapstructure:"branch_concurrency"`
}

// StorageConfig selects and configures the artifact store.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	RootDir   string `mapstructure:"root_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds the optional artifact notification topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env") into
// the process environment. Missing files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds a Config from an optional file plus the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("portal.url", "SCRAPER_PORTAL_URL", LegacyPortalEnv); err != nil {
		return Config{}, fmt.Errorf("bind portal url env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("portal.report", portal.DefaultReport)
	v.SetDefault("portal.format", portal.DefaultFormat)
	v.SetDefault("portal.user_agent", portal.DefaultUserAgent)
	v.SetDefault("portal.timeout_seconds", 30)
	v.SetDefault("portal.max_retries", 2)
	v.SetDefault("portal.backoff_initial_ms", 250)
	v.SetDefault("portal.backoff_max_ms", 2000)
	v.SetDefault("portal.max_rps", 0)
	v.SetDefault("scrape.usn_prefix", "1DS")
	v.SetDefault("scrape.failure_threshold", scrape.DefaultFailureThreshold)
	v.SetDefault("scrape.delay_ms", 100)
	v.SetDefault("scrape.branch_concurrency", 1)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.root_dir", "downloads")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Portal.URL) == "" {
		return ErrMissingPortalURL
	}
	if c.Portal.TimeoutSeconds <= 0 {
		return fmt.Errorf("portal.timeout_seconds must be > 0")
	}
	if c.Portal.MaxRetries < 0 {
		return fmt.Errorf("portal.max_retries must be >= 0")
	}
	if c.Portal.BackoffInitialMs < 0 || c.Portal.BackoffMaxMs < c.Portal.BackoffInitialMs {
		return fmt.Errorf("portal.backoff_max_ms must be >= portal.backoff_initial_ms >= 0")
	}
	if c.Portal.MaxRPS < 0 {
		return fmt.Errorf("portal.max_rps must be >= 0")
	}
	if c.Scrape.USNPrefix == "" {
		return fmt.Errorf("scrape.usn_prefix is required")
	}
	if c.Scrape.FailureThreshold <= 0 {
		return fmt.Errorf("scrape.failure_threshold must be > 0")
	}
	if c.Scrape.DelayMs < 0 {
		return fmt.Errorf("scrape.delay_ms must be >= 0")
	}
	if c.Scrape.BranchConcurrency <= 0 {
		return fmt.Errorf("scrape.branch_concurrency must be > 0")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.RootDir == "" {
			return fmt.Errorf("storage.root_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendLocal, BackendGCS, c.Storage.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	return nil
}

// PortalClient converts the portal section into a portal.Config.
func (c Config) PortalClient() portal.Config {
	return portal.Config{
		URL:            c.Portal.URL,
		Report:         c.Portal.Report,
		Format:         c.Portal.Format,
		UserAgent:      c.Portal.UserAgent,
		Timeout:        time.Duration(c.Portal.TimeoutSeconds) * time.Second,
		MaxRetries:     c.Portal.MaxRetries,
		BackoffInitial: time.Duration(c.Portal.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(c.Portal.BackoffMaxMs) * time.Millisecond,
		MaxRPS:         c.Portal.MaxRPS,
		USNPrefix:      c.Scrape.USNPrefix,
	}
}

// Enumerator converts the scrape section into a scrape.Config.
func (c Config) Enumerator() scrape.Config {
	return scrape.Config{
		Prefix:            c.Scrape.USNPrefix,
		FailureThreshold:  c.Scrape.FailureThreshold,
		Delay:             time.Duration(c.Scrape.DelayMs) * time.Millisecond,
		BranchConcurrency: c.Scrape.BranchConcurrency,
	}
}

// LocalStore returns the filesystem store settings.
func (c Config) LocalStore() local.Config {
	return local.Config{RootDir: c.Storage.RootDir}
}

// GCSStore returns the bucket store settings.
func (c Config) GCSStore() gcs.Config {
	return gcs.Config{Bucket: c.Storage.GCSBucket, Prefix: c.Storage.Prefix}
}

// Notifications returns the Pub/Sub settings and whether they are enabled.
func (c Config) Notifications() (notifypubsub.Config, bool) {
	cfg := notifypubsub.Config{ProjectID: c.PubSub.ProjectID, Topic: c.PubSub.Topic}
	return cfg, cfg.ProjectID != "" && cfg.Topic != ""
}
