package spacetraveling

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/eringen/spacetraveling/logger"
	"github.com/eringen/spacetraveling/prismic"
)

// SiteConfig holds all configuration for a spacetraveling site.
type SiteConfig struct {
	Name        string `yaml:"name"`        // Site name (default "spacetraveling")
	URL         string `yaml:"url"`         // Canonical URL (default "http://localhost:3000")
	Description string `yaml:"description"` // Site description for RSS and meta tags
	Author      string `yaml:"author"`      // Publisher name for JSON-LD

	Addr     string `yaml:"addr"`     // Listen address (default ":3000")
	Timezone string `yaml:"timezone"` // Display timezone (default "America/Sao_Paulo")

	Prismic    PrismicConfig    `yaml:"prismic"`
	Listing    ListingConfig    `yaml:"listing"`
	Revalidate RevalidateConfig `yaml:"revalidate"`
	Cache      CacheConfig      `yaml:"cache"`
	Comments   CommentsConfig   `yaml:"comments"`
	Log        logger.Config    `yaml:"log"`

	SessionSecret string `yaml:"session_secret"` // Signs the preview cookie; random when empty
	CookieSecure  bool   `yaml:"cookie_secure"`  // Set true for HTTPS

	// LoadMoreLimit caps listing fetches per IP per minute (default 60).
	LoadMoreLimit int `yaml:"load_more_limit"`
	// FallbackTimeout bounds deferred article resolution (default 15s).
	FallbackTimeout time.Duration `yaml:"fallback_timeout"`
	// SkipPrerender disables warming every known path at startup.
	SkipPrerender bool `yaml:"skip_prerender"`
}

// PrismicConfig points at the content repository.
type PrismicConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	AccessToken  string        `yaml:"access_token"`
	DocumentType string        `yaml:"document_type"` // default "posts"
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RefTTL       time.Duration `yaml:"ref_ttl"`
}

// ListingConfig shapes the home page listing.
type ListingConfig struct {
	PageSize int    `yaml:"page_size"` // default 1
	Ordering string `yaml:"ordering"`  // default "[document.first_publication_date desc]"
	// NavigationField orders previous/next links (default document.last_publication_date).
	NavigationField string `yaml:"navigation_field"`
	FeedSize        int    `yaml:"feed_size"` // default 20
}

// RevalidateConfig sets staleness windows.
type RevalidateConfig struct {
	Listing  time.Duration `yaml:"listing"`  // default 24h
	Article  time.Duration `yaml:"article"`  // default 30m
	Schedule string        `yaml:"schedule"` // cron spec, default "@every 5m"
	Timeout  time.Duration `yaml:"timeout"`  // per regeneration, default 30s
}

// CacheConfig selects where rendered snapshots survive restarts.
type CacheConfig struct {
	Backend       string        `yaml:"backend"` // "memory" (default), "sqlite" or "redis"
	SQLitePath    string        `yaml:"sqlite_path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Retention     time.Duration `yaml:"retention"` // redis key expiry, 0 keeps forever
}

// CommentsConfig enables the utterances widget on article pages.
type CommentsConfig struct {
	Repo  string `yaml:"repo"`
	Theme string `yaml:"theme"`
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "spacetraveling"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.Timezone == "" {
		c.Timezone = "America/Sao_Paulo"
	}
	if c.Prismic.DocumentType == "" {
		c.Prismic.DocumentType = "posts"
	}
	if c.Listing.PageSize <= 0 {
		c.Listing.PageSize = 1
	}
	if c.Listing.Ordering == "" {
		c.Listing.Ordering = "[document.first_publication_date desc]"
	}
	if c.Listing.FeedSize <= 0 {
		c.Listing.FeedSize = 20
	}
	if c.Revalidate.Listing <= 0 {
		c.Revalidate.Listing = 24 * time.Hour
	}
	if c.Revalidate.Article <= 0 {
		c.Revalidate.Article = 30 * time.Minute
	}
	if c.Revalidate.Schedule == "" {
		c.Revalidate.Schedule = "@every 5m"
	}
	if c.Revalidate.Timeout <= 0 {
		c.Revalidate.Timeout = 30 * time.Second
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.SQLitePath == "" {
		c.Cache.SQLitePath = "data/pages.db"
	}
	if c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = "localhost:6379"
	}
	if c.Comments.Theme == "" {
		c.Comments.Theme = "github-dark"
	}
	if c.LoadMoreLimit <= 0 {
		c.LoadMoreLimit = 60
	}
	if c.FallbackTimeout <= 0 {
		c.FallbackTimeout = 15 * time.Second
	}
}

// Validate reports the first setting that prevents the site from running.
func (c SiteConfig) Validate() error {
	if strings.TrimSpace(c.Prismic.Endpoint) == "" {
		return &ConfigurationError{Field: "prismic.endpoint", Reason: "is required (PRISMIC_API_ENDPOINT)"}
	}
	if strings.TrimSpace(c.Prismic.AccessToken) == "" {
		return &ConfigurationError{Field: "prismic.access_token", Reason: "is required (PRISMIC_ACCESS_TOKEN)"}
	}
	if len(prismic.ParseOrderings(c.Listing.Ordering)) == 0 {
		return &ConfigurationError{Field: "listing.ordering", Reason: fmt.Sprintf("%q has no fields", c.Listing.Ordering)}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return &ConfigurationError{Field: "timezone", Reason: err.Error()}
	}
	if _, err := cron.ParseStandard(c.Revalidate.Schedule); err != nil {
		return &ConfigurationError{Field: "revalidate.schedule", Reason: err.Error()}
	}
	switch c.Cache.Backend {
	case "memory", "sqlite", "redis":
	default:
		return &ConfigurationError{Field: "cache.backend", Reason: fmt.Sprintf("unknown backend %q", c.Cache.Backend)}
	}
	return nil
}

// LoadConfig reads a YAML file (optional when missing), expands environment
// references inside it and applies environment overrides. A .env file in
// the working directory is loaded first when present.
func LoadConfig(path string) (SiteConfig, error) {
	_ = godotenv.Load()

	var cfg SiteConfig
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return SiteConfig{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
				return SiteConfig{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	cfg.setDefaults()
	return cfg, nil
}

func applyEnv(cfg *SiteConfig) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"PRISMIC_API_ENDPOINT", &cfg.Prismic.Endpoint},
		{"PRISMIC_ACCESS_TOKEN", &cfg.Prismic.AccessToken},
		{"SITE_URL", &cfg.URL},
		{"ADDR", &cfg.Addr},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"SESSION_SECRET", &cfg.SessionSecret},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithLogger sets the application logger (default: no-op).
func WithLogger(log logger.Logger) Option {
	return func(a *App) {
		a.Logger = log
	}
}

// WithViews replaces the default page templates.
func WithViews(v ViewFuncs) Option {
	return func(a *App) {
		a.Views = v
	}
}

// WithSource replaces the content API client, e.g. with a caching proxy.
func WithSource(src ContentSource) Option {
	return func(a *App) {
		a.Source = src
	}
}

// WithSnapshotStore overrides the store selected by CacheConfig.Backend.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(a *App) {
		a.snapshots = s
	}
}
