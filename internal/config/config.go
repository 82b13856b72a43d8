package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"

	configPathEnv     = "ARCHWATCH_CONFIG"
	databaseDSNEnv    = "DATABASE_URL"
	openAIKeyEnv      = "OPENAI_API_KEY"
	openAIModelEnv    = "OPENAI_MODEL"
	browserEndpoint   = "BROWSER_ENDPOINT"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHANNEL_ID"
	r2EndpointEnv     = "R2_ENDPOINT"
	r2AccessKeyEnv    = "R2_ACCESS_KEY_ID"
	r2SecretKeyEnv    = "R2_SECRET_ACCESS_KEY"
	r2BucketEnv       = "R2_BUCKET_NAME"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Browser       BrowserConfig      `yaml:"browser"`
	OpenAI        OpenAIConfig       `yaml:"openai"`
	Notifications NotificationConfig `yaml:"notifications"`
	ObjectStore   ObjectStoreConfig  `yaml:"objectStore"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Discovery     DiscoveryConfig    `yaml:"discovery"`
	Sources       []SourceConfig     `yaml:"sources"`
}

// LoggingConfig sets the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the Postgres seen-store connection.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// BrowserConfig points at the remote headless-browser endpoint.
type BrowserConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Token     string `yaml:"token"`
	UserAgent string `yaml:"userAgent"`
}

// OpenAIConfig defines how to contact the OpenAI API.
type OpenAIConfig struct {
	APIKey      string `yaml:"apiKey"`
	Model       string `yaml:"model"`
	VisionModel string `yaml:"visionModel"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to post digests.
type TelegramConfig struct {
	BotToken  string `yaml:"botToken"`
	ChannelID string `yaml:"channelId"`
}

// ObjectStoreConfig describes the R2/S3 bucket that receives candidates.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	IntervalHours int            `yaml:"intervalHours"`
	Timezone      string         `yaml:"timezone"`
	location      *time.Location `yaml:"-"`
}

// Interval returns the tick period between pipeline runs.
func (s SchedulerConfig) Interval() time.Duration {
	if s.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.IntervalHours) * time.Hour
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// DiscoveryConfig tunes the custom-scraper core.
type DiscoveryConfig struct {
	// LookbackHours bounds how far back RSS entries are accepted.
	LookbackHours int `yaml:"lookbackHours"`
	// MaxPerRun caps new headlines processed per source per run; the cap
	// is the rate limit on AI-call cost.
	MaxPerRun int `yaml:"maxPerRun"`
	// DateSanityDays rejects parsed dates older than this as unreliable.
	DateSanityDays int `yaml:"dateSanityDays"`
	// CandidateLimit bounds containers offered to the semantic matcher.
	CandidateLimit int `yaml:"candidateLimit"`
	// NavTimeoutMS applies to every page navigation.
	NavTimeoutMS int `yaml:"navTimeoutMs"`
}

// NavTimeout returns the default navigation timeout.
func (d DiscoveryConfig) NavTimeout() time.Duration {
	if d.NavTimeoutMS <= 0 {
		return 20 * time.Second
	}
	return time.Duration(d.NavTimeoutMS) * time.Millisecond
}

// SourceConfig describes a single monitored site.
type SourceConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	BaseURL string `yaml:"baseUrl"`
	RSSURL  string `yaml:"rssUrl"`
	// Scanner picks the discovery strategy: "rss", "visual" or "pattern".
	Scanner           string `yaml:"scanner"`
	Tier              int    `yaml:"tier"`
	Region            string `yaml:"region"`
	MaxArticleAgeDays int    `yaml:"maxArticleAgeDays"`
	ScrapeTimeoutMS   int    `yaml:"scrapeTimeoutMs"`
	RequiresUserAgent bool   `yaml:"requiresUserAgent"`
}

// ScrapeTimeout returns the per-source navigation timeout.
func (s SourceConfig) ScrapeTimeout(fallback time.Duration) time.Duration {
	if s.ScrapeTimeoutMS > 0 {
		return time.Duration(s.ScrapeTimeoutMS) * time.Millisecond
	}
	return fallback
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}

	return cfg
}

// Source looks up a source by id.
func (c Config) Source(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// SourcesByTier returns every source of the given tier, or all when tier is 0.
func (c Config) SourcesByTier(tier int) []SourceConfig {
	if tier == 0 {
		return c.Sources
	}
	var out []SourceConfig
	for _, s := range c.Sources {
		if s.Tier == tier {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(browserEndpoint); v != "" {
		c.Browser.Endpoint = v
	}

	if v := os.Getenv(openAIKeyEnv); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv(openAIModelEnv); v != "" {
		c.OpenAI.Model = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChannelID = v
	}

	if v := os.Getenv(r2EndpointEnv); v != "" {
		c.ObjectStore.Endpoint = v
	}
	if v := os.Getenv(r2AccessKeyEnv); v != "" {
		c.ObjectStore.AccessKey = v
	}
	if v := os.Getenv(r2SecretKeyEnv); v != "" {
		c.ObjectStore.SecretKey = v
	}
	if v := os.Getenv(r2BucketEnv); v != "" {
		c.ObjectStore.Bucket = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Browser.Endpoint != "" {
		base.Browser.Endpoint = override.Browser.Endpoint
	}
	if override.Browser.Token != "" {
		base.Browser.Token = override.Browser.Token
	}
	if override.Browser.UserAgent != "" {
		base.Browser.UserAgent = override.Browser.UserAgent
	}

	if override.OpenAI.APIKey != "" {
		base.OpenAI.APIKey = override.OpenAI.APIKey
	}
	if override.OpenAI.Model != "" {
		base.OpenAI.Model = override.OpenAI.Model
	}
	if override.OpenAI.VisionModel != "" {
		base.OpenAI.VisionModel = override.OpenAI.VisionModel
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChannelID != "" {
		base.Notifications.Telegram.ChannelID = override.Notifications.Telegram.ChannelID
	}

	if override.ObjectStore.Endpoint != "" {
		base.ObjectStore = override.ObjectStore
	}

	if override.Scheduler.IntervalHours != 0 {
		base.Scheduler.IntervalHours = override.Scheduler.IntervalHours
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Discovery.LookbackHours != 0 {
		base.Discovery.LookbackHours = override.Discovery.LookbackHours
	}
	if override.Discovery.MaxPerRun != 0 {
		base.Discovery.MaxPerRun = override.Discovery.MaxPerRun
	}
	if override.Discovery.DateSanityDays != 0 {
		base.Discovery.DateSanityDays = override.Discovery.DateSanityDays
	}
	if override.Discovery.CandidateLimit != 0 {
		base.Discovery.CandidateLimit = override.Discovery.CandidateLimit
	}
	if override.Discovery.NavTimeoutMS != 0 {
		base.Discovery.NavTimeoutMS = override.Discovery.NavTimeoutMS
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		// Left empty so a run without DATABASE_URL falls back to the
		// in-memory seen store.
		Database: DatabaseConfig{DSN: ""},
		Browser: BrowserConfig{
			Endpoint: "http://localhost:3000",
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
				"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o-mini",
			VisionModel: "gpt-4o",
		},
		Scheduler: SchedulerConfig{IntervalHours: 24, Timezone: defaultTimezone, location: tz},
		Discovery: DiscoveryConfig{
			LookbackHours:  24,
			MaxPerRun:      10,
			DateSanityDays: 365,
			CandidateLimit: 15,
			NavTimeoutMS:   20000,
		},
		Sources: []SourceConfig{
			{
				ID:                "archdaily",
				Name:              "ArchDaily",
				BaseURL:           "https://www.archdaily.com",
				RSSURL:            "https://feeds.feedburner.com/Archdaily",
				Scanner:           "rss",
				Tier:              1,
				Region:            "global",
				MaxArticleAgeDays: 2,
				ScrapeTimeoutMS:   25000,
			},
			{
				ID:                "dezeen",
				Name:              "Dezeen",
				BaseURL:           "https://www.dezeen.com",
				RSSURL:            "http://feeds.feedburner.com/dezeen",
				Scanner:           "rss",
				Tier:              1,
				Region:            "uk",
				MaxArticleAgeDays: 2,
				ScrapeTimeoutMS:   25000,
			},
			{
				ID:                "metalocus",
				Name:              "Metalocus",
				BaseURL:           "https://www.metalocus.es/en",
				Scanner:           "visual",
				Tier:              2,
				Region:            "spain",
				MaxArticleAgeDays: 2,
				ScrapeTimeoutMS:   20000,
				RequiresUserAgent: true,
			},
			{
				ID:                "landezine",
				Name:              "Landezine",
				BaseURL:           "https://landezine.com",
				Scanner:           "pattern",
				Tier:              2,
				Region:            "europe",
				MaxArticleAgeDays: 2,
				ScrapeTimeoutMS:   20000,
			},
		},
	}
}
