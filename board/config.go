package board

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/kiosque/browse"
	"github.com/hazyhaar/kiosque/harvest"
)

// StoreConfig selects where publishes go. Local is the default; remote
// drives a REST storage API through the write pipeline.
type StoreConfig struct {
	Mode   string            `yaml:"mode"` // "local" | "remote"
	Remote RemoteStoreConfig `yaml:"remote"`
}

// RemoteStoreConfig configures the remote store client.
type RemoteStoreConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Prefix  string `yaml:"prefix"`
}

// BrowserConfig configures the page driver.
type BrowserConfig struct {
	Headless       *bool  `yaml:"headless"`
	StealthLevel   int    `yaml:"stealth_level"`
	NavTimeoutSec  int    `yaml:"nav_timeout"`
	RecyclePages   int    `yaml:"recycle_pages"`
	RecycleMinutes int    `yaml:"recycle_minutes"`
	RemoteURL      string `yaml:"remote_url"`
}

// StoryURLConfig filters candidate URLs: a required pattern plus reject
// patterns (section indexes, dossiers, tag pages).
type StoryURLConfig struct {
	RequirePattern string   `yaml:"require_pattern"`
	RejectPatterns []string `yaml:"reject_patterns"`
}

// SourceConfig describes one observed front page.
type SourceConfig struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	URL         string         `yaml:"url"`
	Kind        string         `yaml:"kind"` // "hero" | "top10"
	FeedURL     string         `yaml:"feed_url"`
	Selectors   [][]string     `yaml:"selectors"` // priority groups, first non-empty wins
	Rules       []harvest.Rule `yaml:"rules"`
	MinTitleLen int            `yaml:"min_title_len"`
	StoryURL    StoryURLConfig `yaml:"story_url"`
	Screenshot  bool           `yaml:"screenshot"`
}

// Config configures the board service.
type Config struct {
	Interval      time.Duration  `yaml:"interval"`
	SettleDelay   time.Duration  `yaml:"settle_delay"`
	DataDir       string         `yaml:"data_dir"`
	RetentionDays int            `yaml:"retention_days"`
	Store         StoreConfig    `yaml:"store"`
	Browser       BrowserConfig  `yaml:"browser"`
	Sources       []SourceConfig `yaml:"sources"`
}

// defaultRules is the scoring table used when a source defines none.
var defaultRules = []harvest.Rule{
	{Signal: "heading", Weight: 3},
	{Signal: "image", Weight: 2},
	{Signal: "kicker", Weight: 1},
	{Signal: "main", Weight: 2},
	{Signal: "feed", Weight: 1},
	{Signal: "video", Weight: -2},
	{Signal: "live", Weight: -1},
	{Signal: "gallery", Weight: -1},
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.Store.Mode == "" {
		c.Store.Mode = "local"
	}
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Kind == "" {
			src.Kind = "hero"
		}
		if len(src.Rules) == 0 {
			src.Rules = defaultRules
		}
		if src.MinTitleLen <= 0 {
			src.MinTitleLen = 8
		}
	}
}

// validate rejects configs the sweep cannot run with.
func (c *Config) validate() error {
	if c.Store.Mode != "local" && c.Store.Mode != "remote" {
		return fmt.Errorf("%w: store mode %q", ErrValidation, c.Store.Mode)
	}
	if c.Store.Mode == "remote" && c.Store.Remote.BaseURL == "" {
		return fmt.Errorf("%w: remote store requires base_url", ErrValidation)
	}
	seen := map[string]bool{}
	for _, src := range c.Sources {
		if src.ID == "" || src.URL == "" {
			return fmt.Errorf("%w: source needs id and url", ErrValidation)
		}
		if seen[src.ID] {
			return fmt.Errorf("%w: duplicate source id %q", ErrValidation, src.ID)
		}
		seen[src.ID] = true
		if src.Kind != "hero" && src.Kind != "top10" {
			return fmt.Errorf("%w: source %s kind %q", ErrValidation, src.ID, src.Kind)
		}
		if _, err := src.filter(); err != nil {
			return err
		}
	}
	return nil
}

// filter compiles the source's rejection filter.
func (s *SourceConfig) filter() (harvest.Filter, error) {
	f := harvest.Filter{MinTitleLen: s.MinTitleLen}

	var require *regexp.Regexp
	var rejects []*regexp.Regexp
	if p := s.StoryURL.RequirePattern; p != "" {
		re, err := regexp.Compile(p)
		if err != nil {
			return f, fmt.Errorf("%w: source %s require_pattern: %v", ErrValidation, s.ID, err)
		}
		require = re
	}
	for _, p := range s.StoryURL.RejectPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return f, fmt.Errorf("%w: source %s reject_pattern %q: %v", ErrValidation, s.ID, p, err)
		}
		rejects = append(rejects, re)
	}
	if require == nil && len(rejects) == 0 {
		return f, nil
	}

	f.StoryURL = func(u string) bool {
		if require != nil && !require.MatchString(u) {
			return false
		}
		for _, re := range rejects {
			if re.MatchString(u) {
				return false
			}
		}
		return true
	}
	return f, nil
}

// browserConfig maps the YAML browser block onto the driver config.
func (c *Config) browserConfig() browse.Config {
	return browse.Config{
		Headless:        c.Browser.Headless,
		Stealth:         browse.StealthLevel(c.Browser.StealthLevel),
		RecyclePages:    c.Browser.RecyclePages,
		RecycleInterval: time.Duration(c.Browser.RecycleMinutes) * time.Minute,
		RemoteURL:       c.Browser.RemoteURL,
	}
}

// navTimeout returns the per-navigation timeout.
func (c *Config) navTimeout() time.Duration {
	if c.Browser.NavTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}

// LoadConfig reads, defaults, and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("board: read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("board: parse config: %w", err)
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
