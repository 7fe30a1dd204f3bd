package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
)

const (
	// DefaultComposerURL is the article composer page.
	DefaultComposerURL = "https://zhuanlan.zhihu.com/write"

	// DefaultSignInURL is where the site redirects an unauthenticated composer visit.
	DefaultSignInURL = "https://www.zhihu.com/signin?next=http%3A%2F%2Fzhuanlan.zhihu.com%2Fwrite"

	// CookieFileName is the fixed cookie file name for this site.
	CookieFileName = "zhihu_cookies.json"
)

// PublishMode controls how per-step failures affect the overall result.
type PublishMode string

const (
	// ModeLenient reports success whenever the workflow runs to the end.
	ModeLenient PublishMode = "lenient"
	// ModeStrict reports success only if every attempted step succeeded.
	ModeStrict PublishMode = "strict"
)

// Config is the root configuration for zhpublish.
type Config struct {
	Browser BrowserConfig `yaml:"browser" koanf:"browser"`
	Session SessionConfig `yaml:"session" koanf:"session"`
	Site    SiteConfig    `yaml:"site" koanf:"site"`
	Publish PublishConfig `yaml:"publish" koanf:"publish"`
	Logging LoggingConfig `yaml:"logging" koanf:"logging"`
	Metrics MetricsConfig `yaml:"metrics" koanf:"metrics"`
}

// BrowserConfig configures driver acquisition.
type BrowserConfig struct {
	Headless bool `yaml:"headless" koanf:"headless"`

	// ElementTimeout bounds every wait for an element or attribute.
	ElementTimeout time.Duration `yaml:"element_timeout" koanf:"element_timeout"`

	// Strategies restricts and orders acquisition strategies by name.
	// Empty means all strategies in their default order.
	Strategies []string `yaml:"strategies,omitempty" koanf:"strategies"`
}

// SessionConfig configures where cookies are persisted.
type SessionConfig struct {
	Dir string `yaml:"dir" koanf:"dir"`
}

// SiteConfig holds the target URLs.
type SiteConfig struct {
	ComposerURL string `yaml:"composer_url" koanf:"composer_url"`
	SignInURL   string `yaml:"signin_url" koanf:"signin_url"`

	// SignInPatterns are glob patterns; a current URL matching any of them
	// means the session is not authenticated.
	SignInPatterns []string `yaml:"signin_patterns" koanf:"signin_patterns"`
}

// PublishConfig configures the publish workflow.
type PublishConfig struct {
	Mode   PublishMode  `yaml:"mode" koanf:"mode"`
	Delays DelaysConfig `yaml:"delays" koanf:"delays"`
}

// DelaysConfig holds the fixed pauses used where the page offers no
// observable condition to wait on.
type DelaysConfig struct {
	SessionSettle time.Duration `yaml:"session_settle" koanf:"session_settle"`
	AfterSave     time.Duration `yaml:"after_save" koanf:"after_save"`
	LoginSettle   time.Duration `yaml:"login_settle" koanf:"login_settle"`
	Upload        time.Duration `yaml:"upload" koanf:"upload"`
	Title         time.Duration `yaml:"title" koanf:"title"`
	EditorFocus   time.Duration `yaml:"editor_focus" koanf:"editor_focus"`
	Body          time.Duration `yaml:"body" koanf:"body"`
	TopicOpen     time.Duration `yaml:"topic_open" koanf:"topic_open"`
	Suggestions   time.Duration `yaml:"suggestions" koanf:"suggestions"`
	Submit        time.Duration `yaml:"submit" koanf:"submit"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet (warnings and errors), normal
	// (info and up), verbose (normal, echoed to stderr) or debug (everything)
	Verbosity string `yaml:"verbosity" koanf:"verbosity"`

	// Stderr mirrors log entries to stderr in addition to the run log file.
	Stderr bool `yaml:"stderr" koanf:"stderr"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	// Textfile is written after each run when non-empty.
	Textfile string `yaml:"textfile" koanf:"textfile"`
}

// DefaultConfig returns the configuration used when no file or env
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:       true,
			ElementTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Dir: defaultSessionDir(),
		},
		Site: SiteConfig{
			ComposerURL:    DefaultComposerURL,
			SignInURL:      DefaultSignInURL,
			SignInPatterns: []string{"https://www.zhihu.com/signin*"},
		},
		Publish: PublishConfig{
			Mode: ModeLenient,
			Delays: DelaysConfig{
				SessionSettle: 1500 * time.Millisecond,
				AfterSave:     2 * time.Second,
				LoginSettle:   3 * time.Second,
				Upload:        10 * time.Second,
				Title:         2 * time.Second,
				EditorFocus:   1 * time.Second,
				Body:          2 * time.Second,
				TopicOpen:     1 * time.Second,
				Suggestions:   2 * time.Second,
				Submit:        8 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

func defaultSessionDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "data")
	}
	return filepath.Join(homeDir, ".zhpublish", "data")
}

// CookiePath returns the full path of the cookie file.
func (c *Config) CookiePath() string {
	return filepath.Join(c.Session.Dir, CookieFileName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Browser.ElementTimeout <= 0 {
		return fmt.Errorf("browser.element_timeout must be positive")
	}

	if c.Session.Dir == "" {
		return fmt.Errorf("session.dir is required")
	}

	for name, raw := range map[string]string{
		"site.composer_url": c.Site.ComposerURL,
		"site.signin_url":   c.Site.SignInURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	for _, pattern := range c.Site.SignInPatterns {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid signin pattern %q: %w", pattern, err)
		}
	}

	switch c.Publish.Mode {
	case ModeLenient, ModeStrict:
	case "":
		c.Publish.Mode = ModeLenient
	default:
		return fmt.Errorf("invalid publish mode: %s (must be 'lenient' or 'strict')", c.Publish.Mode)
	}

	d := c.Publish.Delays
	for name, v := range map[string]time.Duration{
		"session_settle": d.SessionSettle,
		"after_save":     d.AfterSave,
		"login_settle":   d.LoginSettle,
		"upload":         d.Upload,
		"title":          d.Title,
		"editor_focus":   d.EditorFocus,
		"body":           d.Body,
		"topic_open":     d.TopicOpen,
		"suggestions":    d.Suggestions,
		"submit":         d.Submit,
	} {
		if v < 0 {
			return fmt.Errorf("publish.delays.%s cannot be negative", name)
		}
	}

	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}
