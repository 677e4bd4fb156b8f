package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Config holds application configuration values.
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool

	// HTTP
	HTTPTimeout time.Duration
	UserAgent   string
	AdminEmail  string

	// Run shape
	Speed           int
	OutputPath      string
	ArticleListPath string
	MainPage        string
	CreatorName     string

	// Format flags, derived from the format token by substring match.
	// They are orthogonal booleans.
	NoPictures bool
	NoVideos   bool
	NoDetails  bool
	NoZim      bool

	// Login
	Username string
	Password string

	// Stores and caches
	RedisAddr         string
	CacheDir          string
	SkipCacheCleaning bool

	// Output shaping
	SkipOptim           bool
	KeepEmptyParagraphs bool
	Minify              bool
	NoLocalParser       bool
}

// Load builds a Config from defaults, environment variables and the
// command's flags.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := &Config{
		LogLevel:    DefaultLogLevel,
		JSONLog:     DefaultJSONLog,
		HTTPTimeout: DefaultHTTPTimeout,
		UserAgent:   DefaultUserAgent,
		Speed:       DefaultSpeed,
		OutputPath:  DefaultOutputPath,
		CreatorName: DefaultCreatorName,
		CacheDir:    DefaultCacheDir,
	}

	if v := os.Getenv("WIKIMIRROR_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if v := os.Getenv("WIKIMIRROR_REDIS"); v != "" {
		cfg.RedisAddr = v
	}

	if cmd != nil {
		readFlags(cmd, cfg)
	}

	if cfg.AdminEmail != "" {
		cfg.UserAgent = fmt.Sprintf("%s (%s)", cfg.UserAgent, cfg.AdminEmail)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readFlags(cmd *cobra.Command, cfg *Config) {
	flagString := func(name string, into *string) {
		if f := cmd.Flags().Lookup(name); f != nil {
			if s := f.Value.String(); s != "" {
				*into = s
			}
		}
	}
	flagBool := func(name string, into *bool) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Value.String() == "true" {
			*into = true
		}
	}

	flagString("user-agent", &cfg.UserAgent)
	if f := cmd.Flags().Lookup("timeout"); f != nil {
		if d, err := time.ParseDuration(f.Value.String()); err == nil && d > 0 {
			cfg.HTTPTimeout = d
		}
	}
	flagBool("json", &cfg.JSONLog)
	if f := cmd.Flags().Lookup("verbose"); f != nil && f.Value.String() == "true" {
		cfg.LogLevel = "debug"
	}

	flagString("output", &cfg.OutputPath)
	if f := cmd.Flags().Lookup("speed"); f != nil {
		var n int
		if _, err := fmt.Sscanf(f.Value.String(), "%d", &n); err == nil && n > 0 {
			cfg.Speed = n
		}
	}
	flagString("article-list", &cfg.ArticleListPath)
	flagString("main-page", &cfg.MainPage)
	flagString("creator", &cfg.CreatorName)
	flagString("admin-email", &cfg.AdminEmail)
	flagString("username", &cfg.Username)
	flagString("password", &cfg.Password)
	flagString("redis", &cfg.RedisAddr)
	flagString("cache-dir", &cfg.CacheDir)
	flagBool("skip-cache-cleaning", &cfg.SkipCacheCleaning)
	flagBool("skip-optim", &cfg.SkipOptim)
	flagBool("keep-empty-paragraphs", &cfg.KeepEmptyParagraphs)
	flagBool("minify", &cfg.Minify)
	flagBool("no-local-parser", &cfg.NoLocalParser)

	var format string
	flagString("format", &format)
	ApplyFormat(cfg, format)
}

// ApplyFormat derives the orthogonal format booleans by substring
// match on the format token.
func ApplyFormat(cfg *Config, format string) {
	cfg.NoPictures = cfg.NoPictures || strings.Contains(format, "nopic")
	cfg.NoVideos = cfg.NoVideos || strings.Contains(format, "novid")
	cfg.NoDetails = cfg.NoDetails || strings.Contains(format, "nodet")
	cfg.NoZim = cfg.NoZim || strings.Contains(format, "nozim")
}
