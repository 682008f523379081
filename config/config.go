// Package config resolves trapmail settings from an optional YAML file, environment variables
// and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dhcgn/trapmail/filter"
	"github.com/dhcgn/trapmail/naming"
)

// Environment variables read by Load. TRAPMAIL_STORE is owned by the naming package.
const (
	EnvConfig   = "TRAPMAIL_CONFIG"
	EnvLogLevel = "TRAPMAIL_LOG_LEVEL"
	EnvLogDir   = "TRAPMAIL_LOG_DIR"
	EnvIMAPPass = "IMAP_PASS"
)

// Config captures every setting the commands consume.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
	IMAP    IMAPConfig    `yaml:"imap"`
	Sync    SyncConfig    `yaml:"sync"`

	// Filters only come from flags.
	Filters filter.Options `yaml:"-"`

	// fileStoreDir is store.dir as read from the YAML file, before the environment.
	fileStoreDir string
}

type StoreConfig struct {
	Dir string `yaml:"dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

type IMAPConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Pass               string `yaml:"pass"`
	UseTLS             bool   `yaml:"use_tls"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	TargetFolder       string `yaml:"target_folder"`
	FolderPerSender    bool   `yaml:"folder_per_sender"`
}

type SyncConfig struct {
	StateDir string `yaml:"state_dir"`
	DryRun   bool   `yaml:"dry_run"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		IMAP: IMAPConfig{
			Port:         993,
			UseTLS:       true,
			TargetFolder: "Trapmail",
		},
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped when path is empty)
// and the environment. Environment variables always take precedence over the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if cfg.Store.Dir != "" {
		cfg.fileStoreDir = filepath.Clean(cfg.Store.Dir)
	}
	cfg.applyEnvVars()
	cfg.normalize()

	return cfg, nil
}

// LoadEnv is Load with the file named by TRAPMAIL_CONFIG.
func LoadEnv() (Config, error) {
	return Load(os.Getenv(EnvConfig))
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv(naming.EnvStorePath); v != "" {
		c.Store.Dir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogDir); v != "" {
		c.Logging.Dir = v
	}
	if v := os.Getenv(EnvIMAPPass); v != "" {
		c.IMAP.Pass = v
	}
}

func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	if c.Store.Dir != "" {
		c.Store.Dir = filepath.Clean(c.Store.Dir)
	}
	if c.Sync.StateDir != "" {
		c.Sync.StateDir = filepath.Clean(c.Sync.StateDir)
	}
}

// StoreDir is the directory tool commands read from: the configured one, or the default
// resolution used by the capture path.
func (c Config) StoreDir() string {
	if c.Store.Dir != "" {
		return c.Store.Dir
	}
	return naming.ResolveDir()
}

// Allocator returns the capture allocator. TRAPMAIL_STORE is read at every allocation; the
// YAML store.dir only replaces the temporary directory as fallback.
func (c Config) Allocator() *naming.Allocator {
	alloc := naming.New()
	alloc.Dir = naming.DirResolver(c.fileStoreDir)
	return alloc
}

// Validate checks the settings every command shares.
func (c Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", c.Logging.Level)
	}
	if c.Filters.Active() {
		includeActive := len(c.Filters.IncludeHeader) > 0 || len(c.Filters.IncludeBody) > 0
		excludeActive := len(c.Filters.ExcludeHeader) > 0 || len(c.Filters.ExcludeBody) > 0
		if includeActive && excludeActive {
			return fmt.Errorf("include and exclude flags are mutually exclusive")
		}
	}
	return nil
}

// ValidateSync checks the settings the sync command needs on top of Validate. A dry run
// never connects and so needs no server settings.
func (c Config) ValidateSync() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Sync.StateDir == "" {
		return fmt.Errorf("--state-dir is required")
	}
	if c.Sync.DryRun {
		return nil
	}
	if c.IMAP.Host == "" {
		return fmt.Errorf("--imap-host is required")
	}
	if c.IMAP.User == "" {
		return fmt.Errorf("--imap-user is required")
	}
	if c.IMAP.Pass == "" {
		return fmt.Errorf("IMAP password must be provided via --imap-pass or %s env var", EnvIMAPPass)
	}
	if c.IMAP.Port <= 0 || c.IMAP.Port > 65535 {
		return fmt.Errorf("--imap-port must be between 1 and 65535")
	}
	return nil
}

// RegisterFlags attaches the flags shared by every tool command as persistent flags.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file (falls back to "+EnvConfig+" env var)")
	flags.String("store", "", "Store directory (falls back to "+naming.EnvStorePath+", then the system temp dir)")
	flags.String("log-level", "", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (empty disables file logging)")
}

// RegisterFilterFlags attaches the regex filter flags.
func RegisterFilterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
}

// RegisterSyncFlags attaches the IMAP and state flags of the sync command. Without a home
// directory the state dir has no default and must be given.
func RegisterSyncFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to "+EnvIMAPPass+" env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("target-folder", "Trapmail", "IMAP folder receiving the mirrored records")
	flags.Bool("folder-per-sender", false, "File records under a subfolder of the target named after the envelope sender")
	flags.String("state-dir", defaultStateDir(), "Directory for the sync ledger")
	flags.Bool("dry-run", false, "Simulate the sync and emit stats without uploading")
}

// LoadConfig resolves the configuration for cmd: file and environment through Load, then
// every flag the user set explicitly.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	path := os.Getenv(EnvConfig)
	if flags.Changed("config") {
		p, err := flags.GetString("config")
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}

	strs := map[string]*string{
		"store":         &cfg.Store.Dir,
		"log-level":     &cfg.Logging.Level,
		"log-dir":       &cfg.Logging.Dir,
		"imap-host":     &cfg.IMAP.Host,
		"imap-user":     &cfg.IMAP.User,
		"imap-pass":     &cfg.IMAP.Pass,
		"target-folder": &cfg.IMAP.TargetFolder,
		"state-dir":     &cfg.Sync.StateDir,
	}
	for name, dst := range strs {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return Config{}, err
		}
		*dst = v
	}

	bools := map[string]*bool{
		"use-tls":              &cfg.IMAP.UseTLS,
		"insecure-skip-verify": &cfg.IMAP.InsecureSkipVerify,
		"folder-per-sender":    &cfg.IMAP.FolderPerSender,
		"dry-run":              &cfg.Sync.DryRun,
	}
	for name, dst := range bools {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		v, err := flags.GetBool(name)
		if err != nil {
			return Config{}, err
		}
		*dst = v
	}

	if flags.Lookup("imap-port") != nil && flags.Changed("imap-port") {
		port, err := flags.GetInt("imap-port")
		if err != nil {
			return Config{}, err
		}
		cfg.IMAP.Port = port
	}

	// The state dir flag default only applies when the file did not set one.
	if cfg.Sync.StateDir == "" && flags.Lookup("state-dir") != nil {
		if cfg.Sync.StateDir, err = flags.GetString("state-dir"); err != nil {
			return Config{}, err
		}
	}

	if flags.Lookup("include-header") != nil {
		if cfg.Filters, err = loadFilters(cmd); err != nil {
			return Config{}, err
		}
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFilters(cmd *cobra.Command) (filter.Options, error) {
	flags := cmd.Flags()
	var (
		opts filter.Options
		err  error
	)
	if opts.IncludeHeader, err = flags.GetStringArray("include-header"); err != nil {
		return opts, err
	}
	if opts.IncludeBody, err = flags.GetStringArray("include-body"); err != nil {
		return opts, err
	}
	if opts.ExcludeHeader, err = flags.GetStringArray("exclude-header"); err != nil {
		return opts, err
	}
	if opts.ExcludeBody, err = flags.GetStringArray("exclude-body"); err != nil {
		return opts, err
	}
	return opts, nil
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".trapmail", "state")
}
