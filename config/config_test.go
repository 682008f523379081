package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trapmail.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"TRAPMAIL_STORE", EnvConfig, EnvLogLevel, EnvLogDir, EnvIMAPPass} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "info" || cfg.IMAP.Port != 993 || !cfg.IMAP.UseTLS || cfg.IMAP.TargetFolder != "Trapmail" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Store.Dir != "" {
		t.Errorf("Store.Dir = %q, want empty", cfg.Store.Dir)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `
store:
  dir: /srv/trapmail/
logging:
  level: WARNING
imap:
  host: imap.example.com
  port: 143
  use_tls: false
  pass: from-file
  folder_per_sender: true
sync:
  state_dir: /var/lib/trapmail
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Dir != "/srv/trapmail" {
		t.Errorf("Store.Dir = %q", cfg.Store.Dir)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.IMAP.Host != "imap.example.com" || cfg.IMAP.Port != 143 || cfg.IMAP.UseTLS || !cfg.IMAP.FolderPerSender {
		t.Errorf("IMAP = %+v", cfg.IMAP)
	}
	if cfg.IMAP.TargetFolder != "Trapmail" {
		t.Errorf("unset key lost its default: %q", cfg.IMAP.TargetFolder)
	}

	t.Setenv("TRAPMAIL_STORE", "/tmp/override")
	t.Setenv(EnvIMAPPass, "from-env")
	t.Setenv(EnvLogLevel, "debug")
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Dir != "/tmp/override" || cfg.IMAP.Pass != "from-env" || cfg.Logging.Level != "debug" {
		t.Errorf("env did not override file: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeYAML(t, "store: [not, a, map]")); err == nil {
		t.Error("expected error for malformed file")
	}
}

func newCommand(t *testing.T, sync bool) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	RegisterFlags(cmd)
	RegisterFilterFlags(cmd)
	if sync {
		RegisterSyncFlags(cmd)
	}
	return cmd
}

func TestLoadConfigFlags(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, "store:\n  dir: /from/file\nimap:\n  host: file.example.com\n")

	cmd := newCommand(t, true)
	if err := cmd.ParseFlags([]string{
		"--config", path,
		"--store", "/from/flag",
		"--imap-port", "1143",
		"--use-tls=false",
		"--folder-per-sender",
		"--dry-run",
		"--include-header", "Subject: x",
		"--log-level", "Error",
	}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(cmd)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Store.Dir != "/from/flag" {
		t.Errorf("Store.Dir = %q, flag should win", cfg.Store.Dir)
	}
	if cfg.IMAP.Host != "file.example.com" {
		t.Errorf("IMAP.Host = %q, file value should survive", cfg.IMAP.Host)
	}
	if cfg.IMAP.Port != 1143 || cfg.IMAP.UseTLS || !cfg.IMAP.FolderPerSender || !cfg.Sync.DryRun {
		t.Errorf("flag values not applied: %+v", cfg)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if len(cfg.Filters.IncludeHeader) != 1 {
		t.Errorf("Filters = %+v", cfg.Filters)
	}
	if !strings.HasSuffix(cfg.Sync.StateDir, filepath.Join(".trapmail", "state")) {
		t.Errorf("Sync.StateDir = %q, want the default", cfg.Sync.StateDir)
	}
	if err := cfg.ValidateSync(); err != nil {
		t.Errorf("ValidateSync() on dry run = %v", err)
	}
}

func TestLoadConfigRejectsMixedFilters(t *testing.T) {
	clearEnv(t)
	cmd := newCommand(t, false)
	if err := cmd.ParseFlags([]string{"--include-header", "a", "--exclude-body", "b"}); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(cmd); err == nil {
		t.Error("expected error for include and exclude together")
	}
}

func TestLoadConfigInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	cmd := newCommand(t, false)
	if err := cmd.ParseFlags([]string{"--log-level", "verbose"}); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(cmd); err == nil {
		t.Error("expected error for unknown log level")
	}
}

func TestValidateSync(t *testing.T) {
	base := Default()
	base.Sync.StateDir = "/state"
	base.IMAP.Host = "imap.example.com"
	base.IMAP.User = "user"
	base.IMAP.Pass = "secret"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.IMAP.Host = "" }, wantErr: "--imap-host"},
		{name: "missing user", mutate: func(c *Config) { c.IMAP.User = "" }, wantErr: "--imap-user"},
		{name: "missing password", mutate: func(c *Config) { c.IMAP.Pass = "" }, wantErr: "password"},
		{name: "bad port", mutate: func(c *Config) { c.IMAP.Port = 70000 }, wantErr: "--imap-port"},
		{name: "missing state dir", mutate: func(c *Config) { c.Sync.StateDir = "" }, wantErr: "--state-dir"},
		{name: "dry run needs no server", mutate: func(c *Config) { c.Sync.DryRun = true; c.IMAP.Host = ""; c.IMAP.Pass = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.ValidateSync()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateSync() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateSync() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestStoreDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("TRAPMAIL_STORE", dir)

	if got := (Config{}).StoreDir(); got != dir {
		t.Errorf("StoreDir() = %q, want %q", got, dir)
	}
	if got := (Config{Store: StoreConfig{Dir: "/explicit"}}).StoreDir(); got != "/explicit" {
		t.Errorf("StoreDir() = %q", got)
	}
}

func TestAllocatorDir(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, "store:\n  dir: /srv/from-file\n")

	t.Setenv("TRAPMAIL_STORE", "/from/env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	alloc := cfg.Allocator()
	if got := alloc.Dir(); got != "/from/env" {
		t.Errorf("Dir() = %q, want the environment value", got)
	}

	t.Setenv("TRAPMAIL_STORE", "")
	if got := alloc.Dir(); got != "/srv/from-file" {
		t.Errorf("Dir() = %q, want the file value once the environment is empty", got)
	}

	// A later load without a file must not inherit the earlier directories.
	plain, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if got := plain.Allocator().Dir(); got != os.TempDir() {
		t.Errorf("Dir() = %q, want %q", got, os.TempDir())
	}
}
