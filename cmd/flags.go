package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/trapmail/config"
	"github.com/dhcgn/trapmail/filter"
	"github.com/dhcgn/trapmail/store"
)

// selectFlagNames lists every flag registered by registerSelectFlags.
var selectFlagNames = []string{
	"pid", "ppid", "since", "until", "sender", "recipient",
	"include-header", "include-body", "exclude-header", "exclude-body",
}

// registerSelectFlags attaches the record selection flags shared by list, clear, export,
// stats and sync.
func registerSelectFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("pid", 0, "Only records captured by this process id")
	flags.Int("ppid", 0, "Only records whose capturing process had this parent process id")
	flags.String("since", "", "Only records captured at or after this time (RFC 3339 or a duration such as 15m)")
	flags.String("until", "", "Only records captured before this time (RFC 3339 or a duration such as 15m)")
	flags.String("sender", "", "Only records with this envelope sender")
	flags.String("recipient", "", "Only records addressed to this envelope recipient")
	config.RegisterFilterFlags(cmd)
}

// selection turns the selection flags into store predicates.
func selection(cmd *cobra.Command, cfg config.Config, now time.Time) ([]store.Predicate, error) {
	flags := cmd.Flags()
	var preds []store.Predicate

	if flags.Changed("pid") {
		pid, err := flags.GetInt("pid")
		if err != nil {
			return nil, err
		}
		preds = append(preds, store.ByPID(pid))
	}
	if flags.Changed("ppid") {
		ppid, err := flags.GetInt("ppid")
		if err != nil {
			return nil, err
		}
		preds = append(preds, store.ByPPID(ppid))
	}

	var from, to time.Time
	for name, dst := range map[string]*time.Time{"since": &from, "until": &to} {
		v, err := flags.GetString(name)
		if err != nil {
			return nil, err
		}
		if v == "" {
			continue
		}
		t, err := parseTime(v, now)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		*dst = t
	}
	if !from.IsZero() || !to.IsZero() {
		preds = append(preds, store.Between(from, to))
	}

	if v, err := flags.GetString("sender"); err != nil {
		return nil, err
	} else if v != "" {
		preds = append(preds, store.BySender(v))
	}
	if v, err := flags.GetString("recipient"); err != nil {
		return nil, err
	} else if v != "" {
		preds = append(preds, store.ByRecipient(v))
	}

	if cfg.Filters.Active() {
		f, err := filter.New(cfg.Filters)
		if err != nil {
			return nil, fmt.Errorf("create filter: %w", err)
		}
		preds = append(preds, f.Predicate())
	}

	return preds, nil
}

// parseTime accepts an RFC 3339 timestamp or a duration counted back from now.
func parseTime(v string, now time.Time) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or a duration", v)
	}
	return now.Add(-d), nil
}

// toolSetup resolves the configuration and logger of a tool command.
func toolSetup(cmd *cobra.Command, logToStdout bool) (config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.LoadConfig(cmd)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	out := cmd.ErrOrStderr()
	if logToStdout {
		out = cmd.OutOrStdout()
	}
	logger, cleanup, err := setupLogger(cfg, out)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, logger, cleanup, nil
}
