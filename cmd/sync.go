package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/trapmail/config"
	"github.com/dhcgn/trapmail/imap"
	"github.com/dhcgn/trapmail/progress"
	"github.com/dhcgn/trapmail/runner"
	"github.com/dhcgn/trapmail/state"
	"github.com/dhcgn/trapmail/store"
)

func newSyncCommand() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror stored records into an IMAP folder for inspection",
		Long: "Append every stored record to an IMAP folder so captured mail can be read with a " +
			"normal mail client. Records already mirrored are remembered in the state directory " +
			"and skipped on the next run; --status lists them. Nothing is delivered to the envelope " +
			"recipients.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := toolSetup(cmd, true)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()
			if status {
				if cfg.Sync.StateDir == "" {
					return fmt.Errorf("--state-dir is required")
				}
				return printSyncStatus(cmd.OutOrStdout(), cfg.Sync.StateDir)
			}
			if err := cfg.ValidateSync(); err != nil {
				return err
			}

			preds, err := selection(cmd, cfg, time.Now())
			if err != nil {
				return err
			}

			logger.Info("starting sync", "store", cfg.StoreDir(), "target", cfg.IMAP.TargetFolder, "dryRun", cfg.Sync.DryRun)
			return runSync(cmd, cfg, logger, preds)
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "List the records already mirrored instead of syncing")
	config.RegisterSyncFlags(cmd)
	registerSelectFlags(cmd)
	return cmd
}

func printSyncStatus(out io.Writer, stateDir string) error {
	ledger, err := state.Open(stateDir, false)
	if err != nil {
		return err
	}
	entries := ledger.Entries()
	if len(entries) == 0 {
		fmt.Fprintf(out, "No records mirrored yet (%s)\n", ledger.Path())
		return nil
	}

	data := pterm.TableData{{"Captured (UTC)", "PID", "PPID", "Sender", "Folder", "Message-ID", "Mirrored (UTC)"}}
	for _, e := range entries {
		data = append(data, []string{
			e.Captured.Format(time.DateTime),
			strconv.Itoa(e.Key.PID),
			strconv.Itoa(e.Key.PPID),
			e.Sender,
			e.Folder,
			e.MessageID,
			e.Mirrored.Format(time.DateTime),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	fmt.Fprintln(out, table)
	fmt.Fprintf(out, "%d record(s) mirrored, ledger %s\n", len(entries), ledger.Path())
	return nil
}

func runSync(cmd *cobra.Command, cfg config.Config, logger *slog.Logger, preds []store.Predicate) error {
	s := store.Open(cfg.StoreDir())
	names, err := s.Names()
	if err != nil {
		return err
	}

	r, err := runner.New(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}
	alreadyDone := 0
	for _, name := range names {
		if r.Ledger().Mirrored(name) {
			alreadyDone++
		}
	}

	bar := progress.New(len(names), alreadyDone, cfg.Logging.Level)
	progress.NewReporter(r, bar, logger)

	uploaderOpts := imap.Options{
		Host:               cfg.IMAP.Host,
		Port:               cfg.IMAP.Port,
		Username:           cfg.IMAP.User,
		Password:           cfg.IMAP.Pass,
		UseTLS:             cfg.IMAP.UseTLS,
		InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
		TargetFolder:       cfg.IMAP.TargetFolder,
		FolderPerSender:    cfg.IMAP.FolderPerSender,
		DryRun:             cfg.Sync.DryRun,
	}
	if _, err := imap.NewUploader(uploaderOpts, r, logger); err != nil {
		return fmt.Errorf("imap.NewUploader: %w", err)
	}

	r.AddStoreSource(s, preds...)
	return r.Start()
}
