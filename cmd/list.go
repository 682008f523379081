package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/trapmail/inspect"
	"github.com/dhcgn/trapmail/store"
)

func newListCommand() *cobra.Command {
	var names bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the stored records, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := toolSetup(cmd, false)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			preds, err := selection(cmd, cfg, time.Now())
			if err != nil {
				return err
			}

			s := store.Open(cfg.StoreDir())
			var entries []store.Entry
			for entry, err := range s.Records(preds...) {
				if err != nil {
					if errors.Is(err, store.ErrRecordCorrupt) {
						logger.Warn("skipping corrupt record", "name", entry.Name, "err", err)
						continue
					}
					return err
				}
				entries = append(entries, entry)
			}
			store.SortByTime(entries)

			out := cmd.OutOrStdout()
			if names {
				for _, entry := range entries {
					fmt.Fprintln(out, entry.Name)
				}
				return nil
			}

			if len(entries) == 0 {
				logger.Info("no records", "dir", s.Dir())
				return nil
			}

			data := pterm.TableData{{"Time (UTC)", "PID", "PPID", "Sender", "Recipients", "Subject"}}
			for _, entry := range entries {
				rec := entry.Record
				subject := ""
				if summary, err := inspect.Record(rec); err == nil {
					subject = summary.Subject
				}
				data = append(data, []string{
					rec.Time().Format("2006-01-02 15:04:05.000000"),
					strconv.Itoa(rec.PID),
					strconv.Itoa(rec.PPID),
					rec.Envelope.Sender,
					strings.Join(rec.Envelope.Recipients, ", "),
					subject,
				})
			}

			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return fmt.Errorf("render table: %w", err)
			}
			fmt.Fprintln(out, table)
			return nil
		},
	}

	cmd.Flags().BoolVar(&names, "names", false, "Print only the record file names")
	registerSelectFlags(cmd)
	return cmd
}
