package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/trapmail/mbox"
	"github.com/dhcgn/trapmail/store"
)

func newExportCommand() *cobra.Command {
	var mboxPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored records to an mbox file",
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
			res, err := mbox.ExportFile(mboxPath, s.Records(preds...), logger)
			if err != nil {
				return err
			}

			count, err := mbox.CountMessages(mboxPath)
			if err != nil {
				return fmt.Errorf("verify mbox: %w", err)
			}
			if count != res.Written {
				return fmt.Errorf("verify mbox: wrote %d messages, read back %d", res.Written, count)
			}

			logger.Info("export finished", "mbox", mboxPath, "written", res.Written, "skipped", res.Skipped)
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d record(s) to %s\n", res.Written, mboxPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&mboxPath, "mbox", "", "Path of the mbox file to write")
	_ = cmd.MarkFlagRequired("mbox")
	registerSelectFlags(cmd)
	return cmd
}
