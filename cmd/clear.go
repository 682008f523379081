package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/trapmail/store"
)

func newClearCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove stored records",
		Long: "Remove the records matching the selection flags. With --all every record file is " +
			"removed, including files that can no longer be decoded.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := toolSetup(cmd, false)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			s := store.Open(cfg.StoreDir())

			var (
				removed int
				errs    []error
			)
			if all {
				removed, errs = s.ClearAll()
			} else {
				preds, err := selection(cmd, cfg, time.Now())
				if err != nil {
					return err
				}
				removed, errs = s.Clear(preds...)
			}

			for _, err := range errs {
				logger.Error("clear", "err", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s) from %s\n", removed, s.Dir())
			if len(errs) > 0 {
				return fmt.Errorf("clear %s: %w", s.Dir(), errors.Join(errs...))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every record file without decoding it")
	registerSelectFlags(cmd)
	for _, name := range selectFlagNames {
		cmd.MarkFlagsMutuallyExclusive("all", name)
	}
	return cmd
}
