package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dhcgn/trapmail/config"
	"github.com/dhcgn/trapmail/ingress"
)

func newCaptureCommand() *cobra.Command {
	return &cobra.Command{
		Use:                captureCommand + " [sendmail options] [recipients...]",
		Short:              "Store the message read from stdin (default when no command is given)",
		Hidden:             true,
		DisableFlagParsing: true,
		Args:               cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgErr := captureConfig()

			// stdout belongs to the application that called sendmail.
			logger, cleanup, err := setupLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				cfgErr = errors.Join(cfgErr, err)
				cfg.Logging.Dir = ""
				if logger, cleanup, err = setupLogger(cfg, cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			defer func() {
				_ = cleanup()
			}()
			if cfgErr != nil {
				logger.Warn("ignoring invalid configuration", "err", cfgErr)
			}

			_, err = ingress.Capture(ingress.Input{
				Args:      args,
				Stdin:     cmd.InOrStdin(),
				Stderr:    cmd.ErrOrStderr(),
				Allocator: cfg.Allocator(),
				Logger:    logger,
			})
			return err
		},
	}
}

// captureConfig loads the configuration for a capture. A capture only fails on I/O and
// process information, so configuration problems are returned for logging while the
// offending settings fall back to their defaults.
func captureConfig() (config.Config, error) {
	cfg, err := config.LoadEnv()
	if err != nil {
		cfg = config.Default()
	}
	if verr := cfg.Validate(); verr != nil {
		err = errors.Join(err, verr)
		cfg.Logging.Level = config.Default().Logging.Level
	}
	return cfg, err
}
