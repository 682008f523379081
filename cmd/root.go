// Package cmd wires the trapmail command line.
//
// Invoked like sendmail, trapmail captures the message on stdin. The first argument selects a
// tool command instead when it names one, so `trapmail list` inspects the store while
// `trapmail -t -i` or `trapmail user@example.com` capture.
package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dhcgn/trapmail/config"
)

const captureCommand = "capture"

// toolCommands are the first arguments that do not start a capture. -h is absent because
// sendmail uses it for the hop count.
var toolCommands = map[string]bool{
	"dump":         true,
	"list":         true,
	"clear":        true,
	"export":       true,
	"sync":         true,
	"stats":        true,
	"help":         true,
	"completion":   true,
	"--help":       true,
	captureCommand: true,
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "trapmail",
		Short: "sendmail stand-in that stores every message as a JSON record",
		Long: "trapmail replaces sendmail in test environments. Each invocation stores the message and " +
			"its metadata as a JSON file in the store directory ($TRAPMAIL_STORE, default: the system temp dir). " +
			"The sub-commands inspect and clean up that store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	config.RegisterFlags(root)

	root.AddCommand(
		newCaptureCommand(),
		newDumpCommand(),
		newListCommand(),
		newClearCommand(),
		newExportCommand(),
		newStatsCommand(),
		newSyncCommand(),
	)

	return root
}

// Execute runs trapmail for argv, the full process argument vector.
func Execute(argv []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, argv, os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root := NewRootCommand()
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(dispatch(argv))
	return root.ExecuteContext(ctx)
}

// dispatch maps a process argument vector onto the command tree.
func dispatch(argv []string) []string {
	if len(argv) == 0 {
		return []string{captureCommand}
	}
	args := argv[1:]

	if filepath.Base(argv[0]) == "sendmail" {
		return append([]string{captureCommand}, args...)
	}

	if len(args) > 0 {
		// --dump <file> predates the dump sub-command.
		if args[0] == "--dump" || strings.HasPrefix(args[0], "--dump=") {
			rest := append([]string{}, args[1:]...)
			if v, ok := strings.CutPrefix(args[0], "--dump="); ok {
				rest = append([]string{v}, rest...)
			}
			return append([]string{"dump"}, rest...)
		}
		if toolCommands[args[0]] {
			return args
		}
	}

	return append([]string{captureCommand}, args...)
}
