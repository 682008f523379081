package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dhcgn/trapmail/inspect"
	"github.com/dhcgn/trapmail/model"
	"github.com/dhcgn/trapmail/naming"
	"github.com/dhcgn/trapmail/store"
)

func newDumpCommand() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "dump <record>",
		Short: "Print a stored record",
		Long: "Print a stored record. The argument is a path, or the file name of a record in the " +
			"store directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, cleanup, err := toolSetup(cmd, false)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			path := resolveRecordPath(args[0], cfg.StoreDir())
			rec, err := store.LoadFile(path)
			if err != nil {
				return err
			}

			if raw {
				_, err := cmd.OutOrStdout().Write(rec.Message)
				return err
			}
			printRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print only the captured message")
	return cmd
}

// resolveRecordPath prefers an existing path and falls back to a record name in the store.
func resolveRecordPath(arg, storeDir string) string {
	if _, err := os.Stat(arg); errors.Is(err, fs.ErrNotExist) && naming.Match(filepath.Base(arg)) && !strings.ContainsRune(arg, filepath.Separator) {
		return filepath.Join(storeDir, arg)
	}
	return arg
}

var (
	headingColor = color.New(color.Bold, color.FgCyan)
	labelColor   = color.New(color.FgYellow)
	warnColor    = color.New(color.FgRed)
)

func printRecord(w io.Writer, rec model.Record) {
	headingColor.Fprintf(w, "Mail sent on %s from PID %d (PPID %d).\n",
		rec.Time().Format("2006-01-02 15:04:05.000000")+" UTC", rec.PID, rec.PPID)

	fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Sender:"), rec.Envelope.Sender)
	fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Recipients:"), strings.Join(rec.Envelope.Recipients, ", "))
	if summary, err := inspect.Record(rec); err == nil && summary.Subject != "" {
		fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Subject:"), summary.Subject)
	}
	fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Arguments:"), strings.Join(rec.Invocation.Args, " "))
	for _, f := range rec.Invocation.Ignored() {
		fmt.Fprintf(w, "%s %s\n", warnColor.Sprint("Ignored option:"), f.Literal)
	}
	if rec.Invocation.WorkDir != "" {
		fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Working directory:"), rec.Invocation.WorkDir)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, rec.Message.String())
}
