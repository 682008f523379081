package ingress

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dhcgn/trapmail/model"
	"github.com/dhcgn/trapmail/naming"
	"github.com/dhcgn/trapmail/store"
)

// EnvPrefix selects the environment variables snapshotted into each record.
const EnvPrefix = "TRAPMAIL_"

// Input is everything a capture consumes from the invoking process. Zero values fall back to
// the live process.
type Input struct {
	Args      []string
	Stdin     io.Reader
	Stderr    io.Writer
	WorkDir   string
	Environ   []string
	Allocator *naming.Allocator
	Logger    *slog.Logger
}

// Result describes a stored capture.
type Result struct {
	Path   string
	Record model.Record
}

// Capture reads the message, allocates a file name and writes the record to the store. Any
// failure is returned; nothing is written under the final name unless Capture succeeds.
func Capture(in Input) (Result, error) {
	in = in.withDefaults()

	env, flags := ParseArgs(in.Args)
	for _, f := range flags {
		if !f.Recognized() {
			in.Logger.Warn("ignoring unsupported option", "option", f.Literal)
		}
	}

	raw, err := io.ReadAll(in.Stdin)
	if err != nil {
		return Result{}, fmt.Errorf("read message: %w", err)
	}

	alloc, err := in.Allocator.Allocate()
	if err != nil {
		return Result{}, err
	}

	inv := model.Invocation{
		Args:      append([]string{}, in.Args...),
		Flags:     flags,
		WorkDir:   in.WorkDir,
		StorePath: alloc.Dir,
		Env:       snapshotEnv(in.Environ),
	}
	rec := model.NewRecord(env, raw, inv, model.ProcessInfo{
		PID:         alloc.Key.PID,
		PPID:        alloc.Key.PPID,
		TimestampUS: alloc.Key.TimestampUS,
	})

	path, err := store.Write(alloc.Dir, rec)
	if err != nil {
		return Result{}, err
	}

	in.Logger.Debug("mail captured",
		"path", path,
		"sender", env.Sender,
		"recipients", len(env.Recipients),
		"size", len(raw),
	)
	if inv.Has(model.FlagDebug) {
		fmt.Fprintf(in.Stderr, "Mail written to %q\n", path)
	}

	return Result{Path: path, Record: rec}, nil
}

func (in Input) withDefaults() Input {
	if in.Stdin == nil {
		in.Stdin = os.Stdin
	}
	if in.Stderr == nil {
		in.Stderr = os.Stderr
	}
	if in.WorkDir == "" {
		if wd, err := os.Getwd(); err == nil {
			in.WorkDir = wd
		}
	}
	if in.Environ == nil {
		in.Environ = os.Environ()
	}
	if in.Allocator == nil {
		in.Allocator = naming.New()
	}
	if in.Logger == nil {
		in.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return in
}

func snapshotEnv(environ []string) map[string]string {
	out := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		out[key] = value
	}
	return out
}
