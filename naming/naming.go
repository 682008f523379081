// Package naming derives the file names under which captured mail is stored.
//
// A name has the form trapmail_<PPID>_<PID>_<TIMESTAMP>.json where TIMESTAMP is the capture
// time in microseconds since the Unix epoch. The (ppid, pid, timestamp) triple is the natural
// key of a record; two processes never share a pid at the same instant, and a single process
// only collides with itself when it captures twice within one microsecond. That case is not
// retried here; the store writer rejects it.
package naming

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

const (
	Prefix    = "trapmail"
	Extension = ".json"
)

var ErrProcessInfoUnavailable = errors.New("process information unavailable")

var filenameRe = regexp.MustCompile(`^trapmail_(\d+)_(\d+)_(\d+)\.json$`)

// Key is the natural key of a record.
type Key struct {
	PPID        int
	PID         int
	TimestampUS int64
}

// FileName returns the store file name for the key.
func (k Key) FileName() string {
	return FileName(k.PPID, k.PID, k.TimestampUS)
}

// FileName formats trapmail_<ppid>_<pid>_<timestamp>.json.
func FileName(ppid, pid int, timestampUS int64) string {
	return fmt.Sprintf("%s_%d_%d_%d%s", Prefix, ppid, pid, timestampUS, Extension)
}

// Match reports whether name follows the record naming convention.
func Match(name string) bool {
	return filenameRe.MatchString(name)
}

// Parse extracts the key from a record file name.
func Parse(name string) (Key, bool) {
	m := filenameRe.FindStringSubmatch(name)
	if m == nil {
		return Key{}, false
	}
	ppid, err := strconv.Atoi(m[1])
	if err != nil {
		return Key{}, false
	}
	pid, err := strconv.Atoi(m[2])
	if err != nil {
		return Key{}, false
	}
	ts, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return Key{}, false
	}
	return Key{PPID: ppid, PID: pid, TimestampUS: ts}, true
}

// Allocation is the outcome of Allocate: the key taken at capture time and the store directory
// it is destined for.
type Allocation struct {
	Key Key
	Dir string
}

// Name returns the file name of the allocation.
func (a Allocation) Name() string {
	return a.Key.FileName()
}

// Path returns the full destination path.
func (a Allocation) Path() string {
	return filepath.Join(a.Dir, a.Name())
}

// Allocator snapshots the current process and time. Every field is consulted on each call to
// Allocate; nothing is cached.
type Allocator struct {
	Getpid  func() int
	Getppid func() int
	Now     func() time.Time
	Dir     func() string
}

// New returns an allocator reading the live process state and resolving the store directory
// from the environment.
func New() *Allocator {
	return &Allocator{
		Getpid:  os.Getpid,
		Getppid: os.Getppid,
		Now:     time.Now,
		Dir:     ResolveDir,
	}
}

// Allocate takes a fresh snapshot of pid, ppid and time and returns the destination of the
// capture.
func (a *Allocator) Allocate() (Allocation, error) {
	pid := a.Getpid()
	if pid < 0 {
		return Allocation{}, fmt.Errorf("%w: pid %d", ErrProcessInfoUnavailable, pid)
	}
	// ppid 0 is legitimate when the parent lives outside our pid namespace.
	ppid := a.Getppid()
	if ppid < 0 {
		return Allocation{}, fmt.Errorf("%w: parent pid %d", ErrProcessInfoUnavailable, ppid)
	}

	return Allocation{
		Key: Key{
			PPID:        ppid,
			PID:         pid,
			TimestampUS: a.Now().UnixMicro(),
		},
		Dir: a.Dir(),
	}, nil
}
