// Package store persists captured mail as JSON files in a shared directory and reads it back.
//
// The directory is written by many independent processes at once and is never locked.
// Writers publish each record atomically: the content goes to a temporary file in the same
// directory and is then linked into place under its final name, so a reader listing the
// directory sees a record either complete or not at all. Readers need no coordination with
// writers and tolerate entries they cannot decode.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dhcgn/trapmail/model"
	"github.com/dhcgn/trapmail/naming"
)

const (
	tempPattern = ".trapmail-*.tmp"
	recordMode  = 0o644
)

// Write publishes rec under dir and returns the path of the new file. The directory must
// already exist. An existing file with the same name is never replaced; Write reports
// ErrRecordCollision instead and leaves it untouched.
func Write(dir string, rec model.Record) (string, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrStoreDirectoryMissing, dir)
	}
	if err != nil {
		return "", fmt.Errorf("stat store directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrStoreDirectoryMissing, dir)
	}

	data, err := model.Encode(rec)
	if err != nil {
		return "", err
	}

	final := filepath.Join(dir, naming.FileName(rec.PPID, rec.PID, rec.TimestampUS))

	tmp, err := writeTemp(dir, data)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	if err := publish(tmp, final); err != nil {
		return "", err
	}
	return final, nil
}

func writeTemp(dir string, data []byte) (string, error) {
	file, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := file.Name()

	fail := func(err error) (string, error) {
		_ = file.Close()
		_ = os.Remove(name)
		return "", err
	}

	if _, err := file.Write(data); err != nil {
		return fail(fmt.Errorf("write temp file: %w", err))
	}
	if err := file.Sync(); err != nil {
		return fail(fmt.Errorf("sync temp file: %w", err))
	}
	if err := file.Chmod(recordMode); err != nil {
		return fail(fmt.Errorf("chmod temp file: %w", err))
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return name, nil
}

// publish makes tmp visible as final. A hard link is atomic and refuses to replace an
// existing name. Filesystems without hard links
// fall back to an existence check followed by rename; the window between both is the
// same-microsecond self-collision the naming scheme already accepts.
func publish(tmp, final string) error {
	err := os.Link(tmp, final)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", ErrRecordCollision, filepath.Base(final))
	}
	if !linkUnsupported(err) {
		return fmt.Errorf("publish record: %w", err)
	}

	if _, statErr := os.Lstat(final); statErr == nil {
		return fmt.Errorf("%w: %s", ErrRecordCollision, filepath.Base(final))
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return fmt.Errorf("publish record: %w", statErr)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

// linkUnsupported reports link failures caused by the filesystem rather than the caller.
// vfat and some network filesystems answer EPERM instead of ENOTSUP.
func linkUnsupported(err error) bool {
	return errors.Is(err, errors.ErrUnsupported) || errors.Is(err, syscall.EPERM)
}
