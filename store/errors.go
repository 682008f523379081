package store

import (
	"errors"
	"fmt"
)

var (
	ErrStoreDirectoryMissing = errors.New("store directory missing")
	ErrRecordCollision       = errors.New("record already exists")
	ErrRecordCorrupt         = errors.New("record corrupt")
)

// CorruptError reports a store entry that could not be read or decoded. It matches
// ErrRecordCorrupt with errors.Is.
type CorruptError struct {
	Name string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrRecordCorrupt, e.Name, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

func (e *CorruptError) Is(target error) bool {
	return target == ErrRecordCorrupt
}
