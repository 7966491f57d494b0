package bonsai

import (
	"errors"
	"fmt"

	walpkg "github.com/intellect4all/bonsaitree/wal"
)

// ErrKeyNotFound is returned by Get/Remove when the key is absent.
var ErrKeyNotFound = errors.New("bonsai: key not found")

// ErrTreeClosed is returned by any operation on a closed tree.
var ErrTreeClosed = errors.New("bonsai: tree is closed")

// ErrKeyEmpty is returned when a nil or zero-length key is supplied.
var ErrKeyEmpty = errors.New("bonsai: key cannot be empty")

// ErrEntryTooLarge is returned by Put when an encoded key/value pair could
// never fit in a bucket slot even on its own, so splitting and retrying
// would recurse forever instead of converging.
var ErrEntryTooLarge = errors.New("bonsai: entry too large for a single bucket")

// IoError wraps a lower-level disk cache or WAL failure. Any IoError raised
// inside Put/Remove terminates the enclosing atomic unit with rollback
// before it reaches the caller; Clear and Create open no atomic unit.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("bonsai: io error during %s: %v", e.Op, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

func newIoError(op string, err error) *IoError {
	return &IoError{Op: op, Err: err}
}

// TreeError is the error type surfaced at the public Tree API boundary. It
// wraps the underlying cause with the tree name and, where applicable, the
// key involved.
type TreeError struct {
	Tree string
	Key  []byte
	Err  error
}

func (e *TreeError) Error() string {
	if len(e.Key) > 0 {
		return fmt.Sprintf("bonsai: tree %q: key %x: %v", e.Tree, e.Key, e.Err)
	}
	return fmt.Sprintf("bonsai: tree %q: %v", e.Tree, e.Err)
}

func (e *TreeError) Unwrap() error { return e.Err }

func newTreeError(tree string, key []byte, err error) *TreeError {
	return &TreeError{Tree: tree, Key: key, Err: err}
}

// RollbackError is re-exported from wal so callers can errors.As against
// a single bonsai-rooted type without importing the wal package directly.
type RollbackError = walpkg.RollbackError

// Assertion marks a fatal internal-invariant violation (corruption). It is
// raised as a panic value; the public API does not recover it, so the
// panic reaches the caller.
type Assertion struct {
	Msg string
}

func (e *Assertion) Error() string {
	return "bonsai: assertion failed: " + e.Msg
}

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(&Assertion{Msg: fmt.Sprintf(format, args...)})
	}
}
