package migr8

import (
	"errors"
	"fmt"
)

// ErrValidation marks fatal input problems surfaced before any file
// processing begins (bad root path, malformed blacklist).
var ErrValidation = errors.New("validation failed")

// ErrTimeout marks a build that exceeded its wall-clock budget. The partial
// graph is discarded; the caller retries with a larger budget or a narrower
// scope.
var ErrTimeout = errors.New("build timed out")

// FileError is a recovered per-file failure: the file contributed nothing
// and the batch carried on. Op is one of "read", "stat", "parse",
// "processAST", or "write".
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
