package storage

import "fmt"

// Error reports a failed directory creation or file write. Side effects that
// happened before the failure, such as a created directory, are not undone.
type Error struct {
	// Op is "resolve", "mkdir" or "write".
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
