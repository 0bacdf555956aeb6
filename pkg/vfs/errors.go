package vfs

import "fmt"

// PathError records an error from a dispatch operation together with the
// partition label and the path or descriptor it concerned. The engine's
// Errno stays reachable through the error chain, so callers branch with
// errors.Is(err, engine.ErrBusy) and friends.
type PathError struct {
	Op    string
	Label string
	Path  string
	Err   error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Label, e.Err)
	}
	return fmt.Sprintf("%s %s:%s: %v", e.Op, e.Label, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error { return e.Err }

func (v *Instance) wrap(op, path string, err error) error {
	return &PathError{Op: op, Label: v.label, Path: path, Err: err}
}
