package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongVersionFormat means a bridge reported a version that does not
	// split into exactly three dot-separated cells.
	ErrWrongVersionFormat = errors.New("wrong version format")

	// ErrInvalidPath means a bridge reported a path (or entry point) that
	// does not exist on disk.
	ErrInvalidPath = errors.New("bridge returned a path that does not exist")

	// ErrMalformedOutput means the first stdout line of a successful
	// install/update did not have 2 or 3 comma-separated fields.
	ErrMalformedOutput = errors.New("malformed bridge output")
)

// NotFoundError is fatal: a bridge named by the declared set has no entry
// point under the bridge set root.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("bridge not found: %s", e.Name)
}

// NotExecutableError is fatal: a needed bridge's run file has no executable
// permission bit.
type NotExecutableError struct {
	Path string
}

func (e *NotExecutableError) Error() string {
	return fmt.Sprintf("bridge entry point is not executable: %s", e.Path)
}

// FailureError wraps a bridge-reported failure (nonzero exit, spawn
// failure, or protocol violation) for one operation on one package.
type FailureError struct {
	Bridge  string
	Package string
	Op      Op
	Message string
	Err     error // set for protocol violations, nil for plain bridge failures
}

func (e *FailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bridge %s: %s %s: %v", e.Bridge, e.Op, e.Package, e.Err)
	}
	return fmt.Sprintf("bridge %s: %s %s: %s", e.Bridge, e.Op, e.Package, e.Message)
}

func (e *FailureError) Unwrap() error { return e.Err }
