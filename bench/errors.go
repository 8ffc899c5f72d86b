package bench

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyList indicates a transfer list was built without entries.
	ErrEmptyList = errors.New("rdmabench: transfer list requires at least one entry")
	// ErrUnsupportedMode indicates the selected benchmark mode has no
	// transfer technique behind it.
	ErrUnsupportedMode = errors.New("rdmabench: benchmark mode not supported")
	// ErrNoMode indicates no benchmark operation was selected.
	ErrNoMode = errors.New("rdmabench: no benchmarking operation set")
	// ErrEmptyRunCount indicates a benchmark was configured with zero runs.
	ErrEmptyRunCount = errors.New("rdmabench: run count must be positive")
)

// RangeError reports a transfer list entry that violates the segment bounds.
type RangeError struct {
	Index  int
	Reason string
}

func (e RangeError) Error() string {
	return fmt.Sprintf("rdmabench: transfer list entry %d: %s", e.Index, e.Reason)
}

// SetupError reports a failed resource acquisition step. It is fatal to the
// benchmark invocation that hit it.
type SetupError struct {
	Step string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("rdmabench: %s: %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}
