package blockmodel

import "github.com/pkg/errors"

var (
	// ErrInvalidMove is returned when a move crosses a barrier label.
	ErrInvalidMove = errors.New("move crosses a partition barrier")

	// ErrUnsupported is returned by the dense formulations, which the
	// overlapping model does not implement.
	ErrUnsupported = errors.New("dense formulation not supported by the overlapping model")

	// ErrCorrupted reports an aggregate statistic that no longer matches the
	// labels. The state cannot be used afterwards.
	ErrCorrupted = errors.New("block state corrupted")

	// ErrInvalidParams is returned by New for malformed construction input.
	ErrInvalidParams = errors.New("invalid block state parameters")
)

// corrupted panics with an ErrCorrupted-wrapping error.
func corrupted(format string, args ...interface{}) {
	panic(errors.Wrapf(ErrCorrupted, format, args...))
}
