// Package chunkerr defines the error kinds shared by the chunk pool and
// chunked stream packages.
package chunkerr

import "github.com/pkg/errors"

// Sentinel errors identifying each kind of failure the subsystem can
// surface. Callers distinguish them with errors.Is, since every wrapped
// error produced by this package unwraps to one of these.
var (
	// ErrInvalidArgument is returned for negative sizes/positions/counts,
	// invalid pool dimensions, or a range that overflows.
	ErrInvalidArgument = errors.New("chunkstream: invalid argument")

	// ErrForeignChunk is returned when a chunk is returned to a pool that
	// did not rent it.
	ErrForeignChunk = errors.New("chunkstream: chunk does not belong to this pool")

	// ErrDisposed is returned by any stream operation (other than Dispose
	// itself) performed after the stream has been disposed.
	ErrDisposed = errors.New("chunkstream: stream is disposed")

	// ErrStreamTooLarge is returned when a position would require a chunk
	// index beyond math.MaxInt32.
	ErrStreamTooLarge = errors.New("chunkstream: stream exceeds maximum size")

	// ErrReversedRange is returned by ForEach/ForEachContext when from > to.
	ErrReversedRange = errors.New("chunkstream: range end precedes range start")

	// ErrMutatedDuringIteration is returned when a ForEach callback changes
	// the stream's Position or Length.
	ErrMutatedDuringIteration = errors.New("chunkstream: stream mutated during iteration")

	// ErrInvalidOperation is returned for operations disallowed by the
	// stream's current mode, e.g. writing or seeking backward while in
	// ReadForward mode.
	ErrInvalidOperation = errors.New("chunkstream: operation not valid in current mode")
)

// Wrap attaches additional context to kind while preserving it as the
// root cause for errors.Is(err, kind).
func Wrap(kind error, message string) error {
	return errors.Wrap(kind, message)
}

// Wrapf is Wrap with a format string.
func Wrapf(kind error, format string, args ...interface{}) error {
	return errors.Wrapf(kind, format, args...)
}
