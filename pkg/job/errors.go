package job

import "errors"

// Error kinds from spec.md §7. Workers classify an Operation's returned
// error against these sentinels with errors.Is to decide whether a job is
// a retry candidate or terminal, mirroring the teacher's
// queue.ErrLockNotAcquired sentinel-comparison style.
var (
	// ErrInvalidInput means hierarchy UIDs were missing for the requested
	// level, the server name was unknown, or a port/priority was invalid.
	// Surfaced synchronously; no Job is ever admitted for it.
	ErrInvalidInput = errors.New("job: invalid input")

	// ErrTransient means an association failed, a read timed out, or the
	// remote aborted mid-operation. Converts to AttemptFailed.
	ErrTransient = errors.New("job: transient network failure")

	// ErrProtocol means the peer returned a DIMSE-level failure status.
	// Treated as AttemptFailed unless the Operation classifies it
	// otherwise.
	ErrProtocol = errors.New("job: protocol failure")

	// ErrUserCanceled means cancellation was observed after cancel().
	// Terminal; never retried.
	ErrUserCanceled = errors.New("job: canceled by user")

	// ErrStoreFailure means the Inserter could not persist results (disk
	// full, schema mismatch, ...). The Inserter Job fails; the originating
	// job remains Finished.
	ErrStoreFailure = errors.New("job: store failure")

	// ErrExhaustedRetries means retry_counter == maximum_retries and the
	// current attempt failed transiently. Terminal Failed.
	ErrExhaustedRetries = errors.New("job: exhausted retries")
)

// IsRetryable reports whether err should trigger the Worker's retry-clone
// path rather than a terminal outcome (spec.md §7 "Propagation policy").
// User cancellation, invalid input, and store failures are terminal;
// everything else (transient network errors, protocol failures, and any
// error an Operation does not classify) is treated as a retry candidate.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrUserCanceled) && !errors.Is(err, ErrInvalidInput) && !errors.Is(err, ErrStoreFailure)
}
