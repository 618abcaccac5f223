package syncer

import "errors"

var (
	// ErrSyncInProgress is returned when a sync cycle is requested
	// while another one holds the lock. The caller should report it,
	// not queue behind it.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNetwork wraps download/upload failures. The operation is
	// aborted before any local mutation; nothing is retried here.
	ErrNetwork = errors.New("sync network failure")

	// ErrApply wraps a failure inside the apply transaction. The
	// transaction has rolled back and local state is unchanged.
	ErrApply = errors.New("apply transaction failed")
)
