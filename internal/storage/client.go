// Package storage defines the narrow interface a remote sync backend
// must implement, with concrete providers under providers/.
package storage

import (
	"context"

	"github.com/okayu/mangasync/internal/snapshot"
)

// Backend is an opaque remote store for one snapshot blob kept under a
// fixed resource name.
//
// Blob backends have no compare-and-swap: two devices running the
// download-merge-reupload cycle at the same time can race in the window
// between read and write. That window is accepted and documented, not
// hidden; the scheduler keeps a single device from racing itself.
type Backend interface {
	// Download retrieves the remote snapshot. Returns (nil, nil) when
	// no remote copy exists yet.
	Download(ctx context.Context) (*snapshot.Snapshot, error)

	// Upload replaces the remote snapshot.
	Upload(ctx context.Context, snap *snapshot.Snapshot) error
}

// Exchanger is implemented by server-mediated backends where the server
// performs the merge itself. The returned flag tells the client whether
// it must apply the merged snapshot locally.
type Exchanger interface {
	Exchange(ctx context.Context, local *snapshot.Snapshot) (merged *snapshot.Snapshot, updateRequired bool, err error)
}
