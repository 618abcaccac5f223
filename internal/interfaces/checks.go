package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mikestefanello/backlite"

	"github.com/okayu/mangasync/internal/settingsstore"
	"github.com/okayu/mangasync/internal/storage"
	"github.com/okayu/mangasync/internal/storage/providers/dropbox"
	"github.com/okayu/mangasync/internal/storage/providers/s3"
	"github.com/okayu/mangasync/internal/storage/providers/selfhosted"
	"github.com/okayu/mangasync/internal/syncer"
	"github.com/okayu/mangasync/internal/tasks"
)

// =============================================================================
// Storage Backends
// =============================================================================

// Blob backends
var _ storage.Backend = (*dropbox.Client)(nil)
var _ storage.Backend = (*s3.Client)(nil)
var _ storage.Backend = (*selfhosted.Client)(nil)

// Server-mediated backend
var _ storage.Exchanger = (*selfhosted.Client)(nil)

// =============================================================================
// Sync Engine
// =============================================================================

// Settings provider for the sync service
var _ syncer.Settings = (*settingsstore.SettingsStore)(nil)

// =============================================================================
// Background Tasks
// =============================================================================

var _ backlite.Task = tasks.LibrarySyncTask{}
