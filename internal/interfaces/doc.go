// Package interfaces documents the core abstractions used throughout the application.
//
// This package consolidates interface documentation to help contributors understand
// extension points and how to implement new functionality.
//
// # Interface Categories
//
// ## Storage Backends
//
//   - storage.Backend: opaque remote store for a snapshot blob
//     (internal/storage/client.go). Implemented by the Dropbox and S3
//     providers, plus the self-hosted client's raw endpoints.
//   - storage.Exchanger: server-mediated merge where the server decides
//     whether the client must re-apply (internal/storage/client.go).
//     Implemented by the self-hosted client; preferred by the sync
//     service when available.
//
// ## Sync Engine
//
//   - syncer.Settings: the slice of the settings store the sync service
//     needs (internal/syncer/service.go). Implemented by
//     settingsstore.SettingsStore.
//
// # Adding a New Backend
//
// Implement storage.Backend in a new package under
// internal/storage/providers/ and register it in
// entrypoint.NewBackend. Download must return (nil, nil) when no remote
// snapshot exists yet; that is how a first sync is detected.
package interfaces
