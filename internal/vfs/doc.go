// Package vfs is the in-memory virtual filesystem the orchestrator drives.
//
// FileSystem is the collaborator surface: synchronous reads and writes,
// change notification, and whole-tree snapshots. MemFS implements it on top
// of an afero.MemMapFs. Every path is normalized to an absolute path under the
// runtime's working directory before it touches the store; parent
// directories are created implicitly by WriteFile.
//
// Change listeners are registered with Subscribe and removed by releasing the
// returned Guard. Events are delivered synchronously, in write order, while
// the write lock is held, so a listener must not write back to the same
// filesystem.
package vfs
