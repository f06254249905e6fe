// Package store provides file-based persistence for the group messaging
// core's collaborators.
//
// It contains concrete implementations of the domain storage interfaces,
// serialising data as JSON on disk with atomic temp-then-rename writes so a
// crash mid-save never leaves a torn snapshot. All methods are
// concurrency-safe via internal locking. Files live under the configured
// home directory.
//
// The package includes stores for:
//   - Published key packages (KeyPackageFileStore)
//   - User identities, encrypted at rest (UserFileStore)
//   - Per-group member state, encrypted at rest (MemberFileStore)
//   - The group name directory (DirectoryFileStore)
//   - The per-group mailbox acting as the delivery channel (MailboxFileStore)
//   - CLI settings such as the active user (SettingsFileStore)
package store
