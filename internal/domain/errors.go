package domain

import "errors"

// Error taxonomy. Every failure in the core is one of these sentinels,
// usually wrapped with context via fmt.Errorf("...: %w", err). Nothing here
// is fatal to the process: each error describes a single rejected operation
// and leaves group state and the key package store consistent.
var (
	// ErrIdentity indicates a duplicate or unenrolled credential, for example
	// issuing a second key package for a user without requesting replacement.
	ErrIdentity = errors.New("identity conflict")

	// ErrNotFound indicates a missing key package, group or member.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSignature indicates a key package whose signature does not
	// verify under its credential. Rejected before any state mutation.
	ErrInvalidSignature = errors.New("invalid key package signature")

	// ErrCiphersuiteMismatch indicates a key package built for a ciphersuite
	// this group does not speak.
	ErrCiphersuiteMismatch = errors.New("ciphersuite mismatch")

	// ErrUnknownMember indicates a proposal referencing a leaf that is not
	// occupied in the current tree.
	ErrUnknownMember = errors.New("unknown member")

	// ErrEmptyCommit indicates a commit carrying no proposals. An epoch
	// transition must carry a membership delta and fresh entropy.
	ErrEmptyCommit = errors.New("empty commit")

	// ErrConflictingProposals indicates a batch touching the same leaf in
	// incompatible ways, such as removing and updating it.
	ErrConflictingProposals = errors.New("conflicting proposals")

	// ErrConfirmationMismatch indicates a commit whose confirmation tag does
	// not match the locally recomputed transcript. The transition is rejected
	// and the prior epoch retained.
	ErrConfirmationMismatch = errors.New("confirmation tag mismatch")

	// ErrEpochMismatch indicates a commit built against an epoch other than
	// the receiver's current one. The caller must resynchronise out of band.
	ErrEpochMismatch = errors.New("epoch mismatch")

	// ErrUnknownEpoch indicates an application message from an epoch that is
	// neither current nor the short-lived previous one.
	ErrUnknownEpoch = errors.New("unknown epoch")

	// ErrAuthenticationFailure indicates an AEAD tag mismatch on a single
	// application message. Group state is unaffected.
	ErrAuthenticationFailure = errors.New("message authentication failure")

	// ErrReplay indicates an application message whose generation is below
	// the per-sender watermark for its epoch.
	ErrReplay = errors.New("message replay detected")

	// ErrRemovedFromGroup is returned when applying a commit that removes the
	// local member. The caller should discard its state for the group.
	ErrRemovedFromGroup = errors.New("removed from group")
)
