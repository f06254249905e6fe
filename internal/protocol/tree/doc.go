// Package tree maintains the ratchet tree: the ordered arena of leaf slots
// that is the authoritative membership record for a group at one epoch.
//
// Leaves are addressed by index, never by reference. Removal flips a blank
// flag (a tombstone) so indices of surviving members are stable; Adds append
// a new slot. Every state transition is all-or-nothing: Apply either returns
// a complete next-epoch snapshot or an error with the input untouched.
//
// Concurrency: GroupState values are plain data. Callers must serialise
// transitions per group.
package tree
