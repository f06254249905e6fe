// Package group drives epoch transitions for named groups: creation, adds,
// removes and key rotation.
//
// The scheduling model is single-writer per group: every mutating operation
// takes the group's lock from a shared Locker, so commits, applies and sends
// for one group are serialised while independent groups proceed in parallel.
package group
