// Package engine orchestrates epoch transitions: it turns proposal batches
// into commits plus welcomes, applies received commits after verifying their
// confirmation tags, and lets newly added members join from a welcome.
//
// Every operation either fully succeeds (new epoch installed, superseded
// secrets wiped) or fully fails with the member's prior state untouched. A
// commit's confirmation tag is checked against the locally recomputed
// transcript before anything is mutated.
//
// Concurrency: Member values are NOT safe for concurrent use. Callers must
// serialise all engine calls per group.
package engine
