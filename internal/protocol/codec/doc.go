// Package codec seals and opens application messages with keys derived from
// the current epoch's encryption secret.
//
// Each message key is bound to the (epoch, sender leaf, generation) triple,
// which is the nonce-uniqueness domain: no key/nonce pair is ever reused
// within it. The associated data covers group ID, epoch, sender leaf and
// generation, so a message cannot be replayed into another context. Opening
// enforces a per-sender generation watermark; anything below it is a replay.
package codec
