// Package crypto exposes the primitives the group messaging core builds on.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - A sealed box for delivering small secrets to a public key
//     (SealTo, OpenWith)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// All functions work with the fixed-size array types defined in
// internal/domain to avoid accidental reallocations. Callers should treat
// returned secrets as sensitive and wipe them when practical.
package crypto
