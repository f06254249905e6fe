// Package schedule derives per-epoch secrets from the prior epoch's init
// secret, the fresh commit secret, and the confirmed transcript hash.
//
// The construction is one-way in both directions that matter: secrets at
// epoch N say nothing about epoch N-1 (forward secrecy), and mixing a fresh
// commit secret at N+1 fully restores security after an exposure at N
// (post-compromise security). HKDF-SHA256 with ASCII labels provides the
// domain separation; the intermediate PRK doubles as the joiner secret a
// welcome delivers to new members.
package schedule
