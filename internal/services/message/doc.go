// Package message seals outbound application messages and drains the
// delivery channel for a member.
//
// Draining processes payloads strictly in order: welcomes bootstrap a
// newly added member, commits advance the epoch, and application messages
// are opened with the epoch they were sealed at. A failure on one message is
// fatal for that message only; a failed commit application stops the drain
// with the prior epoch retained.
package message
