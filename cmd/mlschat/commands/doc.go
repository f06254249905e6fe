// Package commands defines the mlschat CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init           Enroll a user and issue its key package
//   - create-group   Start a new group at epoch 0
//   - add-member     Commit an Add for another enrolled user
//   - remove-member  Commit a Remove for a current member
//   - rotate-key     Commit an Update of your own leaf key
//   - send           Encrypt and post a message to the group
//   - messages       Drain the mailbox and print decrypted history
//   - info           Show group id, epoch, tree hash and members
//   - whoami         Print the active user
//
// The root command builds the dependency graph (stores, engine, services)
// before any subcommand runs, so handlers share one app context.
package commands
