// Package keypackage issues and manages single-use key packages.
//
// A key package is the public half of a user's enrollment: a credential, a
// fresh init key, and a signature over both. The public store holds at most
// one unconsumed package per user; the init private key stays in the user's
// own encrypted identity until the matching welcome arrives.
package keypackage
