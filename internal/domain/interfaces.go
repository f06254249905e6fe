package domain

// KeyPackageStore persists published (public) key packages, at most one
// unconsumed per user. Consume must be race-free: with concurrent callers for
// the same user at most one may succeed.
type KeyPackageStore interface {
	SaveKeyPackage(userID string, kp KeyPackage) error
	LoadKeyPackage(userID string) (KeyPackage, bool, error)
	ConsumeKeyPackage(userID string) (KeyPackage, bool, error)
}

// UserStore persists long-term user identities, encrypted at rest.
type UserStore interface {
	SaveUser(passphrase string, id UserIdentity) error
	LoadUser(passphrase, userID string) (UserIdentity, bool, error)
}

// MemberStore persists a party's private per-group state. Implementations
// must write atomically: a crash mid-save never leaves a torn member state.
type MemberStore interface {
	SaveMember(passphrase string, m Member) error
	LoadMember(passphrase string, groupID GroupID, userID string) (Member, bool, error)
	DeleteMember(groupID GroupID, userID string) error
}

// GroupDirectory maps human-readable group names to group IDs. SaveGroupName
// is a claim: with concurrent claims on one name at most one succeeds, the
// rest fail with fs.ErrExist.
type GroupDirectory interface {
	SaveGroupName(name string, id GroupID) error
	LookupGroup(name string) (GroupID, bool, error)
}

// SettingsStore keeps small CLI-level settings such as the active user.
type SettingsStore interface {
	SetCurrentUser(userID string) error
	CurrentUser() (string, bool, error)
}

// DeliveryChannel is the transport collaborator: an ordered, exactly-once
// per-consumer stream of payloads per group. The core treats ordering
// violations as epoch mismatches or replays, never silent corruption.
type DeliveryChannel interface {
	Broadcast(groupID GroupID, p Payload) error
	Receive(groupID GroupID, consumer string, limit int) ([]Payload, error)
	Ack(groupID GroupID, consumer string, n int) error
}

// IdentityProvider issues a stable credential per user ID.
type IdentityProvider interface {
	GetOrCreateCredential(passphrase, userID string) (Credential, error)
}

// KeyPackageService issues, fetches and consumes single-use key packages.
type KeyPackageService interface {
	IdentityProvider

	// Issue builds, signs and stores a fresh key package for userID. It fails
	// with ErrIdentity if an unconsumed one exists and replace is false;
	// replacement invalidates the prior package.
	Issue(passphrase, userID string, replace bool) (KeyPackage, error)

	// Fetch is a read-only lookup; ErrNotFound if none issued.
	Fetch(userID string) (KeyPackage, error)

	// Consume atomically fetches and removes; ErrNotFound if absent or
	// already consumed.
	Consume(userID string) (KeyPackage, error)

	// InitPriv returns the init private key the user retained for one of its
	// issued key packages, used to open the matching welcome.
	InitPriv(passphrase, userID, keyPackageID string) (X25519Private, bool, error)
}

// GroupService drives epoch transitions for named groups. All mutating calls
// for one group are serialised behind a per-group lock.
type GroupService interface {
	Create(passphrase, userID, name string) (Member, error)
	AddMember(passphrase, userID, name, newUserID string) error
	RemoveMember(passphrase, userID, name, targetUserID string) error
	RotateKey(passphrase, userID, name string) error
	Info(passphrase, userID, name string) (GroupState, error)
}

// MessageService seals outbound messages and drains the delivery channel,
// applying pending commits and welcomes before opening application messages.
type MessageService interface {
	Send(passphrase, userID, name string, plaintext []byte) error
	Sync(passphrase, userID, name string) ([]PlainMessage, error)
}
