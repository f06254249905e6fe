package domain

import (
	"github.com/google/uuid"

	"github.com/krich11/mls-chat/internal/util/memzero"
)

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

func (k X25519Private) Slice() []byte { return k[:] }

// Ed25519Public is a signing public key.
type Ed25519Public [32]byte

func (p Ed25519Public) Slice() []byte { return p[:] }

// Ed25519Private is a signing private key (ed25519.PrivateKey layout).
type Ed25519Private [64]byte

func (k Ed25519Private) Slice() []byte { return k[:] }

// GroupID is a random, globally unique group identifier.
type GroupID = uuid.UUID

// NewGroupID returns a fresh random group ID.
func NewGroupID() GroupID { return uuid.New() }

// CipherSuite identifies the primitive set a key package was built for.
type CipherSuite uint16

// SuiteX25519ChaCha20Poly1305 is the only suite this implementation speaks:
// X25519 for DH, ChaCha20-Poly1305 for AEAD, HKDF-SHA256 for key derivation
// and Ed25519 for signatures.
const SuiteX25519ChaCha20Poly1305 CipherSuite = 0x0001

// Credential binds a user ID to its long-term signature key. Immutable once
// issued.
type Credential struct {
	UserID  string
	SignKey Ed25519Public
}

// KeyPackage is a signed, single-use bundle of public key material allowing a
// user to be added to a group without an interactive handshake. It is
// consumed from the store the first time it is used in an Add.
type KeyPackage struct {
	ID          string
	Credential  Credential
	InitKey     X25519Public
	CipherSuite CipherSuite
	Signature   []byte
}

// SignedContent returns the canonical bytes the key package signature covers.
func (kp KeyPackage) SignedContent() ([]byte, error) {
	return Encode(struct {
		ID          string
		Credential  Credential
		InitKey     X25519Public
		CipherSuite CipherSuite
	}{kp.ID, kp.Credential, kp.InitKey, kp.CipherSuite})
}

// KeyPackagePair is a key package together with its init private key. Only
// the issuing user ever holds the pair; the public store holds KeyPackage.
type KeyPackagePair struct {
	KeyPackage
	InitPriv X25519Private
}

// UserIdentity is a user's long-term local material: the public credential
// plus the signing private key and the init private keys of issued key
// packages, kept until the matching welcome arrives.
type UserIdentity struct {
	Credential Credential
	SignPriv   Ed25519Private
	InitPrivs  map[string]X25519Private // key package ID -> init private
}

// Leaf is one slot in the ratchet tree arena. Removal flips Blank rather
// than editing any pointer graph; leaf indices stay stable for the life of
// the group.
type Leaf struct {
	Blank      bool
	Credential Credential
	PublicKey  X25519Public
}

// GroupState is the authoritative membership snapshot for one group at one
// epoch. It carries public material only and is mutated exclusively through
// whole-epoch transitions.
type GroupState struct {
	GroupID                 GroupID
	Epoch                   uint64
	Leaves                  []Leaf
	TreeHash                []byte
	ConfirmedTranscriptHash []byte
}

// Clone returns a deep copy safe to mutate into the next epoch.
func (s GroupState) Clone() GroupState {
	out := s
	out.Leaves = append([]Leaf(nil), s.Leaves...)
	out.TreeHash = append([]byte(nil), s.TreeHash...)
	out.ConfirmedTranscriptHash = append([]byte(nil), s.ConfirmedTranscriptHash...)
	return out
}

// MemberCount returns the number of occupied leaves.
func (s GroupState) MemberCount() int {
	n := 0
	for _, l := range s.Leaves {
		if !l.Blank {
			n++
		}
	}
	return n
}

// LeafOf returns the index of the occupied leaf holding userID.
func (s GroupState) LeafOf(userID string) (uint32, bool) {
	for i, l := range s.Leaves {
		if !l.Blank && l.Credential.UserID == userID {
			return uint32(i), true
		}
	}
	return 0, false
}

// EpochSecrets is everything derived for one epoch. Lifetime is exactly one
// epoch; Wipe must be called once a snapshot is superseded so no past
// encryption secret survives in memory.
type EpochSecrets struct {
	Epoch            uint64
	InitSecret       []byte
	EncryptionSecret []byte
	ConfirmationKey  []byte
	SenderDataSecret []byte
}

// Wipe zeroes all secret material in place.
func (s *EpochSecrets) Wipe() {
	memzero.Zero(s.InitSecret, s.EncryptionSecret, s.ConfirmationKey, s.SenderDataSecret)
}

// ProposalType tags the proposal variant.
type ProposalType uint8

const (
	ProposalAdd ProposalType = iota + 1
	ProposalRemove
	ProposalUpdate
)

// Proposal is a single pending membership change. Ephemeral: it exists only
// between creation and inclusion in a commit.
type Proposal struct {
	Type ProposalType

	// Add
	KeyPackage *KeyPackage `json:",omitempty"`

	// Remove and Update
	Leaf uint32 `json:",omitempty"`

	// Update
	NewKey X25519Public `json:",omitempty"`
}

// SealedSecret is a small secret encrypted to an X25519 public key via an
// ephemeral DH exchange.
type SealedSecret struct {
	Ephemeral  X25519Public
	Ciphertext []byte
}

// Commit is an atomic epoch transition: the ordered proposal batch, the
// commit secret sealed per surviving member, and the confirmation tag over
// the new transcript. Epoch is the epoch it transitions FROM.
type Commit struct {
	GroupID         GroupID
	Epoch           uint64
	SenderLeaf      uint32
	Proposals       []Proposal
	SealedSecrets   map[uint32]SealedSecret
	ConfirmationTag []byte
}

// Content returns the canonical bytes folded into the transcript hash:
// everything except the sealed secrets and the confirmation tag itself.
func (c Commit) Content() ([]byte, error) {
	return Encode(struct {
		GroupID    GroupID
		Epoch      uint64
		SenderLeaf uint32
		Proposals  []Proposal
	}{c.GroupID, c.Epoch, c.SenderLeaf, c.Proposals})
}

// Welcome carries enough material for a newly added member to derive the
// current epoch secrets without having observed prior epochs. The joiner
// secret is sealed to the member's key package init key; State is the
// post-commit public snapshot.
type Welcome struct {
	GroupID      GroupID
	Epoch        uint64
	KeyPackageID string
	State        GroupState
	SealedJoiner SealedSecret
}

// ApplicationMessage is sealed content at a given epoch and per-sender
// generation. The AEAD tag (appended to Ciphertext) authenticates
// {GroupID, Epoch, SenderLeaf, Generation} as associated data.
type ApplicationMessage struct {
	GroupID    GroupID
	Epoch      uint64
	SenderLeaf uint32
	Generation uint32
	Ciphertext []byte
}

// Member is the local party's private view of one group: the public state
// plus its own leaf private key, the current epoch secrets, and the
// transiently retained previous epoch for late messages.
type Member struct {
	UserID    string
	LeafIndex uint32
	LeafPriv  X25519Private

	State       GroupState
	Secrets     EpochSecrets
	PrevSecrets *EpochSecrets

	// NextGen is the next generation this member will seal with in the
	// current epoch.
	NextGen uint32

	// RecvGen tracks, per epoch and sender leaf, the next generation accepted
	// on open. Anything below the watermark is a replay.
	RecvGen map[uint64]map[uint32]uint32
}

// PayloadKind tags a delivery channel payload.
type PayloadKind uint8

const (
	PayloadCommit PayloadKind = iota + 1
	PayloadWelcome
	PayloadMessage
)

// Payload is the unit the delivery channel carries: exactly one of a commit,
// a welcome or an application message, with transport metadata.
type Payload struct {
	Kind      PayloadKind
	Sender    string
	Timestamp int64

	Commit  *Commit             `json:",omitempty"`
	Welcome *Welcome            `json:",omitempty"`
	Message *ApplicationMessage `json:",omitempty"`
}

// PlainMessage is a decrypted application message returned to the caller.
type PlainMessage struct {
	From      string
	Epoch     uint64
	Plaintext []byte
	Timestamp int64
}
