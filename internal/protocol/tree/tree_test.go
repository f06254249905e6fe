package tree_test

import (
	"errors"
	"testing"

	"github.com/krich11/mls-chat/internal/crypto"
	"github.com/krich11/mls-chat/internal/domain"
	"github.com/krich11/mls-chat/internal/protocol/tree"
)

// makeCredential returns a credential and its signing private key.
func makeCredential(t *testing.T, userID string) (domain.Credential, domain.Ed25519Private) {
	t.Helper()
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	return domain.Credential{UserID: userID, SignKey: pub}, priv
}

// makeKeyPackage returns a signed key package for userID.
func makeKeyPackage(t *testing.T, userID string) domain.KeyPackage {
	t.Helper()
	cred, signPriv := makeCredential(t, userID)
	_, initPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	kp := domain.KeyPackage{
		ID:          "kp-" + userID,
		Credential:  cred,
		InitKey:     initPub,
		CipherSuite: domain.SuiteX25519ChaCha20Poly1305,
	}
	content, err := kp.SignedContent()
	if err != nil {
		t.Fatalf("SignedContent: %v", err)
	}
	kp.Signature = crypto.SignEd25519(signPriv, content)
	return kp
}

func makeGroup(t *testing.T, creator string) domain.GroupState {
	t.Helper()
	cred, _ := makeCredential(t, creator)
	_, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	st, err := tree.Create(domain.NewGroupID(), cred, pub)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return st
}

func TestCreate_EpochZeroSingleMember(t *testing.T) {
	st := makeGroup(t, "alice")
	if st.Epoch != 0 {
		t.Fatalf("epoch = %d, want 0", st.Epoch)
	}
	if st.MemberCount() != 1 {
		t.Fatalf("members = %d, want 1", st.MemberCount())
	}
	if len(st.TreeHash) == 0 {
		t.Fatal("tree hash is empty")
	}
}

func TestProposeAdd_RejectsBadSignature(t *testing.T) {
	st := makeGroup(t, "alice")
	kp := makeKeyPackage(t, "bob")
	kp.Signature[0] ^= 0xff

	if _, err := tree.ProposeAdd(st, kp); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("ProposeAdd: %v, want ErrInvalidSignature", err)
	}
}

func TestProposeAdd_RejectsSuiteMismatch(t *testing.T) {
	st := makeGroup(t, "alice")
	kp := makeKeyPackage(t, "bob")
	kp.CipherSuite = 0x7777

	if _, err := tree.ProposeAdd(st, kp); !errors.Is(err, domain.ErrCiphersuiteMismatch) {
		t.Fatalf("ProposeAdd: %v, want ErrCiphersuiteMismatch", err)
	}
}

func TestProposeRemove_UnknownLeaf(t *testing.T) {
	st := makeGroup(t, "alice")
	if _, err := tree.ProposeRemove(st, 5); !errors.Is(err, domain.ErrUnknownMember) {
		t.Fatalf("ProposeRemove: %v, want ErrUnknownMember", err)
	}
}

func TestApply_AddAppendsAndIncrementsEpoch(t *testing.T) {
	st := makeGroup(t, "alice")
	prop, err := tree.ProposeAdd(st, makeKeyPackage(t, "bob"))
	if err != nil {
		t.Fatalf("ProposeAdd: %v", err)
	}

	next, err := tree.Apply(st, []domain.Proposal{prop})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if next.Epoch != st.Epoch+1 {
		t.Fatalf("epoch = %d, want %d", next.Epoch, st.Epoch+1)
	}
	if next.MemberCount() != 2 {
		t.Fatalf("members = %d, want 2", next.MemberCount())
	}
	if leaf, ok := next.LeafOf("bob"); !ok || leaf != 1 {
		t.Fatalf("bob at leaf %d (ok=%v), want appended at 1", leaf, ok)
	}
	// Input state untouched.
	if st.MemberCount() != 1 || st.Epoch != 0 {
		t.Fatal("input state was mutated")
	}
}

func TestApply_RemoveTombstonesLeaf(t *testing.T) {
	st := makeGroup(t, "alice")
	addBob, _ := tree.ProposeAdd(st, makeKeyPackage(t, "bob"))
	st, err := tree.Apply(st, []domain.Proposal{addBob})
	if err != nil {
		t.Fatalf("Apply add: %v", err)
	}

	remove, err := tree.ProposeRemove(st, 1)
	if err != nil {
		t.Fatalf("ProposeRemove: %v", err)
	}
	next, err := tree.Apply(st, []domain.Proposal{remove})
	if err != nil {
		t.Fatalf("Apply remove: %v", err)
	}
	if next.MemberCount() != 1 {
		t.Fatalf("members = %d, want 1", next.MemberCount())
	}
	// The slot stays; only the flag flips. Alice's index is stable.
	if len(next.Leaves) != 2 || !next.Leaves[1].Blank {
		t.Fatal("removed leaf is not a tombstone")
	}
	if leaf, ok := next.LeafOf("alice"); !ok || leaf != 0 {
		t.Fatal("surviving leaf index changed")
	}
}

func TestApply_UpdateReplacesKey(t *testing.T) {
	st := makeGroup(t, "alice")
	_, newPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	prop, err := tree.ProposeUpdate(st, 0, newPub)
	if err != nil {
		t.Fatalf("ProposeUpdate: %v", err)
	}
	next, err := tree.Apply(st, []domain.Proposal{prop})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if next.Leaves[0].PublicKey != newPub {
		t.Fatal("leaf key not replaced")
	}
	if string(next.TreeHash) == string(st.TreeHash) {
		t.Fatal("tree hash unchanged after update")
	}
}

func TestApply_EmptyBatchRejected(t *testing.T) {
	st := makeGroup(t, "alice")
	if _, err := tree.Apply(st, nil); !errors.Is(err, domain.ErrEmptyCommit) {
		t.Fatalf("Apply: %v, want ErrEmptyCommit", err)
	}
}

func TestApply_ConflictingProposalsRejected(t *testing.T) {
	st := makeGroup(t, "alice")
	addBob, _ := tree.ProposeAdd(st, makeKeyPackage(t, "bob"))
	st, err := tree.Apply(st, []domain.Proposal{addBob})
	if err != nil {
		t.Fatalf("Apply add: %v", err)
	}

	_, newPub, _ := crypto.GenerateX25519()
	remove, _ := tree.ProposeRemove(st, 1)
	update, _ := tree.ProposeUpdate(st, 1, newPub)

	if _, err := tree.Apply(st, []domain.Proposal{remove, update}); !errors.Is(err, domain.ErrConflictingProposals) {
		t.Fatalf("Apply: %v, want ErrConflictingProposals", err)
	}
}

func TestApply_DuplicateCredentialRejected(t *testing.T) {
	st := makeGroup(t, "alice")
	kp := makeKeyPackage(t, "bob")
	add1, _ := tree.ProposeAdd(st, kp)
	add2 := add1

	if _, err := tree.Apply(st, []domain.Proposal{add1, add2}); !errors.Is(err, domain.ErrIdentity) {
		t.Fatalf("Apply: %v, want ErrIdentity", err)
	}
}

func TestApply_OrderSignificant(t *testing.T) {
	st := makeGroup(t, "alice")
	addBob, _ := tree.ProposeAdd(st, makeKeyPackage(t, "bob"))
	addCara, _ := tree.ProposeAdd(st, makeKeyPackage(t, "cara"))

	next, err := tree.Apply(st, []domain.Proposal{addBob, addCara})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	bobLeaf, _ := next.LeafOf("bob")
	caraLeaf, _ := next.LeafOf("cara")
	if bobLeaf != 1 || caraLeaf != 2 {
		t.Fatalf("leaves bob=%d cara=%d, want append order 1,2", bobLeaf, caraLeaf)
	}
}
