package engine_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/krich11/mls-chat/internal/crypto"
	"github.com/krich11/mls-chat/internal/domain"
	"github.com/krich11/mls-chat/internal/engine"
	"github.com/krich11/mls-chat/internal/protocol/codec"
	"github.com/krich11/mls-chat/internal/protocol/tree"
)

func makeEngine() *engine.Engine {
	return engine.New(zerolog.Nop())
}

// makeCreator returns a member owning a fresh single-member group.
func makeCreator(t *testing.T, userID string) domain.Member {
	t.Helper()
	_, signPub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	leafPriv, leafPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	m, err := makeEngine().CreateGroup(domain.Credential{UserID: userID, SignKey: signPub}, leafPriv, leafPub)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	return m
}

// makeKeyPackage returns a signed key package and its retained init private
// key, as the issuing side would hold them.
func makeKeyPackage(t *testing.T, userID string) (domain.KeyPackage, domain.X25519Private) {
	t.Helper()
	signPriv, signPub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	initPriv, initPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	kp := domain.KeyPackage{
		ID:          "kp-" + userID,
		Credential:  domain.Credential{UserID: userID, SignKey: signPub},
		InitKey:     initPub,
		CipherSuite: domain.SuiteX25519ChaCha20Poly1305,
	}
	content, err := kp.SignedContent()
	if err != nil {
		t.Fatalf("SignedContent: %v", err)
	}
	kp.Signature = crypto.SignEd25519(signPriv, content)
	return kp, initPriv
}

// addMember runs the full add flow: alice commits an Add for userID and the
// new member joins from the welcome.
func addMember(t *testing.T, eng *engine.Engine, alice *domain.Member, userID string) domain.Member {
	t.Helper()
	kp, initPriv := makeKeyPackage(t, userID)
	prop, err := tree.ProposeAdd(alice.State, kp)
	if err != nil {
		t.Fatalf("ProposeAdd: %v", err)
	}
	_, welcomes, err := eng.CreateCommit(alice, []domain.Proposal{prop})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	if len(welcomes) != 1 {
		t.Fatalf("welcomes = %d, want 1", len(welcomes))
	}
	joined, err := eng.Join(userID, initPriv, welcomes[0])
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	return joined
}

func TestCreateGroup_EpochZero(t *testing.T) {
	alice := makeCreator(t, "alice")
	if alice.State.Epoch != 0 || alice.Secrets.Epoch != 0 {
		t.Fatalf("epochs %d/%d, want 0/0", alice.State.Epoch, alice.Secrets.Epoch)
	}
	if alice.LeafIndex != 0 {
		t.Fatalf("leaf = %d, want 0", alice.LeafIndex)
	}
}

func TestAddAndJoin_SharedEpochSecrets(t *testing.T) {
	eng := makeEngine()
	alice := makeCreator(t, "alice")
	bob := addMember(t, eng, &alice, "bob")

	if alice.State.Epoch != 1 || bob.State.Epoch != 1 {
		t.Fatalf("epochs %d/%d, want 1/1", alice.State.Epoch, bob.State.Epoch)
	}
	if !bytes.Equal(alice.Secrets.EncryptionSecret, bob.Secrets.EncryptionSecret) {
		t.Fatal("committer and joiner derived different encryption secrets")
	}
	if !bytes.Equal(alice.State.TreeHash, bob.State.TreeHash) {
		t.Fatal("tree hashes diverge")
	}

	// The shared secrets must actually carry a message.
	msg, err := codec.SealNext(&alice, []byte("hi bob"))
	if err != nil {
		t.Fatalf("SealNext: %v", err)
	}
	pt, err := codec.OpenIn(&bob, msg)
	if err != nil {
		t.Fatalf("OpenIn: %v", err)
	}
	if string(pt) != "hi bob" {
		t.Fatalf("got %q", pt)
	}
}

func TestApplyCommit_ThirdMemberConverges(t *testing.T) {
	eng := makeEngine()
	alice := makeCreator(t, "alice")
	bob := addMember(t, eng, &alice, "bob")

	kp, initPriv := makeKeyPackage(t, "carol")
	prop, err := tree.ProposeAdd(alice.State, kp)
	if err != nil {
		t.Fatalf("ProposeAdd: %v", err)
	}
	commit, welcomes, err := eng.CreateCommit(&alice, []domain.Proposal{prop})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	if err := eng.ApplyCommit(&bob, commit); err != nil {
		t.Fatalf("ApplyCommit: %v", err)
	}
	carol, err := eng.Join("carol", initPriv, welcomes[0])
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	if !bytes.Equal(alice.Secrets.EncryptionSecret, bob.Secrets.EncryptionSecret) ||
		!bytes.Equal(alice.Secrets.EncryptionSecret, carol.Secrets.EncryptionSecret) {
		t.Fatal("members disagree on epoch 2 secrets")
	}
}

func TestApplyCommit_WrongEpochRejected(t *testing.T) {
	eng := makeEngine()
	alice := makeCreator(t, "alice")
	bob := addMember(t, eng, &alice, "bob")

	kp, _ := makeKeyPackage(t, "carol")
	prop, err := tree.ProposeAdd(alice.State, kp)
	if err != nil {
		t.Fatalf("ProposeAdd: %v", err)
	}
	commit, _, err := eng.CreateCommit(&alice, []domain.Proposal{prop})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	if err := eng.ApplyCommit(&bob, commit); err != nil {
		t.Fatalf("ApplyCommit: %v", err)
	}
	// Delivered a second time the commit references a stale epoch.
	if err := eng.ApplyCommit(&bob, commit); !errors.Is(err, domain.ErrEpochMismatch) {
		t.Fatalf("replayed commit: %v, want ErrEpochMismatch", err)
	}
}

func TestApplyCommit_CompetingCommitLoses(t *testing.T) {
	eng := makeEngine()
	alice := makeCreator(t, "alice")
	bob := addMember(t, eng, &alice, "bob")

	// Both sides commit a rotation off the same epoch. Whichever a party
	// applies first wins; the loser's commit is stale.
	aliceProp, err := tree.ProposeUpdate(alice.State, alice.LeafIndex, mustKey(t))
	if err != nil {
		t.Fatalf("ProposeUpdate: %v", err)
	}
	bobProp, err := tree.ProposeUpdate(bob.State, bob.LeafIndex, mustKey(t))
	if err != nil {
		t.Fatalf("ProposeUpdate: %v", err)
	}
	if _, _, err := eng.CreateCommit(&alice, []domain.Proposal{aliceProp}); err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	bobCommit, _, err := eng.CreateCommit(&bob, []domain.Proposal{bobProp})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}

	if err := eng.ApplyCommit(&alice, bobCommit); !errors.Is(err, domain.ErrEpochMismatch) {
		t.Fatalf("competing commit: %v, want ErrEpochMismatch", err)
	}
	if alice.State.Epoch != 2 {
		t.Fatalf("epoch = %d, want 2", alice.State.Epoch)
	}
}

func TestApplyCommit_TamperedTagRejected(t *testing.T) {
	eng := makeEngine()
	alice := makeCreator(t, "alice")
	bob := addMember(t, eng, &alice, "bob")

	prop, err := tree.ProposeUpdate(alice.State, alice.LeafIndex, mustKey(t))
	if err != nil {
		t.Fatalf("ProposeUpdate: %v", err)
	}
	commit, _, err := eng.CreateCommit(&alice, []domain.Proposal{prop})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	commit.ConfirmationTag[0] ^= 0xff

	before := bob.State.Epoch
	if err := eng.ApplyCommit(&bob, commit); !errors.Is(err, domain.ErrConfirmationMismatch) {
		t.Fatalf("ApplyCommit: %v, want ErrConfirmationMismatch", err)
	}
	if bob.State.Epoch != before {
		t.Fatalf("epoch moved to %d on rejected commit", bob.State.Epoch)
	}
}

func TestApplyCommit_UpdateOfForeignLeafRejected(t *testing.T) {
	eng := makeEngine()
	alice := makeCreator(t, "alice")
	bob := addMember(t, eng, &alice, "bob")

	// Bob commits an Update targeting alice's leaf, trying to rotate her out
	// from under her.
	prop, err := tree.ProposeUpdate(bob.State, alice.LeafIndex, mustKey(t))
	if err != nil {
		t.Fatalf("ProposeUpdate: %v", err)
	}
	commit, _, err := eng.CreateCommit(&bob, []domain.Proposal{prop})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}

	before := alice.State.Epoch
	if err := eng.ApplyCommit(&alice, commit); !errors.Is(err, domain.ErrConflictingProposals) {
		t.Fatalf("ApplyCommit: %v, want ErrConflictingProposals", err)
	}
	if alice.State.Epoch != before {
		t.Fatalf("epoch moved to %d on rejected commit", alice.State.Epoch)
	}
}

func TestApplyCommit_SelfRemove(t *testing.T) {
	eng := makeEngine()
	alice := makeCreator(t, "alice")
	bob := addMember(t, eng, &alice, "bob")

	prop, err := tree.ProposeRemove(alice.State, bob.LeafIndex)
	if err != nil {
		t.Fatalf("ProposeRemove: %v", err)
	}
	commit, _, err := eng.CreateCommit(&alice, []domain.Proposal{prop})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	if err := eng.ApplyCommit(&bob, commit); !errors.Is(err, domain.ErrRemovedFromGroup) {
		t.Fatalf("ApplyCommit: %v, want ErrRemovedFromGroup", err)
	}
	// The removed member got no sealed secret, so even the rejected commit
	// leaked nothing it could use.
	if _, ok := commit.SealedSecrets[bob.LeafIndex]; ok {
		t.Fatal("commit carries a sealed secret for the removed leaf")
	}
}

func TestRemove_SurvivorsRotateRemovedMemberOut(t *testing.T) {
	eng := makeEngine()
	alice := makeCreator(t, "alice")
	bob := addMember(t, eng, &alice, "bob")
	carol := addMember(t, eng, &alice, "carol")

	prop, err := tree.ProposeRemove(alice.State, bob.LeafIndex)
	if err != nil {
		t.Fatalf("ProposeRemove: %v", err)
	}
	oldSecret := append([]byte(nil), bob.Secrets.EncryptionSecret...)
	commit, _, err := eng.CreateCommit(&alice, []domain.Proposal{prop})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	if err := eng.ApplyCommit(&carol, commit); err != nil {
		t.Fatalf("ApplyCommit: %v", err)
	}
	if bytes.Equal(alice.Secrets.EncryptionSecret, oldSecret) {
		t.Fatal("encryption secret unchanged across remove")
	}
	if !bytes.Equal(alice.Secrets.EncryptionSecret, carol.Secrets.EncryptionSecret) {
		t.Fatal("survivors disagree on post-remove secrets")
	}
	if alice.State.MemberCount() != 2 {
		t.Fatalf("members = %d, want 2", alice.State.MemberCount())
	}
}

func TestJoin_TamperedSnapshotRejected(t *testing.T) {
	eng := makeEngine()
	alice := makeCreator(t, "alice")

	kp, initPriv := makeKeyPackage(t, "bob")
	prop, err := tree.ProposeAdd(alice.State, kp)
	if err != nil {
		t.Fatalf("ProposeAdd: %v", err)
	}
	_, welcomes, err := eng.CreateCommit(&alice, []domain.Proposal{prop})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	w := welcomes[0]
	w.State.Leaves[0].Credential.UserID = "mallory"
	if _, err := eng.Join("bob", initPriv, w); !errors.Is(err, domain.ErrConfirmationMismatch) {
		t.Fatalf("Join: %v, want ErrConfirmationMismatch", err)
	}
}

func TestJoin_WrongInitKeyRejected(t *testing.T) {
	eng := makeEngine()
	alice := makeCreator(t, "alice")

	kp, _ := makeKeyPackage(t, "bob")
	prop, err := tree.ProposeAdd(alice.State, kp)
	if err != nil {
		t.Fatalf("ProposeAdd: %v", err)
	}
	_, welcomes, err := eng.CreateCommit(&alice, []domain.Proposal{prop})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	wrong, _, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	if _, err := eng.Join("bob", wrong, welcomes[0]); !errors.Is(err, domain.ErrAuthenticationFailure) {
		t.Fatalf("Join: %v, want ErrAuthenticationFailure", err)
	}
}

func TestCreateCommit_EmptyBatchRejected(t *testing.T) {
	alice := makeCreator(t, "alice")
	if _, _, err := makeEngine().CreateCommit(&alice, nil); !errors.Is(err, domain.ErrEmptyCommit) {
		t.Fatalf("CreateCommit: %v, want ErrEmptyCommit", err)
	}
}

func TestUpdate_RefreshesSecrets(t *testing.T) {
	eng := makeEngine()
	alice := makeCreator(t, "alice")
	bob := addMember(t, eng, &alice, "bob")

	newPriv, newPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	prop, err := tree.ProposeUpdate(alice.State, alice.LeafIndex, newPub)
	if err != nil {
		t.Fatalf("ProposeUpdate: %v", err)
	}
	oldSecret := append([]byte(nil), alice.Secrets.EncryptionSecret...)
	commit, _, err := eng.CreateCommit(&alice, []domain.Proposal{prop})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	alice.LeafPriv = newPriv

	if err := eng.ApplyCommit(&bob, commit); err != nil {
		t.Fatalf("ApplyCommit: %v", err)
	}
	if bytes.Equal(alice.Secrets.EncryptionSecret, oldSecret) {
		t.Fatal("rotation did not change the encryption secret")
	}
	if !bytes.Equal(alice.Secrets.EncryptionSecret, bob.Secrets.EncryptionSecret) {
		t.Fatal("members disagree after rotation")
	}
}

func mustKey(t *testing.T) domain.X25519Public {
	t.Helper()
	_, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	return pub
}
