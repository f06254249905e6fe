package tree

import (
	"crypto/sha256"
	"fmt"

	"github.com/krich11/mls-chat/internal/crypto"
	"github.com/krich11/mls-chat/internal/domain"
)

// Create returns a single-member group at epoch 0.
func Create(groupID domain.GroupID, creator domain.Credential, leafKey domain.X25519Public) (domain.GroupState, error) {
	leaves := []domain.Leaf{{Credential: creator, PublicKey: leafKey}}
	th, err := Hash(leaves)
	if err != nil {
		return domain.GroupState{}, err
	}
	return domain.GroupState{
		GroupID:  groupID,
		Epoch:    0,
		Leaves:   leaves,
		TreeHash: th,
	}, nil
}

// ProposeAdd validates kp and builds an Add proposal. Pure construction:
// state is not mutated.
func ProposeAdd(state domain.GroupState, kp domain.KeyPackage) (domain.Proposal, error) {
	if kp.CipherSuite != domain.SuiteX25519ChaCha20Poly1305 {
		return domain.Proposal{}, fmt.Errorf("key package suite 0x%04x: %w", kp.CipherSuite, domain.ErrCiphersuiteMismatch)
	}
	content, err := kp.SignedContent()
	if err != nil {
		return domain.Proposal{}, err
	}
	if !crypto.VerifyEd25519(kp.Credential.SignKey, content, kp.Signature) {
		return domain.Proposal{}, fmt.Errorf("key package %q: %w", kp.ID, domain.ErrInvalidSignature)
	}
	if _, ok := state.LeafOf(kp.Credential.UserID); ok {
		return domain.Proposal{}, fmt.Errorf("user %q already a member: %w", kp.Credential.UserID, domain.ErrIdentity)
	}
	kpCopy := kp
	return domain.Proposal{Type: domain.ProposalAdd, KeyPackage: &kpCopy}, nil
}

// ProposeRemove builds a Remove proposal for an occupied leaf.
func ProposeRemove(state domain.GroupState, leaf uint32) (domain.Proposal, error) {
	if err := checkOccupied(state, leaf); err != nil {
		return domain.Proposal{}, err
	}
	return domain.Proposal{Type: domain.ProposalRemove, Leaf: leaf}, nil
}

// ProposeUpdate builds an Update proposal replacing the key at leaf.
// A party may only update its own leaf; callers enforce that the leaf is
// theirs.
func ProposeUpdate(state domain.GroupState, leaf uint32, newKey domain.X25519Public) (domain.Proposal, error) {
	if err := checkOccupied(state, leaf); err != nil {
		return domain.Proposal{}, err
	}
	return domain.Proposal{Type: domain.ProposalUpdate, Leaf: leaf, NewKey: newKey}, nil
}

// Apply executes the ordered proposal batch against state and returns the
// next epoch's snapshot: Adds append, Removes tombstone, Updates replace the
// leaf key. The epoch increments by exactly one and the tree hash is
// recomputed. On any validation error the input state is returned unchanged
// in meaning (nothing is partially applied).
func Apply(state domain.GroupState, proposals []domain.Proposal) (domain.GroupState, error) {
	if len(proposals) == 0 {
		return domain.GroupState{}, domain.ErrEmptyCommit
	}
	if err := checkConflicts(proposals); err != nil {
		return domain.GroupState{}, err
	}

	next := state.Clone()
	for _, p := range proposals {
		switch p.Type {
		case domain.ProposalAdd:
			if p.KeyPackage == nil {
				return domain.GroupState{}, fmt.Errorf("add proposal without key package: %w", domain.ErrConflictingProposals)
			}
			if _, ok := next.LeafOf(p.KeyPackage.Credential.UserID); ok {
				return domain.GroupState{}, fmt.Errorf("duplicate credential %q: %w", p.KeyPackage.Credential.UserID, domain.ErrIdentity)
			}
			next.Leaves = append(next.Leaves, domain.Leaf{
				Credential: p.KeyPackage.Credential,
				PublicKey:  p.KeyPackage.InitKey,
			})
		case domain.ProposalRemove:
			if err := checkOccupied(next, p.Leaf); err != nil {
				return domain.GroupState{}, err
			}
			next.Leaves[p.Leaf] = domain.Leaf{Blank: true}
		case domain.ProposalUpdate:
			if err := checkOccupied(next, p.Leaf); err != nil {
				return domain.GroupState{}, err
			}
			next.Leaves[p.Leaf].PublicKey = p.NewKey
		default:
			return domain.GroupState{}, fmt.Errorf("proposal type %d: %w", p.Type, domain.ErrConflictingProposals)
		}
	}

	th, err := Hash(next.Leaves)
	if err != nil {
		return domain.GroupState{}, err
	}
	next.TreeHash = th
	next.Epoch = state.Epoch + 1
	return next, nil
}

// Hash returns the content-addressed digest of the leaf arena.
func Hash(leaves []domain.Leaf) ([]byte, error) {
	b, err := domain.Encode(leaves)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}

func checkOccupied(state domain.GroupState, leaf uint32) error {
	if int(leaf) >= len(state.Leaves) || state.Leaves[leaf].Blank {
		return fmt.Errorf("leaf %d: %w", leaf, domain.ErrUnknownMember)
	}
	return nil
}

// checkConflicts rejects batches touching the same leaf in incompatible
// ways. The policy is correctness over permissiveness: nothing is silently
// resolved.
func checkConflicts(proposals []domain.Proposal) error {
	removed := map[uint32]bool{}
	updated := map[uint32]bool{}
	for _, p := range proposals {
		switch p.Type {
		case domain.ProposalRemove:
			if removed[p.Leaf] || updated[p.Leaf] {
				return fmt.Errorf("leaf %d referenced twice: %w", p.Leaf, domain.ErrConflictingProposals)
			}
			removed[p.Leaf] = true
		case domain.ProposalUpdate:
			if removed[p.Leaf] || updated[p.Leaf] {
				return fmt.Errorf("leaf %d referenced twice: %w", p.Leaf, domain.ErrConflictingProposals)
			}
			updated[p.Leaf] = true
		}
	}
	return nil
}
