package engine

import (
	"crypto/rand"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/krich11/mls-chat/internal/crypto"
	"github.com/krich11/mls-chat/internal/domain"
	"github.com/krich11/mls-chat/internal/protocol/schedule"
	"github.com/krich11/mls-chat/internal/protocol/tree"
	"github.com/krich11/mls-chat/internal/util/memzero"
)

// Sealed-box labels. A commit secret sealed to a leaf cannot be opened as a
// welcome joiner and vice versa.
const (
	labelCommitSecret = "commit secret"
	labelWelcome      = "welcome joiner"
)

// Engine drives group state transitions for local members.
type Engine struct {
	log zerolog.Logger
}

// New returns an engine logging through log.
func New(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "engine").Logger()}
}

// CreateGroup starts a new single-member group at epoch 0. The creator's
// leaf key pair is supplied by the caller, who keeps the private half.
func (e *Engine) CreateGroup(creator domain.Credential, leafPriv domain.X25519Private, leafPub domain.X25519Public) (domain.Member, error) {
	state, err := tree.Create(domain.NewGroupID(), creator, leafPub)
	if err != nil {
		return domain.Member{}, err
	}

	// Epoch 0 has no prior epoch to chain from; its secrets expand from
	// fresh randomness.
	joiner := make([]byte, 32)
	if _, err := rand.Read(joiner); err != nil {
		return domain.Member{}, err
	}
	secrets := schedule.Expand(0, joiner, state.ConfirmedTranscriptHash)
	schedule.Wipe(joiner)

	e.log.Debug().Stringer("group", state.GroupID).Str("creator", creator.UserID).Msg("group created")
	return domain.Member{
		UserID:    creator.UserID,
		LeafIndex: 0,
		LeafPriv:  leafPriv,
		State:     state,
		Secrets:   secrets,
		RecvGen:   make(map[uint64]map[uint32]uint32),
	}, nil
}

// CreateCommit applies the ordered proposal batch to the member's state,
// producing the commit to broadcast and one welcome per added member. The
// member advances to the new epoch on success; on any error it is untouched.
func (e *Engine) CreateCommit(m *domain.Member, proposals []domain.Proposal) (domain.Commit, []domain.Welcome, error) {
	next, err := tree.Apply(m.State, proposals)
	if err != nil {
		return domain.Commit{}, nil, err
	}

	commitSecret, err := schedule.NewCommitSecret()
	if err != nil {
		return domain.Commit{}, nil, err
	}
	defer memzero.Zero(commitSecret)

	commit := domain.Commit{
		GroupID:    m.State.GroupID,
		Epoch:      m.State.Epoch,
		SenderLeaf: m.LeafIndex,
		Proposals:  proposals,
	}
	content, err := commit.Content()
	if err != nil {
		return domain.Commit{}, nil, err
	}
	transcript := schedule.NextTranscript(m.State.ConfirmedTranscriptHash, content)
	secrets, joiner := schedule.Derive(next.Epoch, m.Secrets.InitSecret, commitSecret, transcript)
	defer schedule.Wipe(joiner)
	commit.ConfirmationTag = schedule.ConfirmationTag(secrets.ConfirmationKey, transcript)
	next.ConfirmedTranscriptHash = transcript

	// Seal the commit secret to every surviving member other than us, under
	// the leaf key they held before this commit: that is the private key
	// they will open with.
	removed := make(map[uint32]bool)
	for _, p := range proposals {
		if p.Type == domain.ProposalRemove {
			removed[p.Leaf] = true
		}
	}
	commit.SealedSecrets = make(map[uint32]domain.SealedSecret)
	for i, leaf := range m.State.Leaves {
		idx := uint32(i)
		if leaf.Blank || idx == m.LeafIndex || removed[idx] {
			continue
		}
		box, err := crypto.SealTo(leaf.PublicKey, labelCommitSecret, commitSecret)
		if err != nil {
			return domain.Commit{}, nil, err
		}
		commit.SealedSecrets[idx] = box
	}

	// One welcome per added member, sealed to its key package init key.
	var welcomes []domain.Welcome
	for _, p := range proposals {
		if p.Type != domain.ProposalAdd {
			continue
		}
		box, err := crypto.SealTo(p.KeyPackage.InitKey, labelWelcome, joiner)
		if err != nil {
			return domain.Commit{}, nil, err
		}
		welcomes = append(welcomes, domain.Welcome{
			GroupID:      next.GroupID,
			Epoch:        next.Epoch,
			KeyPackageID: p.KeyPackage.ID,
			State:        next.Clone(),
			SealedJoiner: box,
		})
	}

	e.install(m, next, secrets)
	e.log.Info().
		Stringer("group", next.GroupID).
		Uint64("epoch", next.Epoch).
		Int("proposals", len(proposals)).
		Int("members", next.MemberCount()).
		Msg("commit created")
	return commit, welcomes, nil
}

// ApplyCommit verifies and applies a received commit. The member either
// advances exactly one epoch or is left at its current one; no partial epoch
// state is ever observable.
func (e *Engine) ApplyCommit(m *domain.Member, c domain.Commit) error {
	if c.GroupID != m.State.GroupID {
		return fmt.Errorf("commit for group %s: %w", c.GroupID, domain.ErrNotFound)
	}
	if c.Epoch != m.State.Epoch {
		return fmt.Errorf("commit from epoch %d, local epoch %d: %w", c.Epoch, m.State.Epoch, domain.ErrEpochMismatch)
	}
	for _, p := range c.Proposals {
		if p.Type == domain.ProposalRemove && p.Leaf == m.LeafIndex {
			return domain.ErrRemovedFromGroup
		}
		// A party may only update its own leaf.
		if p.Type == domain.ProposalUpdate && p.Leaf != c.SenderLeaf {
			return fmt.Errorf("update for leaf %d from sender %d: %w", p.Leaf, c.SenderLeaf, domain.ErrConflictingProposals)
		}
	}

	next, err := tree.Apply(m.State, c.Proposals)
	if err != nil {
		return err
	}

	sealed, ok := c.SealedSecrets[m.LeafIndex]
	if !ok {
		return fmt.Errorf("no sealed commit secret for leaf %d: %w", m.LeafIndex, domain.ErrConfirmationMismatch)
	}
	commitSecret, err := crypto.OpenWith(m.LeafPriv, labelCommitSecret, sealed)
	if err != nil {
		return fmt.Errorf("open commit secret: %w", domain.ErrConfirmationMismatch)
	}
	defer memzero.Zero(commitSecret)

	content, err := c.Content()
	if err != nil {
		return err
	}
	transcript := schedule.NextTranscript(m.State.ConfirmedTranscriptHash, content)
	secrets, joiner := schedule.Derive(next.Epoch, m.Secrets.InitSecret, commitSecret, transcript)
	schedule.Wipe(joiner)
	if !schedule.VerifyConfirmationTag(secrets.ConfirmationKey, transcript, c.ConfirmationTag) {
		secrets.Wipe()
		return fmt.Errorf("epoch %d: %w", next.Epoch, domain.ErrConfirmationMismatch)
	}
	next.ConfirmedTranscriptHash = transcript

	e.install(m, next, secrets)
	e.log.Info().
		Stringer("group", next.GroupID).
		Uint64("epoch", next.Epoch).
		Uint32("sender", c.SenderLeaf).
		Msg("commit applied")
	return nil
}

// Join derives a member from a welcome using the init private key retained
// when the key package was issued.
func (e *Engine) Join(userID string, initPriv domain.X25519Private, w domain.Welcome) (domain.Member, error) {
	leaf, ok := w.State.LeafOf(userID)
	if !ok {
		return domain.Member{}, fmt.Errorf("user %q not in welcome snapshot: %w", userID, domain.ErrUnknownMember)
	}
	th, err := tree.Hash(w.State.Leaves)
	if err != nil {
		return domain.Member{}, err
	}
	if string(th) != string(w.State.TreeHash) {
		return domain.Member{}, fmt.Errorf("welcome tree hash: %w", domain.ErrConfirmationMismatch)
	}

	joiner, err := crypto.OpenWith(initPriv, labelWelcome, w.SealedJoiner)
	if err != nil {
		return domain.Member{}, fmt.Errorf("open welcome: %w", domain.ErrAuthenticationFailure)
	}
	secrets := schedule.Expand(w.Epoch, joiner, w.State.ConfirmedTranscriptHash)
	schedule.Wipe(joiner)

	e.log.Info().Stringer("group", w.GroupID).Uint64("epoch", w.Epoch).Str("user", userID).Msg("joined from welcome")
	return domain.Member{
		UserID:    userID,
		LeafIndex: leaf,
		LeafPriv:  initPriv,
		State:     w.State,
		Secrets:   secrets,
		RecvGen:   make(map[uint64]map[uint32]uint32),
	}, nil
}

// install swaps in the new epoch, retaining exactly one previous epoch for
// late messages and irrecoverably wiping anything older.
func (e *Engine) install(m *domain.Member, next domain.GroupState, secrets domain.EpochSecrets) {
	if m.PrevSecrets != nil {
		m.PrevSecrets.Wipe()
	}
	prev := m.Secrets
	m.PrevSecrets = &prev
	m.Secrets = secrets
	m.State = next
	m.NextGen = 0
	delete(m.RecvGen, prev.Epoch-1)
}
