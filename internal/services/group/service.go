package group

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/rs/zerolog"

	"github.com/krich11/mls-chat/internal/crypto"
	"github.com/krich11/mls-chat/internal/domain"
	"github.com/krich11/mls-chat/internal/engine"
	"github.com/krich11/mls-chat/internal/protocol/tree"
)

// ErrGroupExists is returned when creating a group under a taken name.
var ErrGroupExists = errors.New("group name already in use")

// Service orchestrates group lifecycle operations around the engine,
// persisting member state and broadcasting commits and welcomes.
type Service struct {
	kps      domain.KeyPackageService
	members  domain.MemberStore
	dir      domain.GroupDirectory
	delivery domain.DeliveryChannel
	eng      *engine.Engine
	locker   *Locker
	log      zerolog.Logger
}

// New constructs a group service.
func New(
	kps domain.KeyPackageService,
	members domain.MemberStore,
	dir domain.GroupDirectory,
	delivery domain.DeliveryChannel,
	eng *engine.Engine,
	locker *Locker,
	log zerolog.Logger,
) *Service {
	return &Service{
		kps:      kps,
		members:  members,
		dir:      dir,
		delivery: delivery,
		eng:      eng,
		locker:   locker,
		log:      log.With().Str("component", "group").Logger(),
	}
}

// Create starts a new group at epoch 0 with userID as sole member and
// registers it under name.
func (s *Service) Create(passphrase, userID, name string) (domain.Member, error) {
	if _, taken, err := s.dir.LookupGroup(name); err != nil {
		return domain.Member{}, err
	} else if taken {
		return domain.Member{}, fmt.Errorf("%q: %w", name, ErrGroupExists)
	}

	cred, err := s.kps.GetOrCreateCredential(passphrase, userID)
	if err != nil {
		return domain.Member{}, err
	}
	leafPriv, leafPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Member{}, err
	}
	m, err := s.eng.CreateGroup(cred, leafPriv, leafPub)
	if err != nil {
		return domain.Member{}, err
	}

	if err := s.members.SaveMember(passphrase, m); err != nil {
		return domain.Member{}, err
	}
	// The name claim is the gate against concurrent creates; losing it means
	// another creator won the name, so the fresh member state is discarded.
	if err := s.dir.SaveGroupName(name, m.State.GroupID); err != nil {
		_ = s.members.DeleteMember(m.State.GroupID, userID)
		if errors.Is(err, fs.ErrExist) {
			return domain.Member{}, fmt.Errorf("%q: %w", name, ErrGroupExists)
		}
		return domain.Member{}, err
	}
	s.log.Info().Str("name", name).Stringer("group", m.State.GroupID).Str("user", userID).Msg("group created")
	return m, nil
}

// AddMember consumes newUserID's key package, commits an Add, and broadcasts
// the commit plus the welcome for the new member. The key package is spent
// once consumed, even if a later step fails; single-use makes that the safe
// direction to err in.
func (s *Service) AddMember(passphrase, userID, name, newUserID string) error {
	id, m, unlock, err := s.lockMember(passphrase, userID, name)
	if err != nil {
		return err
	}
	defer unlock()

	kp, err := s.kps.Consume(newUserID)
	if err != nil {
		return err
	}
	prop, err := tree.ProposeAdd(m.State, kp)
	if err != nil {
		return err
	}
	commit, welcomes, err := s.eng.CreateCommit(&m, []domain.Proposal{prop})
	if err != nil {
		return err
	}
	return s.finishCommit(passphrase, userID, id, m, commit, welcomes)
}

// RemoveMember commits a Remove tombstoning the target's leaf.
func (s *Service) RemoveMember(passphrase, userID, name, targetUserID string) error {
	id, m, unlock, err := s.lockMember(passphrase, userID, name)
	if err != nil {
		return err
	}
	defer unlock()

	leaf, ok := m.State.LeafOf(targetUserID)
	if !ok {
		return fmt.Errorf("user %q: %w", targetUserID, domain.ErrUnknownMember)
	}
	prop, err := tree.ProposeRemove(m.State, leaf)
	if err != nil {
		return err
	}
	commit, welcomes, err := s.eng.CreateCommit(&m, []domain.Proposal{prop})
	if err != nil {
		return err
	}
	return s.finishCommit(passphrase, userID, id, m, commit, welcomes)
}

// RotateKey commits an Update replacing the caller's own leaf key, restoring
// security for future epochs if the old key was exposed.
func (s *Service) RotateKey(passphrase, userID, name string) error {
	id, m, unlock, err := s.lockMember(passphrase, userID, name)
	if err != nil {
		return err
	}
	defer unlock()

	newPriv, newPub, err := crypto.GenerateX25519()
	if err != nil {
		return err
	}
	prop, err := tree.ProposeUpdate(m.State, m.LeafIndex, newPub)
	if err != nil {
		return err
	}
	commit, welcomes, err := s.eng.CreateCommit(&m, []domain.Proposal{prop})
	if err != nil {
		return err
	}
	m.LeafPriv = newPriv
	return s.finishCommit(passphrase, userID, id, m, commit, welcomes)
}

// Info returns the caller's current view of the group.
func (s *Service) Info(passphrase, userID, name string) (domain.GroupState, error) {
	_, m, unlock, err := s.lockMember(passphrase, userID, name)
	if err != nil {
		return domain.GroupState{}, err
	}
	defer unlock()
	return m.State, nil
}

// Resolve maps a group name to its ID.
func (s *Service) Resolve(name string) (domain.GroupID, error) {
	id, ok, err := s.dir.LookupGroup(name)
	if err != nil {
		return domain.GroupID{}, err
	}
	if !ok {
		return domain.GroupID{}, fmt.Errorf("group %q: %w", name, domain.ErrNotFound)
	}
	return id, nil
}

func (s *Service) lockMember(passphrase, userID, name string) (domain.GroupID, domain.Member, func(), error) {
	id, err := s.Resolve(name)
	if err != nil {
		return domain.GroupID{}, domain.Member{}, nil, err
	}
	unlock := s.locker.Lock(id)
	m, ok, err := s.members.LoadMember(passphrase, id, userID)
	if err != nil || !ok {
		unlock()
		if err == nil {
			err = fmt.Errorf("user %q has no state for group %q: %w", userID, name, domain.ErrNotFound)
		}
		return domain.GroupID{}, domain.Member{}, nil, err
	}
	return id, m, unlock, nil
}

// finishCommit persists the advanced member state before broadcasting, so a
// crash between the two never replays an epoch locally.
func (s *Service) finishCommit(passphrase, userID string, id domain.GroupID, m domain.Member, commit domain.Commit, welcomes []domain.Welcome) error {
	if err := s.members.SaveMember(passphrase, m); err != nil {
		return err
	}
	now := time.Now().Unix()
	if err := s.delivery.Broadcast(id, domain.Payload{
		Kind:      domain.PayloadCommit,
		Sender:    userID,
		Timestamp: now,
		Commit:    &commit,
	}); err != nil {
		return err
	}
	for i := range welcomes {
		if err := s.delivery.Broadcast(id, domain.Payload{
			Kind:      domain.PayloadWelcome,
			Sender:    userID,
			Timestamp: now,
			Welcome:   &welcomes[i],
		}); err != nil {
			return err
		}
	}
	return nil
}

// Compile-time assertion that Service implements domain.GroupService.
var _ domain.GroupService = (*Service)(nil)
