package message

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/krich11/mls-chat/internal/domain"
	"github.com/krich11/mls-chat/internal/engine"
	"github.com/krich11/mls-chat/internal/protocol/codec"
	"github.com/krich11/mls-chat/internal/services/group"
)

// Service sends and receives application messages for group members.
type Service struct {
	kps      domain.KeyPackageService
	members  domain.MemberStore
	dir      domain.GroupDirectory
	delivery domain.DeliveryChannel
	eng      *engine.Engine
	locker   *group.Locker
	log      zerolog.Logger
}

// New constructs a message service. The locker must be the same instance the
// group service uses so sends and epoch transitions serialise per group.
func New(
	kps domain.KeyPackageService,
	members domain.MemberStore,
	dir domain.GroupDirectory,
	delivery domain.DeliveryChannel,
	eng *engine.Engine,
	locker *group.Locker,
	log zerolog.Logger,
) *Service {
	return &Service{
		kps:      kps,
		members:  members,
		dir:      dir,
		delivery: delivery,
		eng:      eng,
		locker:   locker,
		log:      log.With().Str("component", "message").Logger(),
	}
}

// Send seals plaintext at the member's current epoch and broadcasts it.
// The advanced generation counter is persisted before the broadcast so a
// crash can never reuse a nonce.
func (s *Service) Send(passphrase, userID, name string, plaintext []byte) error {
	id, err := s.resolve(name)
	if err != nil {
		return err
	}
	unlock := s.locker.Lock(id)
	defer unlock()

	m, ok, err := s.members.LoadMember(passphrase, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %q has no state for group %q: %w", userID, name, domain.ErrNotFound)
	}

	msg, err := codec.SealNext(&m, plaintext)
	if err != nil {
		return err
	}
	if err := s.members.SaveMember(passphrase, m); err != nil {
		return err
	}
	return s.delivery.Broadcast(id, domain.Payload{
		Kind:      domain.PayloadMessage,
		Sender:    userID,
		Timestamp: time.Now().Unix(),
		Message:   &msg,
	})
}

// Sync drains the member's mailbox in order: welcomes may bootstrap the
// member, commits advance the epoch, application messages decrypt into the
// returned history. State reached during the drain is persisted before the
// matching payloads are acknowledged; payloads that can never process are
// dropped, while an integrity failure stops the drain with the offending
// commit left queued.
func (s *Service) Sync(passphrase, userID, name string) ([]domain.PlainMessage, error) {
	id, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	unlock := s.locker.Lock(id)
	defer unlock()

	m, joined, err := s.members.LoadMember(passphrase, id, userID)
	if err != nil {
		return nil, err
	}

	payloads, err := s.delivery.Receive(id, userID, 0)
	if err != nil {
		return nil, err
	}

	var out []domain.PlainMessage
	processed := 0

	// Every exit goes through finish: the member state reflecting all applied
	// payloads is durable before the cursor moves past them, so a mid-drain
	// failure never consumes a transition that was not persisted.
	finish := func(err error) ([]domain.PlainMessage, error) {
		if joined {
			if serr := s.members.SaveMember(passphrase, m); serr != nil {
				return out, serr
			}
		}
		if aerr := s.ack(id, userID, processed); aerr != nil {
			return out, aerr
		}
		return out, err
	}

	for _, p := range payloads {
		switch p.Kind {
		case domain.PayloadWelcome:
			// Only the welcome sealed to one of our own key packages is for
			// us, and only before we have state for the group.
			if joined || p.Welcome == nil {
				break
			}
			initPriv, ok, err := s.kps.InitPriv(passphrase, userID, p.Welcome.KeyPackageID)
			if err != nil {
				return finish(err)
			}
			if !ok {
				break
			}
			joinedMember, err := s.eng.Join(userID, initPriv, *p.Welcome)
			if err != nil {
				// Names one of our key packages but does not open; it can
				// never become usable. Fatal for that welcome only.
				s.log.Warn().Err(err).Str("keypackage", p.Welcome.KeyPackageID).Msg("rejected welcome")
				break
			}
			m, joined = joinedMember, true

		case domain.PayloadCommit:
			if !joined || p.Commit == nil {
				break // pre-join history; the welcome snapshot covers it
			}
			if p.Commit.Epoch < m.State.Epoch {
				break // already applied, our own or observed via welcome
			}
			if err := s.eng.ApplyCommit(&m, *p.Commit); err != nil {
				switch {
				case errors.Is(err, domain.ErrRemovedFromGroup):
					if derr := s.members.DeleteMember(id, userID); derr != nil {
						return out, derr
					}
					if aerr := s.ack(id, userID, processed+1); aerr != nil {
						return out, aerr
					}
					s.log.Info().Str("user", userID).Stringer("group", id).Msg("removed from group")
					return out, err
				case errors.Is(err, domain.ErrEpochMismatch), errors.Is(err, domain.ErrConfirmationMismatch):
					// Integrity failure: stop, retain the epoch reached so
					// far, leave this commit queued for the caller to
					// resynchronise.
					return finish(err)
				default:
					// Malformed batch; it can never apply at any epoch.
					// Fatal for that commit only.
					s.log.Warn().Err(err).Uint32("sender", p.Commit.SenderLeaf).Msg("rejected commit")
				}
			}

		case domain.PayloadMessage:
			if !joined || p.Message == nil {
				break
			}
			pt, err := codec.OpenIn(&m, *p.Message)
			switch {
			case err == nil:
				out = append(out, domain.PlainMessage{
					From:      p.Sender,
					Epoch:     p.Message.Epoch,
					Plaintext: pt,
					Timestamp: p.Timestamp,
				})
			case errors.Is(err, domain.ErrUnknownEpoch):
				// Sealed before we joined or before our retention window;
				// no secrets exist to open it.
				s.log.Debug().Uint64("epoch", p.Message.Epoch).Msg("skipping message from unknown epoch")
			case errors.Is(err, domain.ErrReplay), errors.Is(err, domain.ErrAuthenticationFailure), errors.Is(err, domain.ErrNotFound):
				// Fatal for that message only.
				s.log.Warn().Err(err).Str("sender", p.Sender).Msg("rejected message")
			default:
				return finish(err)
			}
		}
		processed++
	}
	return finish(nil)
}

func (s *Service) ack(id domain.GroupID, userID string, n int) error {
	if n == 0 {
		return nil
	}
	if err := s.delivery.Ack(id, userID, n); err != nil {
		return fmt.Errorf("ack %d payloads: %w", n, err)
	}
	return nil
}

func (s *Service) resolve(name string) (domain.GroupID, error) {
	id, ok, err := s.dir.LookupGroup(name)
	if err != nil {
		return domain.GroupID{}, err
	}
	if !ok {
		return domain.GroupID{}, fmt.Errorf("group %q: %w", name, domain.ErrNotFound)
	}
	return id, nil
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
