package keypackage

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/krich11/mls-chat/internal/crypto"
	"github.com/krich11/mls-chat/internal/domain"
)

// Service issues, fetches and consumes key packages backed by the user and
// key package stores.
type Service struct {
	users domain.UserStore
	kps   domain.KeyPackageStore
	log   zerolog.Logger
}

// New constructs a key package service.
func New(users domain.UserStore, kps domain.KeyPackageStore, log zerolog.Logger) *Service {
	return &Service{users: users, kps: kps, log: log.With().Str("component", "keypackage").Logger()}
}

// GetOrCreateCredential returns the stable credential for userID, enrolling
// the user with a fresh signing key pair on first call.
func (s *Service) GetOrCreateCredential(passphrase, userID string) (domain.Credential, error) {
	id, _, err := s.loadOrCreateUser(passphrase, userID)
	if err != nil {
		return domain.Credential{}, err
	}
	return id.Credential, nil
}

// Issue builds, signs and publishes a fresh key package for userID. An
// unconsumed package may only be replaced when replace is set; replacement
// invalidates the prior package.
func (s *Service) Issue(passphrase, userID string, replace bool) (domain.KeyPackage, error) {
	id, _, err := s.loadOrCreateUser(passphrase, userID)
	if err != nil {
		return domain.KeyPackage{}, err
	}

	if _, exists, err := s.kps.LoadKeyPackage(userID); err != nil {
		return domain.KeyPackage{}, err
	} else if exists && !replace {
		return domain.KeyPackage{}, fmt.Errorf("user %q already has an unconsumed key package: %w", userID, domain.ErrIdentity)
	}

	initPriv, initPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.KeyPackage{}, err
	}
	kp := domain.KeyPackage{
		ID:          "kp-" + uuid.NewString(),
		Credential:  id.Credential,
		InitKey:     initPub,
		CipherSuite: domain.SuiteX25519ChaCha20Poly1305,
	}
	content, err := kp.SignedContent()
	if err != nil {
		return domain.KeyPackage{}, err
	}
	kp.Signature = crypto.SignEd25519(id.SignPriv, content)

	// Retain the init private key so the user can open its welcome later.
	if id.InitPrivs == nil {
		id.InitPrivs = make(map[string]domain.X25519Private)
	}
	id.InitPrivs[kp.ID] = initPriv
	if err := s.users.SaveUser(passphrase, id); err != nil {
		return domain.KeyPackage{}, err
	}
	if err := s.kps.SaveKeyPackage(userID, kp); err != nil {
		return domain.KeyPackage{}, err
	}

	s.log.Debug().Str("user", userID).Str("keypackage", kp.ID).Bool("replace", replace).Msg("key package issued")
	return kp, nil
}

// Fetch is a read-only lookup of the unconsumed package for userID.
func (s *Service) Fetch(userID string) (domain.KeyPackage, error) {
	kp, ok, err := s.kps.LoadKeyPackage(userID)
	if err != nil {
		return domain.KeyPackage{}, err
	}
	if !ok {
		return domain.KeyPackage{}, fmt.Errorf("no key package for %q: %w", userID, domain.ErrNotFound)
	}
	return kp, nil
}

// Consume atomically fetches and removes the package for userID. At most one
// concurrent caller succeeds; a consumed package can never be used again.
func (s *Service) Consume(userID string) (domain.KeyPackage, error) {
	kp, ok, err := s.kps.ConsumeKeyPackage(userID)
	if err != nil {
		return domain.KeyPackage{}, err
	}
	if !ok {
		return domain.KeyPackage{}, fmt.Errorf("no key package for %q: %w", userID, domain.ErrNotFound)
	}
	s.log.Debug().Str("user", userID).Str("keypackage", kp.ID).Msg("key package consumed")
	return kp, nil
}

// InitPriv returns the retained init private key for one of the user's
// issued key packages.
func (s *Service) InitPriv(passphrase, userID, keyPackageID string) (domain.X25519Private, bool, error) {
	id, ok, err := s.users.LoadUser(passphrase, userID)
	if err != nil || !ok {
		return domain.X25519Private{}, false, err
	}
	priv, ok := id.InitPrivs[keyPackageID]
	return priv, ok, nil
}

func (s *Service) loadOrCreateUser(passphrase, userID string) (domain.UserIdentity, bool, error) {
	id, ok, err := s.users.LoadUser(passphrase, userID)
	if err != nil {
		return domain.UserIdentity{}, false, err
	}
	if ok {
		return id, false, nil
	}

	signPriv, signPub, err := crypto.GenerateEd25519()
	if err != nil {
		return domain.UserIdentity{}, false, err
	}
	id = domain.UserIdentity{
		Credential: domain.Credential{UserID: userID, SignKey: signPub},
		SignPriv:   signPriv,
		InitPrivs:  make(map[string]domain.X25519Private),
	}
	if err := s.users.SaveUser(passphrase, id); err != nil {
		return domain.UserIdentity{}, false, err
	}
	s.log.Info().Str("user", userID).Str("fingerprint", crypto.Fingerprint(signPub.Slice())).Msg("user enrolled")
	return id, true, nil
}

// Compile-time assertion that Service implements domain.KeyPackageService.
var _ domain.KeyPackageService = (*Service)(nil)
