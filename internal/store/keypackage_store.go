package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/krich11/mls-chat/internal/domain"
)

// KeyPackageFileStore persists published key packages, one file per user, at
// most one unconsumed per user. Single-use holds across processes sharing
// the directory: ConsumeKeyPackage claims the package by renaming its file,
// and rename is atomic, so of any number of concurrent consumers exactly one
// sees the package.
type KeyPackageFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewKeyPackageFileStore returns a KeyPackageFileStore rooted at dir.
func NewKeyPackageFileStore(dir string) *KeyPackageFileStore {
	return &KeyPackageFileStore{dir: dir}
}

// SaveKeyPackage stores kp for userID, replacing any prior package.
func (s *KeyPackageFileStore) SaveKeyPackage(userID string, kp domain.KeyPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.MarshalIndent(kp, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(s.path(userID), b, 0o600)
}

// LoadKeyPackage is a read-only lookup.
func (s *KeyPackageFileStore) LoadKeyPackage(userID string) (domain.KeyPackage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(s.path(userID))
	if err != nil || b == nil {
		return domain.KeyPackage{}, false, err
	}
	var kp domain.KeyPackage
	if err := json.Unmarshal(b, &kp); err != nil {
		return domain.KeyPackage{}, false, err
	}
	return kp, true, nil
}

// ConsumeKeyPackage atomically fetches and removes the package for userID.
// The rename is the claim: a loser finds the file already gone and reports
// absence, never a double consume.
func (s *KeyPackageFileStore) ConsumeKeyPackage(userID string) (domain.KeyPackage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claim := s.path(userID) + ".claim-" + uuid.NewString()
	if err := os.Rename(s.path(userID), claim); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.KeyPackage{}, false, nil
		}
		return domain.KeyPackage{}, false, err
	}
	defer func() { _ = os.Remove(claim) }()

	b, err := os.ReadFile(claim)
	if err != nil {
		return domain.KeyPackage{}, false, err
	}
	var kp domain.KeyPackage
	if err := json.Unmarshal(b, &kp); err != nil {
		return domain.KeyPackage{}, false, err
	}
	return kp, true, nil
}

func (s *KeyPackageFileStore) path(userID string) string {
	return filepath.Join(s.dir, "keypackages", userID+".json")
}

// Compile-time assertion that KeyPackageFileStore implements domain.KeyPackageStore.
var _ domain.KeyPackageStore = (*KeyPackageFileStore)(nil)
