package store

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"github.com/krich11/mls-chat/internal/domain"
)

// UserFileStore persists long-term user identities, one encrypted file per
// user under users/.
type UserFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewUserFileStore returns a UserFileStore rooted at dir.
func NewUserFileStore(dir string) *UserFileStore {
	return &UserFileStore{dir: dir}
}

// SaveUser writes the encrypted identity to disk.
func (s *UserFileStore) SaveUser(passphrase string, id domain.UserIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	ct, err := encrypt(passphrase, raw)
	if err != nil {
		return err
	}
	return writeFile(s.path(id.Credential.UserID), ct, 0o600)
}

// LoadUser reads and decrypts the identity; a missing user is (zero, false, nil).
func (s *UserFileStore) LoadUser(passphrase, userID string) (domain.UserIdentity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(s.path(userID))
	if err != nil {
		return domain.UserIdentity{}, false, err
	}
	if b == nil {
		return domain.UserIdentity{}, false, nil
	}
	pt, err := decrypt(passphrase, b)
	if err != nil {
		return domain.UserIdentity{}, false, err
	}
	var id domain.UserIdentity
	if err := json.Unmarshal(pt, &id); err != nil {
		return domain.UserIdentity{}, false, err
	}
	return id, true, nil
}

func (s *UserFileStore) path(userID string) string {
	return filepath.Join(s.dir, "users", userID+".json.enc")
}

// Compile-time assertion that UserFileStore implements domain.UserStore.
var _ domain.UserStore = (*UserFileStore)(nil)
