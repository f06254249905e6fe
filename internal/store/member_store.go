package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/krich11/mls-chat/internal/domain"
)

// MemberFileStore persists a party's private per-group state (leaf private
// key, epoch secrets, replay watermarks), one encrypted file per
// (group, user) pair under members/.
//
// Writes go through the atomic temp-then-rename path, so a crash mid-commit
// leaves the last good epoch on disk rather than a torn one.
type MemberFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewMemberFileStore returns a MemberFileStore rooted at dir.
func NewMemberFileStore(dir string) *MemberFileStore {
	return &MemberFileStore{dir: dir}
}

// SaveMember writes the encrypted member state to disk.
func (s *MemberFileStore) SaveMember(passphrase string, m domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	ct, err := encrypt(passphrase, raw)
	if err != nil {
		return err
	}
	return writeFile(s.path(m.State.GroupID, m.UserID), ct, 0o600)
}

// LoadMember reads and decrypts the member state; absence is (zero, false, nil).
func (s *MemberFileStore) LoadMember(passphrase string, groupID domain.GroupID, userID string) (domain.Member, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(s.path(groupID, userID))
	if err != nil {
		return domain.Member{}, false, err
	}
	if b == nil {
		return domain.Member{}, false, nil
	}
	pt, err := decrypt(passphrase, b)
	if err != nil {
		return domain.Member{}, false, err
	}
	var m domain.Member
	if err := json.Unmarshal(pt, &m); err != nil {
		return domain.Member{}, false, err
	}
	return m, true, nil
}

// DeleteMember drops the state for (groupID, userID), for example after the
// member was removed from the group.
func (s *MemberFileStore) DeleteMember(groupID domain.GroupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(groupID, userID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *MemberFileStore) path(groupID domain.GroupID, userID string) string {
	return filepath.Join(s.dir, "members", groupID.String()+"."+userID+".json.enc")
}

// Compile-time assertion that MemberFileStore implements domain.MemberStore.
var _ domain.MemberStore = (*MemberFileStore)(nil)
