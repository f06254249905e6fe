package store

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/krich11/mls-chat/internal/domain"
)

const settingsFile = "settings.json" // CLI settings

// DirectoryFileStore maps human-readable group names to group IDs, one file
// per name under groups/.
type DirectoryFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewDirectoryFileStore returns a DirectoryFileStore rooted at dir.
func NewDirectoryFileStore(dir string) *DirectoryFileStore {
	return &DirectoryFileStore{dir: dir}
}

// SaveGroupName claims name for id. The claim links a fully written temp
// file into place, which is atomic across processes: of any number of
// concurrent claims on one name exactly one succeeds, the rest fail with
// fs.ErrExist.
func (s *DirectoryFileStore) SaveGroupName(name string, id domain.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path(name))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.WriteString(id.String() + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Link(tmp, s.path(name))
}

// LookupGroup resolves a group name.
func (s *DirectoryFileStore) LookupGroup(name string) (domain.GroupID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(s.path(name))
	if err != nil || b == nil {
		return domain.GroupID{}, false, err
	}
	id, err := uuid.Parse(strings.TrimSpace(string(b)))
	if err != nil {
		return domain.GroupID{}, false, err
	}
	return id, true, nil
}

func (s *DirectoryFileStore) path(name string) string {
	return filepath.Join(s.dir, "groups", name)
}

// Compile-time assertion that DirectoryFileStore implements domain.GroupDirectory.
var _ domain.GroupDirectory = (*DirectoryFileStore)(nil)

type settings struct {
	CurrentUser string `json:"current_user"`
}

// SettingsFileStore keeps small CLI-level settings.
type SettingsFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewSettingsFileStore returns a SettingsFileStore rooted at dir.
func NewSettingsFileStore(dir string) *SettingsFileStore {
	return &SettingsFileStore{dir: dir}
}

// SetCurrentUser records the active user.
func (s *SettingsFileStore) SetCurrentUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st settings
	if err := readJSON(s.path(), &st); err != nil {
		return err
	}
	st.CurrentUser = userID
	return writeJSON(s.path(), st, 0o600)
}

// CurrentUser returns the active user, if one was set.
func (s *SettingsFileStore) CurrentUser() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st settings
	if err := readJSON(s.path(), &st); err != nil {
		return "", false, err
	}
	return st.CurrentUser, st.CurrentUser != "", nil
}

func (s *SettingsFileStore) path() string { return filepath.Join(s.dir, settingsFile) }

// Compile-time assertion that SettingsFileStore implements domain.SettingsStore.
var _ domain.SettingsStore = (*SettingsFileStore)(nil)
