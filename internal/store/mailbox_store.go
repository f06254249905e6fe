package store

import (
	"path/filepath"
	"sync"

	"github.com/krich11/mls-chat/internal/domain"
)

// mailboxFile is the on-disk shape of one group's mailbox: an append-only
// ordered log of versioned payload encodings plus one cursor per consumer.
type mailboxFile struct {
	Entries [][]byte       `json:"entries"`
	Cursors map[string]int `json:"cursors"`
}

// MailboxFileStore is the file-backed delivery channel: Broadcast appends to
// a per-group log, Receive returns everything past the consumer's cursor in
// order, Ack advances it. Exactly-once per consumer follows from the cursor;
// ordering from the append-only log.
type MailboxFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewMailboxFileStore returns a MailboxFileStore rooted at dir.
func NewMailboxFileStore(dir string) *MailboxFileStore {
	return &MailboxFileStore{dir: dir}
}

// Broadcast appends p to the group's log.
func (s *MailboxFileStore) Broadcast(groupID domain.GroupID, p domain.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mf mailboxFile
	if err := readJSON(s.path(groupID), &mf); err != nil {
		return err
	}
	b, err := domain.Encode(p)
	if err != nil {
		return err
	}
	mf.Entries = append(mf.Entries, b)
	return writeJSON(s.path(groupID), mf, 0o600)
}

// Receive returns up to limit payloads past the consumer's cursor, oldest
// first. limit <= 0 means no limit.
func (s *MailboxFileStore) Receive(groupID domain.GroupID, consumer string, limit int) ([]domain.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mf mailboxFile
	if err := readJSON(s.path(groupID), &mf); err != nil {
		return nil, err
	}
	cursor := mf.Cursors[consumer]
	if cursor > len(mf.Entries) {
		cursor = len(mf.Entries)
	}
	pending := mf.Entries[cursor:]
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]domain.Payload, 0, len(pending))
	for _, e := range pending {
		var p domain.Payload
		if err := domain.Decode(e, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Ack advances the consumer's cursor past n processed payloads.
func (s *MailboxFileStore) Ack(groupID domain.GroupID, consumer string, n int) error {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var mf mailboxFile
	if err := readJSON(s.path(groupID), &mf); err != nil {
		return err
	}
	if mf.Cursors == nil {
		mf.Cursors = make(map[string]int)
	}
	cursor := mf.Cursors[consumer] + n
	if cursor > len(mf.Entries) {
		cursor = len(mf.Entries)
	}
	mf.Cursors[consumer] = cursor
	return writeJSON(s.path(groupID), mf, 0o600)
}

func (s *MailboxFileStore) path(groupID domain.GroupID) string {
	return filepath.Join(s.dir, "mailbox", groupID.String()+".json")
}

// Compile-time assertion that MailboxFileStore implements domain.DeliveryChannel.
var _ domain.DeliveryChannel = (*MailboxFileStore)(nil)
