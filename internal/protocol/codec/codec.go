package codec

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/krich11/mls-chat/internal/domain"
	"github.com/krich11/mls-chat/internal/util/memzero"
)

const nonceSize = chacha20poly1305.NonceSize

// Seal encrypts plaintext under the per-message key for (epoch, sender,
// generation), authenticating the message coordinates as associated data.
func Seal(secrets domain.EpochSecrets, groupID domain.GroupID, senderLeaf, generation uint32, plaintext []byte) (domain.ApplicationMessage, error) {
	msg := domain.ApplicationMessage{
		GroupID:    groupID,
		Epoch:      secrets.Epoch,
		SenderLeaf: senderLeaf,
		Generation: generation,
	}
	ad, err := associatedData(msg)
	if err != nil {
		return domain.ApplicationMessage{}, err
	}

	mk := messageKey(secrets.EncryptionSecret, senderLeaf, generation)
	aead, err := chacha20poly1305.New(mk)
	memzero.Zero(mk)
	if err != nil {
		return domain.ApplicationMessage{}, err
	}
	nonce := make([]byte, nonceSize)
	binary.BigEndian.PutUint32(nonce[nonceSize-4:], generation)
	msg.Ciphertext = aead.Seal(nil, nonce, plaintext, ad)
	return msg, nil
}

// Open decrypts msg with the secrets for its epoch. Callers pick the right
// epoch's secrets; OpenIn does that plus replay protection.
func Open(secrets domain.EpochSecrets, msg domain.ApplicationMessage) ([]byte, error) {
	if secrets.Epoch != msg.Epoch {
		return nil, fmt.Errorf("message epoch %d vs secrets epoch %d: %w", msg.Epoch, secrets.Epoch, domain.ErrUnknownEpoch)
	}
	ad, err := associatedData(msg)
	if err != nil {
		return nil, err
	}

	mk := messageKey(secrets.EncryptionSecret, msg.SenderLeaf, msg.Generation)
	aead, err := chacha20poly1305.New(mk)
	memzero.Zero(mk)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	binary.BigEndian.PutUint32(nonce[nonceSize-4:], msg.Generation)
	pt, err := aead.Open(nil, nonce, msg.Ciphertext, ad)
	if err != nil {
		return nil, domain.ErrAuthenticationFailure
	}
	return pt, nil
}

// SealNext seals plaintext at the member's current epoch with its next send
// generation, advancing the counter on success.
func SealNext(m *domain.Member, plaintext []byte) (domain.ApplicationMessage, error) {
	msg, err := Seal(m.Secrets, m.State.GroupID, m.LeafIndex, m.NextGen, plaintext)
	if err != nil {
		return domain.ApplicationMessage{}, err
	}
	m.NextGen++
	return msg, nil
}

// OpenIn opens msg with the member's current or transiently retained
// previous epoch secrets. Messages from older epochs fail with
// ErrUnknownEpoch: their secrets were wiped when the epoch aged out. A
// generation below the per-sender watermark fails with ErrReplay before any
// decryption.
func OpenIn(m *domain.Member, msg domain.ApplicationMessage) ([]byte, error) {
	if msg.GroupID != m.State.GroupID {
		return nil, fmt.Errorf("group %s: %w", msg.GroupID, domain.ErrNotFound)
	}

	var secrets domain.EpochSecrets
	switch {
	case msg.Epoch == m.Secrets.Epoch:
		secrets = m.Secrets
	case m.PrevSecrets != nil && msg.Epoch == m.PrevSecrets.Epoch:
		secrets = *m.PrevSecrets
	default:
		return nil, fmt.Errorf("epoch %d: %w", msg.Epoch, domain.ErrUnknownEpoch)
	}

	if m.RecvGen == nil {
		m.RecvGen = make(map[uint64]map[uint32]uint32)
	}
	watermarks := m.RecvGen[msg.Epoch]
	if watermarks == nil {
		watermarks = make(map[uint32]uint32)
		m.RecvGen[msg.Epoch] = watermarks
	}
	if msg.Generation < watermarks[msg.SenderLeaf] {
		return nil, fmt.Errorf("sender %d generation %d: %w", msg.SenderLeaf, msg.Generation, domain.ErrReplay)
	}

	pt, err := Open(secrets, msg)
	if err != nil {
		return nil, err
	}
	watermarks[msg.SenderLeaf] = msg.Generation + 1
	return pt, nil
}

// messageKey binds the key to sender leaf and generation so the zero-suffix
// nonce scheme stays unique within the epoch.
func messageKey(encryptionSecret []byte, leaf, generation uint32) []byte {
	info := make([]byte, 0, 32)
	info = append(info, []byte("mls-chat v1 msg key")...)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], leaf)
	info = append(info, b[:]...)
	binary.BigEndian.PutUint32(b[:], generation)
	info = append(info, b[:]...)
	r := hkdf.Expand(sha256.New, encryptionSecret, info)
	mk := make([]byte, chacha20poly1305.KeySize)
	_, _ = io.ReadFull(r, mk)
	return mk
}

func associatedData(msg domain.ApplicationMessage) ([]byte, error) {
	return domain.Encode(struct {
		GroupID    domain.GroupID
		Epoch      uint64
		SenderLeaf uint32
		Generation uint32
	}{msg.GroupID, msg.Epoch, msg.SenderLeaf, msg.Generation})
}
