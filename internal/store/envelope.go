package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// The current supported version of the encrypted blob format stored on disk.
const envelopeFormatVersion = 1

// Returned when the passphrase is incorrect or the ciphertext has been
// modified or corrupted.
var errWrongPassphrase = errors.New("wrong passphrase or corrupted state")

// blob is the on-disk JSON structure holding the ciphertext and KDF
// parameters.
type blob struct {
	V       int    `json:"v"`
	Salt    []byte `json:"salt"`
	Time    uint32 `json:"argon_time"`
	Memory  uint32 `json:"argon_memory"`
	Threads uint8  `json:"argon_threads"`
	Cipher  []byte `json:"cipher"`
}

// Tunables for Argon2id key derivation.
func argonParamsDefault() (time, memory uint32, threads uint8) { return 1, 1 << 16, 4 }

// encrypt derives a key from passphrase and seals raw into a JSON blob.
func encrypt(passphrase string, raw []byte) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	time, memory, threads := argonParamsDefault()
	key := argon2.IDKey([]byte(passphrase), salt[:], time, memory, threads, chacha20poly1305.KeySize)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [12]byte // zero nonce; salt-bound key guarantees uniqueness
	ct := aead.Seal(nil, nonce[:], raw, salt[:])

	return json.Marshal(blob{
		V:       envelopeFormatVersion,
		Salt:    salt[:],
		Time:    time,
		Memory:  memory,
		Threads: threads,
		Cipher:  ct,
	})
}

// decrypt opens the JSON blob using a key derived from passphrase.
func decrypt(passphrase string, b []byte) ([]byte, error) {
	var bl blob
	if err := json.Unmarshal(b, &bl); err != nil {
		return nil, err
	}
	if bl.V > envelopeFormatVersion {
		return nil, fmt.Errorf("unsupported keystore version %d", bl.V)
	}

	key := argon2.IDKey([]byte(passphrase), bl.Salt, bl.Time, bl.Memory, bl.Threads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [12]byte
	pt, err := aead.Open(nil, nonce[:], bl.Cipher, bl.Salt)
	if err != nil {
		return nil, errWrongPassphrase
	}
	return pt, nil
}
