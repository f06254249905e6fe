package crypto

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/krich11/mls-chat/internal/domain"
	"github.com/krich11/mls-chat/internal/util/memzero"
)

// ErrBoxOpen is returned when a sealed secret fails to decrypt.
var ErrBoxOpen = errors.New("sealed secret open failed")

// SealTo encrypts a small secret to pub using an ephemeral X25519 exchange.
// The AEAD key is HKDF(dh, salt=nil, info=label); the nonce is all-zero
// because every seal uses a fresh ephemeral key. The label separates uses
// (welcome joiner vs commit secret) so a blob sealed for one purpose cannot
// be opened under another.
func SealTo(pub domain.X25519Public, label string, secret []byte) (domain.SealedSecret, error) {
	ephPriv, ephPub, err := GenerateX25519()
	if err != nil {
		return domain.SealedSecret{}, err
	}
	dh, err := DH(ephPriv, pub)
	if err != nil {
		return domain.SealedSecret{}, err
	}
	key := boxKey(dh[:], label)
	memzero.Zero(dh[:], ephPriv[:])

	aead, err := chacha20poly1305.New(key)
	memzero.Zero(key)
	if err != nil {
		return domain.SealedSecret{}, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	ct := aead.Seal(nil, nonce, secret, []byte(label))
	return domain.SealedSecret{Ephemeral: ephPub, Ciphertext: ct}, nil
}

// OpenWith decrypts a sealed secret with the recipient's private key.
func OpenWith(priv domain.X25519Private, label string, box domain.SealedSecret) ([]byte, error) {
	dh, err := DH(priv, box.Ephemeral)
	if err != nil {
		return nil, err
	}
	key := boxKey(dh[:], label)
	memzero.Zero(dh[:])

	aead, err := chacha20poly1305.New(key)
	memzero.Zero(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	pt, err := aead.Open(nil, nonce, box.Ciphertext, []byte(label))
	if err != nil {
		return nil, ErrBoxOpen
	}
	return pt, nil
}

func boxKey(dh []byte, label string) []byte {
	r := hkdf.New(sha256.New, dh, nil, []byte("mls-chat v1 box|"+label))
	key := make([]byte, chacha20poly1305.KeySize)
	_, _ = io.ReadFull(r, key)
	return key
}
