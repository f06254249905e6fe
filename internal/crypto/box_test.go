package crypto_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/krich11/mls-chat/internal/crypto"
)

func TestSealTo_OpenWith_RoundTrip(t *testing.T) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	secret := bytes.Repeat([]byte{0x42}, 32)

	box, err := crypto.SealTo(pub, "test", secret)
	if err != nil {
		t.Fatalf("SealTo: %v", err)
	}
	got, err := crypto.OpenWith(priv, "test", box)
	if err != nil {
		t.Fatalf("OpenWith: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Fatal("opened secret differs")
	}
}

func TestOpenWith_WrongKeyFails(t *testing.T) {
	_, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	wrong, _, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}

	box, err := crypto.SealTo(pub, "test", []byte("secret"))
	if err != nil {
		t.Fatalf("SealTo: %v", err)
	}
	if _, err := crypto.OpenWith(wrong, "test", box); !errors.Is(err, crypto.ErrBoxOpen) {
		t.Fatalf("OpenWith: %v, want ErrBoxOpen", err)
	}
}

func TestOpenWith_LabelSeparation(t *testing.T) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	box, err := crypto.SealTo(pub, "welcome joiner", []byte("secret"))
	if err != nil {
		t.Fatalf("SealTo: %v", err)
	}
	if _, err := crypto.OpenWith(priv, "commit secret", box); !errors.Is(err, crypto.ErrBoxOpen) {
		t.Fatalf("OpenWith under other label: %v, want ErrBoxOpen", err)
	}
}

func TestFingerprint_StableAndDistinct(t *testing.T) {
	a := crypto.Fingerprint([]byte("key-a"))
	if a != crypto.Fingerprint([]byte("key-a")) {
		t.Fatal("fingerprint not deterministic")
	}
	if a == crypto.Fingerprint([]byte("key-b")) {
		t.Fatal("distinct keys share a fingerprint")
	}
	if len(a) != 20 {
		t.Fatalf("fingerprint length %d, want 20", len(a))
	}
}
