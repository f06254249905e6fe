package schedule

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/krich11/mls-chat/internal/domain"
	"github.com/krich11/mls-chat/internal/util/memzero"
)

const secretLen = 32

// NewCommitSecret returns the fresh entropy a commit mixes into the epoch
// transition. This randomness is the source of post-compromise security.
func NewCommitSecret() ([]byte, error) {
	s := make([]byte, secretLen)
	if _, err := rand.Read(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Derive computes the full secret set for the next epoch. priorInit is the
// init secret of the epoch being left; transcript is the confirmed
// transcript hash after folding in the commit. The returned joiner secret is
// what a welcome seals to newly added members; Expand turns it back into the
// same EpochSecrets.
func Derive(epoch uint64, priorInit, commitSecret, transcript []byte) (domain.EpochSecrets, []byte) {
	joiner := hkdfExtract(priorInit, commitSecret)
	return Expand(epoch, joiner, transcript), joiner
}

// Expand derives every per-epoch secret from the joiner secret. Labels keep
// the outputs independent; the transcript hash binds them to this group's
// history so equal entropy in different groups never yields equal keys.
func Expand(epoch uint64, joiner, transcript []byte) domain.EpochSecrets {
	return domain.EpochSecrets{
		Epoch:            epoch,
		InitSecret:       expandLabel(joiner, "init", transcript),
		EncryptionSecret: expandLabel(joiner, "encryption", transcript),
		ConfirmationKey:  expandLabel(joiner, "confirmation", transcript),
		SenderDataSecret: expandLabel(joiner, "sender data", transcript),
	}
}

// NextTranscript folds a commit's canonical content into the running
// confirmed transcript hash.
func NextTranscript(prev, commitContent []byte) []byte {
	h := sha256.New()
	h.Write(prev)
	h.Write(commitContent)
	return h.Sum(nil)
}

// ConfirmationTag authenticates the new transcript under the new epoch's
// confirmation key.
func ConfirmationTag(confirmationKey, transcript []byte) []byte {
	m := hmac.New(sha256.New, confirmationKey)
	m.Write(transcript)
	return m.Sum(nil)
}

// VerifyConfirmationTag reports whether tag matches in constant time.
func VerifyConfirmationTag(confirmationKey, transcript, tag []byte) bool {
	return hmac.Equal(ConfirmationTag(confirmationKey, transcript), tag)
}

// Wipe discards a joiner secret once the epoch secrets are installed.
func Wipe(secret []byte) { memzero.Zero(secret) }

func hkdfExtract(salt, ikm []byte) []byte {
	return hkdf.Extract(sha256.New, ikm, salt)
}

func expandLabel(prk []byte, label string, transcript []byte) []byte {
	info := make([]byte, 0, len(label)+len(transcript)+16)
	info = append(info, []byte("mls-chat v1 ")...)
	info = append(info, []byte(label)...)
	info = append(info, transcript...)
	r := hkdf.Expand(sha256.New, prk, info)
	out := make([]byte, secretLen)
	_, _ = io.ReadFull(r, out)
	return out
}
