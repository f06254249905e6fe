package domain

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// WireVersion prefixes every canonical encoding. Bump on any wire-breaking
// change.
const WireVersion byte = 0x01

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode serialises v as versioned, deterministic CBOR. Both confirmation
// and authentication tags are computed over these bytes, so producer and
// consumer agree on a canonical form.
func Encode(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(b)+1)
	out = append(out, WireVersion)
	return append(out, b...), nil
}

// Decode reverses Encode, rejecting unknown wire versions.
func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}
	if data[0] != WireVersion {
		return fmt.Errorf("unsupported wire version 0x%02x", data[0])
	}
	return decMode.Unmarshal(data[1:], v)
}
