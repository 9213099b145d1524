package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	// cborEncMode uses canonical mode for deterministic encoding.
	cborEncMode cbor.EncMode
	// cborDecMode allows every Value nesting level the codec accepts.
	// A map level costs three CBOR levels (slice, pair, value).
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{MaxNestedLevels: 3*maxValueDepth + 8}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// MarshalCBOR encodes a value to canonical CBOR bytes.
func MarshalCBOR(v interface{}) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// UnmarshalCBOR decodes CBOR bytes into a value.
func UnmarshalCBOR(data []byte, v interface{}) error {
	return cborDecMode.Unmarshal(data, v)
}
