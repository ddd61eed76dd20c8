package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOROptions tunes the CBOR codec. The zero value picks compact unsorted
// encoding and the library's decode limits.
type CBOROptions struct {
	// Core Deterministic encoding (RFC 8949 4.2.1): identical values always
	// spill to identical bytes.
	Deterministic bool
	// Decode limits for payloads read back from a shared spill store. 0 => library default.
	MaxNestedLevels  int
	MaxArrayElements int
	MaxMapPairs      int
}

// CBOR serializes values using fxamacker/cbor. Construct with NewCBOR or
// MustCBOR; the zero value has no modes and panics. Times are RFC3339Nano
// strings and duplicate map keys are rejected on decode.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

func NewCBOR[V any](opts CBOROptions) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if opts.Deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}

	dm, err := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels:  opts.MaxNestedLevels,
		MaxArrayElements: opts.MaxArrayElements,
		MaxMapPairs:      opts.MaxMapPairs,
	}.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR panics on invalid options. For package-level vars and tests.
func MustCBOR[V any](opts CBOROptions) CBOR[V] {
	c, err := NewCBOR[V](opts)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
