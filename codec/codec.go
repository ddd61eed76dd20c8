// Package codec converts cache values to and from bytes. The spill tier uses a
// Codec to demote evicted values into a byte store, and SizeOf turns a Codec
// into an approximate entry size for expcache size limits.
package codec

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// SizeOf returns the encoded length of v as an approximate in-memory size.
// Good enough for Creation.SetSize; not an exact accounting.
func SizeOf[V any](c Codec[V], v V) (int64, error) {
	b, err := c.Encode(v)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}
