package codec

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Zstd compresses the output of Inner with zstd. Encoders and decoders are
// created lazily and shared; both are safe for concurrent EncodeAll/DecodeAll.
type Zstd[V any] struct {
	Inner Codec[V]
	Level zstd.EncoderLevel // 0 => zstd.SpeedDefault

	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	err  error
}

func NewZstd[V any](inner Codec[V], level zstd.EncoderLevel) *Zstd[V] {
	return &Zstd[V]{Inner: inner, Level: level}
}

func (c *Zstd[V]) init() error {
	c.once.Do(func() {
		level := c.Level
		if level == 0 {
			level = zstd.SpeedDefault
		}
		c.enc, c.err = zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if c.err != nil {
			return
		}
		c.dec, c.err = zstd.NewReader(nil)
	})
	return c.err
}

func (c *Zstd[V]) Encode(v V) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	raw, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return c.enc.EncodeAll(raw, nil), nil
}

func (c *Zstd[V]) Decode(b []byte) (V, error) {
	var zero V
	if err := c.init(); err != nil {
		return zero, err
	}
	raw, err := c.dec.DecodeAll(b, nil)
	if err != nil {
		return zero, err
	}
	return c.Inner.Decode(raw)
}
