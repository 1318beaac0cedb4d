package cache

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// codec transforms audio on its way in and out of the cache.
type codec interface {
	encode(audio []byte) []byte
	decode(stored []byte) ([]byte, error)
	close()
}

// copyCodec stores a private copy of the audio.
type copyCodec struct{}

func (copyCodec) encode(audio []byte) []byte { return clone(audio) }

func (copyCodec) decode(stored []byte) ([]byte, error) { return clone(stored), nil }

func (copyCodec) close() {}

// zstdCodec compresses stored audio. Encoder and decoder are safe for
// concurrent EncodeAll/DecodeAll calls.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec(level int) (*zstdCodec, error) {
	if level <= 0 {
		level = 3
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (z *zstdCodec) encode(audio []byte) []byte {
	return z.enc.EncodeAll(audio, make([]byte, 0, len(audio)/2))
}

func (z *zstdCodec) decode(stored []byte) ([]byte, error) {
	out, err := z.dec.DecodeAll(stored, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return out, nil
}

func (z *zstdCodec) close() {
	_ = z.enc.Close()
	z.dec.Close()
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
