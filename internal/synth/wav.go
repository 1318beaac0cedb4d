package synth

import (
	"bytes"
	"encoding/binary"
)

// chunk is an extra RIFF chunk appended after the data chunk.
type chunk struct {
	id   [4]byte
	data []byte
}

// encodeWAV wraps 16-bit little-endian PCM in a RIFF/WAVE container.
func encodeWAV(pcm []byte, sampleRate, channels int, extra ...chunk) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8

	size := 4 + (8 + 16) + (8 + len(pcm))
	for _, c := range extra {
		size += 8 + len(c.data) + len(c.data)%2
	}

	var b bytes.Buffer
	b.Grow(8 + size)
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(size))
	b.WriteString("WAVE")

	b.WriteString("fmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&b, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&b, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(&b, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&b, binary.LittleEndian, uint16(bitsPerSample))

	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(pcm)))
	b.Write(pcm)

	for _, c := range extra {
		b.Write(c.id[:])
		_ = binary.Write(&b, binary.LittleEndian, uint32(len(c.data)))
		b.Write(c.data)
		if len(c.data)%2 == 1 {
			b.WriteByte(0)
		}
	}
	return b.Bytes()
}
