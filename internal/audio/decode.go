package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned for audio that is neither WAV nor MP3.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// PCM is interleaved signed 16-bit little-endian audio.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Duration returns the playing time of the samples.
func (p PCM) Duration() time.Duration {
	frame := p.Channels * 2
	if frame == 0 || p.SampleRate == 0 {
		return 0
	}
	frames := len(p.Data) / frame
	return time.Duration(frames) * time.Second / time.Duration(p.SampleRate)
}

// Decode detects the container of audio and returns its PCM samples.
func Decode(audio []byte) (PCM, error) {
	switch {
	case len(audio) >= 12 && string(audio[0:4]) == "RIFF" && string(audio[8:12]) == "WAVE":
		return decodeWAV(audio)
	case isMP3(audio):
		return decodeMP3(audio)
	default:
		return PCM{}, ErrUnsupportedFormat
	}
}

func isMP3(b []byte) bool {
	if len(b) >= 3 && string(b[0:3]) == "ID3" {
		return true
	}
	// MPEG frame sync
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
}

func decodeMP3(audio []byte) (PCM, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return PCM{}, fmt.Errorf("mp3: %w", err)
	}
	data, err := io.ReadAll(d)
	if err != nil {
		return PCM{}, fmt.Errorf("mp3: %w", err)
	}
	// go-mp3 always decodes to 16-bit stereo
	return PCM{Data: data, SampleRate: d.SampleRate(), Channels: 2}, nil
}

func decodeWAV(audio []byte) (PCM, error) {
	var (
		pcm     PCM
		haveFmt bool
	)

	pos := 12
	for pos+8 <= len(audio) {
		id := string(audio[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(audio[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(audio) {
			// tolerate a truncated final data chunk
			if id == "data" && haveFmt {
				pcm.Data = audio[body:]
				return pcm, nil
			}
			return PCM{}, fmt.Errorf("wav: chunk %q overruns file", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return PCM{}, errors.New("wav: short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(audio[body:])
			bits := binary.LittleEndian.Uint16(audio[body+14:])
			if format != 1 || bits != 16 {
				return PCM{}, fmt.Errorf("wav: only 16-bit PCM supported (format %d, %d bits)", format, bits)
			}
			pcm.Channels = int(binary.LittleEndian.Uint16(audio[body+2:]))
			pcm.SampleRate = int(binary.LittleEndian.Uint32(audio[body+4:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return PCM{}, errors.New("wav: data before fmt chunk")
			}
			pcm.Data = audio[body : body+size]
			return pcm, nil
		}
		pos = body + size + size%2
	}
	return PCM{}, errors.New("wav: no data chunk")
}

// Convert returns p resampled to sampleRate with the given channel count.
// Resampling is linear; mono is duplicated to stereo and stereo is averaged
// down to mono.
func Convert(p PCM, sampleRate, channels int) PCM {
	if p.SampleRate == sampleRate && p.Channels == channels {
		return p
	}

	in := samples(p)
	frames := len(in) / max(p.Channels, 1)
	outFrames := frames
	if p.SampleRate != sampleRate && p.SampleRate > 0 {
		outFrames = int(int64(frames) * int64(sampleRate) / int64(p.SampleRate))
	}

	out := make([]byte, outFrames*channels*2)
	step := float64(p.SampleRate) / float64(sampleRate)
	for i := 0; i < outFrames; i++ {
		src := float64(i) * step
		j := int(src)
		frac := src - float64(j)
		for ch := 0; ch < channels; ch++ {
			a := frameValue(in, p.Channels, channels, j, ch, frames)
			b := frameValue(in, p.Channels, channels, j+1, ch, frames)
			v := a + (b-a)*frac
			binary.LittleEndian.PutUint16(out[(i*channels+ch)*2:], uint16(int16(v)))
		}
	}
	return PCM{Data: out, SampleRate: sampleRate, Channels: channels}
}

// frameValue returns output channel ch of input frame i, mapping between
// channel layouts.
func frameValue(in []int16, inChannels, outChannels, i, ch, frames int) float64 {
	i = min(i, frames-1)
	if i < 0 {
		return 0
	}
	base := i * inChannels
	switch {
	case inChannels == 1:
		return float64(in[base])
	case outChannels == 1:
		return (float64(in[base]) + float64(in[base+1])) / 2
	default:
		return float64(in[base+min(ch, inChannels-1)])
	}
}

func samples(p PCM) []int16 {
	out := make([]int16, len(p.Data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(p.Data[i*2:]))
	}
	return out
}
