// Package pcm holds 16-bit PCM buffers and their WAV container encoding.
package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrUnsupportedFormat reports a container or sample format resq cannot render.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Audio is interleaved signed 16-bit PCM.
type Audio struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration reports the playback length of a.
func (a Audio) Duration() time.Duration {
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return 0
	}
	frames := len(a.Samples) / a.Channels
	return time.Duration(frames) * time.Second / time.Duration(a.SampleRate)
}

// SamplesFromLE converts little-endian PCM16 bytes into samples. A trailing odd byte is dropped.
func SamplesFromLE(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return out
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// WriteWAV writes raw little-endian PCM bytes with a minimal WAV header.
func WriteWAV(w io.Writer, raw []byte, sampleRate int, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(raw)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(raw)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(raw)
	return err
}

// DecodeWAV parses a RIFF/WAVE PCM16 payload, skipping unknown chunks.
func DecodeWAV(data []byte) (Audio, error) {
	if !IsWAV(data) {
		return Audio{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedFormat)
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bits       uint16
		haveFormat bool
	)

	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			// Streamed WAVs often carry a bogus data size; clamp to what we have.
			if id != "data" {
				return Audio{}, fmt.Errorf("%w: truncated %q chunk", ErrUnsupportedFormat, id)
			}
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Audio{}, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedFormat)
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFormat = true
		case "data":
			if !haveFormat {
				return Audio{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrUnsupportedFormat)
			}
			if format != 1 || bits != 16 {
				return Audio{}, fmt.Errorf("%w: wav format=%d bits=%d", ErrUnsupportedFormat, format, bits)
			}
			if channels <= 0 || sampleRate <= 0 {
				return Audio{}, fmt.Errorf("%w: wav channels=%d rate=%d", ErrUnsupportedFormat, channels, sampleRate)
			}
			return Audio{
				Samples:    SamplesFromLE(data[body : body+size]),
				SampleRate: sampleRate,
				Channels:   channels,
			}, nil
		}

		offset = body + size
		if size%2 == 1 {
			offset++
		}
	}

	return Audio{}, fmt.Errorf("%w: no data chunk", ErrUnsupportedFormat)
}
