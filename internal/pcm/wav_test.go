package pcm

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteWAVThenDecodeWAV(t *testing.T) {
	raw := []byte{0x01, 0x00, 0xff, 0x7f, 0x00, 0x80, 0x02, 0x00}

	var buf bytes.Buffer
	require.NoError(t, WriteWAV(&buf, raw, 16000, 1))
	require.Equal(t, 44+len(raw), buf.Len())
	require.True(t, IsWAV(buf.Bytes()))

	audio, err := DecodeWAV(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 16000, audio.SampleRate)
	require.Equal(t, 1, audio.Channels)
	require.Equal(t, []int16{1, 32767, -32768, 2}, audio.Samples)
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWAV(&buf, []byte{0x10, 0x00}, 22050, 2))
	data := buf.Bytes()

	// Splice a LIST chunk between fmt and data.
	list := []byte("LIST\x03\x00\x00\x00abc\x00")
	spliced := append([]byte{}, data[:36]...)
	spliced = append(spliced, list...)
	spliced = append(spliced, data[36:]...)

	audio, err := DecodeWAV(spliced)
	require.NoError(t, err)
	require.Equal(t, 22050, audio.SampleRate)
	require.Equal(t, 2, audio.Channels)
	require.Equal(t, []int16{16}, audio.Samples)
}

func TestDecodeWAVClampsOversizedDataChunk(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWAV(&buf, []byte{0x05, 0x00, 0x06, 0x00}, 8000, 1))
	data := buf.Bytes()
	binary.LittleEndian.PutUint32(data[40:44], 0xFFFFFFF0)

	audio, err := DecodeWAV(data)
	require.NoError(t, err)
	require.Equal(t, []int16{5, 6}, audio.Samples)
}

func TestDecodeWAVRejectsNonPCM16(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWAV(&buf, []byte{0, 0}, 8000, 1))
	data := buf.Bytes()
	binary.LittleEndian.PutUint16(data[34:36], 8)

	_, err := DecodeWAV(data)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, err := DecodeWAV([]byte("ID3 not a wav file"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestAudioDuration(t *testing.T) {
	a := Audio{Samples: make([]int16, 32000), SampleRate: 16000, Channels: 2}
	require.Equal(t, time.Second, a.Duration())
	require.Zero(t, Audio{}.Duration())
}
