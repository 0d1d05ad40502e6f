package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// CaptureSampleRate is the fixed microphone rate sent to the recognizer.
	CaptureSampleRate = 16000
	// frameBytes is 20 ms of mono s16 at CaptureSampleRate.
	frameBytes = CaptureSampleRate / 50 * 2
	// maxRawBytes caps retained debug audio at one minute.
	maxRawBytes = CaptureSampleRate * 2 * 60
)

// framer cuts an arbitrary PCM byte stream into fixed-size frames.
type framer struct {
	size    int
	pending []byte
}

func (f *framer) push(b []byte) [][]byte {
	f.pending = append(f.pending, b...)
	var frames [][]byte
	for len(f.pending) >= f.size {
		frames = append(frames, bytes.Clone(f.pending[:f.size]))
		f.pending = f.pending[f.size:]
	}
	return frames
}

func (f *framer) flush() []byte {
	rest := f.pending
	f.pending = nil
	return rest
}

// Recording is one live utterance recorded from a Pulse source.
type Recording struct {
	device  Device
	keepRaw bool

	client *pulse.Client
	stream *pulse.RecordStream

	frames chan []byte
	done   chan struct{}

	mu       sync.Mutex
	framer   framer
	raw      []byte
	stopped  bool
	inflight sync.WaitGroup
	captured atomic.Int64
}

func newRecording(device Device, keepRaw bool) *Recording {
	return &Recording{
		device:  device,
		keepRaw: keepRaw,
		frames:  make(chan []byte, 128),
		done:    make(chan struct{}),
		framer:  framer{size: frameBytes},
	}
}

// StartRecording opens a 16 kHz mono s16 record stream on device. The
// stream stops when ctx is cancelled. keepRaw retains the audio for RawPCM.
func StartRecording(ctx context.Context, device Device, keepRaw bool) (*Recording, error) {
	client, err := newClient("audio-input-microphone")
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", device.ID, err)
	}

	rec := newRecording(device, keepRaw)
	rec.client = client

	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(rec.onPCM), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(CaptureSampleRate),
		pulse.RecordBufferFragmentSize(frameBytes),
		pulse.RecordMediaName("resq emergency call"),
	)
	if err != nil {
		_ = rec.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	rec.stream = stream
	stream.Start()

	context.AfterFunc(ctx, func() { _ = rec.Stop() })
	return rec, nil
}

// Device returns the recorded source.
func (r *Recording) Device() Device {
	return r.device
}

// Name describes the recorded source.
func (r *Recording) Name() string {
	return r.device.String()
}

// Chunks delivers 20 ms frames; the final frame may be shorter. It closes
// after Stop.
func (r *Recording) Chunks() <-chan []byte {
	return r.frames
}

// BytesCaptured reports total bytes accepted from Pulse.
func (r *Recording) BytesCaptured() int64 {
	return r.captured.Load()
}

// RawPCM returns a copy of the retained audio, or nil when the recording
// was started without keepRaw.
func (r *Recording) RawPCM() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Clone(r.raw)
}

// Stop halts the stream, emits the partial trailing frame and closes
// Chunks. Later calls are no-ops.
func (r *Recording) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.done)
	r.mu.Unlock()

	if r.stream != nil {
		r.stream.Stop()
		r.stream.Close()
	}
	if r.client != nil {
		r.client.Close()
	}
	r.inflight.Wait()

	r.mu.Lock()
	rest := r.framer.flush()
	r.mu.Unlock()
	if len(rest) > 0 {
		select {
		case r.frames <- rest:
		default:
		}
	}

	close(r.frames)
	return nil
}

func (r *Recording) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return 0, io.EOF
	}
	// Registered under mu so Stop waits for this delivery.
	r.inflight.Add(1)
	defer r.inflight.Done()

	if r.keepRaw && len(r.raw) < maxRawBytes {
		room := min(len(buffer), maxRawBytes-len(r.raw))
		r.raw = append(r.raw, buffer[:room]...)
	}
	frames := r.framer.push(buffer)
	r.mu.Unlock()

	r.captured.Add(int64(len(buffer)))

	for _, frame := range frames {
		select {
		case <-r.done:
			return 0, io.EOF
		case r.frames <- frame:
		}
	}
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
