package playback

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/resq/internal/pcm"
)

type fakeSink struct {
	mu     sync.Mutex
	played []pcm.Audio
	err    error
}

func (s *fakeSink) Play(ctx context.Context, audio pcm.Audio, onStart func()) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.played = append(s.played, audio)
	s.mu.Unlock()
	onStart()
	return ctx.Err()
}

type speakingRecorder struct {
	mu     sync.Mutex
	events []bool
}

func (r *speakingRecorder) record(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, v)
}

func (r *speakingRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.events...)
}

func wavFixture(t *testing.T, samples int) []byte {
	t.Helper()
	raw := make([]byte, samples*2)
	for i := range raw {
		raw[i] = byte(i)
	}
	var buf bytes.Buffer
	require.NoError(t, pcm.WriteWAV(&buf, raw, 16000, 1))
	return buf.Bytes()
}

func audioServer(t *testing.T, payload []byte, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/static/reply.wav" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write(payload)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPlayEmptyRefIsNoop(t *testing.T) {
	sink := &fakeSink{}
	rec := &speakingRecorder{}
	controller := New(HTTPFetcher{}, nil, sink, nil)

	require.NoError(t, controller.Play(context.Background(), "  ", rec.record))
	require.Empty(t, rec.snapshot())
	require.Empty(t, sink.played)
}

func TestPlayRendersWAVAndSignalsSpeaking(t *testing.T) {
	server := audioServer(t, wavFixture(t, 1600), http.StatusOK)
	sink := &fakeSink{}
	rec := &speakingRecorder{}
	resolve := func(ref string) (string, error) { return server.URL + ref, nil }
	controller := New(HTTPFetcher{Client: server.Client()}, resolve, sink, nil)

	require.NoError(t, controller.Play(context.Background(), "/static/reply.wav", rec.record))
	require.Equal(t, []bool{true, false}, rec.snapshot())
	require.Len(t, sink.played, 1)
	require.Equal(t, 16000, sink.played[0].SampleRate)
	require.Equal(t, 1, sink.played[0].Channels)
	require.Len(t, sink.played[0].Samples, 1600)
}

func TestPlayUnreachableResourceIsPlaybackError(t *testing.T) {
	server := audioServer(t, nil, http.StatusOK)
	sink := &fakeSink{}
	rec := &speakingRecorder{}
	controller := New(HTTPFetcher{Client: server.Client()}, nil, sink, nil)

	err := controller.Play(context.Background(), server.URL+"/missing.mp3", rec.record)
	require.ErrorIs(t, err, ErrPlayback)
	require.Contains(t, err.Error(), "status 404")
	require.Equal(t, []bool{false}, rec.snapshot())
	require.Empty(t, sink.played)
}

func TestPlayUndecodablePayloadIsPlaybackError(t *testing.T) {
	server := audioServer(t, []byte("<html>not audio</html>"), http.StatusOK)
	rec := &speakingRecorder{}
	controller := New(HTTPFetcher{Client: server.Client()}, nil, &fakeSink{}, nil)

	err := controller.Play(context.Background(), server.URL+"/static/reply.wav", rec.record)
	require.ErrorIs(t, err, ErrPlayback)
	require.ErrorIs(t, err, pcm.ErrUnsupportedFormat)
	require.Equal(t, []bool{false}, rec.snapshot())
}

func TestPlaySinkFailureIsPlaybackError(t *testing.T) {
	server := audioServer(t, wavFixture(t, 32), http.StatusOK)
	sink := &fakeSink{err: errors.New("pulse gone")}
	rec := &speakingRecorder{}
	controller := New(HTTPFetcher{Client: server.Client()}, nil, sink, nil)

	err := controller.Play(context.Background(), server.URL+"/static/reply.wav", rec.record)
	require.ErrorIs(t, err, ErrPlayback)
	require.Contains(t, err.Error(), "pulse gone")
	require.Equal(t, []bool{false}, rec.snapshot())
}

func TestPlayResolverErrorIsPlaybackError(t *testing.T) {
	rec := &speakingRecorder{}
	resolve := func(string) (string, error) { return "", errors.New("bad ref") }
	controller := New(HTTPFetcher{}, resolve, &fakeSink{}, nil)

	err := controller.Play(context.Background(), "::", rec.record)
	require.ErrorIs(t, err, ErrPlayback)
	require.Equal(t, []bool{false}, rec.snapshot())
}

func TestPlayWithoutSinkIsPlaybackError(t *testing.T) {
	controller := New(HTTPFetcher{}, nil, nil, nil)
	err := controller.Play(context.Background(), "http://localhost/a.wav", nil)
	require.ErrorIs(t, err, ErrPlayback)
}

func TestDecodeRejectsUnknownAndEmpty(t *testing.T) {
	_, err := Decode(nil)
	require.ErrorIs(t, err, pcm.ErrUnsupportedFormat)

	_, err = Decode([]byte("OggS...."))
	require.ErrorIs(t, err, pcm.ErrUnsupportedFormat)
}

func TestLooksLikeMP3(t *testing.T) {
	require.True(t, looksLikeMP3([]byte("ID3\x04\x00")))
	require.True(t, looksLikeMP3([]byte{0xFF, 0xFB, 0x90}))
	require.False(t, looksLikeMP3([]byte("RIFF")))
	require.False(t, looksLikeMP3([]byte{0xFF}))
}

func TestHTTPFetcherRejectsOversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, maxAudioBytes+1))
	}))
	defer server.Close()

	_, err := HTTPFetcher{Client: server.Client()}.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds")
}
