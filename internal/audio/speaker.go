package audio

import (
	"context"
	"fmt"

	"github.com/jfreymuth/pulse"

	"github.com/rbright/resq/internal/pcm"
)

// Speaker renders PCM buffers through the default Pulse sink.
type Speaker struct {
	MediaName string
	Latency   float64
}

// Play blocks until audio has drained or ctx is cancelled. onStart runs once
// output has been handed to the server.
func (s Speaker) Play(ctx context.Context, audio pcm.Audio, onStart func()) error {
	if len(audio.Samples) == 0 {
		return nil
	}
	layout, err := channelLayout(audio.Channels)
	if err != nil {
		return err
	}
	if audio.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", audio.SampleRate)
	}

	client, err := newClient("audio-speakers")
	if err != nil {
		return err
	}
	defer client.Close()

	mediaName := s.MediaName
	if mediaName == "" {
		mediaName = "resq assistant reply"
	}
	latency := s.Latency
	if latency <= 0 {
		latency = 0.05
	}

	stream, err := client.NewPlayback(
		samplesReader(ctx, audio.Samples),
		layout,
		pulse.PlaybackSampleRate(audio.SampleRate),
		pulse.PlaybackLatency(latency),
		pulse.PlaybackMediaName(mediaName),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	if onStart != nil {
		onStart()
	}
	stream.Drain()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play stream: %w", err)
	}
	return nil
}

func channelLayout(channels int) (pulse.PlaybackOption, error) {
	switch channels {
	case 1:
		return pulse.PlaybackMono, nil
	case 2:
		return pulse.PlaybackStereo, nil
	default:
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
}

// samplesReader feeds samples to Pulse and ends early once ctx is done.
func samplesReader(ctx context.Context, samples []int16) pulse.Reader {
	cursor := 0
	return pulse.Int16Reader(func(buf []int16) (int, error) {
		if ctx.Err() != nil || cursor >= len(samples) {
			return 0, pulse.EndOfData
		}

		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})
}
