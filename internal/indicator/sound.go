package indicator

import (
	"math"
	"time"

	"github.com/rbright/resq/internal/pcm"
)

type cueKind int

const (
	cueListening cueKind = iota + 1
	cueComplete
	cueError
)

const cueSampleRate = 16000

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var (
	listeningCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
	})
	completeCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 740, duration: 65 * time.Millisecond, volume: 0.18},
		{frequencyHz: 988, duration: 90 * time.Millisecond, volume: 0.18},
	})
	errorCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 480, duration: 90 * time.Millisecond, volume: 0.2},
		{frequencyHz: 360, duration: 90 * time.Millisecond, volume: 0.2},
		{frequencyHz: 300, duration: 140 * time.Millisecond, volume: 0.2},
	})
)

func cueAudio(kind cueKind) pcm.Audio {
	return pcm.Audio{Samples: cueSamples(kind), SampleRate: cueSampleRate, Channels: 1}
}

func cueSamples(kind cueKind) []int16 {
	switch kind {
	case cueListening:
		return listeningCuePCM
	case cueComplete:
		return completeCuePCM
	case cueError:
		return errorCuePCM
	default:
		return nil
	}
}

func synthesizeCue(parts []toneSpec) []int16 {
	if len(parts) == 0 {
		return nil
	}
	gap := samplesForDuration(22 * time.Millisecond)
	total := 0
	for i, part := range parts {
		total += samplesForDuration(part.duration)
		if i < len(parts)-1 {
			total += gap
		}
	}

	out := make([]int16, 0, total)
	for i, part := range parts {
		out = append(out, synthesizeTone(part)...)
		if i < len(parts)-1 && gap > 0 {
			out = append(out, make([]int16, gap)...)
		}
	}
	return out
}

// synthesizeTone renders a sine with a short linear attack and release.
func synthesizeTone(spec toneSpec) []int16 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	ramp := min(n/10, cueSampleRate/200)
	ramp = max(ramp, 1)

	out := make([]int16, n)
	for i := range n {
		envelope := 1.0
		if i < ramp {
			envelope = float64(i) / float64(ramp)
		}
		if tail := n - i - 1; tail < ramp {
			envelope = min(envelope, float64(tail)/float64(ramp))
		}
		t := float64(i) / cueSampleRate
		out[i] = int16(math.Round(math.Sin(2*math.Pi*spec.frequencyHz*t) * spec.volume * envelope * 32767))
	}
	return out
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
