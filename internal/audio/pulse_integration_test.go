//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/resq/internal/pcm"
)

func TestListDevicesIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	devices, err := ListDevices(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)
}

func TestSpeakerPlayIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	started := false
	err := Speaker{}.Play(ctx, pcm.Audio{Samples: make([]int16, 1600), SampleRate: 16000, Channels: 1}, func() { started = true })
	require.NoError(t, err)
	require.True(t, started)
}
