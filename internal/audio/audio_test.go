package audio

import (
	"context"
	"io"
	"reflect"
	"testing"

	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/require"

	"github.com/rbright/resq/internal/capture"
)

func TestSelectDeviceFromListPrimaryDefault(t *testing.T) {
	devices := []Device{
		{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true},
		{ID: "sony", Description: "Sony WH-1000XM6", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "default", "default")
	require.NoError(t, err)
	require.Equal(t, "elgato", selection.Device.ID)
	require.Empty(t, selection.Warning)
}

func TestSelectDeviceFromListMutedPrimaryUsesFallback(t *testing.T) {
	devices := []Device{
		{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Muted: true, Default: true},
		{ID: "sony", Description: "Sony WH-1000XM6", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "elgato", "sony")
	require.NoError(t, err)
	require.Equal(t, "sony", selection.Device.ID)
	require.Contains(t, selection.Warning, "muted")
	require.True(t, selection.Fallback)
}

func TestSelectDeviceFromListFailsWhenSelectedAndFallbackMuted(t *testing.T) {
	devices := []Device{
		{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Muted: true, Default: true},
	}

	_, err := selectDeviceFromList(devices, "default", "default")
	require.Error(t, err)
	require.Contains(t, err.Error(), "muted")
}

func TestSelectDeviceFromListUnknownInput(t *testing.T) {
	devices := []Device{{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true}}

	_, err := selectDeviceFromList(devices, "missing", "default")
	require.Error(t, err)
	require.Contains(t, err.Error(), "did not match")
	require.Contains(t, err.Error(), "capture.input")
}

func TestDeviceMatchesByIDAndDescription(t *testing.T) {
	dev := Device{ID: "alsa_input.usb-elgato", Description: "Elgato Wave 3 Mono"}
	require.True(t, deviceMatches(dev, "elgato"))
	require.True(t, deviceMatches(dev, "wave 3"))
	require.False(t, deviceMatches(dev, "missing"))
}

func TestSelectDeviceFromListEmptyIsNoDevices(t *testing.T) {
	_, err := selectDeviceFromList(nil, "default", "default")
	require.ErrorIs(t, err, ErrNoDevices)
}

func TestDeviceString(t *testing.T) {
	require.Equal(t, "Elgato (alsa_input.elgato)", Device{ID: "alsa_input.elgato", Description: "Elgato"}.String())
	require.Equal(t, "mic", Device{ID: "mic"}.String())
	require.Equal(t, "Desk Mic", Device{Description: "Desk Mic"}.String())
}

func TestListDevicesFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	_, err := ListDevices(context.Background())
	require.ErrorIs(t, err, ErrServerUnavailable)
}

func TestMicrophoneOpenReportsUnsupportedWithoutPulse(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	_, err := Microphone{Input: "default", Fallback: "default"}.Open(context.Background())
	require.ErrorIs(t, err, capture.ErrUnsupported)
}

func TestSelectDeviceFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	_, err := SelectDevice(context.Background(), "default", "default")
	require.Error(t, err)
}

func TestSourceStateString(t *testing.T) {
	require.Equal(t, "running", sourceStateString(0))
	require.Equal(t, "idle", sourceStateString(1))
	require.Equal(t, "suspended", sourceStateString(2))
	require.Equal(t, "unknown(99)", sourceStateString(99))
}

func TestSourceAvailable(t *testing.T) {
	require.False(t, sourceAvailable(nil))
	require.True(t, sourceAvailable(&pulseproto.GetSourceInfoReply{})) // no ports => available

	available := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, available, []sourcePort{{name: "mic", available: 2}})
	require.True(t, sourceAvailable(available))

	notAvailable := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, notAvailable, []sourcePort{{name: "mic", available: 1}})
	require.False(t, sourceAvailable(notAvailable))
}

func TestWriterFuncDelegatesWrite(t *testing.T) {
	called := false
	writer := writerFunc(func(b []byte) (int, error) {
		called = true
		require.Equal(t, []byte{1, 2, 3}, b)
		return len(b), nil
	})

	n, err := writer.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.True(t, called)
}

func TestFramerSplitsAndFlushes(t *testing.T) {
	f := framer{size: 4}

	require.Empty(t, f.push([]byte{1, 2, 3}))
	frames := f.push([]byte{4, 5, 6, 7, 8, 9})
	require.Equal(t, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}, frames)
	require.Equal(t, []byte{9}, f.flush())
	require.Empty(t, f.flush())
}

func TestRecordingOnPCMFramesAndStopFlushesPending(t *testing.T) {
	r := newRecording(Device{ID: "mic-1"}, true)

	input := make([]byte, frameBytes+111)
	for i := range input {
		input[i] = byte(i % 255)
	}

	n, err := r.onPCM(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)
	require.Equal(t, int64(len(input)), r.BytesCaptured())
	require.Equal(t, input, r.RawPCM())

	first := <-r.Chunks()
	require.Len(t, first, frameBytes)

	require.NoError(t, r.Stop())

	remaining, ok := <-r.Chunks()
	require.True(t, ok)
	require.Len(t, remaining, 111)

	_, ok = <-r.Chunks()
	require.False(t, ok)
	require.NoError(t, r.Stop())
}

func TestRecordingDropsRawWithoutKeepRaw(t *testing.T) {
	r := newRecording(Device{ID: "mic-1"}, false)

	_, err := r.onPCM(make([]byte, frameBytes))
	require.NoError(t, err)
	require.Nil(t, r.RawPCM())
	require.Equal(t, int64(frameBytes), r.BytesCaptured())
	require.NoError(t, r.Stop())
}

func TestRecordingOnPCMReturnsEOFWhenStopped(t *testing.T) {
	r := newRecording(Device{ID: "mic-1"}, true)
	require.NoError(t, r.Stop())

	n, err := r.onPCM([]byte{1, 2, 3})
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, int64(0), r.BytesCaptured())
}

func TestRecordingDeviceName(t *testing.T) {
	r := newRecording(Device{ID: "mic-1", Description: "Mic"}, false)
	require.Equal(t, "mic-1", r.Device().ID)
	require.Equal(t, "Mic (mic-1)", r.Name())

	require.NoError(t, r.Stop())
	_, ok := <-r.Chunks()
	require.False(t, ok)
}

type sourcePort struct {
	name      string
	available uint32
}

func setSourcePorts(t *testing.T, reply *pulseproto.GetSourceInfoReply, ports []sourcePort) {
	t.Helper()

	sliceType := reflect.TypeOf(reply.Ports)
	sliceValue := reflect.MakeSlice(sliceType, len(ports), len(ports))

	for i, port := range ports {
		item := sliceValue.Index(i)
		item.FieldByName("Name").SetString(port.name)
		item.FieldByName("Available").SetUint(uint64(port.available))
	}

	replyValue := reflect.ValueOf(reply).Elem().FieldByName("Ports")
	replyValue.Set(sliceValue)
}
