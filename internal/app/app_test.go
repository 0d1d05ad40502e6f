package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/resq/internal/ipc"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, nil, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, nil, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "resq")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, nil, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteInvalidConfigFails(t *testing.T) {
	paths := setupRunnerEnv(t, `{"assistant":{"bogus":1}}`)

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "unknown field")
}

func TestRunnerStatusIdleWhenSocketUnavailable(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerEndReturnsNoActiveCall(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "end"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "no active resq call")
}

func TestRunnerForwardsCommandsToActiveCall(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	commands := make(chan string, 8)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "resq.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		commands <- req.Command
		switch req.Command {
		case ipc.CommandStatus:
			return ipc.Response{OK: true, State: "listening"}
		case ipc.CommandCapture, ipc.CommandEnd, ipc.CommandAck:
			return ipc.Response{OK: true, Message: req.Command + " handled"}
		default:
			return ipc.Response{OK: false, Error: "unsupported"}
		}
	})
	defer shutdown()

	runner := Runner{}
	for _, cmd := range []string{"status", "capture", "end", "ack"} {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		runner.Stdout = stdout
		runner.Stderr = stderr

		exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, cmd})
		require.Equal(t, 0, exitCode, cmd)
		require.Empty(t, stderr.String(), cmd)
		if cmd == "status" {
			require.Equal(t, "listening\n", stdout.String())
		} else {
			require.Equal(t, cmd+" handled\n", stdout.String())
		}
	}

	got := []string{<-commands, <-commands, <-commands, <-commands}
	require.ElementsMatch(t, []string{"status", "capture", "end", "ack"}, got)
}

func TestRunnerStatusPrintsVisibleSnapshot(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "resq.sock"), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{
			OK:    true,
			State: "responding",
			Snapshot: json.RawMessage(`{
				"phase": "responding",
				"session_id": "s-1",
				"transcript": "fire at Main Street",
				"response_text": "Leave the building.",
				"response_visible": true,
				"locations": ["Main Street"],
				"locations_visible": false,
				"is_speaking": true,
				"summary_visible": false,
				"version": 4
			}`),
		}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Empty(t, stderr.String())

	out := stdout.String()
	require.True(t, strings.HasPrefix(out, "responding\n"))
	require.Contains(t, out, "session:   s-1")
	require.Contains(t, out, "you:       fire at Main Street")
	require.Contains(t, out, "response:  Leave the building.")
	require.NotContains(t, out, "locations:")
}

func TestRunnerForwardSurfacesOwnerError(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "resq.sock"), func(_ context.Context, _ ipc.Request) ipc.Response {
		return ipc.Response{OK: false, State: "processing", Error: "session busy (phase processing)"}
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "capture"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "busy")
}

func TestTryForwardDoesNotRemoveSocketPathOnForwardFailure(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "resq.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	_, handled, err := tryForward(context.Background(), socketPath, "status")
	require.False(t, handled)
	require.NoError(t, err)

	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
}

func TestTryForwardTreatsReadFailuresAsHandledErrors(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "resq.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, acceptErr := listener.Accept()
		if acceptErr == nil {
			_ = conn.Close()
		}
	}()

	_, handled, err := tryForward(context.Background(), socketPath, "status")
	require.True(t, handled)
	require.Error(t, err)
	require.Contains(t, err.Error(), "forward command \"status\":")

	<-done
	require.NoError(t, listener.Close())
}

func TestTryForwardWithoutSocket(t *testing.T) {
	_, handled, err := tryForward(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), ipc.CommandEnd)
	require.False(t, handled)
	require.NoError(t, err)
}

func TestRunnerDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "config: loaded")
	require.Contains(t, stdout.String(), "[FAIL] stt.api_key")
	require.Contains(t, stdout.String(), "capture.language")
}

func TestRunnerDevicesCommandDispatches(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "devices"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestRunnerAskRendersReply(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/process_text", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "fire at Main Street near the school", body["text"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response_text":"Leave the building and stay low."}`))
	}))
	t.Cleanup(backend.Close)

	paths := setupRunnerEnv(t, fmt.Sprintf(`{"assistant":{"endpoint":%q},"playback":{"enable":false}}`, backend.URL))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "ask", "fire at Main Street near the school"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "Leave the building and stay low.")
	require.Contains(t, stdout.String(), "#fire")
}

func TestRunnerAskNetworkErrorExitsOne(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	endpoint := backend.URL
	backend.Close()

	paths := setupRunnerEnv(t, fmt.Sprintf(`{"assistant":{"endpoint":%q},"playback":{"enable":false}}`, endpoint))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "ask", "help"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "assistant request failed")
	require.Contains(t, stdout.String(), "Could not reach the assistant.")
}

func TestRunnerCallSurfacesUnsupportedCaptureAndEnds(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	stdinReader, stdinWriter := io.Pipe()
	stdout := &syncBuffer{}
	runner := Runner{Stdin: stdinReader, Stdout: stdout, Stderr: &syncBuffer{}}

	exitCh := make(chan int, 1)
	go func() {
		exitCh <- runner.Execute(context.Background(), []string{"--config", paths.configPath, "call"})
	}()

	socketPath := filepath.Join(paths.runtimeDir, "resq.sock")
	waitForOwner(t, socketPath)

	_, err := stdinWriter.Write([]byte("\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "Voice capture is not supported on this device.")
	}, 5*time.Second, 20*time.Millisecond)

	_, err = stdinWriter.Write([]byte("q\n"))
	require.NoError(t, err)

	select {
	case code := <-exitCh:
		require.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("call did not exit")
	}
	require.Contains(t, stdout.String(), "call ended")

	_, statErr := os.Stat(socketPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunnerCallEndsOverIPC(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	stdinReader, _ := io.Pipe()
	runner := Runner{Stdin: stdinReader, Stdout: &syncBuffer{}, Stderr: &syncBuffer{}}

	exitCh := make(chan int, 1)
	go func() {
		exitCh <- runner.Execute(context.Background(), []string{"--config", paths.configPath, "call"})
	}()

	socketPath := filepath.Join(paths.runtimeDir, "resq.sock")
	waitForOwner(t, socketPath)

	second := Runner{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	require.Equal(t, 1, second.Execute(context.Background(), []string{"--config", paths.configPath, "call"}))
	require.Contains(t, second.Stderr.(*bytes.Buffer).String(), "already active")

	resp, handled, err := tryForward(context.Background(), socketPath, ipc.CommandEnd)
	require.True(t, handled)
	require.NoError(t, err)
	require.Equal(t, "idle", resp.State)

	select {
	case code := <-exitCh:
		require.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("call did not exit after IPC end")
	}
}

func TestRunnerCallExitsOnContextCancel(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	stdinReader, _ := io.Pipe()
	runner := Runner{Stdin: stdinReader, Stdout: &syncBuffer{}, Stderr: &syncBuffer{}}

	ctx, cancel := context.WithCancel(context.Background())
	exitCh := make(chan int, 1)
	go func() {
		exitCh <- runner.Execute(ctx, []string{"--config", paths.configPath, "call"})
	}()

	waitForOwner(t, filepath.Join(paths.runtimeDir, "resq.sock"))
	cancel()

	select {
	case code := <-exitCh:
		require.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("call did not exit after cancel")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type runnerPaths struct {
	configPath string
	runtimeDir string
}

func setupRunnerEnv(t *testing.T, content string) runnerPaths {
	t.Helper()

	t.Setenv("XDG_STATE_HOME", t.TempDir())
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("RESQ_ASSISTANT_ENDPOINT", "")
	t.Setenv("RESQ_LIVEVIEW_LISTEN", "")

	configPath := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(configPath, []byte(content+"\n"), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir}
}

func waitForOwner(t *testing.T, socketPath string) {
	t.Helper()
	require.Eventually(t, func() bool {
		alive, _ := ipc.Probe(context.Background(), socketPath, 100*time.Millisecond)
		return alive
	}, 5*time.Second, 20*time.Millisecond)
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}
