// Package app dispatches resq commands and wires the call runtime.
package app

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rbright/resq/internal/audio"
	"github.com/rbright/resq/internal/cli"
	"github.com/rbright/resq/internal/config"
	"github.com/rbright/resq/internal/doctor"
	"github.com/rbright/resq/internal/ipc"
	"github.com/rbright/resq/internal/logging"
	"github.com/rbright/resq/internal/session"
	"github.com/rbright/resq/internal/version"
)

type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	r := Runner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("resq"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("resq"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	level, _ := config.ParseLevel(cfgLoaded.Config.Log.Level)
	logRuntime, err := logging.New(level)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandCapture:
		return r.forwardOrFail(ctx, ipc.CommandCapture)
	case cli.CommandEnd:
		return r.forwardOrFail(ctx, ipc.CommandEnd)
	case cli.CommandAck:
		return r.forwardOrFail(ctx, ipc.CommandAck)
	case cli.CommandAsk:
		return r.commandAsk(ctx, cfgLoaded.Config, logger, parsed.Text)
	case cli.CommandCall:
		return r.commandCall(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	tw := tabwriter.NewWriter(r.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tDESCRIPTION\tSTATE\tAVAILABLE\tMUTED")
	for _, device := range devices {
		mark := ""
		if device.Default {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			mark, device.ID, device.Description, device.State,
			yesNo(device.Available), yesNo(device.Muted),
		)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// commandStatus prints the owner's phase, followed by the visible parts of
// its session when the owner sends a snapshot. Without an owner it prints idle.
func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	phase := cmp.Or(resp.State, "idle")
	fmt.Fprintln(r.Stdout, phase)
	if len(resp.Snapshot) == 0 {
		return 0
	}

	var snap session.Snapshot
	if err := json.Unmarshal(resp.Snapshot, &snap); err != nil {
		fmt.Fprintf(r.Stderr, "error: decode status snapshot: %v\n", err)
		return 1
	}
	printStatusDetail(r.Stdout, snap)
	return 0
}

func printStatusDetail(w io.Writer, snap session.Snapshot) {
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "  %-10s %s\n", label+":", value)
		}
	}
	field("session", snap.SessionID)
	field("you", snap.Transcript)
	if snap.ResponseVisible {
		field("response", snap.ResponseText)
	}
	if snap.LocationsVisible {
		field("locations", strings.Join(snap.Locations, "; "))
	}
	if snap.SummaryVisible {
		field("summary", snap.Summary)
		field("keywords", strings.Join(snap.Keywords, ", "))
	}
	if snap.Error != nil {
		field("error", snap.Error.Message)
	}
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active resq call\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if errors.Is(err, ipc.ErrNoOwner) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}
