// Package cli parses resq command-line arguments.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandCall    Command = "call"
	CommandAsk     Command = "ask"
	CommandCapture Command = "capture"
	CommandEnd     Command = "end"
	CommandAck     Command = "ack"
	CommandStatus  Command = "status"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandCall:    {},
	CommandAsk:     {},
	CommandCapture: {},
	CommandEnd:     {},
	CommandAck:     {},
	CommandStatus:  {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	// Text is the fixed transcript for ask.
	Text string
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp

			if cmd == CommandAsk {
				text := strings.TrimSpace(strings.Join(args[i+1:], " "))
				if text == "" {
					return Parsed{}, errors.New("ask requires text")
				}
				parsed.Text = text
				return parsed, nil
			}
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Commands:
  call        Own an interactive call (Enter = talk, a = acknowledge, q = end)
  ask TEXT    Run one cycle with TEXT as the transcript
  capture     Begin a capture in the active call
  end         End the active call and reset its state
  ack         Acknowledge a held error in the active call
  status      Print the active call phase
  devices     List available input devices
  doctor      Run configuration and environment checks
  version     Print version information
  help        Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/resq/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
