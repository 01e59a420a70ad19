// Package cli parses omirec command lines into a Parsed invocation.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// DefaultBinaryName is used in help output.
const DefaultBinaryName = "omirec"

type Command string

const (
	CommandTUI     Command = "tui"
	CommandServe   Command = "serve"
	CommandMCP     Command = "mcp"
	CommandStart   Command = "start"
	CommandStop    Command = "stop"
	CommandToggle  Command = "toggle"
	CommandClear   Command = "clear"
	CommandStatus  Command = "status"
	CommandLog     Command = "log"
	CommandCopy    Command = "copy"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandConfig  Command = "config"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// Parsed is one resolved invocation.
type Parsed struct {
	Command    Command
	ConfigPath string
	Verbose    bool
	ShowHelp   bool

	// Log and copy rendering.
	Timestamps     bool
	IncludeControl bool
}

// Parse resolves args (without the binary name) into a command.
// Every returned error is a usage error.
func Parse(args []string) (Parsed, error) {
	if args == nil {
		args = []string{}
	}

	var parsed Parsed
	root := newRootCommand(DefaultBinaryName, &parsed)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return Parsed{}, err
	}
	return parsed, nil
}

// HelpText renders usage for binaryName.
func HelpText(binaryName string) string {
	return newRootCommand(binaryName, &Parsed{}).UsageString()
}

func newRootCommand(binaryName string, parsed *Parsed) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   binaryName,
		Short: "Voice recording with live speech recognition",
		Long: `omirec records from the microphone, streams audio to a speech recognition
backend, and keeps a timestamped transcript log.

Run without a command to open the terminal UI. The first omirec process
owns the session; start, stop, toggle, clear, status, and log talk to it
over a unix socket.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(*cobra.Command, []string) error {
			if showVersion {
				parsed.Command = CommandVersion
				return nil
			}
			parsed.Command = CommandTUI
			return nil
		},
	}
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetHelpFunc(func(*cobra.Command, []string) {
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
	})

	root.PersistentFlags().StringVar(&parsed.ConfigPath, "config", "", "config file `PATH` (default: $XDG_CONFIG_HOME/omirec/config.yaml)")
	root.PersistentFlags().BoolVarP(&parsed.Verbose, "verbose", "v", false, "log at debug level")
	root.Flags().BoolVar(&showVersion, "version", false, "show version")

	root.AddCommand(
		simple(parsed, CommandTUI, "Open the terminal UI (default)"),
		simple(parsed, CommandServe, "Own the session without a UI until interrupted"),
		simple(parsed, CommandMCP, "Own the session and serve MCP tools over stdio"),
		simple(parsed, CommandStart, "Start recording in the running session"),
		simple(parsed, CommandStop, "Stop recording in the running session"),
		simple(parsed, CommandToggle, "Start recording, or stop when already recording"),
		simple(parsed, CommandClear, "Clear the running session's transcript log"),
		simple(parsed, CommandStatus, "Print the running session's state"),
		renderCommand(parsed, CommandLog, "Print the running session's transcript log", true),
		renderCommand(parsed, CommandCopy, "Copy the running session's transcript to the clipboard", false),
		simple(parsed, CommandDevices, "List audio input devices"),
		simple(parsed, CommandDoctor, "Run configuration and environment checks"),
		simple(parsed, CommandConfig, "Print the effective configuration"),
		simple(parsed, CommandVersion, "Print version information"),
	)
	return root
}

func simple(parsed *Parsed, command Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(command),
		Short: short,
		Args:  noArgs,
		RunE: func(*cobra.Command, []string) error {
			parsed.Command = command
			return nil
		},
	}
}

func renderCommand(parsed *Parsed, command Command, short string, timestampsByDefault bool) *cobra.Command {
	var timestamps, all bool
	cmd := simple(parsed, command, short)
	cmd.RunE = func(*cobra.Command, []string) error {
		parsed.Command = command
		parsed.Timestamps = timestamps
		parsed.IncludeControl = all
		return nil
	}
	cmd.Flags().BoolVar(&timestamps, "timestamps", timestampsByDefault, "prefix lines with [HH:MM:SS]")
	cmd.Flags().BoolVar(&all, "all", false, "include recording started/stopped markers")
	return cmd
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments after command %q: %s", cmd.Name(), strings.Join(args, " "))
	}
	return nil
}
