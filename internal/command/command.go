// Package command parses operator console input into the server command vocabulary.
//
// A console line is a command when, after trimming, it begins with Prefix.
// Parse performs the whole classification in one step and yields a tagged Command.
package command

import (
	"strconv"
	"strings"
)

// Prefix marks a console line as a command.
const Prefix = "#"

// Kind identifies a console command.
type Kind int

const (
	Unknown Kind = iota
	Start
	Stop
	Close
	GetPort
	SetPort
	Quit
)

var names = map[string]Kind{
	"start":   Start,
	"stop":    Stop,
	"close":   Close,
	"getport": GetPort,
	"setport": SetPort,
	"quit":    Quit,
}

func (k Kind) String() string {
	for name, kind := range names {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// Command is one parsed console command.
type Command struct {
	Kind Kind
	Name string  // Command token without the prefix, as typed
	Port PortArg // Only meaningful for SetPort
}

// PortStatus tells whether a #setport argument was usable.
type PortStatus int

const (
	PortOK PortStatus = iota
	PortMissing
	PortMalformed
)

// PortArg is the result of reading the #setport argument.
type PortArg struct {
	Status PortStatus
	Value  int // Set only when Status is PortOK
	Raw    string
}

// Sentinel returns the legacy numeric encoding: -1 missing, -2 malformed, else the value.
func (p PortArg) Sentinel() int {
	switch p.Status {
	case PortMissing:
		return -1
	case PortMalformed:
		return -2
	}
	return p.Value
}

// IsCommand reports whether the trimmed line begins with the command prefix.
func IsCommand(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), Prefix)
}

// Strip returns the trimmed line without its leading prefix.
// Only call it after IsCommand returned true; otherwise it returns "".
func Strip(line string) string {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, Prefix) {
		return ""
	}
	return strings.TrimPrefix(line, Prefix)
}

// SetPortParameter reads the port from the whitespace-split tokens of a #setport line.
// tokens[0] is the command token itself.
func SetPortParameter(tokens []string) PortArg {
	if len(tokens) < 2 {
		return PortArg{Status: PortMissing}
	}
	value, err := strconv.Atoi(tokens[1])
	if err != nil {
		return PortArg{Status: PortMalformed, Raw: tokens[1]}
	}
	return PortArg{Status: PortOK, Value: value, Raw: tokens[1]}
}

// Parse classifies a console line. ok is false when the line is not a command.
func Parse(line string) (cmd Command, ok bool) {
	if !IsCommand(line) {
		return Command{}, false
	}

	tokens := strings.Fields(Strip(line))
	if len(tokens) == 0 {
		return Command{Kind: Unknown}, true
	}

	cmd = Command{Kind: names[tokens[0]], Name: tokens[0]}
	if cmd.Kind == SetPort {
		cmd.Port = SetPortParameter(tokens)
	}
	return cmd, true
}
