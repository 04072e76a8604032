package tui

import "strings"

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// Fields splits Args on whitespace.
func (c Command) Fields() []string {
	return strings.Fields(c.Args)
}

// Head returns the first argument and the rest of Args, trimmed.
func (c Command) Head() (string, string) {
	head, rest, _ := strings.Cut(c.Args, " ")
	return head, strings.TrimSpace(rest)
}
