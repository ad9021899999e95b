package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrParse is wrapped by every Parse failure.
var ErrParse = errors.New("could not parse command")

// Verbs understood by the dispatcher.
const (
	VerbInsert = "insert"
	VerbGet    = "get"
	VerbUpdate = "update"
	VerbDelete = "delete"
	VerbExit   = "exit"
	VerbHelp   = "help"
	VerbStats  = "stats"
)

type verbSpec struct {
	args  int
	usage string
}

var verbs = map[string]verbSpec{
	VerbInsert: {2, "insert <key> <value>"},
	VerbGet:    {1, "get <key>"},
	VerbUpdate: {2, "update <key> <value>"},
	VerbDelete: {1, "delete <key>"},
	VerbExit:   {0, "exit"},
	VerbHelp:   {0, "help"},
	VerbStats:  {0, "stats"},
}

// usageOrder fixes the help output order.
var usageOrder = []string{VerbInsert, VerbGet, VerbUpdate, VerbDelete, VerbStats, VerbHelp, VerbExit}

// Command is one tokenized input line.
type Command struct {
	Verb string
	Args []string
}

// Empty reports whether the line held no tokens.
func (c Command) Empty() bool {
	return c.Verb == ""
}

// Parse splits line on whitespace and checks the argument count of the verb.
// Verbs are case-insensitive; keys and values are kept verbatim.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, nil
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	spec, ok := verbs[verb]
	if !ok {
		return Command{}, fmt.Errorf("%w: unknown command %q (try \"help\")", ErrParse, fields[0])
	}
	if len(args) != spec.args {
		return Command{}, fmt.Errorf("%w: usage: %s", ErrParse, spec.usage)
	}
	return Command{Verb: verb, Args: args}, nil
}

func usage() string {
	lines := make([]string, 0, len(usageOrder))
	for _, verb := range usageOrder {
		lines = append(lines, verbs[verb].usage)
	}
	return "commands: " + strings.Join(lines, " | ")
}
