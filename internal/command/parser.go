// Package command implements the line-oriented tokenizer and dispatcher for
// the script grammar of SPEC_FULL.md §6. It is a thin collaborator: all
// policy decisions live in internal/txn.
package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Command is one parsed script line: its name and its raw, trimmed argument
// tokens (still carrying their T/x/s prefix where one is required).
type Command struct {
	Name string
	Args []string
}

var lineRE = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// Parse tokenizes one script line. It returns an error for a line that
// doesn't match the `name(args)` grammar at all; callers treat that as a
// malformed line per §7's malformed_command outcome.
func Parse(line string) (*Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	m := lineRE.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("command does not match name(args) grammar: %q", line)
	}

	name := m[1]
	rawArgs := strings.TrimSpace(m[2])
	if rawArgs == "" {
		return &Command{Name: name}, nil
	}

	parts := strings.Split(rawArgs, ",")
	args := make([]string, len(parts))
	for i, p := range parts {
		args[i] = strings.TrimSpace(p)
	}
	return &Command{Name: name, Args: args}, nil
}

// parseID strips a single required letter prefix (T, x, or s) and parses the
// remainder as a non-negative integer.
func parseID(token, prefix string) (int, error) {
	if !strings.HasPrefix(token, prefix) {
		return 0, fmt.Errorf("expected %s<id>, got %q", prefix, token)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(token, prefix))
	if err != nil {
		return 0, fmt.Errorf("invalid id in %q: %w", token, err)
	}
	return n, nil
}

// parseInt parses a plain signed integer argument, used for write values and
// bare site ids.
func parseInt(token string) (int, error) {
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", token, err)
	}
	return n, nil
}
