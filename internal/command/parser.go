// Package command parses the shop-floor host's line protocol and routes
// parsed commands to the channel that owns their parameter type.
package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// commandPattern matches a single sub-command: a 3-letter parameter type, an
// alphanumeric parameter id, and a value that is either the read sentinel
// "?" or a signed alphanumeric literal. No whitespace is permitted inside
// any of the three tokens.
var commandPattern = regexp.MustCompile(`^([A-Za-z]{3})([A-Za-z0-9_]+)=(\?|-?[0-9A-Za-z_.]+)$`)

// recoverPattern is used only to salvage a best-effort PKey out of a
// sub-command that failed the strict grammar, so a NAK reply can still name
// the parameter the caller asked about.
var recoverPattern = regexp.MustCompile(`^\s*([A-Za-z]{3})([A-Za-z0-9_]+)\s*=`)

// pidDigitWidth gives the zero-padded width PIDs are normalized to for a
// given parameter type, when the PID is purely numeric. Types not listed
// here are left as received.
var pidDigitWidth = map[string]int{
	"TTP": 5,
	"TTE": 4,
	"TTW": 4,
	"MAP": 4,
	"MAS": 4,
	"MAE": 4,
	"MAW": 4,
	"LSE": 4,
	"LSW": 4,
}

// Command is a single successfully parsed sub-command.
type Command struct {
	PType   string
	PID     string
	Value   string
	PKey    string // PType + normalized PID
	IsRead  bool
	Channel string
}

// ParseError describes a sub-command that failed to parse. PKey is filled in
// on a best-effort basis so the caller can still emit a NAK naming the
// parameter, and is empty when nothing could be recovered.
type ParseError struct {
	Raw  string
	PKey string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", e.Raw, e.Err)
}

var errMalformed = fmt.Errorf("malformed command")

// Split breaks a received line into its sub-commands. Commands are
// separated by commas, semicolons, or newlines; surrounding whitespace
// around each piece is trimmed, but whitespace inside a token is a parse
// error for that sub-command, not a split error.
func Split(line string) []string {
	pieces := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Parse parses a full received line into zero or more Commands, returning a
// ParseError for each sub-command that did not conform to the grammar. A
// sub-command's failure never prevents the others in the same line from
// parsing.
func Parse(line string) ([]Command, []ParseError) {
	var cmds []Command
	var errs []ParseError

	for _, raw := range Split(line) {
		cmd, err := parseOne(raw)
		if err != nil {
			errs = append(errs, ParseError{Raw: raw, PKey: recoverPKey(raw), Err: err})
			continue
		}
		cmds = append(cmds, *cmd)
	}

	return cmds, errs
}

func parseOne(raw string) (*Command, error) {
	m := commandPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, errMalformed
	}

	ptype := strings.ToUpper(m[1])
	pid := normalizePID(ptype, m[2])
	value := m[3]

	return &Command{
		PType:   ptype,
		PID:     pid,
		Value:   value,
		PKey:    ptype + pid,
		IsRead:  value == "?",
		Channel: ChannelFor(ptype),
	}, nil
}

// normalizePID zero-pads a purely numeric PID to the width registered for
// ptype in pidDigitWidth. Non-numeric PIDs, and types with no registered
// width, are returned unchanged.
func normalizePID(ptype, pid string) string {
	width, ok := pidDigitWidth[ptype]
	if !ok {
		return pid
	}
	if _, err := strconv.Atoi(pid); err != nil {
		return pid
	}
	if len(pid) >= width {
		return pid
	}
	return strings.Repeat("0", width-len(pid)) + pid
}

func recoverPKey(raw string) string {
	m := recoverPattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	ptype := strings.ToUpper(m[1])
	return ptype + normalizePID(ptype, m[2])
}
