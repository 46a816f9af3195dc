package client

import "strings"

// MaxInput is the longest line, in runes, the input buffer accepts.
const MaxInput = 128

// Input is the line being typed.
type Input struct {
	runes []rune
}

// Insert appends r. It reports false when the line is full.
func (in *Input) Insert(r rune) bool {
	if len(in.runes) >= MaxInput {
		return false
	}
	in.runes = append(in.runes, r)
	return true
}

func (in *Input) Backspace() {
	if len(in.runes) > 0 {
		in.runes = in.runes[:len(in.runes)-1]
	}
}

// Submit returns the trimmed line and clears the buffer. Blank lines are
// kept in the buffer and report false.
func (in *Input) Submit() (string, bool) {
	line := strings.TrimSpace(string(in.runes))
	if line == "" {
		return "", false
	}
	in.runes = in.runes[:0]
	return line, true
}

func (in *Input) String() string { return string(in.runes) }
