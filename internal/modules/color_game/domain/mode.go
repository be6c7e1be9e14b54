// Package domain holds the color game's core types: modes, rounds, wagers,
// the color table and the collaborator interfaces the engine depends on.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Mode is one of the independently clocked game variants
type Mode string

const (
	ModeFast Mode = "FAST"
	ModeStd  Mode = "STD"
	ModePro  Mode = "PRO"
)

// Modes lists every mode in a stable order
var Modes = []Mode{ModeFast, ModeStd, ModePro}

// Duration returns the full length of one round of the mode
func (m Mode) Duration() time.Duration {
	switch m {
	case ModeFast:
		return 30 * time.Second
	case ModeStd:
		return 60 * time.Second
	case ModePro:
		return 180 * time.Second
	default:
		return 0
	}
}

// Seconds returns the round length in whole seconds (one tick per second)
func (m Mode) Seconds() int {
	return int(m.Duration() / time.Second)
}

// Letter is the single character used inside round ids
func (m Mode) Letter() string {
	switch m {
	case ModeFast:
		return "F"
	case ModeStd:
		return "S"
	case ModePro:
		return "P"
	default:
		return "?"
	}
}

// Valid reports whether m is one of the known modes
func (m Mode) Valid() bool {
	return m.Duration() > 0
}

func (m Mode) String() string {
	return string(m)
}

// ParseMode accepts a mode name case-insensitively
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}
