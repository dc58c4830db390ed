// Package sim holds the authoritative lane-battle state and the default
// stepper that advances it. The network layer only serializes what lives here.
package sim

import (
	"fmt"
	"strings"
)

type Side uint8

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideRight {
		return "right"
	}
	return "left"
}

func (s Side) Opponent() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// Dir is +1 for units walking right and -1 for units walking left.
func (s Side) Dir() float64 {
	if s == SideLeft {
		return 1
	}
	return -1
}

func ParseSide(str string) (Side, error) {
	switch strings.ToLower(str) {
	case "left", "l", "host":
		return SideLeft, nil
	case "right", "r", "client":
		return SideRight, nil
	}
	return SideLeft, fmt.Errorf("unknown side %q", str)
}

type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeLeftWins
	OutcomeRightWins
	OutcomeDraw
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLeftWins:
		return "Left Team Wins!"
	case OutcomeRightWins:
		return "Right Team Wins!"
	case OutcomeDraw:
		return "Draw!"
	}
	return "none"
}

func (o Outcome) Over() bool {
	return o != OutcomeNone
}
