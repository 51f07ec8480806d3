package session

import "github.com/pkg/errors"

// Phase is the lifecycle phase of the call session.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseActive     Phase = "active"
	PhaseTimedOut   Phase = "timedOut"
	PhaseEnded      Phase = "ended"
)

func (p Phase) String() string { return string(p) }

// IsTerminal reports whether the phase ends the current attempt.
func (p Phase) IsTerminal() bool {
	return p == PhaseTimedOut || p == PhaseEnded
}

// IsLive reports whether an attempt is in progress.
func (p Phase) IsLive() bool {
	return p == PhaseConnecting || p == PhaseActive
}

func ParsePhase(s string) (Phase, error) {
	switch p := Phase(s); p {
	case PhaseIdle, PhaseConnecting, PhaseActive, PhaseTimedOut, PhaseEnded:
		return p, nil
	}
	return "", errors.Errorf("unknown session phase %q", s)
}
