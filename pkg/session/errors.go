package session

import (
	"github.com/pkg/errors"

	"github.com/go-go-golems/agentcall/pkg/callerr"
)

var (
	ErrInvalidTransition = errors.Wrap(callerr.ErrFailedPrecondition, "invalid session transition")
	ErrChatDisabled      = errors.Wrap(callerr.ErrFailedPrecondition, "chat input is not available")
	ErrStaleAttempt      = errors.New("event belongs to a previous attempt")
)

func invalidTransition(op string, from Phase) error {
	return errors.Wrapf(ErrInvalidTransition, "%s from phase %s", op, from)
}
