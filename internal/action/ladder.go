package action

import (
	"errors"
	"fmt"

	"github.com/whisper/automod/internal/moderation"
)

// MaxDegradeSteps bounds how far one execution can fall down the ladder.
const MaxDegradeSteps = 2

var (
	ErrNotModeratable = errors.New("action: member cannot be timed out")
	ErrNotKickable    = errors.New("action: member cannot be removed")
	ErrUnknownAction  = errors.New("action: unknown action")
	ErrNoSession      = errors.New("action: no session")
)

// Degrade returns the next weaker action on the KICK -> MUTE -> DELETE
// ladder. Every other action is terminal.
func Degrade(a moderation.Action) (moderation.Action, bool) {
	switch a {
	case moderation.ActionKick:
		return moderation.ActionMute, true
	case moderation.ActionMute:
		return moderation.ActionDelete, true
	default:
		return "", false
	}
}

// degradeError is returned by a privileged handler that could not complete
// and wants the executor to move one step down the ladder.
type degradeError struct {
	from  moderation.Action
	cause error
}

func (e *degradeError) Error() string {
	return fmt.Sprintf("action: %s degraded: %v", e.from, e.cause)
}

func (e *degradeError) Unwrap() error {
	return e.cause
}

func degrade(from moderation.Action, cause error) error {
	return &degradeError{from: from, cause: cause}
}
