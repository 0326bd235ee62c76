package keyboard

import (
	"fmt"
	"strings"
	"time"
)

// Event is one key transition. Settle is the delay to wait after the batch
// this event terminates has been injected.
type Event struct {
	Code   int
	Down   bool
	Settle time.Duration
}

// Transition is a single key state change handed to an Injector.
type Transition struct {
	Code int
	Down bool
}

func (e Event) transition() Transition {
	return Transition{Code: e.Code, Down: e.Down}
}

func (e Event) String() string {
	return fmt.Sprintf("(%d, %t, %s)", e.Code, e.Down, e.Settle)
}

func formatEvents(events []Event) string {
	parts := make([]string, len(events))
	for i, ev := range events {
		parts[i] = ev.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
