package typist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"keytype/internal/ipc"
	"keytype/internal/keyboard"
)

var jobKindByCommand = map[string]JobKind{
	ipc.CommandText:    JobText,
	ipc.CommandPress:   JobPress,
	ipc.CommandHold:    JobHold,
	ipc.CommandRelease: JobRelease,
}

// Execute implements ipc.Executor.
func (s *Service) Execute(req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandPing:
		return ipc.Response{ID: req.ID, OK: true, Result: "pong"}
	case ipc.CommandResolve:
		return s.resolve(req)
	}

	kind, ok := jobKindByCommand[req.Command]
	if !ok {
		return ipc.Failure(req, ipc.KindBadRequest, fmt.Errorf("unknown command %q", req.Command))
	}
	settle := s.defaultSettle
	if req.SettleMS != nil {
		ms := *req.SettleMS
		if ms < 0 || int64(ms) > MaxSettle.Milliseconds() {
			return ipc.Failure(req, ipc.KindBadRequest,
				fmt.Errorf("%w: settle_ms %d outside 0..%d", ErrInvalidJob, ms, MaxSettle.Milliseconds()))
		}
		settle = time.Duration(ms) * time.Millisecond
	}

	err := s.Submit(s.ctx, Job{Kind: kind, Text: req.Text, Keys: req.Keys, Settle: settle})
	if err != nil {
		return ipc.Failure(req, errorKind(err), err)
	}
	return ipc.Response{ID: req.ID, OK: true}
}

// resolve reports the keystrokes text would produce without typing it. Each
// character renders as its modifiers and code joined by '+', e.g. "16+65".
func (s *Service) resolve(req ipc.Request) ipc.Response {
	typeables, err := s.kb.ResolveText(normalizeText(req.Text))
	if err != nil {
		return ipc.Failure(req, errorKind(err), err)
	}
	parts := make([]string, 0, len(typeables))
	for _, t := range typeables {
		var b strings.Builder
		for _, m := range t.Modifiers() {
			b.WriteString(strconv.Itoa(m))
			b.WriteByte('+')
		}
		b.WriteString(strconv.Itoa(t.Code()))
		parts = append(parts, b.String())
	}
	return ipc.Response{ID: req.ID, OK: true, Result: strings.Join(parts, " ")}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, keyboard.ErrUnresolvedCharacter):
		return ipc.KindUnresolvedCharacter
	case errors.Is(err, keyboard.ErrInjectionFailure):
		return ipc.KindInjectionFailure
	case errors.Is(err, ErrInvalidJob):
		return ipc.KindBadRequest
	case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled):
		return ipc.KindUnavailable
	}
	return ipc.KindInternal
}
