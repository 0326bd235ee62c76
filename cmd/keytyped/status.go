package main

import (
	"fmt"
	"strings"
	"time"

	"keytype/internal/ipc"
	"keytype/internal/logging"
)

// statusExecutor answers status requests and passes everything else on.
type statusExecutor struct {
	next    ipc.Executor
	recent  *logging.Recent
	started time.Time
	layout  string
	now     func() time.Time
}

func (s *statusExecutor) Execute(req ipc.Request) ipc.Response {
	if req.Command != ipc.CommandStatus {
		return s.next.Execute(req)
	}
	return ipc.Response{ID: req.ID, OK: true, Result: s.report()}
}

// report renders one summary line followed by recent warnings, oldest first.
func (s *statusExecutor) report() string {
	var b strings.Builder
	uptime := s.now().Sub(s.started).Truncate(time.Second)
	fmt.Fprintf(&b, "layout=%s uptime=%s", s.layout, uptime)
	if s.recent == nil {
		return b.String()
	}
	for _, e := range s.recent.Entries() {
		fmt.Fprintf(&b, "\n%s %s %s", e.Time.UTC().Format(time.RFC3339), e.Level, e.Message)
	}
	return b.String()
}
