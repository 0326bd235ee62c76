package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	defaultPipeConnTimeout              = 30 * time.Second
	defaultPipeMaxConcurrentConnections = 16
	connSlotAcquireTimeout              = 5 * time.Second
)

// PipeServer accepts typing requests over a named pipe. Each connection
// carries exactly one request and one response.
type PipeServer struct {
	pipeName string
	exec     Executor
	listen   func(name string) (net.Listener, error)

	// ioTimeout bounds the request read and the response write. The
	// job itself runs without a deadline.
	ioTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listener  net.Listener
	started   bool
	wg        sync.WaitGroup
	connSlots chan struct{}
}

// NewPipeServer constructs a PipeServer. An empty pipeName selects
// DefaultPipeName.
func NewPipeServer(pipeName string, exec Executor) *PipeServer {
	ctx, cancel := context.WithCancel(context.Background())
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}
	return &PipeServer{
		pipeName:  pipeName,
		exec:      exec,
		listen:    listenPipe,
		ioTimeout: defaultPipeConnTimeout,
		ctx:       ctx,
		cancel:    cancel,
		connSlots: make(chan struct{}, defaultPipeMaxConcurrentConnections),
	}
}

// PipeName returns the listen pipe name.
func (s *PipeServer) PipeName() string {
	return s.pipeName
}

// Start begins listening.
func (s *PipeServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("pipe server already started")
	}
	if s.exec == nil {
		return errors.New("pipe server requires executor")
	}

	listener, err := s.listen(s.pipeName)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.pipeName, err)
	}

	s.listener = listener
	s.started = true
	s.wg.Go(s.acceptLoop)
	slog.Info("[ipc] pipe server listening", "pipe", s.pipeName)
	return nil
}

// Stop closes the listener and waits for in-flight connections.
func (s *PipeServer) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	if listener != nil {
		if err := listener.Close(); err != nil {
			slog.Warn("[ipc] failed to close pipe listener during shutdown", "error", err)
		}
	}
	s.wg.Wait()
	return nil
}

func (s *PipeServer) acceptLoop() {
	consecutiveErrors := 0
	for {
		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()
		if listener == nil {
			return
		}

		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			consecutiveErrors++
			if consecutiveErrors > 10 {
				slog.Warn("[ipc] accept loop: repeated failures", "error", err, "count", consecutiveErrors)
				time.Sleep(500 * time.Millisecond)
			} else {
				slog.Debug("[ipc] accept error", "error", err)
			}
			continue
		}
		consecutiveErrors = 0

		if !s.acquireConnectionSlot() {
			writeResponse(conn, Response{Kind: KindUnavailable, Error: "server busy, try again later"})
			if closeErr := conn.Close(); closeErr != nil {
				slog.Debug("[ipc] failed to close rejected connection", "error", closeErr)
			}
			continue
		}

		s.wg.Go(func() {
			defer s.releaseConnectionSlot()
			s.handleConnection(conn)
		})
	}
}

func (s *PipeServer) handleConnection(conn net.Conn) {
	defer conn.Close()
	if err := conn.SetReadDeadline(time.Now().Add(s.ioTimeout)); err != nil {
		slog.Warn("[ipc] failed to set read deadline", "error", err)
		return
	}

	reader := bufio.NewReaderSize(conn, MaxFrameBytes+1)
	raw, err := readFrame(reader, MaxFrameBytes)
	if errors.Is(err, io.EOF) {
		slog.Debug("[ipc] client disconnected without sending data")
		return
	}
	var resp Response
	if err != nil {
		resp = Response{Kind: KindBadRequest, Error: fmt.Sprintf("invalid request: %v", err)}
	} else {
		resp = Handle(s.exec, raw)
	}

	// The write deadline starts once the job is done.
	if err := conn.SetWriteDeadline(time.Now().Add(s.ioTimeout)); err != nil {
		slog.Warn("[ipc] failed to set write deadline", "error", err, "id", resp.ID)
		return
	}
	writeResponse(conn, resp)
}

func writeResponse(conn net.Conn, resp Response) {
	if err := writeFrame(conn, EncodeResponse(resp)); err != nil {
		slog.Debug("[ipc] failed to write response", "error", err, "id", resp.ID)
	}
}

func (s *PipeServer) acquireConnectionSlot() bool {
	timer := time.NewTimer(connSlotAcquireTimeout)
	defer timer.Stop()
	select {
	case s.connSlots <- struct{}{}:
		return true
	case <-timer.C:
		slog.Warn("[ipc] connection slots exhausted, rejecting client")
		return false
	case <-s.ctx.Done():
		return false
	}
}

func (s *PipeServer) releaseConnectionSlot() {
	select {
	case <-s.connSlots:
	default:
		slog.Warn("[ipc] releaseConnectionSlot: no slot to release")
	}
}
