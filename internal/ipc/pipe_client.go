package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	defaultPipeDialTimeout  = 3 * time.Second
	defaultPipeWriteTimeout = 10 * time.Second
)

// Send sends one request to the daemon and waits for its response.
func Send(pipeName string, req Request) (Response, error) {
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}

	conn, err := dialPipe(pipeName, defaultPipeDialTimeout)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	return roundTrip(conn, req)
}

func roundTrip(conn net.Conn, req Request) (Response, error) {
	if err := conn.SetWriteDeadline(time.Now().Add(defaultPipeWriteTimeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}

	raw, err := EncodeRequest(req)
	if err != nil {
		return Response{}, err
	}
	if err := writeFrame(conn, raw); err != nil {
		return Response{}, err
	}

	// Long text jobs are typed before the response is written, so the
	// read waits for the daemon without a deadline.
	respRaw, err := readFrame(bufio.NewReaderSize(conn, MaxFrameBytes+1), MaxFrameBytes)
	if err != nil {
		return Response{}, err
	}

	resp, err := DecodeResponse(respRaw)
	if err != nil {
		return Response{}, fmt.Errorf("invalid response: %w", err)
	}
	return resp, nil
}

// IsConnectionError reports whether err means the daemon is absent or
// unreachable.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnsupportedPlatform) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "open"
	}
	return false
}
