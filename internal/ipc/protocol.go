// Package ipc carries typing requests from clients to the keytype daemon.
//
// Requests and responses are single JSON objects. On the named pipe each
// one is terminated by '\n'; on the websocket each one is a text frame.
package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"keytype/internal/userutil"

	"github.com/google/uuid"
)

var pipeNamePattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\keytype-[a-z0-9._-]{1,128}$`)

const (
	defaultPipePrefix = `\\.\pipe\keytype-`
	pipeNameEnv       = "KEYTYPE_PIPE"

	// MaxFrameBytes limits one request or response frame.
	MaxFrameBytes = 64 * 1024
)

// Commands understood by the daemon.
const (
	CommandText    = "text"
	CommandPress   = "press"
	CommandHold    = "hold"
	CommandRelease = "release"
	CommandResolve = "resolve"
	CommandPing    = "ping"
	// CommandStatus is answered by the daemon itself, not the typist.
	CommandStatus = "status"
)

// Error kinds reported in Response.Kind.
const (
	KindBadRequest          = "bad_request"
	KindUnresolvedCharacter = "unresolved_character"
	KindInjectionFailure    = "injection_failure"
	KindUnavailable         = "unavailable"
	KindInternal            = "internal"
)

// ErrUnsupportedPlatform is returned by the named-pipe transport outside Windows.
var ErrUnsupportedPlatform = errors.New("named pipe transport is only supported on Windows")

// ErrRequestTooLarge means the encoded request would not fit in one frame.
var ErrRequestTooLarge = fmt.Errorf("request exceeds %d bytes", MaxFrameBytes)

// Request is one typing request.
type Request struct {
	ID      string `json:"id,omitempty"`
	Command string `json:"command"`
	// Text is typed by CommandText and resolved by CommandResolve.
	Text string `json:"text,omitempty"`
	// Keys is a chord spec such as "ctrl+shift+s" for press/hold/release.
	Keys string `json:"keys,omitempty"`
	// SettleMS overrides the configured settle delay when set.
	SettleMS *int `json:"settle_ms,omitempty"`
}

// Response answers one Request.
type Response struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Result string `json:"result,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Executor handles a request and returns a response.
type Executor interface {
	Execute(req Request) Response
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(req Request) Response

// Execute calls f.
func (f ExecutorFunc) Execute(req Request) Response { return f(req) }

// Failure builds an error response for req.
func Failure(req Request, kind string, err error) Response {
	return Response{ID: req.ID, Kind: kind, Error: err.Error()}
}

// Handle decodes one raw request, executes it and returns the response.
// Requests without an ID are given a fresh UUID so that log lines and the
// response can be correlated.
func Handle(exec Executor, raw []byte) Response {
	req, err := DecodeRequest(raw)
	if err != nil {
		return Response{ID: req.ID, Kind: KindBadRequest, Error: fmt.Sprintf("invalid request: %v", err)}
	}
	slog.Debug("[ipc] request", "id", req.ID, "command", req.Command)
	return exec.Execute(req)
}

// DefaultPipeName returns the pipe path to use. If KEYTYPE_PIPE is set and
// passes pattern validation its value is used; otherwise a per-user default
// is constructed from the current username.
func DefaultPipeName() string {
	if v, ok := trustedPipeNameFromEnv(); ok {
		return v
	}

	return defaultPipePrefix + userutil.SanitizeUsername(userutil.CurrentUsername())
}

// ValidPipeName reports whether name is an acceptable keytype pipe path.
func ValidPipeName(name string) bool {
	return pipeNamePattern.MatchString(name)
}

func trustedPipeNameFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv(pipeNameEnv))
	if value == "" {
		return "", false
	}
	if !ValidPipeName(value) {
		slog.Warn("[ipc] "+pipeNameEnv+" rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

// EncodeRequest marshals req. It fails with ErrRequestTooLarge when the
// result would be rejected by readFrame.
func EncodeRequest(req Request) ([]byte, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if len(raw) > MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes encoded", ErrRequestTooLarge, len(raw))
	}
	return raw, nil
}

// DecodeRequest unmarshals raw and assigns an ID when none was sent.
func DecodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{ID: uuid.NewString()}, err
	}
	req.Command = strings.ToLower(strings.TrimSpace(req.Command))
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Command == "" {
		return req, errors.New("command is required")
	}
	return req, nil
}

// EncodeResponse marshals resp, falling back to a fixed internal error.
func EncodeResponse(resp Response) []byte {
	raw, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("[ipc] failed to encode response", "error", err, "id", resp.ID)
		return []byte(`{"id":"","ok":false,"kind":"internal","error":"internal encode error"}`)
	}
	return raw
}

// DecodeResponse unmarshals raw.
func DecodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// readFrame reads one '\n'-terminated frame of at most maxBytes. A final
// frame without delimiter is accepted at EOF.
func readFrame(reader *bufio.Reader, maxBytes int) ([]byte, error) {
	raw, err := reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("frame exceeds %d bytes", maxBytes)
	}
	if errors.Is(err, io.EOF) {
		if len(raw) == 0 {
			return nil, io.EOF
		}
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// writeFrame writes raw followed by the '\n' delimiter.
func writeFrame(w io.Writer, raw []byte) error {
	if _, err := w.Write(raw); err != nil {
		return err
	}
	_, err := w.Write([]byte{'\n'})
	return err
}
