package capture

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidState is returned when an operation is not valid for the current session state.
	ErrInvalidState = errors.New("invalid session state")
	// ErrNotOpen is returned by SetFilter and Send when the session is not open.
	ErrNotOpen = errors.New("session is not open")
	// ErrNoPacket is returned by a handle read when no packet arrived within the read timeout.
	ErrNoPacket = errors.New("no packet available")
	// ErrPollUnsupported is returned when the poll strategy is requested for a handle
	// without a pollable descriptor or on a platform without epoll.
	ErrPollUnsupported = errors.New("poll notification is not supported for this handle")
	// ErrStatsUnsupported is returned by Session.Stats when the handle keeps no statistics.
	ErrStatsUnsupported = errors.New("handle does not provide statistics")
)

// OpenError is returned when the capture handle can not be created.
// Error returns the capture facility's message verbatim.
type OpenError struct {
	Interface string
	Err       error
}

func (e *OpenError) Error() string { return e.Err.Error() }

func (e *OpenError) Unwrap() error { return e.Err }

// FilterStage tells at which point a filter change failed.
type FilterStage uint8

const (
	// StageCompile failures are recoverable, the previous program stays installed.
	StageCompile FilterStage = iota + 1
	// StageInstall failures tear the session down.
	StageInstall
)

func (s FilterStage) String() string {
	switch s {
	case StageCompile:
		return "compile"
	case StageInstall:
		return "install"
	}
	return "unknown"
}

// FilterError is returned when a filter expression can not be compiled or installed.
type FilterError struct {
	Stage FilterStage
	Expr  string
	Err   error
}

func (e *FilterError) Error() string { return e.Err.Error() }

func (e *FilterError) Unwrap() error { return e.Err }

// Fatal reports whether the failure closed the session.
func (e *FilterError) Fatal() bool { return e.Stage == StageInstall }

// SendError is returned when the handle rejects an outgoing frame.
// The session stays open.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return e.Err.Error() }

func (e *SendError) Unwrap() error { return e.Err }

// ReadError reports a failed read inside the dispatch loop. It is handed to the
// session's ErrorHandler on the consumer goroutine.
type ReadError struct {
	Interface string
	Err       error
	// Fatal is set when the handle is dead; the session closes itself.
	Fatal bool
}

func (e *ReadError) Error() string { return e.Err.Error() }

func (e *ReadError) Unwrap() error { return e.Err }
