package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrAlreadyRecorded reports that the contract already holds a record for
// the match. Record treats it as success.
var ErrAlreadyRecorded = errors.New("handover already recorded")

type errorClass int

const (
	// classTransient errors are retried after rebinding.
	classTransient errorClass = iota
	// classTerminal errors are returned without retrying.
	classTerminal
	classAlreadyRecorded
)

var (
	alreadyRecordedMarkers = []string{"already recorded"}
	terminalMarkers        = []string{
		"insufficient funds",
		"execution reverted",
		"invalid sender",
		"intrinsic gas too low",
		"gas limit reached",
	}
	transientMarkers = []string{
		"timeout",
		"timed out",
		"connection refused",
		"connection reset",
		"eof",
		"rate limit",
		"too many requests",
		"429",
		"502",
		"503",
		"no such host",
		"dial",
		"nonce too low",
		"replacement transaction underpriced",
	}
)

// classify sorts an error into the retry classes. Unrecognized errors are
// terminal.
func classify(err error) errorClass {
	switch {
	case errors.Is(err, ErrAlreadyRecorded):
		return classAlreadyRecorded
	case errors.Is(err, context.Canceled):
		return classTerminal
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return classTransient
	}

	msg := strings.ToLower(err.Error())
	for _, m := range alreadyRecordedMarkers {
		if strings.Contains(msg, m) {
			return classAlreadyRecorded
		}
	}
	for _, m := range terminalMarkers {
		if strings.Contains(msg, m) {
			return classTerminal
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return classTransient
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return classTransient
		}
	}
	return classTerminal
}

// TransientError is a network-class failure that survived every retry.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("ledger unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// TerminalError is a failure that retrying cannot fix.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return "ledger write rejected: " + e.Err.Error() }

func (e *TerminalError) Unwrap() error { return e.Err }
