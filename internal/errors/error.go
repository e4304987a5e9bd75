package errors

import "github.com/pkg/errors"

var (
	// connection errors
	ErrConnectionClosed  = errors.New("imap connection closed by server")
	ErrTeardownRequested = errors.New("teardown requested")
	ErrNotConnected      = errors.New("mailbox not connected")
)
