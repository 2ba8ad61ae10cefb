package eventlog

import "errors"

var (
	// ErrCorrupted indicates the log file could not be parsed as JSON.
	ErrCorrupted = errors.New("eventlog: file is corrupted")

	// ErrChecksumMismatch indicates an event's checksum does not match its
	// recorded fields.
	ErrChecksumMismatch = errors.New("eventlog: checksum mismatch")

	// ErrEmpty indicates the log file has no events yet.
	ErrEmpty = errors.New("eventlog: file is empty")

	// ErrClosed indicates an operation was attempted after Close.
	ErrClosed = errors.New("eventlog: already closed")
)
