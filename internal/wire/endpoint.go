// Package wire implements the framed TCP primitives the coordinator and
// worker processes use to talk to each other: fixed-width big-endian
// integers, NUL-terminated length-prefixed strings, and length-prefixed raw
// byte payloads, each read or written against a per-operation deadline.
//
// Every session over an Endpoint begins with a job-identity handshake
// (WriteString the local jobid, ReadString the peer's) before either side
// writes a Verb. Framing a session's handshake into the generic primitives
// here, rather than special-casing it, keeps PUSH/PULL/control sessions
// symmetric: see internal/coordinator and internal/taskserver for the state
// machines built on top.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ErrSocketClosed is returned for any I/O failure that isn't a deadline
// expiry. The specification treats timeout and "socket closed" identically
// at the transport level (log at DEBUG, abandon the session), but callers
// that want to distinguish a clean disconnect from a slow peer can still do
// so via errors.Is against this sentinel or net.Error.Timeout().
var ErrSocketClosed = errors.New("wire: socket closed")

// Endpoint wraps a net.Conn with the framed read/write vocabulary the
// protocol is built from. A zero Endpoint is not usable; construct one
// with Dial or via a Listener's accept loop.
type Endpoint struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial opens a TCP connection to addr, failing if the connection isn't
// established within timeout.
func Dial(addr string, timeout time.Duration) (*Endpoint, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", addr, err)
	}
	return newEndpoint(conn), nil
}

func newEndpoint(conn net.Conn) *Endpoint {
	return &Endpoint{conn: conn, r: bufio.NewReader(conn)}
}

// Close releases the underlying socket. Safe to call more than once.
func (e *Endpoint) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}

// RemoteAddr exposes the peer address for logging.
func (e *Endpoint) RemoteAddr() string {
	if e.conn == nil {
		return ""
	}
	return e.conn.RemoteAddr().String()
}

// WriteInt64 writes a single fixed-width, big-endian int64 within timeout.
func (e *Endpoint) WriteInt64(v int64, timeout time.Duration) error {
	if err := e.conn.SetWriteDeadline(deadline(timeout)); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	if _, err := e.conn.Write(buf[:]); err != nil {
		return wrapIOErr("write int64", err)
	}
	return nil
}

// ReadInt64 reads a single fixed-width, big-endian int64 within timeout.
func (e *Endpoint) ReadInt64(timeout time.Duration) (int64, error) {
	if err := e.conn.SetReadDeadline(deadline(timeout)); err != nil {
		return 0, err
	}
	var buf [8]byte
	if _, err := io.ReadFull(e.r, buf[:]); err != nil {
		return 0, wrapIOErr("read int64", err)
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// WriteString writes a length-prefixed, NUL-terminated string: one int64
// byte length (not counting the trailing NUL), the raw bytes, then a
// single 0x00 byte. The specification mandates this exact framing for
// interoperability between fresh implementations, even though one of the
// two historical codebases it was distilled from omitted the trailing NUL.
func (e *Endpoint) WriteString(s string, timeout time.Duration) error {
	if err := e.conn.SetWriteDeadline(deadline(timeout)); err != nil {
		return err
	}
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
	if _, err := e.conn.Write(lenBuf[:]); err != nil {
		return wrapIOErr("write string length", err)
	}
	if _, err := io.WriteString(e.conn, s); err != nil {
		return wrapIOErr("write string body", err)
	}
	if _, err := e.conn.Write([]byte{0}); err != nil {
		return wrapIOErr("write string terminator", err)
	}
	return nil
}

// ReadString reads a length-prefixed, NUL-terminated string, consuming and
// discarding the trailing NUL.
func (e *Endpoint) ReadString(timeout time.Duration) (string, error) {
	if err := e.conn.SetReadDeadline(deadline(timeout)); err != nil {
		return "", err
	}
	var lenBuf [8]byte
	if _, err := io.ReadFull(e.r, lenBuf[:]); err != nil {
		return "", wrapIOErr("read string length", err)
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(e.r, body); err != nil {
			return "", wrapIOErr("read string body", err)
		}
	}
	var nul [1]byte
	if _, err := io.ReadFull(e.r, nul[:]); err != nil {
		return "", wrapIOErr("read string terminator", err)
	}
	return string(body), nil
}

// Write writes a length-prefixed raw byte payload: one int64 size, then
// the raw bytes. Used for task and result payloads, which are opaque to
// the wire layer.
func (e *Endpoint) Write(p []byte, timeout time.Duration) error {
	if err := e.conn.SetWriteDeadline(deadline(timeout)); err != nil {
		return err
	}
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(p)))
	if _, err := e.conn.Write(lenBuf[:]); err != nil {
		return wrapIOErr("write payload length", err)
	}
	if len(p) > 0 {
		if _, err := e.conn.Write(p); err != nil {
			return wrapIOErr("write payload body", err)
		}
	}
	return nil
}

// Read reads a length-prefixed raw byte payload.
func (e *Endpoint) Read(timeout time.Duration) ([]byte, error) {
	if err := e.conn.SetReadDeadline(deadline(timeout)); err != nil {
		return nil, err
	}
	var lenBuf [8]byte
	if _, err := io.ReadFull(e.r, lenBuf[:]); err != nil {
		return nil, wrapIOErr("read payload length", err)
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(e.r, body); err != nil {
			return nil, wrapIOErr("read payload body", err)
		}
	}
	return body, nil
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// wrapIOErr folds a net.Error timeout and every other I/O failure (closed
// socket, reset connection, EOF) into errors the caller can log uniformly;
// the specification handles both the same way at the transport level.
func wrapIOErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("wire: %s: %w", op, netErr)
	}
	return fmt.Errorf("wire: %s: %w: %v", op, ErrSocketClosed, err)
}

// Handshake performs the job-identity exchange every session begins with:
// write the local jobid, read the peer's, and report whether they match.
// On mismatch the caller must close the connection without writing
// anything further (testable property 6).
func (e *Endpoint) Handshake(localJobID string, timeout time.Duration) (peerJobID string, matched bool, err error) {
	if err := e.WriteString(localJobID, timeout); err != nil {
		return "", false, err
	}
	peerJobID, err = e.ReadString(timeout)
	if err != nil {
		return "", false, err
	}
	return peerJobID, peerJobID == localJobID, nil
}
