package domain

import (
	"crypto/rand"
	"encoding/hex"
)

// RequestContext carries the ambient, per-connection values a worker threads
// through every log line it produces, without widening the parser/transfer
// call chain with one more parameter for each of them individually.
type RequestContext struct {
	// ID is a short correlation identifier minted once per accepted
	// connection from crypto/rand.
	ID string
	// RemoteAddr is the client's net.Conn.RemoteAddr(), captured once by
	// the worker handling the connection and never re-read afterward.
	RemoteAddr string
}

// NewRequestContext mints a RequestContext for a freshly accepted
// connection.
func NewRequestContext(remoteAddr string) RequestContext {
	return RequestContext{ID: newRequestID(), RemoteAddr: remoteAddr}
}

// newRequestID returns an 8-character hex id. A crypto/rand failure is not
// worth aborting the connection over; it falls back to an all-zero id so a
// log line still carries a (non-unique) value instead of losing the field.
func newRequestID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(buf)
}
