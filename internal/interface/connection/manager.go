package connection

import (
	"net"
	"time"

	"forwardproxy/internal/domain"
)

// Dialer opens a fresh TCP connection to every origin it is asked to reach.
// The proxy always speaks HTTP/1.0 with Connection: close upstream, so there
// is never an idle connection worth pooling; unlike a reverse proxy fronting
// a fixed set of backends, a forward proxy's upstream set is the entire
// internet, and a pool sized for that is just a connection-per-request dialer
// with bookkeeping nobody reads.
type Dialer struct {
	timeout time.Duration
}

var _ domain.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer that gives up on a connection attempt after
// timeout.
func NewDialer(timeout time.Duration) *Dialer {
	return &Dialer{timeout: timeout}
}

// Dial opens a new TCP connection to hostport.
func (d *Dialer) Dial(hostport string) (net.Conn, error) {
	return net.DialTimeout("tcp", hostport, d.timeout)
}
