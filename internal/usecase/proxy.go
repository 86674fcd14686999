package usecase

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"

	"go.uber.org/multierr"

	"forwardproxy/internal/domain"
)

// userAgent is the fixed string every outbound request carries regardless
// of what the client sent; the proxy never forwards a client's own
// User-Agent line.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:10.0.3) Gecko/20120305 Firefox/10.0.3"

// ProxyUseCase implements the GET forward-proxy pipeline: parse the
// client's request, answer from cache on a hit, otherwise dial the origin,
// replay its response to the client while buffering it for the cache, and
// record everything it did along the way.
type ProxyUseCase struct {
	cache   domain.CacheManager
	dialer  domain.Dialer
	metrics domain.MetricsCollector
	logger  domain.Logger
}

// NewProxyUseCase creates a new ProxyUseCase.
func NewProxyUseCase(
	cache domain.CacheManager,
	dialer domain.Dialer,
	metrics domain.MetricsCollector,
	logger domain.Logger,
) *ProxyUseCase {
	return &ProxyUseCase{
		cache:   cache,
		dialer:  dialer,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleConnection runs one request/response cycle for clientConn: parse,
// serve from cache or fetch from upstream, then return. The caller owns
// closing clientConn; HandleConnection never closes it itself so a worker
// can log the remote address after the fact. reqCtx's id is attached to
// every log line this call and everything it calls produces.
func (uc *ProxyUseCase) HandleConnection(clientConn net.Conn, reqCtx domain.RequestContext) error {
	uc.metrics.RecordRequest()

	reader := bufio.NewReader(clientConn)
	req, err := ParseRequest(reader)
	if err != nil {
		uc.metrics.RecordMalformedRequest()
		uc.logger.Debug("malformed request", map[string]interface{}{
			"request_id":  reqCtx.ID,
			"remote_addr": reqCtx.RemoteAddr,
			"error":       err.Error(),
		})
		return err
	}

	key := req.CacheKey()
	if data, _, ok := uc.cache.Get(key); ok {
		uc.metrics.RecordCacheHit()
		n, werr := clientConn.Write(data)
		uc.metrics.AddBytesForwarded(int64(n))
		if werr != nil {
			uc.logger.Warn("write to client failed on cache hit", map[string]interface{}{
				"request_id": reqCtx.ID,
				"key":        key,
				"error":      werr.Error(),
			})
			return werr
		}
		uc.logger.Info("cache hit", map[string]interface{}{"request_id": reqCtx.ID, "key": key, "bytes": n})
		return nil
	}
	uc.metrics.RecordCacheMiss()

	return uc.fetchAndForward(clientConn, req, key, reqCtx)
}

// fetchAndForward dials the origin named by req, sends it a synthesized
// HTTP/1.0 request, and streams the response back to the client a chunk at
// a time. Up to domain.MaxObjectSize bytes of the response are buffered
// along the way; if the whole body arrived within that budget it is handed
// to the cache once the origin closes cleanly.
func (uc *ProxyUseCase) fetchAndForward(
	clientConn net.Conn, req *domain.ParsedRequest, key string, reqCtx domain.RequestContext,
) (err error) {
	hostport := req.Hostname + ":" + req.Port

	upstreamConn, dialErr := uc.dialer.Dial(hostport)
	if dialErr != nil {
		uc.metrics.RecordUpstreamFailure()
		wrapped := &domain.ErrUpstreamUnavailable{Host: hostport, Err: dialErr}
		uc.logger.Warn("dial upstream failed", map[string]interface{}{
			"request_id": reqCtx.ID,
			"host":       hostport,
			"error":      dialErr.Error(),
		})
		return wrapped
	}
	// The client socket is closed by the caller; this defer combines any
	// error closing the upstream socket into the error this call returns,
	// rather than dropping it silently.
	defer func() {
		err = CombineCloseErrors(err, upstreamConn.Close())
	}()

	outbound := buildRequest(req)
	if _, writeErr := upstreamConn.Write(outbound); writeErr != nil {
		uc.metrics.RecordUpstreamFailure()
		uc.logger.Warn("write to upstream failed", map[string]interface{}{
			"request_id": reqCtx.ID,
			"host":       hostport,
			"error":      writeErr.Error(),
		})
		return &domain.ErrUpstreamUnavailable{Host: hostport, Err: writeErr}
	}

	total, cached, transferErr := uc.transfer(clientConn, upstreamConn, key, reqCtx)
	uc.logger.Info("request forwarded", map[string]interface{}{
		"request_id": reqCtx.ID,
		"key":        key,
		"bytes":      total,
		"cached":     cached,
	})
	return transferErr
}

// transfer copies upstreamConn's response to clientConn in fixed-size
// chunks, simultaneously accumulating up to domain.MaxObjectSize bytes in a
// side buffer. On a clean EOF from the origin the side buffer is inserted
// into the cache, provided it captured the entire body; a body that
// overflowed MaxObjectSize is still forwarded in full, it is just never
// cached. It returns the total bytes forwarded, whether anything was
// cached, and any transfer error (nil on a clean EOF). This loop carries no
// read/write deadline of its own: the dial step is the only place this
// proxy bounds time spent waiting, so a slow origin or a stalled client
// simply keeps the worker goroutine alive rather than failing it.
func (uc *ProxyUseCase) transfer(
	clientConn, upstreamConn net.Conn, key string, reqCtx domain.RequestContext,
) (int64, bool, error) {
	buf := make([]byte, 8*1024)
	sideBuffer := make([]byte, 0, domain.MaxObjectSize)
	overflowed := false
	var total int64

	for {
		n, rerr := upstreamConn.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, werr := clientConn.Write(chunk); werr != nil {
				uc.logger.Warn("write to client failed mid-transfer", map[string]interface{}{
					"request_id": reqCtx.ID,
					"key":        key,
					"error":      werr.Error(),
				})
				return total, false, werr
			}
			total += int64(n)
			uc.metrics.AddBytesForwarded(int64(n))

			if !overflowed {
				if len(sideBuffer)+n <= domain.MaxObjectSize {
					sideBuffer = append(sideBuffer, chunk...)
				} else {
					overflowed = true
					uc.logger.Debug("response exceeds max object size, forwarding without caching", map[string]interface{}{
						"request_id": reqCtx.ID,
						"key":        key,
					})
				}
			}
		}

		if rerr != nil {
			if rerr == io.EOF {
				if !overflowed && len(sideBuffer) > 0 {
					uc.cache.Insert(key, sideBuffer, len(sideBuffer))
					return total, true, nil
				}
				return total, false, nil
			}
			uc.logger.Warn("upstream transfer failed", map[string]interface{}{
				"request_id": reqCtx.ID,
				"key":        key,
				"error":      rerr.Error(),
			})
			return total, false, rerr
		}
	}
}

// buildRequest re-synthesizes the outbound HTTP/1.0 request the proxy sends
// upstream: its own request line, Host, User-Agent, Connection and
// Proxy-Connection lines, then the client's filtered extra headers
// verbatim, terminated by a blank line. No client-supplied Host,
// User-Agent, Connection or Proxy-Connection line ever crosses this
// boundary; those are always the proxy's own.
func buildRequest(req *domain.ParsedRequest) []byte {
	var b strings.Builder

	b.WriteString(req.Method)
	b.WriteByte(' ')
	b.WriteString(req.Path)
	b.WriteString(" HTTP/1.0\r\n")

	b.WriteString("Host: ")
	b.WriteString(req.Hostname)
	if req.Port != "" && req.Port != "80" {
		b.WriteByte(':')
		b.WriteString(req.Port)
	}
	b.WriteString("\r\n")

	b.WriteString("User-Agent: " + userAgent + "\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("Proxy-Connection: close\r\n")

	b.Write(req.ExtraHeaders)

	b.WriteString("\r\n")

	return []byte(b.String())
}

// isConnectionClosed reports whether err represents an expected, benign
// end to a connection (peer reset, broken pipe, clean EOF) rather than a
// failure worth surfacing to the caller.
func isConnectionClosed(err error) bool {
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe")
}

// CombineCloseErrors merges the errors from closing both ends of a
// connection into one, dropping any that are just benign closed-connection
// noise.
func CombineCloseErrors(clientErr, upstreamErr error) error {
	if isConnectionClosed(clientErr) {
		clientErr = nil
	}
	if isConnectionClosed(upstreamErr) {
		upstreamErr = nil
	}
	return multierr.Combine(clientErr, upstreamErr)
}
