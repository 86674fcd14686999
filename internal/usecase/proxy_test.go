package usecase

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"forwardproxy/internal/domain"
	"forwardproxy/internal/interface/repository/cache"
	"forwardproxy/internal/interface/repository/metrics"
)

// noopLogger discards everything; it exists so tests don't need a real
// file-backed logger.
type noopLogger struct{}

func (noopLogger) Debug(string, map[string]interface{})        {}
func (noopLogger) Info(string, map[string]interface{})         {}
func (noopLogger) Warn(string, map[string]interface{})         {}
func (noopLogger) Error(string, error, map[string]interface{}) {}
func (noopLogger) Close() error                                { return nil }

// fakeDialer redirects every Dial call to a fixed address regardless of the
// hostport it was asked to reach, so tests can point the proxy at an
// in-process origin without DNS or a real remote host.
type fakeDialer struct {
	addr string
}

func (d fakeDialer) Dial(string) (net.Conn, error) {
	return net.DialTimeout("tcp", d.addr, 2*time.Second)
}

// startOrigin runs a one-shot HTTP/1.0 origin server that accepts a single
// connection, answers it with a fixed response body and then closes it.
func startOrigin(t *testing.T, body string) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start origin listener: %v", err)
	}

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadString('\n')
			if err != nil || line == "\r\n" || line == "\n" {
				break
			}
		}

		response := "HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\n\r\n" + body
		conn.Write([]byte(response))
	}()

	t.Cleanup(func() { listener.Close() })
	return listener.Addr().String()
}

func newTestUseCase(originAddr string) (*ProxyUseCase, domain.CacheManager) {
	c := cache.New(nil)
	m := metrics.New()
	d := fakeDialer{addr: originAddr}
	return NewProxyUseCase(c, d, m, noopLogger{}), c
}

func TestHandleConnectionCacheMissFetchesFromOrigin(t *testing.T) {
	originAddr := startOrigin(t, "hello from origin")
	uc, _ := newTestUseCase(originAddr)

	client, server := net.Pipe()
	defer client.Close()

	go func() {
		client.Write([]byte("GET http://example.com/page HTTP/1.0\r\nHost: example.com\r\n\r\n"))
	}()

	done := make(chan error, 1)
	go func() {
		err := uc.HandleConnection(server, domain.NewRequestContext(server.RemoteAddr().String()))
		server.Close()
		done <- err
	}()

	reader := bufio.NewReader(client)
	respLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if !strings.Contains(respLine, "200") {
		t.Fatalf("expected a 200 response line, got %q", respLine)
	}

	body, _ := io.ReadAll(reader)
	if !strings.Contains(string(body), "hello from origin") {
		t.Fatalf("expected response body to contain origin content, got %q", body)
	}

	if err := <-done; err != nil {
		t.Fatalf("HandleConnection returned an unexpected error: %v", err)
	}
}

func TestHandleConnectionCacheHitSkipsOrigin(t *testing.T) {
	originAddr := startOrigin(t, "first response")
	uc, c := newTestUseCase(originAddr)

	key := "example.com:80/page"
	cached := []byte("cached bytes from a previous fetch")
	c.Insert(key, cached, len(cached))

	client, server := net.Pipe()
	defer client.Close()

	go func() {
		client.Write([]byte("GET http://example.com/page HTTP/1.0\r\nHost: example.com\r\n\r\n"))
	}()

	done := make(chan error, 1)
	go func() { done <- uc.HandleConnection(server, domain.NewRequestContext(server.RemoteAddr().String())) }()

	buf := make([]byte, len(cached))
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("failed to read cached response: %v", err)
	}
	if string(buf) != string(cached) {
		t.Fatalf("got %q, want cached bytes %q", buf, cached)
	}

	if err := <-done; err != nil {
		t.Fatalf("HandleConnection returned an unexpected error: %v", err)
	}
}

func TestHandleConnectionMalformedRequestReturnsError(t *testing.T) {
	uc, _ := newTestUseCase("127.0.0.1:1")

	client, server := net.Pipe()
	defer client.Close()

	go func() {
		client.Write([]byte("BADREQUEST\r\n\r\n"))
	}()

	err := uc.HandleConnection(server, domain.NewRequestContext(server.RemoteAddr().String()))
	if err == nil {
		t.Fatal("expected an error for a malformed request")
	}
}

func TestHandleConnectionPopulatesCacheOnMiss(t *testing.T) {
	originAddr := startOrigin(t, "cache me please")
	uc, c := newTestUseCase(originAddr)

	client, server := net.Pipe()
	defer client.Close()

	go func() {
		client.Write([]byte("GET http://example.com/item HTTP/1.0\r\nHost: example.com\r\n\r\n"))
	}()

	done := make(chan error, 1)
	go func() {
		err := uc.HandleConnection(server, domain.NewRequestContext(server.RemoteAddr().String()))
		server.Close()
		done <- err
	}()

	io.Copy(io.Discard, client)
	if err := <-done; err != nil {
		t.Fatalf("HandleConnection returned an unexpected error: %v", err)
	}

	if _, _, ok := c.Get("example.com:80/item"); !ok {
		t.Fatal("expected the response to have been cached after a successful fetch")
	}
}
