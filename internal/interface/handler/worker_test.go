package handler

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"forwardproxy/internal/interface/repository/cache"
	"forwardproxy/internal/interface/repository/metrics"
	"forwardproxy/internal/usecase"
)

type noopLogger struct{}

func (noopLogger) Debug(string, map[string]interface{})        {}
func (noopLogger) Info(string, map[string]interface{})         {}
func (noopLogger) Warn(string, map[string]interface{})         {}
func (noopLogger) Error(string, error, map[string]interface{}) {}
func (noopLogger) Close() error                                { return nil }

type fakeDialer struct{ addr string }

func (d fakeDialer) Dial(string) (net.Conn, error) {
	return net.DialTimeout("tcp", d.addr, 2*time.Second)
}

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
		conn.Write([]byte("HTTP/1.0 200 OK\r\n\r\n" + body))
	}()

	t.Cleanup(func() { listener.Close() })
	return listener.Addr().String()
}

func TestWorkerHandleClosesConnectionAndForwardsResponse(t *testing.T) {
	originAddr := startOrigin(t, "worker test body")

	c := cache.New(nil)
	m := metrics.New()
	uc := usecase.NewProxyUseCase(c, fakeDialer{addr: originAddr}, m, noopLogger{})
	w := NewWorker(uc, m, noopLogger{})

	client, server := net.Pipe()

	go func() {
		client.Write([]byte("GET http://example.com/ HTTP/1.0\r\nHost: example.com\r\n\r\n"))
	}()

	go w.Handle(server)

	body, err := io.ReadAll(client)
	if err != nil && err != io.EOF {
		t.Fatalf("unexpected read error: %v", err)
	}
	if !strings.Contains(string(body), "worker test body") {
		t.Fatalf("expected forwarded response body, got %q", body)
	}
}
