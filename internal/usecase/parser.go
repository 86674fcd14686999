package usecase

import (
	"bufio"
	"strings"

	"forwardproxy/internal/domain"
)

// maxExtraHeaders bounds how many bytes of client headers (after Host,
// User-Agent, Connection and Proxy-Connection are filtered out) get forwarded
// upstream. Lines read past the cap are still consumed off the wire so the
// header block stays framed, they are just dropped from the output.
const maxExtraHeaders = 32 * 1024

// ParseRequest reads a client request line and header block from r and
// resolves them into a ParsedRequest. It returns a *domain.ErrMalformedRequest
// for every condition the proxy must abort the connection for: a request
// line that isn't exactly three tokens, a non-GET method, or an empty
// hostname after both the URI and the Host header have been tried. A nil
// error with a nil request never happens; callers only need to check err.
func ParseRequest(r *bufio.Reader) (*domain.ParsedRequest, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, &domain.ErrMalformedRequest{Reason: "short read on request line"}
	}

	method, uri, _, ok := splitRequestLine(line)
	if !ok {
		return nil, &domain.ErrMalformedRequest{Reason: "request line did not have exactly three tokens"}
	}
	if !strings.EqualFold(method, "GET") {
		return nil, &domain.ErrMalformedRequest{Reason: "unsupported method " + method}
	}

	hostname, port, path := decomposeURI(uri)
	extraHeaders, hostHeader := filterHeaders(r)

	if hostname == "" {
		hostname, port = resolveHostHeader(hostHeader, port)
	}
	if hostname == "" {
		return nil, &domain.ErrMalformedRequest{Reason: "no hostname in URI or Host header"}
	}

	return &domain.ParsedRequest{
		Method:       "GET",
		Hostname:     hostname,
		Port:         port,
		Path:         path,
		ExtraHeaders: extraHeaders,
		HostHeader:   hostHeader,
	}, nil
}

// readLine reads one line off r including its trailing "\r\n" (or "\n" if
// the peer dropped the CR), mirroring what Rio_readlineb hands back in the
// original implementation this is modeled on.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

// splitRequestLine splits a request line into exactly three
// whitespace-separated tokens: method, URI, version.
func splitRequestLine(line string) (method, uri, version string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", "", "", false
	}
	return fields[0], fields[1], fields[2], true
}

// decomposeURI implements the URI decomposition algorithm from §4.2: strip
// an optional "http://" prefix, then split into hostname, port and path with
// defaults "80" and "/". hostname is left empty when the URI is origin-form
// (starts with "/"); the caller falls back to the Host header in that case.
func decomposeURI(uri string) (hostname, port, path string) {
	port = "80"
	path = "/"

	rest := uri
	if len(rest) >= len("http://") && strings.EqualFold(rest[:len("http://")], "http://") {
		rest = rest[len("http://"):]
	}

	if strings.HasPrefix(rest, "/") {
		path = rest
		return "", port, path
	}

	hostport := rest
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		hostport = rest[:idx]
		path = rest[idx:]
	}

	if idx := strings.IndexByte(hostport, ':'); idx >= 0 {
		hostname = hostport[:idx]
		port = hostport[idx+1:]
	} else {
		hostname = hostport
	}

	return hostname, port, path
}

// filterHeaders reads header lines from r until a blank line (or EOF) and
// splits them into the extra-headers block the proxy forwards verbatim and
// the Host: value it strips out for separate handling. Host, User-Agent,
// Connection and Proxy-Connection lines never reach extraHeaders.
func filterHeaders(r *bufio.Reader) (extraHeaders []byte, hostHeader string) {
	var buf strings.Builder

	for {
		line, err := readLine(r)
		if line == "" || isBlankLine(line) {
			break
		}

		switch {
		case hasPrefixFold(line, "Host:"):
			hostHeader = strings.TrimPrefix(line, line[:len("Host:")])
		case hasPrefixFold(line, "User-Agent:"),
			hasPrefixFold(line, "Connection:"),
			hasPrefixFold(line, "Proxy-Connection:"):
			// dropped: the proxy synthesizes its own versions of these.
		default:
			if buf.Len()+len(line) <= maxExtraHeaders {
				buf.WriteString(line)
			}
		}

		if err != nil {
			break
		}
	}

	return []byte(buf.String()), hostHeader
}

func isBlankLine(line string) bool {
	return line == "\r\n" || line == "\n"
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// resolveHostHeader parses a raw "Host:" value (already stripped of the
// "Host:" token) into a hostname and, if present, a port. defaultPort is
// returned unchanged when the header carries no colon.
func resolveHostHeader(hostHeader, defaultPort string) (hostname, port string) {
	trimmed := strings.TrimSpace(hostHeader)
	if trimmed == "" {
		return "", defaultPort
	}

	if idx := strings.IndexByte(trimmed, ':'); idx >= 0 {
		return trimmed[:idx], trimmed[idx+1:]
	}
	return trimmed, defaultPort
}
