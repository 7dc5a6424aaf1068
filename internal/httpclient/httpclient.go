// Package httpclient builds the HTTP client shared by the geocoding and routing adapters.
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"
)

// DefaultTimeout bounds every outbound lookup.
const DefaultTimeout = 15 * time.Second

type Options struct {
	// UserAgent identifies the client to the upstream services
	UserAgent string

	// Timeout for a whole request, DefaultTimeout when zero
	Timeout time.Duration

	// Trace receives a dump of every request and response when not nil
	Trace io.Writer

	// Transport overrides http.DefaultTransport, used by tests
	Transport http.RoundTripper
}

// New returns a client that stamps the identifying headers on every request.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	headers := map[string]string{"Accept": "application/json"}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &HeaderRoundTripper{
			Headers: headers,
			Transport: &LoggingRoundTripper{
				Transport: transport,
				Writer:    opts.Trace,
			},
		},
	}
}

// HeaderRoundTripper sets fixed headers on each request.
type HeaderRoundTripper struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

// RoundTrip implements the http.RoundTripper interface.
func (t *HeaderRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	return t.Transport.RoundTrip(req)
}

// LoggingRoundTripper dumps request and response heads to Writer. It is a pass-through
// when Writer is nil.
type LoggingRoundTripper struct {
	Transport http.RoundTripper
	Writer    io.Writer
}

func prefixLines(dump []byte, prefix string) string {
	lines := strings.Split(strings.TrimRight(string(dump), "\r\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + strings.TrimRight(line, "\r")
	}

	return strings.Join(lines, "\n") + "\n"
}

// RoundTrip implements the http.RoundTripper interface.
func (t *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Writer == nil {
		return t.Transport.RoundTrip(req)
	}

	dump, err := httputil.DumpRequestOut(req, false)
	if err != nil {
		return nil, fmt.Errorf("tracing HTTP request: %w", err)
	}
	fmt.Fprint(t.Writer, prefixLines(dump, "> "))

	start := time.Now()
	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		fmt.Fprintf(t.Writer, "< ERROR: [%v] %v\n", time.Since(start), err)
		return nil, err
	}

	dump, err = httputil.DumpResponse(resp, false)
	if err != nil {
		return nil, fmt.Errorf("tracing HTTP response: %w", err)
	}
	fmt.Fprintf(t.Writer, "< RESPONSE: [%v]\n", time.Since(start))
	fmt.Fprint(t.Writer, prefixLines(dump, "< "))

	return resp, nil
}
