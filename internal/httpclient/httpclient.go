package httpclient

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16
	UserAgent              = "xtream-m3u/1.0"
)

var (
	baseTransport *http.Transport
	defaultClient *http.Client
)

func init() {
	baseTransport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: MaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		// Compression is negotiated by decodingTransport so brotli is offered too.
		DisableCompression: true,
	}
	defaultClient = &http.Client{
		Timeout:   DefaultTimeout,
		Transport: &decodingTransport{base: baseTransport},
	}
}

// Default returns the shared tuned HTTP client used for player_api requests.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout and a copy of the Default transport.
func WithTimeout(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &decodingTransport{base: baseTransport.Clone()},
	}
}

// decodingTransport offers br and gzip and transparently decodes the response.
// Requests that set their own Accept-Encoding are passed through untouched.
type decodingTransport struct {
	base http.RoundTripper
}

func (t *decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") != "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Accept-Encoding", "br, gzip")
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		body = brotli.NewReader(resp.Body)
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("gzip response from %s: %w", req.URL.Host, err)
		}
		body = zr
	default:
		return resp, nil
	}
	resp.Body = &decodedBody{Reader: body, raw: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

type decodedBody struct {
	io.Reader
	raw io.ReadCloser
}

func (b *decodedBody) Close() error { return b.raw.Close() }
