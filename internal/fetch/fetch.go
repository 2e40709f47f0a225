// Package fetch retrieves the remote artifact and derives its fingerprint
// from transport metadata.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/logfields"
	"git.home.luguber.info/inful/hotpatch/internal/metrics"
)

// Roles label fetches in logs and metrics.
const (
	RoleCold       = "cold"
	RoleRevalidate = "revalidate"
)

// DefaultMaxBytes caps the response body when no limit is configured.
const DefaultMaxBytes = 10 * 1024 * 1024

// FingerprintSource records which header produced a fingerprint.
type FingerprintSource string

const (
	SourceETag         FingerprintSource = "etag"
	SourceLastModified FingerprintSource = "last-modified"
	SourceTimestamp    FingerprintSource = "timestamp"
)

// Result is one fetched artifact.
type Result struct {
	Content     string
	Fingerprint string
	Source      FingerprintSource
	Status      int
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
}

// ErrTooLarge is returned when the body exceeds the configured limit.
var ErrTooLarge = errors.New("response too large")

// Fetcher performs a single cache-bypassing GET against a fixed URL.
type Fetcher struct {
	url      string
	client   *http.Client
	timeout  *time.Duration
	headers  map[string]string
	maxBytes int64
	now      func() time.Time
	logger   *slog.Logger
	recorder metrics.Recorder
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the HTTP client. The client is never modified; a
// WithTimeout applies to a copy of it.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = &d }
}

// WithHeaders adds request headers. The cache-bypass headers cannot be overridden.
func WithHeaders(h map[string]string) Option {
	return func(f *Fetcher) {
		for k, v := range h {
			f.headers[k] = v
		}
	}
}

func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithClock overrides the time source used for timestamp fingerprints.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(f *Fetcher) { f.recorder = metrics.OrNoop(r) }
}

// NewHTTPClient creates an HTTP client with a redirect limit.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}
}

// New creates a Fetcher for url.
func New(url string, opts ...Option) *Fetcher {
	f := &Fetcher{
		url:      url,
		client:   NewHTTPClient(30 * time.Second),
		headers:  map[string]string{},
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.timeout != nil && *f.timeout != f.client.Timeout {
		c := *f.client
		c.Timeout = *f.timeout
		f.client = &c
	}
	return f
}

// URL returns the origin the fetcher targets.
func (f *Fetcher) URL() string { return f.url }

// Fetch performs one GET. role labels the fetch (cold or revalidate).
func (f *Fetcher) Fetch(ctx context.Context, role string) (*Result, error) {
	start := time.Now()
	res, err := f.fetch(ctx)
	elapsed := time.Since(start)
	f.recorder.ObserveFetchDuration(role, elapsed, err == nil)

	if err != nil {
		return nil, err
	}
	f.logger.DebugContext(ctx, "Fetched artifact",
		slog.String("role", role),
		logfields.URL(f.url),
		logfields.Status(res.Status),
		logfields.Bytes(len(res.Content)),
		logfields.Fingerprint(res.Fingerprint),
		logfields.Source(string(res.Source)),
		logfields.DurationMS(float64(elapsed.Microseconds())/1000))
	return res, nil
}

func (f *Fetcher) fetch(ctx context.Context) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
	// Bypass intermediate caches.
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, derrors.NetworkTimeout(f.url, err)
		}
		return nil, fmt.Errorf("fetch %s: %w", f.url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: f.url, Status: resp.StatusCode}
	}

	limited := io.LimitReader(resp.Body, f.maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, ErrTooLarge
	}

	text, err := decode(data, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	fp, src := Fingerprint(resp.Header, f.now())
	return &Result{Content: text, Fingerprint: fp, Source: src, Status: resp.StatusCode}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// decode converts the body to UTF-8 when the Content-Type names another charset.
func decode(data []byte, contentType string) (string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(data), nil
	}
	label := params["charset"]
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return string(data), nil
	}
	enc, name := charset.Lookup(label)
	if enc == nil {
		return "", fmt.Errorf("unsupported charset %q", label)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s body: %w", name, err)
	}
	return string(out), nil
}

// Fingerprint derives the staleness marker from ETag, then Last-Modified,
// then the current time in Unix milliseconds. It never looks at the body.
func Fingerprint(h http.Header, now time.Time) (string, FingerprintSource) {
	if etag := strings.TrimSpace(h.Get("ETag")); etag != "" {
		return etag, SourceETag
	}
	if lm := strings.TrimSpace(h.Get("Last-Modified")); lm != "" {
		return lm, SourceLastModified
	}
	return strconv.FormatInt(now.UnixMilli(), 10), SourceTimestamp
}
