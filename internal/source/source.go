// Package source acquires diff documents from local files or remote URLs.
// Whether a location is remote is decided once, by Classify.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/asynkron/patchurl/internal/logging"
	"github.com/asynkron/patchurl/internal/retry"
)

var (
	// ErrIO marks failures reading a local file.
	ErrIO = errors.New("i/o error")
	// ErrNetwork marks failures fetching a URL.
	ErrNetwork = errors.New("network error")
	// ErrTooLarge is returned when a document exceeds the configured limit.
	ErrTooLarge = errors.New("document exceeds size limit")
)

// Kind tags a Location.
type Kind int

const (
	KindLocal Kind = iota
	KindURL
)

func (k Kind) String() string {
	if k == KindURL {
		return "url"
	}
	return "local"
}

// Location is a classified patch source.
type Location struct {
	Kind Kind
	Raw  string
}

var urlPrefixes = []string{"http://", "https://", "ftp://"}

// Classify decides whether raw names a URL or a local path. Only http, https
// and ftp prefixes count as URLs.
func Classify(raw string) Location {
	for _, prefix := range urlPrefixes {
		if strings.HasPrefix(raw, prefix) {
			return Location{Kind: KindURL, Raw: raw}
		}
	}
	return Location{Kind: KindLocal, Raw: raw}
}

// ReadLocal reads a patch file from disk.
func ReadLocal(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return data, nil
}

// Options configure a Fetcher.
type Options struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	Retry     retry.Config
	Client    *http.Client
	Logger    *slog.Logger
}

// Fetcher retrieves remote patch documents.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	userAgent string
	retry     retry.Config
	logger    *slog.Logger
}

// NewFetcher builds a Fetcher, filling unset options with defaults.
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "patchurl"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Fetcher{
		client:    opts.Client,
		timeout:   opts.Timeout,
		maxBytes:  opts.MaxBytes,
		userAgent: opts.UserAgent,
		retry:     opts.Retry,
		logger:    opts.Logger,
	}
}

// Read returns the document behind loc.
func (f *Fetcher) Read(ctx context.Context, loc Location) ([]byte, error) {
	if loc.Kind == KindURL {
		return f.FetchURL(ctx, loc.Raw)
	}
	return ReadLocal(loc.Raw)
}

// FetchURL downloads raw over http, https or ftp, retrying transient
// failures.
func (f *Fetcher) FetchURL(ctx context.Context, raw string) ([]byte, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	var fetch func(context.Context, *url.URL) ([]byte, error)
	switch u.Scheme {
	case "http", "https":
		fetch = f.fetchHTTP
	case "ftp":
		fetch = f.fetchFTP
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrNetwork, u.Scheme)
	}

	var data []byte
	err = retry.Do(ctx, f.retry, func(attempt int) error {
		if attempt > 0 {
			f.logger.DebugContext(ctx, "retrying fetch", slog.String("url", u.Redacted()), slog.Int("attempt", attempt+1))
		}
		var fetchErr error
		data, fetchErr = fetch(ctx, u)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNetwork, u.Redacted(), err)
	}
	f.logger.DebugContext(ctx, "fetched patch", slog.String("url", u.Redacted()), slog.Int("bytes", len(data)))
	return data, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, retry.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, retry.Status(resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}
	return f.readLimited(resp.Body)
}

func (f *Fetcher) fetchFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "21")
	}
	conn, err := ftp.Dial(host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(f.timeout))
	if err != nil {
		return nil, retry.Transient(err)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, err
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, err
	}
	defer resp.Close()
	return f.readLimited(resp)
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, retry.Transient(err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, f.maxBytes)
	}
	return data, nil
}
