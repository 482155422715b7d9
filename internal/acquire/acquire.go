package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Default limits
const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 256 << 20
)

// Options configures a Fetcher
type Options struct {
	// Timeout bounds the whole acquisition, zero means DefaultTimeout
	Timeout time.Duration
	// MaxBytes bounds the content size, zero means DefaultMaxBytes
	MaxBytes int64
	// BaseDir resolves relative paths, empty means the working directory
	BaseDir string
	// Client performs HTTP requests, nil means a client without its own timeout
	Client *http.Client
}

// Fetcher returns the raw textual content of a source locator
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	baseDir  string
	logger   *zap.Logger
}

// NewFetcher creates a new fetcher
func NewFetcher(opts Options, logger *zap.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}

	return &Fetcher{
		client:   opts.Client,
		timeout:  opts.Timeout,
		maxBytes: opts.MaxBytes,
		baseDir:  opts.BaseDir,
		logger:   logger,
	}
}

// IsRemote reports whether the locator is fetched over the network
func IsRemote(locator string) bool {
	lower := strings.ToLower(locator)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Fetch returns the content behind locator: an http(s) URL is fetched with a
// GET request, anything else is read as a local file. Failures are *Error.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if IsRemote(locator) {
		return f.fetchRemote(ctx, locator)
	}
	return f.readFile(ctx, locator)
}

// fetchRemote performs the HTTP request and reads the full body
func (f *Fetcher) fetchRemote(ctx context.Context, locator string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Locator: locator, Err: err}
	}

	f.logger.Debug("fetching remote content", zap.String("url", locator))

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &Error{Kind: classify(ctx, err, KindNetwork), Locator: locator, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{
			Kind:    KindStatus,
			Locator: locator,
			Err:     fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	data, err := f.readAll(resp.Body)
	if err != nil {
		var aerr *Error
		if errors.As(err, &aerr) {
			aerr.Locator = locator
			return "", aerr
		}
		return "", &Error{Kind: classify(ctx, err, KindNetwork), Locator: locator, Err: err}
	}

	return string(data), nil
}

// readFile reads a local file resolved against the base directory
func (f *Fetcher) readFile(ctx context.Context, locator string) (string, error) {
	path, err := f.resolvePath(locator)
	if err != nil {
		return "", &Error{Kind: KindFile, Locator: locator, Err: err}
	}

	f.logger.Debug("reading local content", zap.String("path", path))

	file, err := os.Open(path)
	if err != nil {
		return "", &Error{Kind: KindFile, Locator: locator, Err: err}
	}
	defer func() { _ = file.Close() }()

	data, err := f.readAll(file)
	if err != nil {
		var aerr *Error
		if errors.As(err, &aerr) {
			aerr.Locator = locator
			return "", aerr
		}
		return "", &Error{Kind: KindFile, Locator: locator, Err: err}
	}

	if ctx.Err() != nil {
		return "", &Error{Kind: KindTimeout, Locator: locator, Err: ctx.Err()}
	}

	if !utf8.Valid(data) {
		return "", &Error{Kind: KindEncoding, Locator: locator, Err: fmt.Errorf("content is not valid UTF-8")}
	}

	return string(data), nil
}

// resolvePath maps a locator (plain path or file:// URL) to an absolute path
func (f *Fetcher) resolvePath(locator string) (string, error) {
	path := locator
	if strings.HasPrefix(strings.ToLower(locator), "file://") {
		u, err := url.Parse(locator)
		if err != nil {
			return "", fmt.Errorf("invalid file url: %w", err)
		}
		path = u.Path
	}

	if path == "" {
		return "", fmt.Errorf("empty path")
	}

	if !filepath.IsAbs(path) && f.baseDir != "" {
		path = filepath.Join(f.baseDir, path)
	}

	return filepath.Abs(path)
}

// readAll reads r up to the size limit
func (f *Fetcher) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &Error{Kind: KindTooLarge, Err: fmt.Errorf("content exceeds %d bytes", f.maxBytes)}
	}
	return data, nil
}

// classify maps deadline expiry to KindTimeout
func classify(ctx context.Context, err error, fallback Kind) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	return fallback
}
