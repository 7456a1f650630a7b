// Package artifact loads files announced on the interpreter side channel.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultMaxBytes caps the size of an artifact read into memory.
const DefaultMaxBytes = 16 << 20

const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCleanupInterval = 10 * time.Minute
)

// Fetcher loads the raw bytes of an artifact.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// FetchError reports why an artifact could not be loaded.
type FetchError struct {
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch artifact %s: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NotFound reports whether the artifact file does not exist.
func (e *FetchError) NotFound() bool {
	return errors.Is(e.Err, fs.ErrNotExist)
}

// ErrTooLarge is wrapped when an artifact exceeds the configured size limit.
var ErrTooLarge = errors.New("artifact exceeds size limit")

// FileFetcher reads artifacts from the local filesystem.
type FileFetcher struct {
	maxBytes int64
}

// NewFileFetcher returns a local fetcher limited to maxBytes per artifact.
func NewFileFetcher(maxBytes int64) *FileFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &FileFetcher{maxBytes: maxBytes}
}

// Fetch reads path, which must be absolute.
func (f *FileFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Path: path, Err: err}
	}
	if !filepath.IsAbs(filepath.FromSlash(path)) {
		return nil, &FetchError{Path: path, Err: errors.New("path is not absolute")}
	}

	native := filepath.FromSlash(path)
	// #nosec G304 -- the path was announced by the interpreter this process launched.
	file, err := os.Open(native)
	if err != nil {
		return nil, &FetchError{Path: path, Err: err}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, &FetchError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &FetchError{Path: path, Err: errors.New("path is a directory")}
	}
	if info.Size() > f.maxBytes {
		return nil, &FetchError{Path: path, Err: fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, info.Size(), f.maxBytes)}
	}

	data, err := io.ReadAll(io.LimitReader(file, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{Path: path, Err: err}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &FetchError{Path: path, Err: fmt.Errorf("%w: grew past %d bytes while reading", ErrTooLarge, f.maxBytes)}
	}
	return data, nil
}

// CachedFetcher memoizes successful fetches for a fixed TTL.
type CachedFetcher struct {
	next  Fetcher
	cache *gocache.Cache
}

// NewCachedFetcher wraps next with a TTL cache keyed by path.
func NewCachedFetcher(next Fetcher, ttl time.Duration) *CachedFetcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedFetcher{
		next:  next,
		cache: gocache.New(ttl, DefaultCleanupInterval),
	}
}

// Fetch returns the cached bytes for path or loads them through the wrapped fetcher.
func (c *CachedFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if value, found := c.cache.Get(path); found {
		if data, ok := value.([]byte); ok {
			return data, nil
		}
	}
	data, err := c.next.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(path, data)
	return data, nil
}

// Len returns the number of cached artifacts.
func (c *CachedFetcher) Len() int {
	return c.cache.ItemCount()
}

// DetectMIME guesses the media type from the file extension, then from content.
func DetectMIME(path string, data []byte) string {
	if ext := strings.ToLower(filepath.Ext(path)); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return http.DetectContentType(data)
}
