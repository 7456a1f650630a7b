package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestFileFetcherReadsAbsolutePath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plot.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o600))

	data, err := NewFileFetcher(0).Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
}

func TestFileFetcherErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	big := filepath.Join(dir, "big.png")
	require.NoError(t, os.WriteFile(big, make([]byte, 64), 0o600))

	fetcher := NewFileFetcher(16)
	ctx := context.Background()

	_, err := fetcher.Fetch(ctx, filepath.Join(dir, "missing.png"))
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, fetchErr.NotFound())

	_, err = fetcher.Fetch(ctx, "relative.png")
	require.ErrorAs(t, err, &fetchErr)
	assert.False(t, fetchErr.NotFound())

	_, err = fetcher.Fetch(ctx, big)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = fetcher.Fetch(ctx, dir)
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, dir, fetchErr.Path)
}

type countingFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *countingFetcher) Fetch(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(path), nil
}

func TestCachedFetcherMemoizesSuccess(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	cached := NewCachedFetcher(next, time.Minute)

	for i := 0; i < 3; i++ {
		data, err := cached.Fetch(context.Background(), "/tmp/a.png")
		require.NoError(t, err)
		assert.Equal(t, "/tmp/a.png", string(data))
	}
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, 1, cached.Len())
}

func TestCachedFetcherDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{err: errors.New("denied")}
	cached := NewCachedFetcher(next, time.Minute)

	_, err := cached.Fetch(context.Background(), "/tmp/a.png")
	require.Error(t, err)
	_, err = cached.Fetch(context.Background(), "/tmp/a.png")
	require.Error(t, err)
	assert.Equal(t, 2, next.calls)
	assert.Zero(t, cached.Len())
}

func TestDetectMIME(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "image/png", DetectMIME("/tmp/plot.png", nil))
	assert.Equal(t, "image/png", DetectMIME("/tmp/frame", pngHeader))
	assert.Equal(t, "text/plain; charset=utf-8", DetectMIME("/tmp/out", []byte("hello")))
}
