package chartsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Loader resolves a template URL reference into template text. Resolution
// may block; callers that need a synchronous answer check the compiler
// cache first and resolve in the background on a miss.
type Loader interface {
	Resolve(ctx context.Context, url string) (string, error)
}

// MapLoader resolves references from an in-memory registry. Useful for
// tests and for templates embedded in the binary.
type MapLoader map[string]string

// Resolve returns the registered template text for url.
func (l MapLoader) Resolve(_ context.Context, url string) (string, error) {
	text, ok := l[url]
	if !ok {
		return "", fmt.Errorf("template %q not registered", url)
	}
	return text, nil
}

// Ensure MapLoader implements Loader.
var _ Loader = MapLoader{}

// HTTPLoader fetches template text over HTTP with retries and caches
// responses by URL.
type HTTPLoader struct {
	client *resty.Client

	mu    sync.Mutex
	cache map[string]string
}

// NewHTTPLoader creates an HTTPLoader with a retrying resty client.
func NewHTTPLoader() *HTTPLoader {
	client := resty.New().
		SetRetryCount(2).
		SetRetryWaitTime(250 * time.Millisecond).
		SetTimeout(10 * time.Second)
	return &HTTPLoader{
		client: client,
		cache:  make(map[string]string),
	}
}

// Client exposes the underlying resty client for transport configuration.
func (l *HTTPLoader) Client() *resty.Client { return l.client }

// Resolve fetches the template text at url, serving repeats from cache.
func (l *HTTPLoader) Resolve(ctx context.Context, url string) (string, error) {
	l.mu.Lock()
	if text, ok := l.cache[url]; ok {
		l.mu.Unlock()
		return text, nil
	}
	l.mu.Unlock()

	resp, err := l.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch template %s: %w", url, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch template %s: status %d", url, resp.StatusCode())
	}

	text := resp.String()
	l.mu.Lock()
	l.cache[url] = text
	l.mu.Unlock()
	return text, nil
}

// Ensure HTTPLoader implements Loader.
var _ Loader = (*HTTPLoader)(nil)
