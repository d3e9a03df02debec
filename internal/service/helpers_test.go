package service

import (
	"context"
	"net/url"
	"sync"

	"wb_catalog_v1_202610/pkg/net"
)

// fakeFetcher 按 handler 返回结果并记录请求
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	handler func(ctx context.Context, endpoint string, params url.Values) ([]byte, error)
}

func newFakeFetcher(h func(ctx context.Context, endpoint string, params url.Values) ([]byte, error)) *fakeFetcher {
	return &fakeFetcher{handler: h}
}

func (f *fakeFetcher) Fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, endpoint)
	f.mu.Unlock()
	return f.handler(ctx, endpoint, params)
}

func (f *fakeFetcher) Stats() net.FetchStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return net.FetchStats{Requests: int64(len(f.calls))}
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeFetcher) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

var _ net.Fetcher = (*fakeFetcher)(nil)
