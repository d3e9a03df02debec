package net

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==================== 测试辅助 ====================

// newTestFetcher 构建记录等待时长、不真正 sleep 的 Fetcher
func newTestFetcher(t *testing.T, policy RetryPolicy) (*retryFetcher, *[]time.Duration) {
	t.Helper()

	client := NewHTTPClient(ClientOptions{Timeout: 2 * time.Second, PoolSize: 4})
	f := NewFetcher(client, FetcherConfig{Policy: policy}).(*retryFetcher)

	var (
		mu    sync.Mutex
		waits []time.Duration
	)
	f.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		return ctx.Err()
	}
	return f, &waits
}

func testPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.BackoffUnit = time.Millisecond
	return p
}

// sequenceServer 按顺序返回给定状态码，超出后返回最后一个
func sequenceServer(t *testing.T, codes []int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(codes) {
			n = len(codes) - 1
		}
		w.WriteHeader(codes[n])
		if codes[n] == http.StatusOK {
			_, _ = w.Write([]byte(body))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// ==================== 退避 ====================

func TestRetryPolicy_BackoffDelay(t *testing.T) {
	p := DefaultRetryPolicy()

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for k, w := range want {
		assert.Equal(t, w, p.BackoffDelay(k), "k=%d", k)
	}

	// 单调不减
	prev := time.Duration(0)
	for k := 0; k < 64; k++ {
		d := p.BackoffDelay(k)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, 8*time.Second)
		prev = d
	}
}

func TestRetryPolicy_BackoffDelay_CustomCap(t *testing.T) {
	p := RetryPolicy{BackoffCap: 3, BackoffUnit: time.Millisecond}
	assert.Equal(t, []time.Duration{1, 2, 3, 3}, []time.Duration{
		p.BackoffDelay(0) / time.Millisecond,
		p.BackoffDelay(1) / time.Millisecond,
		p.BackoffDelay(2) / time.Millisecond,
		p.BackoffDelay(3) / time.Millisecond,
	})

	zero := RetryPolicy{BackoffCap: 0, BackoffUnit: time.Second}
	assert.Equal(t, time.Duration(0), zero.BackoffDelay(2))
}

// ==================== 重试行为 ====================

func TestFetcher_RetryThenSuccess(t *testing.T) {
	srv, calls := sequenceServer(t, []int{503, 429, 500, 502, 200}, `{"ok":true}`)
	f, waits := newTestFetcher(t, testPolicy())

	body, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, []time.Duration{1 * time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 8 * time.Millisecond}, *waits)

	stats := f.Stats()
	assert.Equal(t, int64(5), stats.Requests)
	assert.Equal(t, int64(4), stats.Retries)
	assert.Equal(t, int64(1), stats.Succeeded)
}

func TestFetcher_RetryExhausted(t *testing.T) {
	srv, calls := sequenceServer(t, []int{504}, "")
	f, waits := newTestFetcher(t, testPolicy())

	body, err := f.Fetch(context.Background(), srv.URL, nil)
	assert.Nil(t, body)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, int32(5), calls.Load())
	// 最后一次失败后不再等待
	assert.Len(t, *waits, 4)
	assert.Equal(t, int64(1), f.Stats().Failed)
}

func TestFetcher_FatalStatus(t *testing.T) {
	srv, calls := sequenceServer(t, []int{404}, "")
	f, waits := newTestFetcher(t, testPolicy())

	_, err := f.Fetch(context.Background(), srv.URL, nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.NotErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *waits)
}

func TestFetcher_MalformedBodyIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte("<html>oops"))
			return
		}
		_, _ = w.Write([]byte(`{"products":[]}`))
	}))
	defer srv.Close()

	f, waits := newTestFetcher(t, testPolicy())
	body, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"products":[]}`, string(body))
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, *waits, 1)
}

func TestFetcher_EmptyBodyIsFatal(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
	}{
		{"204", http.StatusNoContent, ""},
		{"200 空响应", http.StatusOK, ""},
		{"200 仅空白", http.StatusOK, " \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			f, waits := newTestFetcher(t, testPolicy())
			body, err := f.Fetch(context.Background(), srv.URL, nil)
			assert.Nil(t, body)
			assert.ErrorIs(t, err, ErrEmptyBody)
			assert.NotErrorIs(t, err, ErrRetryExhausted)
			assert.Equal(t, int32(1), calls.Load())
			assert.Empty(t, *waits)
			assert.Equal(t, int64(1), f.Stats().Failed)
		})
	}
}

func TestFetcher_TransportErrorIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	policy := testPolicy()
	policy.Attempts = 3
	f, waits := newTestFetcher(t, policy)

	_, err := f.Fetch(context.Background(), addr, nil)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Len(t, *waits, 2)
	assert.Equal(t, int64(3), f.Stats().Requests)
}

func TestFetcher_ContextCanceledDuringBackoff(t *testing.T) {
	srv, calls := sequenceServer(t, []int{503}, "")

	client := NewHTTPClient(ClientOptions{Timeout: time.Second})
	policy := DefaultRetryPolicy()
	policy.BackoffUnit = time.Hour
	f := NewFetcher(client, FetcherConfig{Policy: policy})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Fetch(ctx, srv.URL, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetcher_QueryParams(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t, testPolicy())
	params := url.Values{}
	params.Set("nm", "123456789")
	params.Set("curr", "rub")

	_, err := f.Fetch(context.Background(), srv.URL, params)
	require.NoError(t, err)
	assert.Equal(t, "123456789", got.Get("nm"))
	assert.Equal(t, "rub", got.Get("curr"))
}

func TestFetcher_RateLimited(t *testing.T) {
	srv, calls := sequenceServer(t, []int{200}, `{}`)

	client := NewHTTPClient(ClientOptions{Timeout: time.Second})
	f := NewFetcher(client, FetcherConfig{Policy: testPolicy(), RequestRPS: 1000})

	for i := 0; i < 5; i++ {
		_, err := f.Fetch(context.Background(), srv.URL, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestFetcher_Jitter(t *testing.T) {
	policy := testPolicy()
	policy.Jitter = 0.5
	f, _ := newTestFetcher(t, policy)

	for i := 0; i < 100; i++ {
		d := f.withJitter(8 * time.Millisecond)
		assert.GreaterOrEqual(t, d, 4*time.Millisecond)
		assert.LessOrEqual(t, d, 12*time.Millisecond)
	}
}
