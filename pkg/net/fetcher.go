package net

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Fetcher 带重试的 JSON 拉取器
type Fetcher interface {
	// Fetch 请求 endpoint 并返回 JSON 原文
	// 失败是常规结果：调用方只需区分 "有数据" / "无数据"
	Fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error)

	// Stats 请求统计快照
	Stats() FetchStats
}

// ==================== 错误定义 ====================

type FetchError string

func (e FetchError) Error() string { return string(e) }

const (
	ErrRetryExhausted FetchError = "retry attempts exhausted"
	ErrMalformedBody  FetchError = "malformed json body"
	ErrEmptyBody      FetchError = "empty response body"
)

// StatusError 不可重试的 HTTP 状态
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-retryable status %d from %s", e.StatusCode, e.URL)
}

// retryableError 标记本次尝试可重试
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// ==================== 重试策略 ====================

// DefaultRetryableStatus 瞬时故障状态码
var DefaultRetryableStatus = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryPolicy 重试策略
type RetryPolicy struct {
	Attempts        int           // 最大尝试次数
	BackoffCap      int           // 退避上限 (单位个数)
	BackoffUnit     time.Duration // 退避单位
	Jitter          float64       // 抖动比例 0~1
	RetryableStatus []int
}

// DefaultRetryPolicy 默认策略：5 次尝试，退避 1,2,4,8 秒
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:        5,
		BackoffCap:      8,
		BackoffUnit:     time.Second,
		RetryableStatus: DefaultRetryableStatus,
	}
}

// BackoffDelay 第 k 次 (从 0 开始) 失败后的等待时间 = min(2^k, cap) * unit
func (p RetryPolicy) BackoffDelay(k int) time.Duration {
	if k < 0 || p.BackoffCap <= 0 {
		return 0
	}
	units := p.BackoffCap
	if k < 31 && 1<<k < units {
		units = 1 << k
	}
	return time.Duration(units) * p.BackoffUnit
}

// ==================== 实现 ====================

// FetchStats 请求统计
type FetchStats struct {
	Requests  int64 `json:"requests"`
	Retries   int64 `json:"retries"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// FetcherConfig Fetcher 配置
type FetcherConfig struct {
	Policy     RetryPolicy
	RequestRPS float64 // 0 表示不限速
	Logger     *zap.Logger
}

type retryFetcher struct {
	client    *resty.Client
	policy    RetryPolicy
	retryable map[int]struct{}
	limiter   *rate.Limiter
	logger    *zap.Logger
	// 测试中替换等待逻辑
	sleep func(ctx context.Context, d time.Duration) error

	requests  atomic.Int64
	retries   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

var _ Fetcher = (*retryFetcher)(nil)

// NewFetcher 创建 Fetcher
func NewFetcher(client *resty.Client, cfg FetcherConfig) Fetcher {
	policy := cfg.Policy
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if len(policy.RetryableStatus) == 0 {
		policy.RetryableStatus = DefaultRetryableStatus
	}

	retryable := make(map[int]struct{}, len(policy.RetryableStatus))
	for _, code := range policy.RetryableStatus {
		retryable[code] = struct{}{}
	}

	var limiter *rate.Limiter
	if cfg.RequestRPS > 0 {
		burst := int(cfg.RequestRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestRPS), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &retryFetcher{
		client:    client,
		policy:    policy,
		retryable: retryable,
		limiter:   limiter,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// Fetch 发送请求 (自动处理瞬时故障重试)
func (f *retryFetcher) Fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < f.policy.Attempts; attempt++ {
		if attempt > 0 {
			f.retries.Add(1)
		}

		body, err := f.once(ctx, endpoint, params)
		if err == nil {
			f.succeeded.Add(1)
			return body, nil
		}
		lastErr = err

		// 不可重试：立即失败
		var re *retryableError
		if !errors.As(err, &re) {
			f.failed.Add(1)
			return nil, err
		}

		// 最后一次不再等待
		if attempt == f.policy.Attempts-1 {
			break
		}

		wait := f.withJitter(f.policy.BackoffDelay(attempt))
		f.logger.Debug("[Fetcher] 可重试失败，等待后重试",
			zap.String("url", endpoint),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := f.sleep(ctx, wait); err != nil {
			f.failed.Add(1)
			return nil, err
		}
	}

	f.failed.Add(1)
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, f.policy.Attempts, lastErr)
}

// once 执行单次请求，并按故障类型归类
func (f *retryFetcher) once(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	f.requests.Add(1)
	req := f.client.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParamsFromValues(params)
	}

	resp, err := req.Get(endpoint)
	if err != nil {
		// 调用方取消不算瞬时故障
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &retryableError{err: err}
	}

	code := resp.StatusCode()
	if _, ok := f.retryable[code]; ok {
		return nil, &retryableError{err: fmt.Errorf("retryable status %d from %s", code, endpoint)}
	}
	if code < 200 || code > 299 {
		return nil, &StatusError{URL: endpoint, StatusCode: code}
	}

	body := resp.Body()
	// 2xx 空响应 (例如 204) 表示无数据，重试不会改变结果
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w from %s (status %d)", ErrEmptyBody, endpoint, code)
	}
	if !json.Valid(body) {
		return nil, &retryableError{err: fmt.Errorf("%w from %s", ErrMalformedBody, endpoint)}
	}
	return body, nil
}

func (f *retryFetcher) withJitter(d time.Duration) time.Duration {
	if f.policy.Jitter <= 0 || d <= 0 {
		return d
	}
	j := 1 + (rand.Float64()*2-1)*f.policy.Jitter
	return time.Duration(j * float64(d))
}

// Stats 请求统计快照
func (f *retryFetcher) Stats() FetchStats {
	return FetchStats{
		Requests:  f.requests.Load(),
		Retries:   f.retries.Load(),
		Succeeded: f.succeeded.Load(),
		Failed:    f.failed.Load(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
