package net

import (
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ClientOptions HTTP 客户端参数
type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
	Referer   string
	// PoolSize 连接池大小，应不小于批处理并发，否则请求会在本地排队
	PoolSize int
	Logger   *zap.Logger
}

// NewHTTPClient 创建全系统统一的 Resty 客户端
// 重试由 Fetcher 负责，这里关闭 resty 自带重试
func NewHTTPClient(opts ClientOptions) *resty.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        opts.PoolSize * 2,
		MaxIdleConnsPerHost: opts.PoolSize,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	client := resty.New().
		SetTransport(tr).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeaders(map[string]string{
			"Accept":           "*/*",
			"Accept-Language":  "ru-RU,ru;q=0.9,en;q=0.8",
			"X-Requested-With": "XMLHttpRequest",
		})

	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Referer != "" {
		client.SetHeader("Referer", opts.Referer)
	}
	if opts.Logger != nil {
		client.SetLogger(opts.Logger.Sugar())
	}

	return client
}
