package task

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wb_catalog_v1_202610/internal/model"
	"wb_catalog_v1_202610/internal/service"
	"wb_catalog_v1_202610/pkg/cache"
	"wb_catalog_v1_202610/pkg/net"
)

// ==================== 测试辅助 ====================

// stubAssembler 按 ID 返回预设结果
type stubAssembler struct {
	delay  time.Duration
	panics map[int64]bool
	errs   map[int64]error

	mu    sync.Mutex
	calls map[int64]int
}

func (s *stubAssembler) Assemble(ctx context.Context, nmID int64) (*model.Product, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[int64]int{}
	}
	s.calls[nmID]++
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.panics[nmID] {
		panic(fmt.Sprintf("boom %d", nmID))
	}
	if err, ok := s.errs[nmID]; ok {
		return nil, err
	}
	return &model.Product{Article: nmID, Name: "item", Price: decimal.NewFromInt(1), Stock: 1}, nil
}

func articles(products []*model.Product) []int64 {
	out := make([]int64, 0, len(products))
	for _, p := range products {
		out = append(out, p.Article)
	}
	return out
}

// ==================== 单元测试 ====================

func TestDedupeIDs(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 2}, dedupeIDs([]int64{3, 1, 3, 0, 2, -5, 1}))
	assert.Empty(t, dedupeIDs(nil))
}

func TestBatchTask_Classification(t *testing.T) {
	asm := &stubAssembler{
		panics: map[int64]bool{4: true},
		errs: map[int64]error{
			2: service.ErrOutOfStock,
			3: fmt.Errorf("wrap: %w", service.ErrDetailNotFound),
			5: fmt.Errorf("获取详情失败: %w", net.ErrRetryExhausted),
		},
	}
	batch := NewBatchTask(asm, 0, nil)

	products, summary := batch.Run(context.Background(), []int64{1, 2, 3, 4, 5, 6, 1, 6})
	assert.ElementsMatch(t, []int64{1, 6}, articles(products))

	assert.Equal(t, 6, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.OutOfStock)
	assert.Equal(t, 1, summary.NotFound)
	assert.Equal(t, 1, summary.Panicked)
	assert.Equal(t, 1, summary.FetchFailed)
	assert.Equal(t, 0, summary.Cancelled)
	assert.Equal(t, 4, summary.Absent())

	// 重复 ID 只组装一次
	assert.Equal(t, 1, asm.calls[1])
	assert.Equal(t, 1, asm.calls[6])
}

func TestBatchTask_PanicsDoNotAbortSiblings(t *testing.T) {
	panics := map[int64]bool{}
	ids := make([]int64, 0, 100)
	for i := int64(1); i <= 100; i++ {
		ids = append(ids, i)
		if i%10 == 0 {
			panics[i] = true
		}
	}

	products, summary := NewBatchTask(&stubAssembler{panics: panics}, 0, nil).Run(context.Background(), ids)
	assert.Len(t, products, 90)
	assert.Equal(t, 10, summary.Panicked)
}

func TestBatchTask_RunTimeout(t *testing.T) {
	asm := &stubAssembler{delay: time.Hour}
	batch := NewBatchTask(asm, 30*time.Millisecond, nil)

	start := time.Now()
	products, summary := batch.Run(context.Background(), []int64{1, 2, 3})
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, products)
	assert.Equal(t, 3, summary.Cancelled)
}

func TestBatchTask_Empty(t *testing.T) {
	products, summary := NewBatchTask(&stubAssembler{}, 0, nil).Run(context.Background(), nil)
	assert.Empty(t, products)
	assert.Equal(t, 0, summary.Attempted)
}

// ==================== 端到端：N 个 ID，M 个无镜像，K 个零库存 ====================

// catalogServer 同时模拟详情接口与镜像网络
// 镜像路径形如 /b<idx>/vol<V>/part<P>/<id>/info/ru/card.json
type catalogServer struct {
	zeroStock map[int64]bool
	noMirror  map[int64]bool
	mirror    int
}

func (c *catalogServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/detail" {
		id, _ := strconv.ParseInt(r.URL.Query().Get("nm"), 10, 64)
		qty := 3
		if c.zeroStock[id] {
			qty = 0
		}
		_, _ = fmt.Fprintf(w, `{"data":{"products":[{"id":%d,"name":"item-%d","supplier":"s","supplierId":7,
			"sizes":[{"name":"M","price":{"product":10000},"stocks":[{"qty":%d}]}]}]}}`, id, id, qty)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) < 4 || parts[0] != fmt.Sprintf("b%02d", c.mirror) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, _ := strconv.ParseInt(parts[3], 10, 64)
	if c.noMirror[id] {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = w.Write([]byte(`{"description":"d","options":[{"name":"Цвет","value":"серый"}],"media":{"photo_count":2}}`))
}

func TestBatchTask_EndToEnd(t *testing.T) {
	ids := []int64{
		100000001, 200000002, 300000003, 400000004, 500000005, 600000006,
		700000007, 800000008, 900000009, 110000010, 120000011, 130000012,
	}
	// K = 3 个零库存；无镜像的 4 个中 3 个有库存 (M = 3)
	server := &catalogServer{
		zeroStock: map[int64]bool{200000002: true, 500000005: true, 900000009: true},
		noMirror:  map[int64]bool{100000001: true, 300000003: true, 700000007: true, 200000002: true},
		mirror:    24,
	}
	srv := httptest.NewServer(server)
	defer srv.Close()

	client := net.NewHTTPClient(net.ClientOptions{Timeout: 2 * time.Second, PoolSize: 4})
	policy := net.DefaultRetryPolicy()
	policy.BackoffUnit = time.Millisecond
	fetcher := net.NewFetcher(client, net.FetcherConfig{Policy: policy})

	mirrors := service.NewMirrorService(fetcher, cache.NewMirrorCache(), service.MirrorConfig{
		HostTemplate: srv.URL + "/b%02d",
		Min:          20,
		Max:          30,
		Parallelism:  1,
		Locale:       "ru",
	}, nil)
	details := service.NewDetailService(fetcher, service.DetailConfig{
		Endpoint: srv.URL + "/detail",
		AppType:  1,
		Currency: "rub",
		Dest:     -1257786,
	}, nil)
	assembler := service.NewProductService(details, service.NewAssetService(mirrors, nil), "https://site.test", 4, nil)

	products, summary := NewBatchTask(assembler, 0, nil).Run(context.Background(), ids)

	// N - K 条记录
	require.Len(t, products, len(ids)-3)
	assert.Equal(t, 12, summary.Attempted)
	assert.Equal(t, 9, summary.Succeeded)
	assert.Equal(t, 3, summary.OutOfStock)
	assert.Equal(t, 0, summary.Panicked)

	degraded := 0
	for _, p := range products {
		assert.NotEmpty(t, p.Name)
		assert.Equal(t, "100.00", p.Price.StringFixed(2))
		assert.Equal(t, 3, p.Stock)
		if server.noMirror[p.Article] {
			degraded++
			assert.True(t, p.Degraded)
			assert.Nil(t, p.Description)
			assert.Empty(t, p.Images)
			assert.Empty(t, p.Characteristics)
			continue
		}
		assert.False(t, p.Degraded)
		require.Len(t, p.Images, 2)
		assert.Equal(t, fmt.Sprintf("%s/b24%s/images/c516x688/1.webp", srv.URL, service.ItemPath(p.Article)), p.Images[0])
		assert.Equal(t, fmt.Sprintf("https://site.test/catalog/%d/detail.aspx", p.Article), p.URL)
	}
	assert.Equal(t, 3, degraded)
	assert.Equal(t, 3, summary.Degraded)
	assert.LessOrEqual(t, assembler.PeakInflight(), int64(4))
}
