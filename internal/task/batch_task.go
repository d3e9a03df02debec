package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"wb_catalog_v1_202610/internal/model"
	"wb_catalog_v1_202610/internal/service"
)

// ==================== BatchTask 批量组装 ====================

// Assembler 单个商品组装
type Assembler interface {
	Assemble(ctx context.Context, nmID int64) (*model.Product, error)
}

var _ Assembler = (*service.ProductService)(nil)

// outcome 单个任务的结果分类
type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeNotFound
	outcomeOutOfStock
	outcomeFetchFailed
	outcomePanicked
	outcomeCancelled
)

// BatchTask 每个商品一个协程，共享组装器 (及其信号量与镜像缓存)
// 单个任务的任何失败 (包括 panic) 都只记为 "无数据"
type BatchTask struct {
	assembler  Assembler
	runTimeout time.Duration // 0 表示不限时
	logger     *zap.Logger
}

func NewBatchTask(assembler Assembler, runTimeout time.Duration, logger *zap.Logger) *BatchTask {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchTask{assembler: assembler, runTimeout: runTimeout, logger: logger}
}

// Run 组装全部商品，等待所有任务结束后返回
// 结果不保证与输入顺序一致
func (t *BatchTask) Run(ctx context.Context, ids []int64) ([]*model.Product, *model.RunSummary) {
	start := time.Now()

	runCtx := ctx
	if t.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.runTimeout)
		defer cancel()
	}

	unique := dedupeIDs(ids)
	summary := &model.RunSummary{Attempted: len(unique)}

	var mu sync.Mutex
	products := make([]*model.Product, 0, len(unique))
	seen := make(map[int64]struct{}, len(unique))

	t.logger.Info("[BatchTask] 开始批量组装",
		zap.Int("input", len(ids)),
		zap.Int("unique", len(unique)),
		zap.Duration("run_timeout", t.runTimeout),
	)

	var wg conc.WaitGroup
	for _, id := range unique {
		wg.Go(func() {
			p, kind := t.assembleOne(runCtx, id)

			mu.Lock()
			defer mu.Unlock()

			if kind == outcomeSucceeded {
				if _, dup := seen[p.Article]; dup {
					summary.NotFound++
					return
				}
				seen[p.Article] = struct{}{}
				products = append(products, p)
				summary.Succeeded++
				if p.Degraded {
					summary.Degraded++
				}
				return
			}
			tally(summary, kind)
		})
	}
	wg.Wait()

	summary.Duration = time.Since(start)
	t.logger.Info("[BatchTask] 批量组装完成",
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("not_found", summary.NotFound),
		zap.Int("out_of_stock", summary.OutOfStock),
		zap.Int("fetch_failed", summary.FetchFailed),
		zap.Int("degraded", summary.Degraded),
		zap.Int("panicked", summary.Panicked),
		zap.Int("cancelled", summary.Cancelled),
		zap.Duration("duration", summary.Duration),
	)
	return products, summary
}

// assembleOne 执行单个任务并归类结果，panic 在此处被拦截
func (t *BatchTask) assembleOne(ctx context.Context, nmID int64) (*model.Product, outcome) {
	var (
		p       *model.Product
		err     error
		catcher panics.Catcher
	)
	catcher.Try(func() {
		p, err = t.assembler.Assemble(ctx, nmID)
	})

	if r := catcher.Recovered(); r != nil {
		t.logger.Error("[BatchTask] 任务 panic，已隔离",
			zap.Int64("nm_id", nmID),
			zap.Any("panic", r.Value),
			zap.ByteString("stack", r.Stack),
		)
		return nil, outcomePanicked
	}

	switch {
	case err == nil && p != nil:
		return p, outcomeSucceeded
	case err == nil:
		return nil, outcomeNotFound
	case errors.Is(err, service.ErrOutOfStock):
		return nil, outcomeOutOfStock
	case errors.Is(err, service.ErrDetailNotFound):
		return nil, outcomeNotFound
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return nil, outcomeCancelled
	default:
		return nil, outcomeFetchFailed
	}
}

func tally(s *model.RunSummary, kind outcome) {
	switch kind {
	case outcomeNotFound:
		s.NotFound++
	case outcomeOutOfStock:
		s.OutOfStock++
	case outcomeFetchFailed:
		s.FetchFailed++
	case outcomePanicked:
		s.Panicked++
	case outcomeCancelled:
		s.Cancelled++
	}
}

// dedupeIDs 去重并保留首次出现顺序，忽略非正数
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
