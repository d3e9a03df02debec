package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wb_catalog_v1_202610/internal/model"
	"wb_catalog_v1_202610/internal/repository"
	"wb_catalog_v1_202610/internal/service"
)

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrRunInProgress TaskError = "a run is already in progress"
	ErrClosed        TaskError = "run task is closed"
)

// ==================== 依赖 ====================

// Searcher 目录搜索
type Searcher interface {
	SearchIDs(ctx context.Context, query string, pages int) ([]int64, error)
}

// Exporter 导出
type Exporter interface {
	Format() string
	Export(ctx context.Context, runID string, products []*model.Product) (*service.ExportResult, error)
}

var (
	_ Searcher = (*service.SearchService)(nil)
	_ Exporter = (*service.ExportService)(nil)
)

// RunTaskConfig 搜索参数
type RunTaskConfig struct {
	Query string
	Pages int
}

// RunReport 一次完整运行的报告
type RunReport struct {
	RunID      string                `json:"run_id"`
	Trigger    string                `json:"trigger"`
	Query      string                `json:"query"`
	Status     string                `json:"status"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at,omitempty"`
	Summary    *model.RunSummary     `json:"summary,omitempty"`
	Export     *service.ExportResult `json:"export,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// ==================== RunTask 搜索 -> 组装 -> 导出 ====================

// RunTask 完整流水线，同一时间只允许一个运行
type RunTask struct {
	searcher Searcher
	batch    *BatchTask
	exporter Exporter
	runs     repository.RunRepository // 可为 nil
	cfg      RunTaskConfig
	logger   *zap.Logger

	running atomic.Bool
	mu      sync.RWMutex
	last    *RunReport

	// 生命周期：Close 取消所有运行并等待结束
	ctx    context.Context
	cancel context.CancelFunc
	lifeMu sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewRunTask(
	searcher Searcher,
	batch *BatchTask,
	exporter Exporter,
	runs repository.RunRepository,
	cfg RunTaskConfig,
	logger *zap.Logger,
) *RunTask {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RunTask{
		ctx:      ctx,
		cancel:   cancel,
		searcher: searcher,
		batch:    batch,
		exporter: exporter,
		runs:     runs,
		cfg:      cfg,
		logger:   logger,
	}
}

// Execute 同步执行一次完整运行
// ctx 取消或 Close 均会中止本次运行
func (t *RunTask) Execute(ctx context.Context, trigger string) (*RunReport, error) {
	if !t.acquire() {
		return nil, ErrClosed
	}
	defer t.wg.Done()

	if !t.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer t.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.ctx, cancel)
	defer stop()

	return t.execute(ctx, uuid.NewString(), trigger)
}

// Start 异步执行，立即返回 run_id；运行随 Close 取消
func (t *RunTask) Start(trigger string) (string, error) {
	if !t.acquire() {
		return "", ErrClosed
	}
	if !t.running.CompareAndSwap(false, true) {
		t.wg.Done()
		return "", ErrRunInProgress
	}

	runID := uuid.NewString()
	go func() {
		defer t.wg.Done()
		defer t.running.Store(false)
		_, _ = t.execute(t.ctx, runID, trigger)
	}()
	return runID, nil
}

// Close 拒绝新的运行，取消进行中的运行并等待其写完运行记录
func (t *RunTask) Close() {
	t.lifeMu.Lock()
	t.closed = true
	t.lifeMu.Unlock()

	t.cancel()
	t.wg.Wait()
	t.logger.Info("[RunTask] 已关闭")
}

// acquire 登记一次运行，已关闭时返回 false
func (t *RunTask) acquire() bool {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()
	if t.closed {
		return false
	}
	t.wg.Add(1)
	return true
}

// IsRunning 是否有运行中的任务
func (t *RunTask) IsRunning() bool {
	return t.running.Load()
}

// Last 最近一次运行报告 (运行中时为进行中的报告)
func (t *RunTask) Last() *RunReport {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return nil
	}
	cp := *t.last
	return &cp
}

func (t *RunTask) setLast(r *RunReport) {
	cp := *r
	t.mu.Lock()
	t.last = &cp
	t.mu.Unlock()
}

func (t *RunTask) execute(ctx context.Context, runID, trigger string) (*RunReport, error) {
	report := &RunReport{
		RunID:     runID,
		Trigger:   trigger,
		Query:     t.cfg.Query,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now(),
	}
	t.setLast(report)
	t.recordStart(ctx, report)

	t.logger.Info("[RunTask] 开始运行",
		zap.String("run_id", runID),
		zap.String("trigger", trigger),
		zap.String("query", t.cfg.Query),
		zap.Int("pages", t.cfg.Pages),
	)

	// 1. 搜索：整体失败才中止
	ids, err := t.searcher.SearchIDs(ctx, t.cfg.Query, t.cfg.Pages)
	if err != nil {
		return t.fail(ctx, report, err)
	}

	// 2. 组装
	products, summary := t.batch.Run(ctx, ids)
	summary.RunID = runID
	report.Summary = summary

	// 3. 导出
	result, err := t.exporter.Export(ctx, runID, products)
	if err != nil {
		return t.fail(ctx, report, err)
	}
	report.Export = result

	report.Status = model.RunStatusFinished
	report.FinishedAt = time.Now()
	t.setLast(report)
	t.recordFinish(ctx, report)

	t.logger.Info("[RunTask] 运行完成",
		zap.String("run_id", runID),
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.String("artifact", artifactOf(result).Location),
	)
	return report, nil
}

func (t *RunTask) fail(ctx context.Context, report *RunReport, err error) (*RunReport, error) {
	report.Status = model.RunStatusFailed
	report.Error = err.Error()
	report.FinishedAt = time.Now()
	t.setLast(report)
	t.recordFinish(ctx, report)

	t.logger.Error("[RunTask] 运行失败", zap.String("run_id", report.RunID), zap.Error(err))
	return report, err
}

// ==================== 运行记录 ====================

func (t *RunTask) recordStart(ctx context.Context, r *RunReport) {
	if t.runs == nil {
		return
	}
	err := t.runs.Create(context.WithoutCancel(ctx), &model.ScrapeRun{
		RunID:        r.RunID,
		Trigger:      r.Trigger,
		Query:        r.Query,
		Status:       r.Status,
		StartedAt:    r.StartedAt,
		ExportFormat: t.exporter.Format(),
	})
	if err != nil {
		t.logger.Warn("[RunTask] 写入运行记录失败", zap.String("run_id", r.RunID), zap.Error(err))
	}
}

func (t *RunTask) recordFinish(ctx context.Context, r *RunReport) {
	if t.runs == nil {
		return
	}
	err := t.runs.Finish(context.WithoutCancel(ctx), r.RunID, r.Status, r.Summary, artifactOf(r.Export), r.Error)
	if err != nil {
		t.logger.Warn("[RunTask] 更新运行记录失败", zap.String("run_id", r.RunID), zap.Error(err))
	}
}

func artifactOf(res *service.ExportResult) model.RunArtifact {
	if res == nil {
		return model.RunArtifact{}
	}
	if res.URL != "" {
		return model.RunArtifact{Location: res.URL, Key: res.Key}
	}
	return model.RunArtifact{Location: res.Path}
}
