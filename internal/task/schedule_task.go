package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"wb_catalog_v1_202610/internal/model"
)

// ScheduleTask 定时触发完整运行
// 上一次运行未结束时跳过本次触发
type ScheduleTask struct {
	runTask *RunTask
	spec    string
	timeout time.Duration
	Cron    *cron.Cron
	logger  *zap.Logger
}

// NewScheduleTask spec 为带秒的 cron 表达式，例如 "0 0 */6 * * *"
func NewScheduleTask(runTask *RunTask, spec string, timeout time.Duration, logger *zap.Logger) *ScheduleTask {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleTask{
		runTask: runTask,
		spec:    spec,
		timeout: timeout,
		Cron:    cron.New(cron.WithSeconds()), // 支持秒级控制
		logger:  logger,
	}
}

// Start 注册并启动定时任务
func (s *ScheduleTask) Start() error {
	if _, err := s.Cron.AddFunc(s.spec, s.Execute); err != nil {
		return fmt.Errorf("无效的定时表达式 %q: %w", s.spec, err)
	}
	s.Cron.Start()
	s.logger.Info("[ScheduleTask] 定时任务已启动", zap.String("spec", s.spec))
	return nil
}

// Stop 停止并等待正在执行的任务结束
func (s *ScheduleTask) Stop() {
	ctx := s.Cron.Stop()
	<-ctx.Done()
	s.logger.Info("[ScheduleTask] 已停止")
}

// Next 下一次触发时间
func (s *ScheduleTask) Next() time.Time {
	entries := s.Cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Execute 单次触发
func (s *ScheduleTask) Execute() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	_, err := s.runTask.Execute(ctx, model.TriggerSchedule)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Info("[ScheduleTask] 上一次运行尚未结束，跳过本次触发")
	case errors.Is(err, ErrClosed):
		s.logger.Info("[ScheduleTask] 服务关闭中，跳过本次触发")
	}
}
