package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"wb_catalog_v1_202610/internal/model"
)

// RunRepository 运行记录仓储
type RunRepository interface {
	Create(ctx context.Context, run *model.ScrapeRun) error
	Finish(ctx context.Context, runID, status string, summary *model.RunSummary, artifact model.RunArtifact, errMsg string) error
	GetByRunID(ctx context.Context, runID string) (*model.ScrapeRun, error)
	Latest(ctx context.Context) (*model.ScrapeRun, error)
	List(ctx context.Context, page, pageSize int) ([]model.ScrapeRun, int64, error)
}

type runRepo struct {
	db *gorm.DB
}

// NewRunRepository 创建运行记录仓储
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepo{db: db}
}

func (r *runRepo) Create(ctx context.Context, run *model.ScrapeRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Finish 写入最终状态与统计
func (r *runRepo) Finish(ctx context.Context, runID, status string, summary *model.RunSummary, artifact model.RunArtifact, errMsg string) error {
	var run model.ScrapeRun
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		return err
	}

	now := time.Now()
	run.Status = status
	run.FinishedAt = &now
	run.Artifact = artifact.Location
	run.ArtifactKey = artifact.Key
	run.ErrorMsg = errMsg
	run.ApplySummary(summary)

	return r.db.WithContext(ctx).Save(&run).Error
}

func (r *runRepo) GetByRunID(ctx context.Context, runID string) (*model.ScrapeRun, error) {
	var run model.ScrapeRun
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *runRepo) Latest(ctx context.Context) (*model.ScrapeRun, error) {
	var run model.ScrapeRun
	if err := r.db.WithContext(ctx).Order("started_at DESC, id DESC").First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *runRepo) List(ctx context.Context, page, pageSize int) ([]model.ScrapeRun, int64, error) {
	var runs []model.ScrapeRun
	var total int64

	query := r.db.WithContext(ctx).Model(&model.ScrapeRun{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	err := query.
		Order("started_at DESC, id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&runs).Error

	return runs, total, err
}
