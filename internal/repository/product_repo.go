package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wb_catalog_v1_202610/internal/model"
)

// ==================== 接口定义 ====================

// ProductRepository 商品仓储接口
type ProductRepository interface {
	// 批量操作
	BatchUpsert(ctx context.Context, records []*model.ProductRecord) error

	// 查询
	GetByRunAndNmID(ctx context.Context, runID string, nmID int64) (*model.ProductRecord, error)
	ListByRun(ctx context.Context, runID string, page, pageSize int) ([]model.ProductRecord, int64, error)
}

// ==================== 仓储实现 ====================

// upsertBatchSize 单条 INSERT 的行数上限
const upsertBatchSize = 200

type productRepo struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepo{db: db}
}

// BatchUpsert 按 (run_id, nm_id) 幂等写入
func (r *productRepo) BatchUpsert(ctx context.Context, records []*model.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "run_id"}, {Name: "nm_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "url", "price", "description",
			"seller_name", "seller_url",
			"stock", "rating", "feedbacks",
			"sizes", "images", "characteristics",
			"degraded", "updated_at",
		}),
	}).CreateInBatches(records, upsertBatchSize).Error
}

func (r *productRepo) GetByRunAndNmID(ctx context.Context, runID string, nmID int64) (*model.ProductRecord, error) {
	var record model.ProductRecord
	err := r.db.WithContext(ctx).
		Where("run_id = ? AND nm_id = ?", runID, nmID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *productRepo) ListByRun(ctx context.Context, runID string, page, pageSize int) ([]model.ProductRecord, int64, error) {
	var records []model.ProductRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&model.ProductRecord{}).Where("run_id = ?", runID)
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
		Order("nm_id ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&records).Error

	return records, total, err
}
