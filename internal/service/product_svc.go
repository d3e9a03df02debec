package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"wb_catalog_v1_202610/internal/model"
)

// DetailResolver 详情解析
type DetailResolver interface {
	Resolve(ctx context.Context, nmID int64) (*model.DetailRecord, error)
}

// AssetResolver 资源解析，不返回错误
type AssetResolver interface {
	Resolve(ctx context.Context, nmID int64) model.AssetBundle
}

var (
	_ DetailResolver = (*DetailService)(nil)
	_ AssetResolver  = (*AssetService)(nil)
)

// CatalogURL 商品页地址
func CatalogURL(site string, nmID int64) string {
	return fmt.Sprintf("%s/catalog/%d/detail.aspx", strings.TrimRight(site, "/"), nmID)
}

// SellerURL 卖家页地址
func SellerURL(site string, sellerID int64) string {
	return fmt.Sprintf("%s/seller/%d", strings.TrimRight(site, "/"), sellerID)
}

// ProductService 单个商品组装
// 全局信号量限制同时组装的商品数，详情与资源两个阶段共用一个名额
type ProductService struct {
	details DetailResolver
	assets  AssetResolver
	sem     *semaphore.Weighted
	siteURL string
	logger  *zap.Logger

	inflight atomic.Int64
	peak     atomic.Int64
}

func NewProductService(details DetailResolver, assets AssetResolver, siteURL string, concurrency int, logger *zap.Logger) *ProductService {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{
		details: details,
		assets:  assets,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		siteURL: siteURL,
		logger:  logger,
	}
}

// Assemble 组装一个商品
// 详情缺失时直接返回错误，不再请求资源
func (s *ProductService) Assemble(ctx context.Context, nmID int64) (*model.Product, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	s.enter()
	defer s.inflight.Add(-1)

	detail, err := s.details.Resolve(ctx, nmID)
	if err != nil {
		s.logger.Warn("[ProductService] 未找到商品卡片",
			zap.Int64("nm_id", nmID),
			zap.Error(err),
		)
		return nil, err
	}

	assets := s.assets.Resolve(ctx, detail.ID)

	return &model.Product{
		URL:             CatalogURL(s.siteURL, detail.ID),
		Article:         detail.ID,
		Name:            detail.Name,
		Price:           detail.Price,
		Description:     assets.Description,
		Images:          assets.Images,
		Characteristics: assets.Characteristics,
		SellerName:      detail.SellerName,
		SellerURL:       SellerURL(s.siteURL, detail.SellerID),
		Sizes:           detail.Sizes,
		Stock:           detail.Stock,
		Rating:          detail.Rating,
		Feedbacks:       detail.Feedbacks,
		Degraded:        assets.Degraded,
	}, nil
}

func (s *ProductService) enter() {
	cur := s.inflight.Add(1)
	for {
		p := s.peak.Load()
		if cur <= p || s.peak.CompareAndSwap(p, cur) {
			return
		}
	}
}

// Inflight 当前占用名额数
func (s *ProductService) Inflight() int64 {
	return s.inflight.Load()
}

// PeakInflight 历史最高占用
func (s *ProductService) PeakInflight() int64 {
	return s.peak.Load()
}
