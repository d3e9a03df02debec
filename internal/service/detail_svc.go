package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wb_catalog_v1_202610/internal/model"
	"wb_catalog_v1_202610/pkg/net"
)

// ==================== 错误定义 ====================

// ResolveError 单个商品解析的业务结果
// 调用方据此分类统计，均视为 "无数据"
type ResolveError string

func (e ResolveError) Error() string { return string(e) }

const (
	ErrDetailNotFound ResolveError = "detail not found"
	ErrOutOfStock     ResolveError = "out of stock"
	ErrMirrorNotFound ResolveError = "mirror not found"
)

// ==================== 配置 ====================

// DetailConfig 详情接口参数
type DetailConfig struct {
	Endpoint string
	AppType  int
	Currency string
	Dest     int64
}

// ==================== 响应结构 ====================

type detailPrice struct {
	Product int64 `json:"product"`
}

type detailStock struct {
	Qty int `json:"qty"`
}

type detailSize struct {
	Name   string        `json:"name"`
	Price  *detailPrice  `json:"price"`
	Stocks []detailStock `json:"stocks"`
}

type detailProduct struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Supplier     string       `json:"supplier"`
	SupplierID   int64        `json:"supplierId"`
	ReviewRating float64      `json:"reviewRating"`
	Feedbacks    int          `json:"feedbacks"`
	Sizes        []detailSize `json:"sizes"`
}

// detailEnvelope 两种响应外壳：
//
//	{"products": [...]}
//	{"data": {"products": [...]}}
type detailEnvelope struct {
	Products []detailProduct `json:"products"`
	Data     *struct {
		Products []detailProduct `json:"products"`
	} `json:"data"`
}

// decodeDetail 归一化外壳，返回商品列表
func decodeDetail(body []byte) ([]detailProduct, error) {
	var env detailEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("解析详情响应失败: %w", err)
	}
	if len(env.Products) > 0 {
		return env.Products, nil
	}
	if env.Data != nil {
		return env.Data.Products, nil
	}
	return nil, nil
}

// ==================== 计算 ====================

// averagePrice 各尺码非零价格 (最小货币单位) 的均值 / 100，保留两位
func averagePrice(sizes []detailSize) decimal.Decimal {
	sum := decimal.Zero
	n := int64(0)
	for _, s := range sizes {
		if s.Price == nil || s.Price.Product == 0 {
			continue
		}
		sum = sum.Add(decimal.NewFromInt(s.Price.Product))
		n++
	}
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(n * 100)).Round(2)
}

// totalStock 所有尺码、所有仓库库存之和
func totalStock(sizes []detailSize) int {
	total := 0
	for _, s := range sizes {
		for _, st := range s.Stocks {
			total += st.Qty
		}
	}
	return total
}

func sizeNames(sizes []detailSize) []string {
	names := make([]string, 0, len(sizes))
	for _, s := range sizes {
		names = append(names, s.Name)
	}
	return names
}

// ==================== 服务 ====================

// DetailService 商品详情解析
type DetailService struct {
	fetcher net.Fetcher
	cfg     DetailConfig
	logger  *zap.Logger
}

func NewDetailService(fetcher net.Fetcher, cfg DetailConfig, logger *zap.Logger) *DetailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailService{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Resolve 获取商品详情
// 返回 ErrDetailNotFound / ErrOutOfStock 或包装后的请求错误
func (s *DetailService) Resolve(ctx context.Context, nmID int64) (*model.DetailRecord, error) {
	params := url.Values{}
	params.Set("appType", strconv.Itoa(s.cfg.AppType))
	params.Set("curr", s.cfg.Currency)
	params.Set("dest", strconv.FormatInt(s.cfg.Dest, 10))
	params.Set("nm", strconv.FormatInt(nmID, 10))

	body, err := s.fetcher.Fetch(ctx, s.cfg.Endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("获取详情失败 nm=%d: %w", nmID, err)
	}

	products, err := decodeDetail(body)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrDetailNotFound
	}

	p := products[0]
	stock := totalStock(p.Sizes)
	if stock == 0 {
		return nil, ErrOutOfStock
	}
	if p.Name == "" {
		return nil, ErrDetailNotFound
	}

	id := p.ID
	if id == 0 {
		id = nmID
	}

	return &model.DetailRecord{
		ID:         id,
		Name:       p.Name,
		Price:      averagePrice(p.Sizes),
		SellerName: p.Supplier,
		SellerID:   p.SupplierID,
		Rating:     p.ReviewRating,
		Feedbacks:  p.Feedbacks,
		Sizes:      sizeNames(p.Sizes),
		Stock:      stock,
	}, nil
}
