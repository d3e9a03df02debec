package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ==================== 领域对象 ====================

// Characteristic 单条商品特征
type Characteristic struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Characteristics 有序特征表，名称唯一
// 重复名称覆盖原位置的值，不改变顺序
type Characteristics []Characteristic

// Set 写入特征
func (c *Characteristics) Set(name, value string) {
	for i := range *c {
		if (*c)[i].Name == name {
			(*c)[i].Value = value
			return
		}
	}
	*c = append(*c, Characteristic{Name: name, Value: value})
}

// Get 按名称读取
func (c Characteristics) Get(name string) (string, bool) {
	for _, ch := range c {
		if ch.Name == name {
			return ch.Value, true
		}
	}
	return "", false
}

// Map 转为无序 map
func (c Characteristics) Map() map[string]string {
	m := make(map[string]string, len(c))
	for _, ch := range c {
		m[ch.Name] = ch.Value
	}
	return m
}

// String 渲染为 "k: v; k: v"
func (c Characteristics) String() string {
	parts := make([]string, 0, len(c))
	for _, ch := range c {
		parts = append(parts, fmt.Sprintf("%s: %s", ch.Name, ch.Value))
	}
	return strings.Join(parts, "; ")
}

// DetailRecord 详情接口返回的权威数据
type DetailRecord struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	SellerName string          `json:"seller_name"`
	SellerID   int64           `json:"seller_id"`
	Rating     float64         `json:"rating"`
	Feedbacks  int             `json:"feedbacks"`
	Sizes      []string        `json:"sizes"`
	Stock      int             `json:"stock"`
}

// AssetBundle 镜像上的描述 / 特征 / 图片
// 找不到镜像时为空包，Degraded 标记降级
type AssetBundle struct {
	Description     *string         `json:"description"`
	Characteristics Characteristics `json:"characteristics"`
	Images          []string        `json:"images"`
	Degraded        bool            `json:"-"`
}

// EmptyAssetBundle 降级用空包
func EmptyAssetBundle() AssetBundle {
	return AssetBundle{
		Characteristics: Characteristics{},
		Images:          []string{},
		Degraded:        true,
	}
}

// Product 最终输出单元
type Product struct {
	URL             string          `json:"url"`
	Article         int64           `json:"article"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Description     *string         `json:"description"`
	Images          []string        `json:"images"`
	Characteristics Characteristics `json:"characteristics"`
	SellerName      string          `json:"seller_name"`
	SellerURL       string          `json:"seller_url"`
	Sizes           []string        `json:"sizes"`
	Stock           int             `json:"stock"`
	Rating          float64         `json:"rating"`
	Feedbacks       int             `json:"feedbacks"`
	Degraded        bool            `json:"degraded"`
}

// ==================== 持久化 ====================

// ProductRecord 导出到数据库的商品行，(run_id, nm_id) 唯一
type ProductRecord struct {
	BaseModel
	RunID string `gorm:"size:36;not null;uniqueIndex:idx_run_nm" json:"run_id"`
	NmID  int64  `gorm:"not null;uniqueIndex:idx_run_nm;index" json:"nm_id"`

	// --- 基本信息 ---
	Name        string          `gorm:"size:512;not null" json:"name"`
	URL         string          `gorm:"size:255" json:"url"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"price"`
	Description *string         `gorm:"type:text" json:"description"`

	// --- 卖家 ---
	SellerName string `gorm:"size:255" json:"seller_name"`
	SellerURL  string `gorm:"size:255" json:"seller_url"`

	// --- 库存与评价 ---
	Stock     int     `gorm:"default:0" json:"stock"`
	Rating    float64 `gorm:"default:0" json:"rating"`
	Feedbacks int     `gorm:"default:0" json:"feedbacks"`

	// --- 列表类数据 ---
	Sizes           datatypes.JSON `json:"sizes"`
	Images          datatypes.JSON `json:"images"`
	Characteristics datatypes.JSON `json:"characteristics"`
	Degraded        bool           `gorm:"default:false" json:"degraded"`
}

func (ProductRecord) TableName() string {
	return "products"
}

// NewProductRecord 领域对象 -> 数据库行
func NewProductRecord(runID string, p *Product) (*ProductRecord, error) {
	sizes, err := json.Marshal(nonNil(p.Sizes))
	if err != nil {
		return nil, err
	}
	images, err := json.Marshal(nonNil(p.Images))
	if err != nil {
		return nil, err
	}
	chars := p.Characteristics
	if chars == nil {
		chars = Characteristics{}
	}
	charsJSON, err := json.Marshal(chars)
	if err != nil {
		return nil, err
	}

	return &ProductRecord{
		RunID:           runID,
		NmID:            p.Article,
		Name:            p.Name,
		URL:             p.URL,
		Price:           p.Price,
		Description:     p.Description,
		SellerName:      p.SellerName,
		SellerURL:       p.SellerURL,
		Stock:           p.Stock,
		Rating:          p.Rating,
		Feedbacks:       p.Feedbacks,
		Sizes:           datatypes.JSON(sizes),
		Images:          datatypes.JSON(images),
		Characteristics: datatypes.JSON(charsJSON),
		Degraded:        p.Degraded,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
