package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"wb_catalog_v1_202610/internal/model"
)

// ImageSize 图片规格目录
const ImageSize = "c516x688"

// ==================== card.json 结构 ====================

// optionValue 兼容字符串与数字
type optionValue string

func (v *optionValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*v = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = optionValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = optionValue(n.String())
	return nil
}

type cardOption struct {
	Name  string      `json:"name"`
	Value optionValue `json:"value"`
}

type cardPayload struct {
	Description *string      `json:"description"`
	Options     []cardOption `json:"options"`
	Media       struct {
		PhotoCount int `json:"photo_count"`
	} `json:"media"`
}

// ImageURLs 生成 <base>/images/c516x688/<n>.webp, n = 1..count
func ImageURLs(base string, count int) []string {
	if count <= 0 {
		return []string{}
	}
	urls := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		urls = append(urls, base+"/images/"+ImageSize+"/"+strconv.Itoa(i)+".webp")
	}
	return urls
}

// ParseAssets card.json -> AssetBundle
func ParseAssets(base string, payload []byte) (model.AssetBundle, error) {
	var card cardPayload
	if err := json.Unmarshal(payload, &card); err != nil {
		return model.AssetBundle{}, fmt.Errorf("解析 card.json 失败: %w", err)
	}

	chars := model.Characteristics{}
	for _, opt := range card.Options {
		if opt.Name == "" || opt.Value == "" {
			continue
		}
		chars.Set(opt.Name, string(opt.Value))
	}

	return model.AssetBundle{
		Description:     card.Description,
		Characteristics: chars,
		Images:          ImageURLs(base, card.Media.PhotoCount),
	}, nil
}

// ==================== 服务 ====================

// AssetService 描述、特征、图片解析
// 始终返回结果：找不到镜像时返回空包
type AssetService struct {
	mirrors *MirrorService
	logger  *zap.Logger
}

func NewAssetService(mirrors *MirrorService, logger *zap.Logger) *AssetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetService{mirrors: mirrors, logger: logger}
}

// Resolve 获取商品资源
func (s *AssetService) Resolve(ctx context.Context, nmID int64) model.AssetBundle {
	hit, err := s.mirrors.Locate(ctx, nmID)
	if err != nil {
		if errors.Is(err, ErrMirrorNotFound) {
			s.logger.Info("[AssetService] 未找到镜像，使用空资源", zap.Int64("nm_id", nmID))
		} else {
			s.logger.Warn("[AssetService] 镜像定位失败，使用空资源", zap.Int64("nm_id", nmID), zap.Error(err))
		}
		return model.EmptyAssetBundle()
	}

	bundle, err := ParseAssets(hit.BaseURL, hit.Payload)
	if err != nil {
		s.logger.Warn("[AssetService] card.json 结构异常，使用空资源",
			zap.Int64("nm_id", nmID),
			zap.Int("mirror", hit.Index),
			zap.Error(err),
		)
		return model.EmptyAssetBundle()
	}
	return bundle
}
