package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"wb_catalog_v1_202610/pkg/net"
)

// ErrSearchFailed 所有搜索页均失败，整个批次中止
const ErrSearchFailed ResolveError = "catalog search failed"

// SearchConfig 搜索接口参数
type SearchConfig struct {
	Endpoint string
	Locale   string
	AppType  int
	Currency string
	Dest     int64
	Sort     string
	// Filters 附加筛选参数 (评分、价格区间、品类属性等)，原样透传
	// 与固定参数同名时以固定参数为准
	Filters map[string]string
}


type searchEntry struct {
	ID int64 `json:"id"`
}

type searchEnvelope struct {
	Products []searchEntry `json:"products"`
	Data     *struct {
		Products []searchEntry `json:"products"`
	} `json:"data"`
}

func decodeSearch(body []byte) ([]searchEntry, error) {
	var env searchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("解析搜索响应失败: %w", err)
	}
	if len(env.Products) > 0 {
		return env.Products, nil
	}
	if env.Data != nil {
		return env.Data.Products, nil
	}
	return nil, nil
}

// SearchService 目录搜索，只取商品 ID
// 价格与评分以详情接口为准，搜索结果中的同名字段忽略
type SearchService struct {
	fetcher net.Fetcher
	cfg     SearchConfig
	logger  *zap.Logger
}

func NewSearchService(fetcher net.Fetcher, cfg SearchConfig, logger *zap.Logger) *SearchService {
	if cfg.Sort == "" {
		cfg.Sort = "popular"
	}
	if cfg.Locale == "" {
		cfg.Locale = "ru"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchService{fetcher: fetcher, cfg: cfg, logger: logger}
}

func (s *SearchService) params(query string, page int) url.Values {
	params := url.Values{}
	for k, v := range s.cfg.Filters {
		if k != "" && v != "" {
			params.Set(k, v)
		}
	}
	params.Set("ab_testing", "false")
	params.Set("appType", strconv.Itoa(s.cfg.AppType))
	params.Set("curr", s.cfg.Currency)
	params.Set("dest", strconv.FormatInt(s.cfg.Dest, 10))
	params.Set("hide_vflags", "4294967296")
	params.Set("inheritFilters", "false")
	params.Set("lang", s.cfg.Locale)
	params.Set("page", strconv.Itoa(page))
	params.Set("query", query)
	params.Set("resultset", "catalog")
	params.Set("sort", s.cfg.Sort)
	params.Set("spp", "30")
	params.Set("suppressSpellcheck", "false")
	return params
}

// SearchIDs 按页搜索，返回去重后的 ID (按首次出现顺序)
// 单页失败跳过，全部失败返回 ErrSearchFailed；空页停止翻页
func (s *SearchService) SearchIDs(ctx context.Context, query string, pages int) ([]int64, error) {
	if pages <= 0 {
		pages = 1
	}

	var (
		ids     []int64
		tried   int
		failed  int
		lastErr error
	)
	seen := make(map[int64]struct{})

	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tried++

		body, err := s.fetcher.Fetch(ctx, s.cfg.Endpoint, s.params(query, page))
		if err == nil {
			var entries []searchEntry
			entries, err = decodeSearch(body)
			if err == nil {
				if len(entries) == 0 {
					s.logger.Info("[SearchService] 空页，停止翻页", zap.Int("page", page))
					break
				}
				for _, e := range entries {
					if e.ID <= 0 {
						continue
					}
					if _, ok := seen[e.ID]; ok {
						continue
					}
					seen[e.ID] = struct{}{}
					ids = append(ids, e.ID)
				}
				continue
			}
		}

		failed++
		lastErr = err
		s.logger.Warn("[SearchService] 搜索页失败，跳过",
			zap.String("query", query),
			zap.Int("page", page),
			zap.Error(err),
		)
	}

	if failed > 0 && failed == tried {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, lastErr)
	}

	s.logger.Info("[SearchService] 搜索完成",
		zap.String("query", query),
		zap.Int("pages", tried),
		zap.Int("ids", len(ids)),
	)
	return ids, nil
}
