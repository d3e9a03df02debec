package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wb_catalog_v1_202610/pkg/cache"
	"wb_catalog_v1_202610/pkg/net"
)

// ==================== 配置 ====================

// MirrorConfig 镜像探测参数
type MirrorConfig struct {
	HostTemplate string // 例如 https://basket-%02d.wbbasket.ru
	Min          int    // 探测下界 (含)
	Max          int    // 探测上界 (含)
	Parallelism  int    // <=1 串行；>1 按窗口并行
	Locale       string
}

// MirrorHit 探测结果
type MirrorHit struct {
	Index   int
	BaseURL string // <host>/vol<V>/part<P>/<id>
	Payload []byte
}

// MirrorStats 探测统计
type MirrorStats struct {
	Probes     int64            `json:"probes"`
	FastPath   int64            `json:"fast_path"`
	FullProbes int64            `json:"full_probes"`
	NotFound   int64            `json:"not_found"`
	Cache      cache.CacheStats `json:"cache"`
}

// ==================== 路径计算 ====================

// PartitionKey vol = id / 100000，镜像缓存的键
func PartitionKey(nmID int64) int64 { return nmID / 100000 }

// PartOf part = id / 1000，仅用于路径
func PartOf(nmID int64) int64 { return nmID / 1000 }

// ItemPath /vol<V>/part<P>/<id>
func ItemPath(nmID int64) string {
	return fmt.Sprintf("/vol%d/part%d/%d", PartitionKey(nmID), PartOf(nmID), nmID)
}

// CardPath /vol<V>/part<P>/<id>/info/<locale>/card.json
func CardPath(nmID int64, locale string) string {
	return fmt.Sprintf("%s/info/%s/card.json", ItemPath(nmID), locale)
}

// ==================== 服务 ====================

// MirrorService 镜像定位：缓存优先，失效剔除后全量探测
type MirrorService struct {
	fetcher net.Fetcher
	cache   *cache.MirrorCache
	cfg     MirrorConfig
	logger  *zap.Logger

	probes     atomic.Int64
	fastPath   atomic.Int64
	fullProbes atomic.Int64
	notFound   atomic.Int64
}

func NewMirrorService(fetcher net.Fetcher, mirrors *cache.MirrorCache, cfg MirrorConfig, logger *zap.Logger) *MirrorService {
	if mirrors == nil {
		mirrors = cache.NewMirrorCache()
	}
	if cfg.Locale == "" {
		cfg.Locale = "ru"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MirrorService{
		fetcher: fetcher,
		cache:   mirrors,
		cfg:     cfg,
		logger:  logger,
	}
}

// Cache 共享的镜像缓存
func (s *MirrorService) Cache() *cache.MirrorCache {
	return s.cache
}

// HostURL 镜像编号 -> 主机地址
func (s *MirrorService) HostURL(index int) string {
	return fmt.Sprintf(s.cfg.HostTemplate, index)
}

// Locate 定位服务该商品的镜像
// 找不到时返回 ErrMirrorNotFound，属于正常结果
func (s *MirrorService) Locate(ctx context.Context, nmID int64) (*MirrorHit, error) {
	vol := PartitionKey(nmID)

	// 1. 缓存命中：只请求一次
	if index, ok := s.cache.Get(vol); ok {
		hit, err := s.probe(ctx, index, nmID)
		if err == nil {
			s.fastPath.Add(1)
			return hit, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// 2. 缓存失效：剔除后重新探测
		if s.cache.Evict(vol, index) {
			s.logger.Debug("[MirrorService] 缓存镜像失效，已剔除",
				zap.Int64("vol", vol),
				zap.Int("mirror", index),
				zap.Error(err),
			)
		}
	}

	// 3. 全量探测
	s.fullProbes.Add(1)
	var (
		hit *MirrorHit
		err error
	)
	if s.cfg.Parallelism > 1 {
		hit, err = s.probeWindows(ctx, nmID)
	} else {
		hit, err = s.probeSerial(ctx, nmID)
	}
	if err != nil {
		if err == ErrMirrorNotFound {
			s.notFound.Add(1)
		}
		return nil, err
	}

	s.cache.Set(vol, hit.Index)
	s.logger.Debug("[MirrorService] 探测到镜像",
		zap.Int64("nm_id", nmID),
		zap.Int64("vol", vol),
		zap.Int("mirror", hit.Index),
	)
	return hit, nil
}

// probeSerial 升序逐个探测，首个成功即返回
func (s *MirrorService) probeSerial(ctx context.Context, nmID int64) (*MirrorHit, error) {
	for index := s.cfg.Min; index <= s.cfg.Max; index++ {
		hit, err := s.probe(ctx, index, nmID)
		if err == nil {
			return hit, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
	return nil, ErrMirrorNotFound
}

// probeWindows 以 Parallelism 为窗口升序探测
// 窗口内编号最小的成功者胜出，成功后取消更大编号的探测
func (s *MirrorService) probeWindows(ctx context.Context, nmID int64) (*MirrorHit, error) {
	for start := s.cfg.Min; start <= s.cfg.Max; start += s.cfg.Parallelism {
		end := min(start+s.cfg.Parallelism-1, s.cfg.Max)
		n := end - start + 1

		results := make([]*MirrorHit, n)
		ctxs := make([]context.Context, n)
		cancels := make([]context.CancelFunc, n)
		for k := 0; k < n; k++ {
			ctxs[k], cancels[k] = context.WithCancel(ctx)
		}

		var g errgroup.Group
		for k := 0; k < n; k++ {
			g.Go(func() error {
				hit, err := s.probe(ctxs[k], start+k, nmID)
				if err != nil {
					return nil
				}
				results[k] = hit
				for j := k + 1; j < n; j++ {
					cancels[j]()
				}
				return nil
			})
		}
		_ = g.Wait()
		for _, cancel := range cancels {
			cancel()
		}

		for _, hit := range results {
			if hit != nil {
				return hit, nil
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
	return nil, ErrMirrorNotFound
}

// probe 请求单个镜像的 card.json，空对象视为失败
func (s *MirrorService) probe(ctx context.Context, index int, nmID int64) (*MirrorHit, error) {
	s.probes.Add(1)
	host := s.HostURL(index)

	body, err := s.fetcher.Fetch(ctx, host+CardPath(nmID, s.cfg.Locale), nil)
	if err != nil {
		return nil, err
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil || len(probe) == 0 {
		return nil, fmt.Errorf("镜像 %d 返回空数据", index)
	}

	return &MirrorHit{
		Index:   index,
		BaseURL: host + ItemPath(nmID),
		Payload: body,
	}, nil
}

// Stats 探测统计快照
func (s *MirrorService) Stats() MirrorStats {
	return MirrorStats{
		Probes:     s.probes.Load(),
		FastPath:   s.fastPath.Load(),
		FullProbes: s.fullProbes.Load(),
		NotFound:   s.notFound.Load(),
		Cache:      s.cache.Stats(),
	}
}
