package cache

import (
	"sort"
	"sync"
	"sync/atomic"
)

// MirrorCache 分区 (vol) -> 镜像编号
// 一次批处理内所有协程共享；写少读多，使用 sync.Map 保证并发安全
type MirrorCache struct {
	items sync.Map // int64 -> int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewMirrorCache 创建空缓存
func NewMirrorCache() *MirrorCache {
	return &MirrorCache{}
}

// Get 查询分区对应的镜像
func (c *MirrorCache) Get(partition int64) (int, bool) {
	val, ok := c.items.Load(partition)
	if !ok {
		c.misses.Add(1)
		return 0, false
	}
	c.hits.Add(1)
	return val.(int), true
}

// Set 记录分区对应的镜像 (并发写入时后写者生效)
func (c *MirrorCache) Set(partition int64, mirror int) {
	c.items.Store(partition, mirror)
}

// Evict 仅当缓存值仍为 mirror 时删除
// 避免把其他协程刚写入的新镜像误删
func (c *MirrorCache) Evict(partition int64, mirror int) bool {
	if c.items.CompareAndDelete(partition, mirror) {
		c.evictions.Add(1)
		return true
	}
	return false
}

// Len 缓存条目数
func (c *MirrorCache) Len() int {
	n := 0
	c.items.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// MirrorEntry 快照条目
type MirrorEntry struct {
	Partition int64 `json:"partition"`
	Mirror    int   `json:"mirror"`
}

// Snapshot 按分区升序导出
func (c *MirrorCache) Snapshot() []MirrorEntry {
	entries := make([]MirrorEntry, 0)
	c.items.Range(func(k, v any) bool {
		entries = append(entries, MirrorEntry{Partition: k.(int64), Mirror: v.(int)})
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Partition < entries[j].Partition })
	return entries
}

// CacheStats 命中统计
type CacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Stats 命中统计快照
func (c *MirrorCache) Stats() CacheStats {
	return CacheStats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
