package middleware

import (
	"sync"
	"time"
)

// ==================== TriggerLimiter 触发冷却 ====================

// TriggerLimiter 手动触发冷却器
// 防止频繁触发完整运行，对远端造成压力
type TriggerLimiter struct {
	locks sync.Map // key -> *lockEntry
	now   func() time.Time
}

// lockEntry 锁条目
type lockEntry struct {
	lastTime time.Time
	mu       sync.Mutex
}

// NewTriggerLimiter 创建冷却器
func NewTriggerLimiter() *TriggerLimiter {
	return &TriggerLimiter{now: time.Now}
}

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool          // 是否允许
	RetryAfter time.Duration // 剩余冷却时间
	At         time.Time     // 放行时记录的触发时间，用于 Release
}

// Check 检查并记录本次执行
func (r *TriggerLimiter) Check(key string, interval time.Duration) CheckResult {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := r.now()
	if !entry.lastTime.IsZero() {
		if elapsed := now.Sub(entry.lastTime); elapsed < interval {
			return CheckResult{Allowed: false, RetryAfter: interval - elapsed}
		}
	}

	entry.lastTime = now
	return CheckResult{Allowed: true, At: now}
}

// Release 撤销一次放行：仅当记录仍是 at 时清除
// 期间已有新的放行则保持不变
func (r *TriggerLimiter) Release(key string, at time.Time) bool {
	actual, ok := r.locks.Load(key)
	if !ok {
		return false
	}

	entry := actual.(*lockEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.lastTime.Equal(at) {
		return false
	}
	entry.lastTime = time.Time{}
	return true
}
