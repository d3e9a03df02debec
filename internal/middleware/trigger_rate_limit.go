package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// TriggerKey 触发运行的冷却键
const TriggerKey = "global:run"

// TriggerRateLimit 触发冷却中间件
//
// 使用示例:
//
//	api.POST("/runs",
//	    middleware.TriggerRateLimit(limiter, middleware.TriggerKey, 5*time.Minute),
//	    runCtl.Trigger,
//	)
func TriggerRateLimit(limiter *TriggerLimiter, key string, interval time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if interval <= 0 {
			c.Next()
			return
		}

		result := limiter.Check(key, interval)
		if !result.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", retrySeconds(result.RetryAfter)))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    429,
				"message": formatRetryMessage(result.RetryAfter),
				"data": gin.H{
					"retry_after": retrySeconds(result.RetryAfter),
				},
			})
			c.Abort()
			return
		}

		c.Next()

		// 下游拒绝 (例如 409 运行中) 不占用冷却
		if c.Writer.Status() >= http.StatusBadRequest {
			limiter.Release(key, result.At)
		}
	}
}

// retrySeconds 向上取整，至少 1 秒
func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// formatRetryMessage 格式化重试提示信息
func formatRetryMessage(d time.Duration) string {
	seconds := retrySeconds(d)

	if seconds < 60 {
		return fmt.Sprintf("触发冷却中，请 %d 秒后重试", seconds)
	}

	minutes := seconds / 60
	remainingSeconds := seconds % 60

	if remainingSeconds == 0 {
		return fmt.Sprintf("触发冷却中，请 %d 分钟后重试", minutes)
	}

	return fmt.Sprintf("触发冷却中，请 %d 分 %d 秒后重试", minutes, remainingSeconds)
}
