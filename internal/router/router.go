package router

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "wb_catalog_v1_202610/docs"
	"wb_catalog_v1_202610/internal/controller"
	"wb_catalog_v1_202610/internal/middleware"
)

// Options 路由参数
type Options struct {
	TriggerCooldown time.Duration
	Logger          *zap.Logger
}

// New 创建 gin 引擎并注册路由
func New(runCtl *controller.RunController, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	InitRoutes(r, runCtl, middleware.NewTriggerLimiter(), opts.TriggerCooldown)
	return r
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, runCtl *controller.RunController, limiter *middleware.TriggerLimiter, cooldown time.Duration) {
	// 访问 http://localhost:8080/swagger/index.html 即可查看
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api")
	{
		// GET /api/health
		api.GET("/health", runCtl.Health)

		// run 运行管理
		runs := api.Group("/runs")
		{
			// POST /api/runs 触发运行，冷却期内返回 429
			runs.POST("", middleware.TriggerRateLimit(limiter, middleware.TriggerKey, cooldown), runCtl.Trigger)
			runs.GET("", runCtl.List)
			runs.GET("/latest", runCtl.Latest)
			runs.GET("/:run_id", runCtl.Get)
			runs.GET("/:run_id/products", runCtl.Products)
			runs.GET("/:run_id/products/:nm_id", runCtl.Product)
		}

		// GET /api/mirrors 镜像缓存
		api.GET("/mirrors", runCtl.Mirrors)
	}
}
