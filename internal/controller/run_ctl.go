package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"wb_catalog_v1_202610/internal/model"
	"wb_catalog_v1_202610/internal/repository"
	"wb_catalog_v1_202610/internal/service"
	"wb_catalog_v1_202610/internal/task"
)

// RunTrigger 运行触发器
type RunTrigger interface {
	Start(trigger string) (string, error)
	IsRunning() bool
	Last() *task.RunReport
}

var _ RunTrigger = (*task.RunTask)(nil)

// downloadURLTTL 产物下载链接有效期
const downloadURLTTL = 15 * time.Minute

type RunController struct {
	runTask  RunTrigger
	runs     repository.RunRepository     // 未配置数据库时为 nil
	products repository.ProductRepository // 同上
	mirrors  *service.MirrorService
	storage  service.StorageProvider // 未配置存储时为 nil
}

func NewRunController(
	runTask RunTrigger,
	runs repository.RunRepository,
	products repository.ProductRepository,
	mirrors *service.MirrorService,
	storage service.StorageProvider,
) *RunController {
	return &RunController{runTask: runTask, runs: runs, products: products, mirrors: mirrors, storage: storage}
}

// runDetail 运行记录 + 产物下载链接
type runDetail struct {
	*model.ScrapeRun
	DownloadURL string `json:"download_url,omitempty"`
}

// pageParams page / page_size，page_size 上限 100
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// Health 健康检查
// @Router /api/health [get]
func (h *RunController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": h.runTask.IsRunning(),
	})
}

// Trigger 异步触发一次完整运行
// @Success 202 {object} map[string]string "{"run_id": "..."}"
// @Failure 409 {object} map[string]string "已有运行中的任务"
// @Failure 503 {object} map[string]string "服务关闭中"
// @Router /api/runs [post]
func (h *RunController) Trigger(c *gin.Context) {
	runID, err := h.runTask.Start(model.TriggerAPI)
	if err != nil {
		if errors.Is(err, task.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "已有运行中的任务"})
			return
		}
		if errors.Is(err, task.ErrClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "服务关闭中"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// Latest 最近一次运行 (内存)
// @Router /api/runs/latest [get]
func (h *RunController) Latest(c *gin.Context) {
	report := h.runTask.Last()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "暂无运行记录"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// List 运行记录列表 (数据库)
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Router /api/runs [get]
func (h *RunController) List(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置数据库"})
		return
	}

	page, pageSize := pageParams(c)
	runs, total, err := h.runs.List(c.Request.Context(), page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": runs, "total": total})
}

// Get 单次运行记录 (数据库)
// 产物已上传到存储时附带限时下载链接
// @Param run_id path string true "运行 ID"
// @Success 200 {object} runDetail
// @Failure 404 {object} map[string]string "运行记录不存在"
// @Router /api/runs/{run_id} [get]
func (h *RunController) Get(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置数据库"})
		return
	}

	run, err := h.runs.GetByRunID(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "运行记录不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	detail := runDetail{ScrapeRun: run}
	if h.storage != nil && run.ArtifactKey != "" {
		detail.DownloadURL, err = h.storage.PresignURL(c.Request.Context(), run.ArtifactKey, downloadURLTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "生成下载链接失败: " + err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, detail)
}

// Products 某次运行写入数据库的商品 (export_format=db)
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Router /api/runs/{run_id}/products [get]
func (h *RunController) Products(c *gin.Context) {
	if h.products == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置数据库"})
		return
	}

	page, pageSize := pageParams(c)
	records, total, err := h.products.ListByRun(c.Request.Context(), c.Param("run_id"), page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": records, "total": total})
}

// Product 某次运行中的单个商品
// @Param run_id path string true "运行 ID"
// @Param nm_id path int true "商品编号"
// @Failure 404 {object} map[string]string "商品不存在"
// @Router /api/runs/{run_id}/products/{nm_id} [get]
func (h *RunController) Product(c *gin.Context) {
	if h.products == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置数据库"})
		return
	}

	nmID, err := strconv.ParseInt(c.Param("nm_id"), 10, 64)
	if err != nil || nmID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的商品编号"})
		return
	}

	record, err := h.products.GetByRunAndNmID(c.Request.Context(), c.Param("run_id"), nmID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "商品不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

// Mirrors 镜像缓存快照
// @Router /api/mirrors [get]
func (h *RunController) Mirrors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"entries": h.mirrors.Cache().Snapshot(),
		"stats":   h.mirrors.Stats(),
	})
}
