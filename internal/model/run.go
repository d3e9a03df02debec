package model

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel 持久化模型公共字段 (products / scrape_runs)
type BaseModel struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// 运行触发来源
const (
	TriggerCLI      = "cli"
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
)

// 运行状态
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusFailed   = "failed"
)

// RunSummary 一次批处理的统计
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Attempted   int           `json:"attempted"`
	Succeeded   int           `json:"succeeded"`
	NotFound    int           `json:"not_found"`
	OutOfStock  int           `json:"out_of_stock"`
	FetchFailed int           `json:"fetch_failed"`
	Degraded    int           `json:"degraded"`
	Panicked    int           `json:"panicked"`
	Cancelled   int           `json:"cancelled"`
	Duration    time.Duration `json:"duration"`
}

// Absent 未产出商品的数量
func (s *RunSummary) Absent() int {
	return s.Attempted - s.Succeeded
}

// ScrapeRun 运行记录
type ScrapeRun struct {
	BaseModel
	RunID      string     `gorm:"size:36;uniqueIndex;not null" json:"run_id"`
	Trigger    string     `gorm:"size:20;index" json:"trigger"`
	Query      string     `gorm:"size:255" json:"query"`
	Status     string     `gorm:"size:20;index" json:"status"`
	StartedAt  time.Time  `gorm:"index" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`

	// --- 统计 ---
	Attempted   int   `gorm:"default:0" json:"attempted"`
	Succeeded   int   `gorm:"default:0" json:"succeeded"`
	NotFound    int   `gorm:"default:0" json:"not_found"`
	OutOfStock  int   `gorm:"default:0" json:"out_of_stock"`
	FetchFailed int   `gorm:"default:0" json:"fetch_failed"`
	Degraded    int   `gorm:"default:0" json:"degraded"`
	Panicked    int   `gorm:"default:0" json:"panicked"`
	Cancelled   int   `gorm:"default:0" json:"cancelled"`
	DurationMs  int64 `gorm:"default:0" json:"duration_ms"`

	// --- 产物 ---
	ExportFormat string `gorm:"size:10" json:"export_format"`
	Artifact     string `gorm:"size:512" json:"artifact"`
	ArtifactKey  string `gorm:"size:512" json:"artifact_key,omitempty"` // 上传到存储后的对象 key
	ErrorMsg     string `gorm:"type:text" json:"error_msg,omitempty"`
}

// RunArtifact 导出产物位置
// Location 为公开地址或本地路径，Key 仅在上传到存储后非空
type RunArtifact struct {
	Location string
	Key      string
}

func (ScrapeRun) TableName() string {
	return "scrape_runs"
}

// ApplySummary 写入统计字段
func (r *ScrapeRun) ApplySummary(s *RunSummary) {
	if s == nil {
		return
	}
	r.Attempted = s.Attempted
	r.Succeeded = s.Succeeded
	r.NotFound = s.NotFound
	r.OutOfStock = s.OutOfStock
	r.FetchFailed = s.FetchFailed
	r.Degraded = s.Degraded
	r.Panicked = s.Panicked
	r.Cancelled = s.Cancelled
	r.DurationMs = s.Duration.Milliseconds()
}
