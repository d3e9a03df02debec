package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"wb_catalog_v1_202610/internal/model"
	"wb_catalog_v1_202610/internal/repository"
)

// 导出格式
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
	FormatDB   = "db"
)

// ExportHeader 表头，与 Row 的列一一对应
var ExportHeader = []string{
	"URL", "Артикул", "Название", "Цена", "Описание", "Продавец", "URL продавца",
	"Размеры", "Остаток", "Рейтинг", "Отзывы", "Изображения", "Характеристики",
}

// Row 商品展平为表格行，列表字段以 ", " 拼接，特征渲染为 "k: v; k: v"
func Row(p *model.Product) []string {
	desc := ""
	if p.Description != nil {
		desc = *p.Description
	}
	return []string{
		p.URL,
		strconv.FormatInt(p.Article, 10),
		p.Name,
		p.Price.StringFixed(2),
		desc,
		p.SellerName,
		p.SellerURL,
		strings.Join(p.Sizes, ", "),
		strconv.Itoa(p.Stock),
		strconv.FormatFloat(p.Rating, 'f', -1, 64),
		strconv.Itoa(p.Feedbacks),
		strings.Join(p.Images, ", "),
		p.Characteristics.String(),
	}
}

// ==================== 接口定义 ====================

// ExportSink 导出目标
type ExportSink interface {
	Format() string
	// Export 写出商品，返回产物路径 (数据库导出为空)
	Export(ctx context.Context, runID string, products []*model.Product) (string, error)
}

// ExportConfig 导出配置
type ExportConfig struct {
	Format string
	Path   string
}

// NewExportSink 按格式创建导出目标
func NewExportSink(cfg ExportConfig, products repository.ProductRepository) (ExportSink, error) {
	switch cfg.Format {
	case FormatXLSX, "":
		return &XLSXSink{path: defaultPath(cfg.Path, "products.xlsx")}, nil
	case FormatCSV:
		return &CSVSink{path: defaultPath(cfg.Path, "products.csv")}, nil
	case FormatDB:
		if products == nil {
			return nil, fmt.Errorf("数据库导出需要配置 DB_DSN")
		}
		return &DBSink{repo: products}, nil
	default:
		return nil, fmt.Errorf("不支持的导出格式: %s", cfg.Format)
	}
}

func defaultPath(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// ==================== XLSX ====================

type XLSXSink struct {
	path string
}

func (s *XLSXSink) Format() string { return FormatXLSX }

func (s *XLSXSink) Export(ctx context.Context, runID string, products []*model.Product) (string, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Sheet1"
	header := make([]interface{}, len(ExportHeader))
	for i, h := range ExportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return "", fmt.Errorf("写入表头失败: %w", err)
	}

	for i, p := range products {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		row := xlsxRow(p)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return "", fmt.Errorf("写入第 %d 行失败: %w", i+2, err)
		}
	}

	if err := ensureDir(s.path); err != nil {
		return "", err
	}
	if err := f.SaveAs(s.path); err != nil {
		return "", fmt.Errorf("保存 xlsx 失败: %w", err)
	}
	return s.path, nil
}

// xlsxRow 数值列保留数字类型
func xlsxRow(p *model.Product) []interface{} {
	cols := Row(p)
	row := make([]interface{}, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	row[1] = p.Article
	row[3] = p.Price.InexactFloat64()
	row[8] = p.Stock
	row[9] = p.Rating
	row[10] = p.Feedbacks
	return row
}

// ==================== CSV ====================

type CSVSink struct {
	path string
}

func (s *CSVSink) Format() string { return FormatCSV }

func (s *CSVSink) Export(ctx context.Context, runID string, products []*model.Product) (string, error) {
	if err := ensureDir(s.path); err != nil {
		return "", err
	}
	f, err := os.Create(s.path)
	if err != nil {
		return "", fmt.Errorf("创建 csv 失败: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(ExportHeader); err != nil {
		return "", err
	}
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := w.Write(Row(p)); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("写入 csv 失败: %w", err)
	}
	return s.path, nil
}

// ==================== 数据库 ====================

type DBSink struct {
	repo repository.ProductRepository
}

func (s *DBSink) Format() string { return FormatDB }

func (s *DBSink) Export(ctx context.Context, runID string, products []*model.Product) (string, error) {
	records := make([]*model.ProductRecord, 0, len(products))
	for _, p := range products {
		rec, err := model.NewProductRecord(runID, p)
		if err != nil {
			return "", fmt.Errorf("转换商品 %d 失败: %w", p.Article, err)
		}
		records = append(records, rec)
	}
	if err := s.repo.BatchUpsert(ctx, records); err != nil {
		return "", fmt.Errorf("写入数据库失败: %w", err)
	}
	return "", nil
}

// ==================== 服务 ====================

// ExportResult 导出结果
type ExportResult struct {
	Format string `json:"format"`
	Path   string `json:"path"`
	Key    string `json:"key,omitempty"`
	URL    string `json:"url,omitempty"`
	Rows   int    `json:"rows"`
}

// ExportService 导出并 (可选) 上传产物
type ExportService struct {
	sink    ExportSink
	storage StorageProvider
	logger  *zap.Logger
}

func NewExportService(sink ExportSink, storage StorageProvider, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{sink: sink, storage: storage, logger: logger}
}

// Format 当前导出格式
func (s *ExportService) Format() string {
	return s.sink.Format()
}

func (s *ExportService) Export(ctx context.Context, runID string, products []*model.Product) (*ExportResult, error) {
	path, err := s.sink.Export(ctx, runID, products)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{Format: s.sink.Format(), Path: path, Rows: len(products)}
	s.logger.Info("[ExportService] 导出完成",
		zap.String("run_id", runID),
		zap.String("format", result.Format),
		zap.String("path", path),
		zap.Int("rows", result.Rows),
	)

	if s.storage == nil || path == "" {
		return result, nil
	}

	stored, err := s.upload(ctx, runID, path, contentTypeOf(result.Format))
	if err != nil {
		return nil, fmt.Errorf("上传导出文件失败: %w", err)
	}
	result.Key = stored.Key
	result.URL = stored.URL
	s.logger.Info("[ExportService] 产物已上传",
		zap.String("run_id", runID),
		zap.String("key", stored.Key),
		zap.String("url", stored.URL),
	)
	return result, nil
}

func (s *ExportService) upload(ctx context.Context, runID, path, contentType string) (*StoredArtifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return s.storage.Put(ctx, Artifact{
		RunID:       runID,
		Name:        filepath.Base(path),
		ContentType: contentType,
		Body:        f,
		Size:        info.Size(),
	})
}

func contentTypeOf(format string) string {
	switch format {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
