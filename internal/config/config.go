package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ==================== 配置结构 ====================

// Config 全局配置
type Config struct {
	Fetch   FetchConfig
	Mirror  MirrorConfig
	Source  SourceConfig
	Batch   BatchConfig
	Export  ExportConfig
	Storage StorageConfig
	DB      DBConfig
	Server  ServerConfig
	Log     LogConfig
}

// FetchConfig 网络请求与重试
type FetchConfig struct {
	Timeout       time.Duration // 单次请求超时
	Attempts      int           // 最大尝试次数
	BackoffCap    int           // 退避上限 (单位个数)
	BackoffUnit   time.Duration // 退避单位
	BackoffJitter float64       // 抖动比例 0~1, 0 表示关闭
	RequestRPS    float64       // 全局请求速率上限, 0 表示不限
	UserAgent     string
	Referer       string
}

// MirrorConfig 镜像 (basket) 探测
type MirrorConfig struct {
	Min          int    // 探测起始编号 (含)
	Max          int    // 探测结束编号 (含)
	Parallelism  int    // 单个商品的探测并发, 1 为串行
	HostTemplate string // 例如 https://basket-%02d.wbbasket.ru
	Locale       string // card.json 所在语言目录
}

// SourceConfig 数据源
type SourceConfig struct {
	DetailURL string
	SearchURL string
	SiteURL   string
	Query     string
	Pages     int
	Currency  string
	Dest      int64
	AppType   int
	Filters   map[string]string // 搜索附加筛选参数
}

// BatchConfig 批处理
type BatchConfig struct {
	Concurrency int           // 同时组装的商品数量
	RunTimeout  time.Duration // 整批超时, 0 表示不限
}

// ExportConfig 导出
type ExportConfig struct {
	Format string // xlsx / csv / db
	Path   string
}

// StorageConfig 导出文件上传
type StorageConfig struct {
	Provider  string // "" | local | s3
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
	CDNDomain string
	BasePath  string
}

// DBConfig 数据库
type DBConfig struct {
	DSN string
}

// ServerConfig HTTP 服务与定时任务
type ServerConfig struct {
	Port            string
	Schedule        string        // cron 表达式 (含秒), 空表示不启用
	TriggerCooldown time.Duration // 手动触发冷却
}

// LogConfig 日志
type LogConfig struct {
	Level  string
	Format string
}

// ==================== 默认值 ====================

func setDefaults(v *viper.Viper) {
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("retry_attempts", 5)
	v.SetDefault("backoff_cap", 8)
	v.SetDefault("backoff_unit", time.Second)
	v.SetDefault("backoff_jitter", 0.0)
	v.SetDefault("request_rps", 0.0)
	v.SetDefault("user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36")
	v.SetDefault("referer", "https://www.wildberries.ru/")

	v.SetDefault("mirror_min", 20)
	v.SetDefault("mirror_max", 30)
	v.SetDefault("mirror_parallelism", 1)
	v.SetDefault("mirror_host_template", "https://basket-%02d.wbbasket.ru")
	v.SetDefault("locale", "ru")

	v.SetDefault("detail_url", "https://card.wb.ru/cards/v4/detail")
	v.SetDefault("search_url", "https://search.wb.ru/exactmatch/ru/common/v18/search")
	v.SetDefault("site_url", "https://www.wildberries.ru")
	v.SetDefault("search_query", "пальто из натуральной шерсти")
	v.SetDefault("search_pages", 1)
	v.SetDefault("currency", "rub")
	v.SetDefault("dest", -1257786)
	v.SetDefault("app_type", 1)
	// 评分 4+、价格 734~10000 ₽、天然羊毛；环境变量以空格分隔
	v.SetDefault("search_filters", []string{"f14177451=15000203", "frating=1", "priceU=73400;1000000"})

	v.SetDefault("concurrency", 60)
	v.SetDefault("run_timeout", time.Duration(0))

	v.SetDefault("export_format", "xlsx")
	v.SetDefault("export_path", "products.xlsx")

	v.SetDefault("storage_provider", "")
	v.SetDefault("storage_base_path", "wb-catalog")

	v.SetDefault("db_dsn", "")

	v.SetDefault("server_port", "8080")
	v.SetDefault("schedule", "")
	v.SetDefault("trigger_cooldown", 5*time.Minute)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// ==================== 加载 ====================

// Load 加载配置
// 优先级: 环境变量 > 配置文件 > .env > 默认值
func Load(path string) (*Config, error) {
	// .env 不存在不是错误
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromViper 从 viper 实例组装配置
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Fetch: FetchConfig{
			Timeout:       v.GetDuration("request_timeout"),
			Attempts:      v.GetInt("retry_attempts"),
			BackoffCap:    v.GetInt("backoff_cap"),
			BackoffUnit:   v.GetDuration("backoff_unit"),
			BackoffJitter: v.GetFloat64("backoff_jitter"),
			RequestRPS:    v.GetFloat64("request_rps"),
			UserAgent:     v.GetString("user_agent"),
			Referer:       v.GetString("referer"),
		},
		Mirror: MirrorConfig{
			Min:          v.GetInt("mirror_min"),
			Max:          v.GetInt("mirror_max"),
			Parallelism:  v.GetInt("mirror_parallelism"),
			HostTemplate: v.GetString("mirror_host_template"),
			Locale:       v.GetString("locale"),
		},
		Source: SourceConfig{
			DetailURL: v.GetString("detail_url"),
			SearchURL: v.GetString("search_url"),
			SiteURL:   strings.TrimRight(v.GetString("site_url"), "/"),
			Query:     v.GetString("search_query"),
			Pages:     v.GetInt("search_pages"),
			Currency:  v.GetString("currency"),
			Dest:      v.GetInt64("dest"),
			AppType:   v.GetInt("app_type"),
			Filters:   parseFilters(v.GetStringSlice("search_filters")),
		},
		Batch: BatchConfig{
			Concurrency: v.GetInt("concurrency"),
			RunTimeout:  v.GetDuration("run_timeout"),
		},
		Export: ExportConfig{
			Format: strings.ToLower(v.GetString("export_format")),
			Path:   v.GetString("export_path"),
		},
		Storage: StorageConfig{
			Provider:  strings.ToLower(v.GetString("storage_provider")),
			Bucket:    v.GetString("storage_bucket"),
			Region:    v.GetString("storage_region"),
			AccessKey: v.GetString("storage_access_key"),
			SecretKey: v.GetString("storage_secret_key"),
			Endpoint:  v.GetString("storage_endpoint"),
			CDNDomain: v.GetString("storage_cdn_domain"),
			BasePath:  v.GetString("storage_base_path"),
		},
		DB: DBConfig{
			DSN: v.GetString("db_dsn"),
		},
		Server: ServerConfig{
			Port:            v.GetString("server_port"),
			Schedule:        v.GetString("schedule"),
			TriggerCooldown: v.GetDuration("trigger_cooldown"),
		},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}
}

// parseFilters "k=v" 列表 -> map，保留键的大小写
// 格式错误的条目以空键记录，由 Validate 报告
func parseFilters(items []string) map[string]string {
	filters := make(map[string]string, len(items))
	for _, item := range items {
		k, val, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok || k == "" {
			filters[""] = item
			continue
		}
		filters[k] = val
	}
	return filters
}

// ==================== 校验 ====================

// Validate 校验配置合法性
func (c *Config) Validate() error {
	var errs []error

	if c.Batch.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency 必须 >= 1, got %d", c.Batch.Concurrency))
	}
	if c.Fetch.Attempts < 1 {
		errs = append(errs, fmt.Errorf("retry_attempts 必须 >= 1, got %d", c.Fetch.Attempts))
	}
	if c.Fetch.BackoffCap < 0 {
		errs = append(errs, fmt.Errorf("backoff_cap 不能为负数"))
	}
	if c.Fetch.BackoffJitter < 0 || c.Fetch.BackoffJitter > 1 {
		errs = append(errs, fmt.Errorf("backoff_jitter 取值范围 0~1, got %v", c.Fetch.BackoffJitter))
	}
	if c.Fetch.RequestRPS < 0 {
		errs = append(errs, fmt.Errorf("request_rps 不能为负数"))
	}
	if c.Mirror.Min < 0 || c.Mirror.Max < c.Mirror.Min {
		errs = append(errs, fmt.Errorf("镜像探测区间非法: [%d, %d]", c.Mirror.Min, c.Mirror.Max))
	}
	if c.Mirror.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("mirror_parallelism 必须 >= 1, got %d", c.Mirror.Parallelism))
	}
	if !strings.Contains(c.Mirror.HostTemplate, "%") {
		errs = append(errs, fmt.Errorf("mirror_host_template 缺少编号占位符: %q", c.Mirror.HostTemplate))
	}
	if c.Source.Pages < 1 {
		errs = append(errs, fmt.Errorf("search_pages 必须 >= 1, got %d", c.Source.Pages))
	}
	if bad, ok := c.Source.Filters[""]; ok {
		errs = append(errs, fmt.Errorf("search_filters 条目格式应为 key=value, got %q", bad))
	}
	switch c.Export.Format {
	case "xlsx", "csv":
		if c.Export.Path == "" {
			errs = append(errs, fmt.Errorf("export_path 不能为空"))
		}
	case "db":
		if c.DB.DSN == "" {
			errs = append(errs, fmt.Errorf("export_format=db 需要配置 db_dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("不支持的导出格式: %s", c.Export.Format))
	}
	switch c.Storage.Provider {
	case "", "local", "s3":
	default:
		errs = append(errs, fmt.Errorf("不支持的存储提供者: %s", c.Storage.Provider))
	}

	return errors.Join(errs...)
}
