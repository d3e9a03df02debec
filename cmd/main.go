package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"wb_catalog_v1_202610/internal/config"
	"wb_catalog_v1_202610/internal/controller"
	"wb_catalog_v1_202610/internal/model"
	"wb_catalog_v1_202610/internal/repository"
	"wb_catalog_v1_202610/internal/router"
	"wb_catalog_v1_202610/internal/service"
	"wb_catalog_v1_202610/internal/task"
	"wb_catalog_v1_202610/pkg/cache"
	"wb_catalog_v1_202610/pkg/database"
	"wb_catalog_v1_202610/pkg/logger"
	"wb_catalog_v1_202610/pkg/net"
)

// @title wb-catalog API
// @version 1.0
// @description Wildberries 商品目录采集：触发运行、查询运行记录与商品
// @BasePath /
func main() {
	app := &cli.App{
		Name:  "wb-catalog",
		Usage: "Wildberries 商品目录采集",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, EnvVars: []string{"WB_CONFIG"}, Usage: "配置文件路径 (yaml/json/toml)"},
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "搜索关键词"},
			&cli.IntFlag{Name: "pages", Usage: "搜索页数"},
			&cli.IntFlag{Name: "concurrency", Usage: "同时组装的商品数量"},
			&cli.StringFlag{Name: "export-format", Usage: "xlsx / csv / db"},
			&cli.StringFlag{Name: "export-path", Usage: "导出文件路径"},
			&cli.StringFlag{Name: "log-level", Usage: "debug / info / warn / error"},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "执行一次 搜索 -> 组装 -> 导出",
				Action: runAction,
			},
			{
				Name:   "serve",
				Usage:  "启动 HTTP 服务与定时任务",
				Action: serveAction,
			},
		},
		DefaultCommand: "run",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ==================== 配置 ====================

// loadConfig 加载配置文件并应用命令行覆盖
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("query") {
		cfg.Source.Query = c.String("query")
	}
	if c.IsSet("pages") {
		cfg.Source.Pages = c.Int("pages")
	}
	if c.IsSet("concurrency") {
		cfg.Batch.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("export-format") {
		cfg.Export.Format = c.String("export-format")
	}
	if c.IsSet("export-path") {
		cfg.Export.Path = c.String("export-path")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB       *gorm.DB
	Runs     repository.RunRepository
	Products repository.ProductRepository
	Mirrors  *service.MirrorService
	Fetcher  net.Fetcher
	Storage  service.StorageProvider // 可选
	RunTask  *task.RunTask
}

func initDependencies(cfg *config.Config, log *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	// 1. 数据库 (可选)
	if cfg.DB.DSN != "" {
		db, err := database.InitDB(database.Options{DSN: cfg.DB.DSN, Logger: log}, &model.ProductRecord{}, &model.ScrapeRun{})
		if err != nil {
			return nil, err
		}
		deps.DB = db
		deps.Runs = repository.NewRunRepository(db)
		deps.Products = repository.NewProductRepository(db)
	}

	// 2. 网络层：连接池按最大并发请求数设置
	client := net.NewHTTPClient(net.ClientOptions{
		Timeout:   cfg.Fetch.Timeout,
		UserAgent: cfg.Fetch.UserAgent,
		Referer:   cfg.Fetch.Referer,
		PoolSize:  cfg.Batch.Concurrency * cfg.Mirror.Parallelism,
		Logger:    log,
	})
	deps.Fetcher = net.NewFetcher(client, net.FetcherConfig{
		Policy: net.RetryPolicy{
			Attempts:    cfg.Fetch.Attempts,
			BackoffCap:  cfg.Fetch.BackoffCap,
			BackoffUnit: cfg.Fetch.BackoffUnit,
			Jitter:      cfg.Fetch.BackoffJitter,
		},
		RequestRPS: cfg.Fetch.RequestRPS,
		Logger:     log,
	})

	// 3. 解析服务
	deps.Mirrors = service.NewMirrorService(deps.Fetcher, cache.NewMirrorCache(), service.MirrorConfig{
		HostTemplate: cfg.Mirror.HostTemplate,
		Min:          cfg.Mirror.Min,
		Max:          cfg.Mirror.Max,
		Parallelism:  cfg.Mirror.Parallelism,
		Locale:       cfg.Mirror.Locale,
	}, log)
	details := service.NewDetailService(deps.Fetcher, service.DetailConfig{
		Endpoint: cfg.Source.DetailURL,
		AppType:  cfg.Source.AppType,
		Currency: cfg.Source.Currency,
		Dest:     cfg.Source.Dest,
	}, log)
	assets := service.NewAssetService(deps.Mirrors, log)
	products := service.NewProductService(details, assets, cfg.Source.SiteURL, cfg.Batch.Concurrency, log)
	search := service.NewSearchService(deps.Fetcher, service.SearchConfig{
		Endpoint: cfg.Source.SearchURL,
		Locale:   cfg.Mirror.Locale,
		AppType:  cfg.Source.AppType,
		Currency: cfg.Source.Currency,
		Dest:     cfg.Source.Dest,
		Filters:  cfg.Source.Filters,
	}, log)

	// 4. 导出
	sink, err := service.NewExportSink(service.ExportConfig{Format: cfg.Export.Format, Path: cfg.Export.Path}, deps.Products)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Provider != "" {
		deps.Storage, err = service.NewStorageProvider(service.StorageConfig{
			Provider:  cfg.Storage.Provider,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Endpoint:  cfg.Storage.Endpoint,
			CDNDomain: cfg.Storage.CDNDomain,
			BasePath:  cfg.Storage.BasePath,
		})
		if err != nil {
			return nil, err
		}
	}
	exporter := service.NewExportService(sink, deps.Storage, log)

	// 5. 流水线
	batch := task.NewBatchTask(products, cfg.Batch.RunTimeout, log)
	deps.RunTask = task.NewRunTask(search, batch, exporter, deps.Runs, task.RunTaskConfig{
		Query: cfg.Source.Query,
		Pages: cfg.Source.Pages,
	}, log)

	return deps, nil
}

func setup(c *cli.Context) (*config.Config, *Dependencies, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return nil, nil, err
	}
	deps, err := initDependencies(cfg, logger.L())
	if err != nil {
		return nil, nil, err
	}
	return cfg, deps, nil
}

// ==================== 命令 ====================

// runAction 单次运行，Ctrl+C 取消未完成的商品
func runAction(c *cli.Context) error {
	_, deps, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.L()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := deps.RunTask.Execute(ctx, model.TriggerCLI)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("run_id", report.RunID),
		zap.Int("attempted", report.Summary.Attempted),
		zap.Int("succeeded", report.Summary.Succeeded),
		zap.Int("degraded", report.Summary.Degraded),
		zap.Duration("duration", report.Summary.Duration),
	}
	if report.Export != nil {
		fields = append(fields, zap.String("path", report.Export.Path), zap.String("url", report.Export.URL))
	}
	log.Info("[Main] 运行完成", fields...)
	log.Info("[Main] 请求统计", zap.Any("fetch", deps.Fetcher.Stats()), zap.Any("mirror", deps.Mirrors.Stats()))
	return nil
}

// serveAction HTTP 服务 + 定时任务
func serveAction(c *cli.Context) error {
	cfg, deps, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.L()

	// 定时任务
	var schedule *task.ScheduleTask
	if cfg.Server.Schedule != "" {
		schedule = task.NewScheduleTask(deps.RunTask, cfg.Server.Schedule, 0, log)
		if err := schedule.Start(); err != nil {
			return err
		}
		log.Info("[Main] 下次定时运行", zap.Time("next", schedule.Next()))
	}

	runCtl := controller.NewRunController(deps.RunTask, deps.Runs, deps.Products, deps.Mirrors, deps.Storage)
	r := router.New(runCtl, router.Options{TriggerCooldown: cfg.Server.TriggerCooldown, Logger: log})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// 异步启动服务
	errCh := make(chan error, 1)
	go func() {
		log.Info("[Main] 服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	log.Info("[Main] 正在关闭服务...")
	// 先取消进行中的运行，定时任务的 Stop 才不会等待整次运行
	deps.RunTask.Close()
	if schedule != nil {
		schedule.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务强制关闭: %w", err)
	}

	log.Info("[Main] 服务已退出")
	return nil
}
