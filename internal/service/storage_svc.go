package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ==================== 接口定义 ====================

// Artifact 待上传的导出产物
type Artifact struct {
	RunID       string
	Name        string // 文件名，含扩展名
	ContentType string
	Body        io.Reader
	Size        int64 // 未知时 <= 0
}

// StoredArtifact 上传结果
type StoredArtifact struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// StorageProvider 产物存储，按对象 key 寻址
type StorageProvider interface {
	Put(ctx context.Context, a Artifact) (*StoredArtifact, error)
	// PresignURL 私有桶的临时下载地址
	PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// StorageConfig 存储配置
type StorageConfig struct {
	Provider  string // s3 | local
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string // s3: 兼容端点 (MinIO/COS)；local: 对外访问前缀
	CDNDomain string
	BasePath  string // s3: key 前缀；local: 根目录
}

// NewStorageProvider 按 Provider 创建存储
func NewStorageProvider(cfg StorageConfig) (StorageProvider, error) {
	switch cfg.Provider {
	case "s3":
		return NewS3Store(cfg)
	case "local":
		return NewLocalStore(cfg)
	default:
		return nil, fmt.Errorf("不支持的存储提供者: %s", cfg.Provider)
	}
}

// ArtifactKey <prefix>/<yyyy/mm/dd>/<run_id>/<name>
// 无 run_id 时用随机 uuid 占位，同一次运行的产物落在同一目录
func ArtifactKey(prefix, runID, name string, at time.Time) string {
	if runID == "" {
		runID = uuid.NewString()
	}
	name = path.Base(filepath.ToSlash(name))
	if name == "." || name == "/" {
		name = "artifact.bin"
	}

	parts := []string{at.Format("2006/01/02"), runID, name}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append([]string{p}, parts...)
	}
	return strings.Join(parts, "/")
}

// ==================== S3 ====================

// S3Store S3 及兼容协议的对象存储
type S3Store struct {
	client    *s3.Client
	bucket    string
	prefix    string
	urlPrefix string // <url_prefix>/<key> 即公开地址
	now       func() time.Time
}

func NewS3Store(cfg StorageConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 存储需要配置 bucket")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败: %w", err)
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
			// 兼容实现多数不支持 trailing checksum
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})

	urlPrefix := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	switch {
	case cfg.CDNDomain != "":
		urlPrefix = "https://" + strings.TrimRight(cfg.CDNDomain, "/")
	case endpoint != "":
		urlPrefix = endpoint + "/" + cfg.Bucket
	}

	return &S3Store{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    cfg.BasePath,
		urlPrefix: urlPrefix,
		now:       time.Now,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, a Artifact) (*StoredArtifact, error) {
	key := ArtifactKey(s.prefix, a.RunID, a.Name, s.now())

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   a.Body,
	}
	if a.ContentType != "" {
		input.ContentType = aws.String(a.ContentType)
	}
	if a.Size > 0 {
		input.ContentLength = aws.Int64(a.Size)
	}
	if a.RunID != "" {
		input.Metadata = map[string]string{"run-id": a.RunID}
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("上传 S3 失败 (key=%s): %w", key, err)
	}
	return &StoredArtifact{Key: key, URL: s.urlPrefix + "/" + key}, nil
}

func (s *S3Store) PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s3.NewPresignClient(s.client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// ==================== 本地目录 ====================

// LocalStore 写入本地目录，可选对外访问前缀
type LocalStore struct {
	root    string
	baseURL string
	now     func() time.Time
}

func NewLocalStore(cfg StorageConfig) (*LocalStore, error) {
	root := cfg.BasePath
	if root == "" {
		root = "./artifacts"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &LocalStore{
		root:    root,
		baseURL: strings.TrimRight(cfg.Endpoint, "/"),
		now:     time.Now,
	}, nil
}

func (s *LocalStore) pathOf(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *LocalStore) urlOf(key string) string {
	if s.baseURL == "" {
		return s.pathOf(key)
	}
	return s.baseURL + "/" + key
}

func (s *LocalStore) Put(ctx context.Context, a Artifact) (*StoredArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := ArtifactKey("", a.RunID, a.Name, s.now())
	full := s.pathOf(key)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("创建目录失败: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("创建文件失败: %w", err)
	}
	if _, err := io.Copy(f, a.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return nil, fmt.Errorf("写入文件失败: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("写入文件失败: %w", err)
	}

	return &StoredArtifact{Key: key, URL: s.urlOf(key)}, nil
}

// PresignURL 本地存储无需签名
func (s *LocalStore) PresignURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return s.urlOf(key), nil
}
