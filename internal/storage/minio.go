package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"cv-scoring-go/internal/config"
	"cv-scoring-go/internal/types"
)

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// UploadBatchPayload 上传批次候选人载荷，返回对象键
	UploadBatchPayload(ctx context.Context, batchID string, payload []byte) (string, error)
	// GetBatchPayload 下载批次候选人载荷
	GetBatchPayload(ctx context.Context, objectKey string) ([]byte, error)

	// UploadScoreReport 上传批次打分结果工件，返回对象键
	UploadScoreReport(ctx context.Context, result *types.ScoreBatchResult) (string, error)
	// GetScoreReport 下载批次打分结果工件
	GetScoreReport(ctx context.Context, objectKey string) (*types.ScoreBatchResult, error)

	// GetReportPresignedURL 为结果工件生成预签名下载URL
	GetReportPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 对象存储：uploads桶存批次候选人载荷，reports桶存打分结果工件。
type MinIO struct {
	client        *minio.Client
	cfg           *config.MinIOConfig
	uploadsBucket string
	reportsBucket string
	logger        *log.Logger
}

// NewMinIO 创建MinIO客户端并确保存储桶存在
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	uploadsBucket := cfg.UploadsBucket
	if uploadsBucket == "" {
		uploadsBucket = "score-uploads"
	}
	reportsBucket := cfg.ReportsBucket
	if reportsBucket == "" {
		reportsBucket = "score-reports"
	}

	m := &MinIO{
		client:        client,
		cfg:           cfg,
		uploadsBucket: uploadsBucket,
		reportsBucket: reportsBucket,
		logger:        logger,
	}

	if err := m.ensureBucketExists(uploadsBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保载荷存储桶 %s 存在失败: %w", uploadsBucket, err)
	}
	if err := m.ensureBucketExists(reportsBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保结果存储桶 %s 存在失败: %w", reportsBucket, err)
	}

	// 设置生命周期规则
	if cfg.ArtifactExpireDays > 0 {
		if err := m.setupLifecycleRules(context.Background()); err != nil {
			logger.Printf("[MinIO] 警告: 设置生命周期规则失败: %v", err)
		}
	}

	logger.Printf("[MinIO] 客户端初始化成功: %s (uploads=%s, reports=%s)", cfg.Endpoint, uploadsBucket, reportsBucket)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		err = m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location})
		if err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		m.logger.Printf("[MinIO] 存储桶 %s 创建成功", bucketName)
	}
	return nil
}

// setupLifecycleRules 为两个存储桶设置对象过期规则
func (m *MinIO) setupLifecycleRules(ctx context.Context) error {
	for _, bucket := range []struct {
		name   string
		ruleID string
	}{
		{m.uploadsBucket, "expire-payloads"},
		{m.reportsBucket, "expire-reports"},
	} {
		lc := lifecycle.NewConfiguration()
		lc.Rules = []lifecycle.Rule{
			{
				ID:     bucket.ruleID,
				Status: "Enabled",
				Expiration: lifecycle.Expiration{
					Days: lifecycle.ExpirationDays(m.cfg.ArtifactExpireDays),
				},
			},
		}
		if err := m.client.SetBucketLifecycle(ctx, bucket.name, lc); err != nil {
			return fmt.Errorf("为存储桶 %s 设置生命周期失败: %w", bucket.name, err)
		}
	}
	return nil
}

// UploadBatchPayload 上传批次候选人载荷到uploads桶
func (m *MinIO) UploadBatchPayload(ctx context.Context, batchID string, payload []byte) (string, error) {
	objectKey := fmt.Sprintf("batch/%s/payload.json", batchID)
	_, err := m.client.PutObject(ctx, m.uploadsBucket, objectKey,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("上传批次载荷 %s 失败: %w", objectKey, err)
	}
	m.logger.Printf("[MinIO] 批次载荷已上传: %s (%d 字节)", objectKey, len(payload))
	return objectKey, nil
}

// GetBatchPayload 从uploads桶下载批次候选人载荷
func (m *MinIO) GetBatchPayload(ctx context.Context, objectKey string) ([]byte, error) {
	return m.downloadObject(ctx, m.uploadsBucket, objectKey)
}

// UploadScoreReport 上传批次打分结果工件到reports桶
func (m *MinIO) UploadScoreReport(ctx context.Context, result *types.ScoreBatchResult) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("序列化打分结果失败: %w", err)
	}
	objectKey := fmt.Sprintf("batch/%s/report.json", result.BatchID)
	_, err = m.client.PutObject(ctx, m.reportsBucket, objectKey,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("上传打分结果 %s 失败: %w", objectKey, err)
	}
	m.logger.Printf("[MinIO] 打分结果已上传: %s (%d 份报告)", objectKey, len(result.Reports))
	return objectKey, nil
}

// GetScoreReport 从reports桶下载批次打分结果工件
func (m *MinIO) GetScoreReport(ctx context.Context, objectKey string) (*types.ScoreBatchResult, error) {
	data, err := m.downloadObject(ctx, m.reportsBucket, objectKey)
	if err != nil {
		return nil, err
	}
	var result types.ScoreBatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("反序列化打分结果失败: %w", err)
	}
	return &result, nil
}

// GetReportPresignedURL 为结果工件生成预签名下载URL
func (m *MinIO) GetReportPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	presignedURL, err := m.client.PresignedGetObject(ctx, m.reportsBucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// downloadObject 下载并读取整个对象
func (m *MinIO) downloadObject(ctx context.Context, bucketName, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", bucketName, objectKey, err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 状态失败: %w", bucketName, objectKey, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", bucketName, objectKey, err)
	}
	return data, nil
}
