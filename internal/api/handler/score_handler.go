package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cv-scoring-go/internal/config"
	"cv-scoring-go/internal/logger"
	"cv-scoring-go/internal/parser"
	"cv-scoring-go/internal/processor"
	storage2 "cv-scoring-go/internal/storage"
	"cv-scoring-go/internal/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrBatchNotFound 批次不存在
	ErrBatchNotFound = errors.New("批次不存在")
	// ErrInvalidRequest 请求参数无效
	ErrInvalidRequest = errors.New("请求参数无效")
)

// presignedReportExpiry 报告工件预签名URL的有效期
const presignedReportExpiry = time.Hour

// ScoreHandler 打分接口处理器，负责协调打分请求的处理流程
type ScoreHandler struct {
	cfg             *config.Config
	storage         *storage2.Storage
	processorModule *processor.ScoreProcessor

	// tagger 与 pdfExtractor 仅服务简历抽取接口，不配置时相应接口降级
	tagger       processor.ResumeTagger
	pdfExtractor *parser.ResumePDFExtractor
}

// NewScoreHandler 创建一个新的打分处理器
func NewScoreHandler(
	cfg *config.Config,
	storage *storage2.Storage,
	processorModule *processor.ScoreProcessor,
	tagger processor.ResumeTagger,
	pdfExtractor *parser.ResumePDFExtractor,
) *ScoreHandler {
	return &ScoreHandler{
		cfg:             cfg,
		storage:         storage,
		processorModule: processorModule,
		tagger:          tagger,
		pdfExtractor:    pdfExtractor,
	}
}

// HandleScoreBatch 同步批量打分。请求内即时完成，不落库。
func (h *ScoreHandler) HandleScoreBatch(ctx context.Context, req *types.ScoreBatchRequest) (*types.ScoreBatchResult, error) {
	if strings.TrimSpace(req.JDText) == "" {
		return nil, fmt.Errorf("%w: jd_text 不能为空", ErrInvalidRequest)
	}

	// 同步批次没有持久化的批次记录，用随机ID标记一次请求
	batchID := uuid.NewString()

	result, err := h.processorModule.ScoreBatch(ctx, batchID, req.JDText, req.Candidates)
	if err != nil {
		logger.Error().
			Err(err).
			Str("batch_id", batchID).
			Int("candidate_count", len(req.Candidates)).
			Msg("同步批量打分失败")
		return nil, err
	}

	logger.Info().
		Str("batch_id", batchID).
		Int("candidate_count", len(result.Reports)).
		Msg("同步批量打分完成")
	return result, nil
}

// ExtractRequest 简历实体抽取请求。Tokens 与 ResumeText 二选一，
// 只给文本时需要配置标注服务。
type ExtractRequest struct {
	Tokens     []types.Token `json:"tokens,omitempty"`
	ResumeText string        `json:"resume_text,omitempty"`
}

// ExtractResponse 简历实体抽取响应
type ExtractResponse struct {
	Spans   []types.EntitySpan      `json:"spans"`
	Profile *types.CandidateProfile `json:"profile"`
}

// HandleExtract 把标注词元（或原始简历文本）还原为实体片段和候选人画像。
func (h *ScoreHandler) HandleExtract(ctx context.Context, req *ExtractRequest) (*ExtractResponse, error) {
	tokens := req.Tokens
	if len(tokens) == 0 {
		if strings.TrimSpace(req.ResumeText) == "" {
			return nil, fmt.Errorf("%w: tokens 与 resume_text 至少提供一个", ErrInvalidRequest)
		}
		if h.tagger == nil {
			return nil, fmt.Errorf("未配置标注服务，无法处理原始简历文本")
		}
		var err error
		tokens, err = h.tagger.Tag(ctx, req.ResumeText)
		if err != nil {
			logger.Error().Err(err).Msg("调用标注服务失败")
			return nil, fmt.Errorf("标注简历文本失败: %w", err)
		}
	}

	spans, profile, err := h.processorModule.ExtractCandidate(ctx, tokens)
	if err != nil {
		return nil, err
	}
	return &ExtractResponse{Spans: spans, Profile: profile}, nil
}

// HandleResumeExtractUpload 处理PDF简历上传抽取：解析PDF文本后走标注与实体抽取。
func (h *ScoreHandler) HandleResumeExtractUpload(ctx context.Context, reader io.Reader, filename string) (*ExtractResponse, error) {
	if h.pdfExtractor == nil || h.tagger == nil {
		return nil, fmt.Errorf("未配置PDF解析或标注服务，无法处理简历文件")
	}

	text, _, err := h.pdfExtractor.ExtractText(ctx, reader, filename)
	if err != nil {
		logger.Error().
			Err(err).
			Str("filename", filename).
			Msg("解析PDF简历失败")
		return nil, fmt.Errorf("解析PDF简历失败: %w", err)
	}

	return h.HandleExtract(ctx, &ExtractRequest{ResumeText: text})
}

// AsyncSubmitResponse 异步批次提交响应
type AsyncSubmitResponse struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
}

// HandleAsyncSubmit 提交异步打分批次，立即返回批次ID供轮询。
func (h *ScoreHandler) HandleAsyncSubmit(ctx context.Context, req *types.ScoreBatchRequest) (*AsyncSubmitResponse, error) {
	if strings.TrimSpace(req.JDText) == "" {
		return nil, fmt.Errorf("%w: jd_text 不能为空", ErrInvalidRequest)
	}

	batchID, err := h.processorModule.SubmitAsyncBatch(ctx, req.JDText, req.Candidates)
	if err != nil {
		logger.Error().
			Err(err).
			Int("candidate_count", len(req.Candidates)).
			Msg("提交异步打分批次失败")
		return nil, err
	}

	logger.Info().
		Str("batch_id", batchID).
		Int("candidate_count", len(req.Candidates)).
		Msg("异步打分批次已提交")
	return &AsyncSubmitResponse{
		BatchID: batchID,
		Status:  storage2.BatchStatusPending,
	}, nil
}

// BatchReportResponse 批次报告查询响应。
// 批次未完成时只有状态字段；完成后带完整报告和工件下载地址。
type BatchReportResponse struct {
	BatchID        string                    `json:"batch_id"`
	Status         string                    `json:"status"`
	Error          string                    `json:"error,omitempty"`
	CandidateCount int                       `json:"candidate_count,omitempty"`
	Requirement    *types.RequirementProfile `json:"requirement,omitempty"`
	Reports        []types.ScoreReport       `json:"reports,omitempty"`
	ReportURL      string                    `json:"report_url,omitempty"`
}

// HandleGetReport 查询异步批次的状态与报告。
// 状态优先读Redis；报告优先取MinIO工件，取不到时回退MySQL评分记录。
func (h *ScoreHandler) HandleGetReport(ctx context.Context, batchID string) (*BatchReportResponse, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, fmt.Errorf("%w: batch_id 不能为空", ErrInvalidRequest)
	}

	resp := &BatchReportResponse{BatchID: batchID}

	if h.storage != nil && h.storage.Redis != nil {
		status, err := h.storage.Redis.GetBatchStatus(ctx, batchID)
		if err == nil {
			resp.Status = status.Status
			resp.Error = status.Error
			resp.CandidateCount = status.CandidateCount
			if status.Status == storage2.BatchStatusCompleted {
				h.attachReport(ctx, resp, status.ReportObjectKey)
			}
			return resp, nil
		}
		if !errors.Is(err, storage2.ErrNotFound) {
			logger.Warn().Err(err).Str("batch_id", batchID).Msg("读取Redis批次状态失败，回退MySQL")
		}
	}

	// Redis没有该批次（过期或未启用），以MySQL为准
	if h.storage == nil || h.storage.MySQL == nil {
		return nil, ErrBatchNotFound
	}
	batch, err := h.storage.MySQL.GetScoreBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("查询批次记录失败: %w", err)
	}

	resp.Status = batch.Status
	resp.Error = batch.ErrorMessage
	resp.CandidateCount = batch.CandidateCount
	if batch.Status == storage2.BatchStatusCompleted {
		h.attachReport(ctx, resp, batch.ReportObjectKey)
	}
	return resp, nil
}

// attachReport 把报告内容挂到响应上。MinIO工件是权威来源，
// 读不到时回退MySQL评分记录（此路径没有JD要求画像）。
func (h *ScoreHandler) attachReport(ctx context.Context, resp *BatchReportResponse, reportObjectKey string) {
	if reportObjectKey != "" && h.storage.MinIO != nil {
		result, err := h.storage.MinIO.GetScoreReport(ctx, reportObjectKey)
		if err == nil {
			resp.Requirement = result.Requirement
			resp.Reports = result.Reports
			if url, urlErr := h.storage.MinIO.GetReportPresignedURL(ctx, reportObjectKey, presignedReportExpiry); urlErr == nil {
				resp.ReportURL = url
			}
			return
		}
		logger.Warn().
			Err(err).
			Str("batch_id", resp.BatchID).
			Str("object_key", reportObjectKey).
			Msg("读取MinIO报告工件失败，回退MySQL评分记录")
	}

	if h.storage.MySQL == nil {
		return
	}
	records, err := h.storage.MySQL.ListScoreReportsByBatch(ctx, resp.BatchID)
	if err != nil {
		logger.Error().Err(err).Str("batch_id", resp.BatchID).Msg("读取MySQL评分记录失败")
		return
	}
	reports := make([]types.ScoreReport, 0, len(records))
	for i := range records {
		reports = append(reports, records[i].ToScoreReport())
	}
	resp.Reports = reports
}

// StartScoreJobConsumer 启动异步打分任务消费者。
// 返回停止通道，关闭它或取消ctx都会结束消费。
func (h *ScoreHandler) StartScoreJobConsumer(ctx context.Context) (chan<- struct{}, error) {
	if h.storage == nil || h.storage.RabbitMQ == nil {
		return nil, fmt.Errorf("RabbitMQ未初始化，无法启动打分消费者")
	}
	return h.storage.RabbitMQ.StartScoreJobConsumer(ctx, h.processorModule.HandleScoreJob)
}
