// Package processor 编排批量打分流水线：JD要求解析、候选人画像装配、
// 并发维度打分与结果持久化。
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"cv-scoring-go/internal/constants"
	"cv-scoring-go/internal/extractor"
	"cv-scoring-go/internal/outbox"
	"cv-scoring-go/internal/scorer"
	"cv-scoring-go/internal/storage"
	"cv-scoring-go/internal/storage/models"
	"cv-scoring-go/internal/tracing"
	"cv-scoring-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("cv-scoring-go/processor")

// RequirementExtractor 从JD文本提取结构化要求
type RequirementExtractor interface {
	ExtractRequirements(ctx context.Context, jdText string) (*types.RequirementProfile, error)
}

// Translator JD预翻译能力，尽力而为，失败时返回原文
type Translator interface {
	Translate(ctx context.Context, text string) string
}

// ResumeTagger 上游序列标注服务
type ResumeTagger interface {
	Tag(ctx context.Context, resumeText string) ([]types.Token, error)
}

// CandidateScorer 候选人全维度打分
type CandidateScorer interface {
	ScoreAll(ctx context.Context, cand *types.CandidateProfile, req *types.RequirementProfile) (map[types.Dimension]types.DimensionScore, error)
}

// Components 打分流水线的组件依赖
type Components struct {
	JDExtractor RequirementExtractor
	Translator  Translator
	Tagger      ResumeTagger
	Scorer      CandidateScorer
	Aggregator  *scorer.Aggregator
	Extractor   *extractor.Extractor
	Storage     *storage.Storage
}

// Settings 打分流水线的行为设置
type Settings struct {
	MaxWorkers    int           // 批内并发打分的worker上限
	MemoizeTTL    time.Duration // 抽取结果按内容哈希的缓存时长，0为不缓存
	ScorerVersion string
	Debug         bool
	Logger        *log.Logger
}

// ScoreProcessor 批量打分处理器。组件一经装配即只读，可并发使用。
type ScoreProcessor struct {
	components Components
	settings   Settings
}

// NewScoreProcessor 创建打分处理器。JDExtractor、Scorer、Aggregator 为必需组件。
func NewScoreProcessor(components Components, opts ...SettingOpt) (*ScoreProcessor, error) {
	if components.JDExtractor == nil {
		return nil, fmt.Errorf("JD要求提取器不能为空")
	}
	if components.Scorer == nil {
		return nil, fmt.Errorf("打分器不能为空")
	}
	if components.Aggregator == nil {
		return nil, fmt.Errorf("聚合器不能为空")
	}
	if components.Extractor == nil {
		components.Extractor = extractor.New()
	}

	settings := Settings{
		MaxWorkers:    8,
		ScorerVersion: constants.DefaultScorerVersion,
		Logger:        log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.MaxWorkers <= 0 {
		settings.MaxWorkers = 1
	}

	return &ScoreProcessor{
		components: components,
		settings:   settings,
	}, nil
}

// ResolveRequirement 将JD文本解析为结构化要求，结果按JD哈希写入Redis缓存。
// 配置了翻译器时先做越→英预翻译，翻译失败不阻断流程。
func (p *ScoreProcessor) ResolveRequirement(ctx context.Context, jdText string) (*types.RequirementProfile, error) {
	ctx, span := tracer.Start(ctx, "processor.ResolveRequirement")
	defer span.End()

	if p.components.Translator != nil {
		jdText = p.components.Translator.Translate(ctx, jdText)
	}
	jdHash := contentHash([]byte(jdText))
	span.SetAttributes(attribute.String("jd.hash", jdHash[:12]))

	if cached := p.cachedRequirement(ctx, jdHash); cached != nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		p.logDebug("JD要求缓存命中: %s", jdHash[:12])
		return cached, nil
	}

	profile, err := p.components.JDExtractor.ExtractRequirements(ctx, jdText)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, fmt.Errorf("%w: %v", ErrRequirementExtraction, err)
	}

	if r := p.redis(); r != nil {
		if err := r.CacheRequirementProfile(ctx, jdHash, profile); err != nil {
			p.settings.Logger.Printf("[WARN] 缓存JD要求失败: %v", err)
		}
	}
	span.SetStatus(codes.Ok, "")
	return profile, nil
}

// ExtractCandidate 对标注词元做实体抽取并装配候选人画像。
// 抽取结果按词元载荷的SHA-256哈希在Redis中记忆，缓存只是加速，不改变语义。
func (p *ScoreProcessor) ExtractCandidate(ctx context.Context, tokens []types.Token) ([]types.EntitySpan, *types.CandidateProfile, error) {
	if len(tokens) == 0 {
		return nil, nil, fmt.Errorf("词元序列为空")
	}

	var hash string
	if r := p.redis(); r != nil && p.settings.MemoizeTTL > 0 {
		payload, err := json.Marshal(tokens)
		if err == nil {
			hash = contentHash(payload)
			if spans, err := r.GetCachedExtractionSpans(ctx, hash); err == nil {
				p.logDebug("抽取缓存命中: %s", hash[:12])
				return spans, BuildCandidateProfile(spans), nil
			} else if !errors.Is(err, storage.ErrNotFound) {
				p.settings.Logger.Printf("[WARN] 读取抽取缓存失败: %v", err)
			}
		}
	}

	spans := p.components.Extractor.Extract(tokens)

	if hash != "" {
		if r := p.redis(); r != nil {
			if err := r.CacheExtractionSpans(ctx, hash, spans, p.settings.MemoizeTTL); err != nil {
				p.settings.Logger.Printf("[WARN] 写入抽取缓存失败: %v", err)
			}
		}
	}
	return spans, BuildCandidateProfile(spans), nil
}

// ScoreBatch 同步执行一个批次：解析JD要求，然后在有界worker池里并发打分。
// 单个候选人的失败被隔离为错误标记报告；向量化服务不可用则整个批次失败。
func (p *ScoreProcessor) ScoreBatch(ctx context.Context, batchID, jdText string, candidates []types.CandidateProfile) (*types.ScoreBatchResult, error) {
	ctx, span := tracer.Start(ctx, "processor.ScoreBatch",
		trace.WithAttributes(
			attribute.String("batch.id", batchID),
			attribute.Int("batch.candidate_count", len(candidates)),
		))
	defer span.End()

	if len(candidates) == 0 {
		return nil, ErrEmptyBatch
	}

	requirement, err := p.ResolveRequirement(ctx, jdText)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reports := make([]types.ScoreReport, len(candidates))

	// 向量化服务级故障不可按候选人恢复，首个此类错误取消其余worker
	scoreCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var fatalOnce sync.Once
	var fatalErr error

	sem := make(chan struct{}, p.settings.MaxWorkers)
	var wg sync.WaitGroup
	for i := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					p.settings.Logger.Printf("[ERROR] 候选人 %d 打分panic: %v", idx, r)
					reports[idx] = scorer.ErrorReport(candidates[idx].Name, fmt.Errorf("内部错误: %v", r))
				}
			}()

			cand := candidates[idx]
			scores, scoreErr := p.components.Scorer.ScoreAll(scoreCtx, &cand, requirement)
			if scoreErr != nil {
				if errors.Is(scoreErr, scorer.ErrProviderUnavailable) {
					fatalOnce.Do(func() {
						fatalErr = fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, scoreErr)
						cancel()
					})
					return
				}
				reports[idx] = scorer.ErrorReport(cand.Name, scoreErr)
				return
			}
			reports[idx] = p.components.Aggregator.BuildReport(cand.Name, scores)
		}(i)
	}
	wg.Wait()

	if fatalErr != nil {
		tracing.RecordError(span, fatalErr, tracing.ErrorTypeEmbedding)
		return nil, fatalErr
	}

	span.SetStatus(codes.Ok, "")
	return &types.ScoreBatchResult{
		BatchID:     batchID,
		Requirement: requirement,
		Reports:     reports,
	}, nil
}

// SubmitAsyncBatch 创建异步打分批次：批次记录与发件箱消息同事务落库，
// 中继负责投递。返回批次ID供客户端轮询。
func (p *ScoreProcessor) SubmitAsyncBatch(ctx context.Context, jdText string, candidates []types.CandidateProfile) (string, error) {
	if len(candidates) == 0 {
		return "", ErrEmptyBatch
	}
	st := p.components.Storage
	if st == nil || st.MySQL == nil || st.RabbitMQ == nil {
		return "", ErrStorageNotInit
	}

	hash, err := submissionHash(jdText, candidates)
	if err != nil {
		return "", fmt.Errorf("序列化候选人列表失败: %w", err)
	}

	// 完全相同的提交直接返回历史批次，客户端可立即拉取已有报告
	if prev, err := st.MySQL.FindCompletedBatchBySubmission(ctx, hash, p.settings.ScorerVersion); err == nil {
		p.logDebug("重复提交命中历史批次: %s", prev.BatchID)
		return prev.BatchID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		p.settings.Logger.Printf("[WARN] 查询历史批次失败: %v", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("生成批次ID失败: %w", err)
	}
	batchID := id.String()
	now := time.Now()

	job := &storage.ScoreJobMessage{
		BatchID:     batchID,
		SubmittedAt: now,
		JDText:      jdText,
		Candidates:  candidates,
	}

	// 候选人过多时载荷放MinIO，消息里只带对象位置
	if st.MinIO != nil && len(candidates) > inlinePayloadLimit {
		payload, err := json.Marshal(job)
		if err != nil {
			return "", fmt.Errorf("序列化批次载荷失败: %w", err)
		}
		objectKey, err := st.MinIO.UploadBatchPayload(ctx, batchID, payload)
		if err != nil {
			return "", NewPersistError(batchID, err.Error())
		}
		job = &storage.ScoreJobMessage{
			BatchID:          batchID,
			SubmittedAt:      now,
			PayloadObjectKey: objectKey,
		}
	}

	batch := &models.ScoreBatch{
		BatchID:        batchID,
		JDText:         jdText,
		SubmissionHash: hash,
		Status:         storage.BatchStatusPending,
		CandidateCount: len(candidates),
		ScorerVersion:  p.settings.ScorerVersion,
		SubmittedAt:    now,
	}

	tx := st.MySQL.DB().WithContext(ctx).Begin()
	if tx.Error != nil {
		return "", NewPersistError(batchID, tx.Error.Error())
	}
	if err := tx.Create(batch).Error; err != nil {
		tx.Rollback()
		return "", NewPersistError(batchID, err.Error())
	}
	if err := outbox.EnqueueScoreJob(tx, job, st.RabbitMQ.ScoreEventsExchange(), st.RabbitMQ.ScoreJobRoutingKey()); err != nil {
		tx.Rollback()
		return "", NewPersistError(batchID, err.Error())
	}
	if err := tx.Commit().Error; err != nil {
		return "", NewPersistError(batchID, err.Error())
	}

	if r := p.redis(); r != nil {
		status := &storage.BatchStatus{
			BatchID:        batchID,
			Status:         storage.BatchStatusPending,
			UpdatedAt:      now,
			CandidateCount: len(candidates),
		}
		if err := r.SetBatchStatus(ctx, batchID, status); err != nil {
			p.settings.Logger.Printf("[WARN] 写入批次状态失败: %v", err)
		}
	}
	return batchID, nil
}

// inlinePayloadLimit 超过该候选人数的批次载荷转存MinIO
const inlinePayloadLimit = 50

// HandleScoreJob 消费异步打分任务。返回true确认消息，false时Nack重新入队。
// 向量化服务不可用属于可恢复故障，重新入队等服务恢复；其余失败记录后确认。
func (p *ScoreProcessor) HandleScoreJob(ctx context.Context, job *storage.ScoreJobMessage) bool {
	ctx, span := tracer.Start(ctx, "processor.HandleScoreJob",
		trace.WithAttributes(attribute.String("batch.id", job.BatchID)))
	defer span.End()

	st := p.components.Storage
	logger := p.settings.Logger

	// 分布式锁保证同一批次只被一个实例处理
	var lockValue string
	if r := p.redis(); r != nil {
		var err error
		lockValue, err = r.AcquireBatchLock(ctx, job.BatchID, constants.ScoreLockDuration)
		if err != nil {
			logger.Printf("[WARN] 获取批次锁失败: %v", err)
		} else if lockValue == "" {
			logger.Printf("批次 %s 已被其他实例锁定，跳过", job.BatchID)
			return true
		}
		if lockValue != "" {
			defer func() {
				if _, err := r.ReleaseBatchLock(context.WithoutCancel(ctx), job.BatchID, lockValue); err != nil {
					logger.Printf("[WARN] 释放批次锁失败: %v", err)
				}
			}()
		}
	}

	candidates := job.Candidates
	jdText := job.JDText
	if job.PayloadObjectKey != "" && st != nil && st.MinIO != nil {
		data, err := st.MinIO.GetBatchPayload(ctx, job.PayloadObjectKey)
		if err != nil {
			logger.Printf("[ERROR] 下载批次载荷失败: %v", err)
			p.markBatchFailed(ctx, job.BatchID, fmt.Sprintf("下载批次载荷失败: %v", err))
			return true
		}
		var full storage.ScoreJobMessage
		if err := json.Unmarshal(data, &full); err != nil {
			logger.Printf("[ERROR] 解析批次载荷失败: %v", err)
			p.markBatchFailed(ctx, job.BatchID, fmt.Sprintf("解析批次载荷失败: %v", err))
			return true
		}
		candidates = full.Candidates
		jdText = full.JDText
	}

	p.setBatchStatus(ctx, job.BatchID, storage.BatchStatusProcessing, "", "", len(candidates))
	if st != nil && st.MySQL != nil {
		if err := st.MySQL.UpdateBatchStatus(ctx, job.BatchID, storage.BatchStatusProcessing, ""); err != nil {
			logger.Printf("[WARN] 更新批次状态失败: %v", err)
		}
	}

	result, err := p.ScoreBatch(ctx, job.BatchID, jdText, candidates)
	if err != nil {
		if errors.Is(err, ErrEmbeddingUnavailable) {
			logger.Printf("[ERROR] 批次 %s 打分失败(向量化服务不可用)，消息重新入队: %v", job.BatchID, err)
			tracing.RecordRabbitMQNack(span, job.BatchID, err.Error())
			return false
		}
		logger.Printf("[ERROR] 批次 %s 打分失败: %v", job.BatchID, err)
		p.markBatchFailed(ctx, job.BatchID, err.Error())
		return true
	}

	reportKey, err := p.PersistResult(ctx, result, candidates)
	if err != nil {
		logger.Printf("[ERROR] 批次 %s 持久化失败: %v", job.BatchID, err)
		p.markBatchFailed(ctx, job.BatchID, err.Error())
		return true
	}

	p.setBatchStatus(ctx, job.BatchID, storage.BatchStatusCompleted, "", reportKey, len(candidates))
	logger.Printf("批次 %s 处理完成，候选人 %d 名", job.BatchID, len(candidates))
	span.SetStatus(codes.Ok, "")
	return true
}

// PersistResult 持久化批次结果：评分记录写MySQL，完整报告导出MinIO JSON工件。
func (p *ScoreProcessor) PersistResult(ctx context.Context, result *types.ScoreBatchResult, candidates []types.CandidateProfile) (string, error) {
	st := p.components.Storage
	if st == nil {
		return "", nil
	}

	var reportKey string
	if st.MinIO != nil {
		var err error
		reportKey, err = st.MinIO.UploadScoreReport(ctx, result)
		if err != nil {
			return "", NewPersistError(result.BatchID, fmt.Sprintf("上传报告工件: %v", err))
		}
	}

	if st.MySQL != nil {
		records := make([]models.ScoreReportRecord, 0, len(result.Reports))
		for i, report := range result.Reports {
			record := models.ScoreReportRecord{
				BatchID:        result.BatchID,
				CandidateIndex: i,
			}
			var profile *types.CandidateProfile
			if i < len(candidates) {
				profile = &candidates[i]
			}
			if err := record.FromScoreReport(report, profile); err != nil {
				return "", NewPersistError(result.BatchID, fmt.Sprintf("装配评分记录: %v", err))
			}
			records = append(records, record)
		}
		if err := st.MySQL.BatchInsertScoreReports(ctx, records); err != nil {
			return "", NewPersistError(result.BatchID, err.Error())
		}

		if result.Requirement != nil {
			reqJSON, err := json.Marshal(result.Requirement)
			if err == nil {
				if err := st.MySQL.DB().WithContext(ctx).Model(&models.ScoreBatch{}).
					Where("batch_id = ?", result.BatchID).
					Update("requirement_json", datatypes.JSON(reqJSON)).Error; err != nil {
					p.settings.Logger.Printf("[WARN] 回写JD要求失败: %v", err)
				}
			}
		}
		if err := st.MySQL.MarkBatchCompleted(ctx, result.BatchID, reportKey); err != nil {
			return "", NewPersistError(result.BatchID, err.Error())
		}
	}
	return reportKey, nil
}

func (p *ScoreProcessor) markBatchFailed(ctx context.Context, batchID, reason string) {
	p.setBatchStatus(ctx, batchID, storage.BatchStatusFailed, reason, "", 0)
	if st := p.components.Storage; st != nil && st.MySQL != nil {
		if err := st.MySQL.UpdateBatchStatus(ctx, batchID, storage.BatchStatusFailed, reason); err != nil {
			p.settings.Logger.Printf("[WARN] 更新批次失败状态失败: %v", err)
		}
	}
}

func (p *ScoreProcessor) setBatchStatus(ctx context.Context, batchID, status, errMsg, reportKey string, count int) {
	r := p.redis()
	if r == nil {
		return
	}
	s := &storage.BatchStatus{
		BatchID:         batchID,
		Status:          status,
		Error:           errMsg,
		UpdatedAt:       time.Now(),
		ReportObjectKey: reportKey,
		CandidateCount:  count,
	}
	if err := r.SetBatchStatus(ctx, batchID, s); err != nil {
		p.settings.Logger.Printf("[WARN] 写入批次状态失败: %v", err)
	}
}

func (p *ScoreProcessor) cachedRequirement(ctx context.Context, jdHash string) *types.RequirementProfile {
	r := p.redis()
	if r == nil {
		return nil
	}
	profile, err := r.GetCachedRequirementProfile(ctx, jdHash)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.settings.Logger.Printf("[WARN] 读取JD要求缓存失败: %v", err)
		}
		return nil
	}
	return profile
}

func (p *ScoreProcessor) redis() *storage.Redis {
	if p.components.Storage == nil {
		return nil
	}
	return p.components.Storage.Redis
}

// submissionHash 异步批次的去重键：JD文本与候选人集合任一变化都会改变哈希。
func submissionHash(jdText string, candidates []types.CandidateProfile) (string, error) {
	candidateBytes, err := json.Marshal(candidates)
	if err != nil {
		return "", err
	}
	return contentHash(append([]byte(jdText), candidateBytes...)), nil
}

// contentHash 内容寻址哈希，作为缓存键的组成部分。
func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
