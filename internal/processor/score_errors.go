package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrRequirementExtraction = errors.New("提取JD要求失败")
	ErrCandidateScoring      = errors.New("候选人打分失败")
	ErrEmbeddingUnavailable  = errors.New("向量化服务不可用")
	ErrReportPersist         = errors.New("持久化评分结果失败")
	ErrBatchLocked           = errors.New("批次正在被其他实例处理")
	ErrStorageNotInit        = errors.New("存储未初始化")
	ErrEmptyBatch            = errors.New("批次中没有候选人")
)

// ScoreProcessError 包含批次上下文的处理错误
type ScoreProcessError struct {
	BatchID string
	Op      string
	BaseErr error
	Detail  string
}

func (e *ScoreProcessError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 批次:%s): %s", e.BaseErr, e.Op, e.BatchID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 批次:%s)", e.BaseErr, e.Op, e.BatchID)
}

func (e *ScoreProcessError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *ScoreProcessError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewExtractionError(batchID, detail string) error {
	return &ScoreProcessError{
		BatchID: batchID,
		Op:      "extract_requirement",
		BaseErr: ErrRequirementExtraction,
		Detail:  detail,
	}
}

func NewScoringError(batchID, detail string) error {
	return &ScoreProcessError{
		BatchID: batchID,
		Op:      "score",
		BaseErr: ErrCandidateScoring,
		Detail:  detail,
	}
}

func NewPersistError(batchID, detail string) error {
	return &ScoreProcessError{
		BatchID: batchID,
		Op:      "persist",
		BaseErr: ErrReportPersist,
		Detail:  detail,
	}
}
