package storage

import (
	"time"

	"cv-scoring-go/internal/types"
)

// 批次状态常量
const (
	BatchStatusPending    = "pending"
	BatchStatusProcessing = "processing"
	BatchStatusCompleted  = "completed"
	BatchStatusFailed     = "failed"
)

// ScoreJobMessage 异步打分任务消息。
// 候选人载荷较大时走MinIO，消息里只带对象路径；小载荷直接内联。
type ScoreJobMessage struct {
	BatchID     string    `json:"batch_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	JDText      string    `json:"jd_text"`

	// Candidates 内联的候选人画像列表
	Candidates []types.CandidateProfile `json:"candidates,omitempty"`
	// PayloadObjectKey 候选人载荷在MinIO uploads桶中的对象路径，与Candidates二选一
	PayloadObjectKey string `json:"payload_object_key,omitempty"`
}

// BatchStatus 异步批次的当前状态，由消费者写入Redis供查询接口读取。
type BatchStatus struct {
	BatchID   string    `json:"batch_id"`
	Status    string    `json:"status"` // pending / processing / completed / failed
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	// ReportObjectKey 完成后结果工件在MinIO reports桶中的对象路径
	ReportObjectKey string `json:"report_object_key,omitempty"`
	// CandidateCount 批次内候选人数
	CandidateCount int `json:"candidate_count,omitempty"`
}
