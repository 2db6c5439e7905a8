package constants

import "time"

const (
	// DefaultScorerVersion 打分流水线版本，随打分语义变化递增
	DefaultScorerVersion = "2.0"

	// RequirementCacheDuration JD要求画像的缓存时长
	RequirementCacheDuration = 24 * time.Hour

	// ExtractionCacheDuration 实体抽取结果默认缓存时长
	ExtractionCacheDuration = 72 * time.Hour

	// ScoreLockDuration 批量打分分布式锁的占用时长
	ScoreLockDuration = 5 * time.Minute

	// BatchStatusDuration 异步批次状态在Redis中的保留时长
	BatchStatusDuration = 7 * 24 * time.Hour
)
