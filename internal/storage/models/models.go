package models

import (
	"encoding/json"
	"time"

	"cv-scoring-go/internal/types"

	"gorm.io/datatypes"
)

// ScoreBatch 批量打分任务主表，一条记录对应一次JD+候选人集合的评分。
type ScoreBatch struct {
	BatchID         string         `gorm:"type:char(36);primaryKey"`
	JDText          string         `gorm:"type:text;not null"`
	SubmissionHash  string         `gorm:"type:char(64);index:idx_sb_submission_hash"`
	RequirementJSON datatypes.JSON `gorm:"type:json"`
	Status          string         `gorm:"type:varchar(50);default:'PENDING';index:idx_sb_status"`
	CandidateCount  int            `gorm:"not null;default:0"`
	ScorerVersion   string         `gorm:"type:varchar(50)"`
	ReportObjectKey string         `gorm:"type:varchar(1024)"`
	ErrorMessage    string         `gorm:"type:text"`
	SubmittedAt     time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_sb_submitted_at"`
	CompletedAt     *time.Time     `gorm:"type:datetime(6)"`
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (ScoreBatch) TableName() string {
	return "score_batches"
}

// ScoreReportRecord 单个候选人的评分结果，隶属于某个批次。
type ScoreReportRecord struct {
	ReportID       uint64         `gorm:"primaryKey;autoIncrement"`
	BatchID        string         `gorm:"type:char(36);not null;index:idx_srr_batch_id;uniqueIndex:idx_srr_batch_candidate,priority:1"`
	CandidateIndex int            `gorm:"not null;uniqueIndex:idx_srr_batch_candidate,priority:2"`
	CandidateName  string         `gorm:"type:varchar(255);index:idx_srr_candidate_name"`
	Designation    string         `gorm:"type:varchar(255)"`
	TotalScore     *float64       `gorm:"type:float;index:idx_srr_batch_total,priority:2"`
	DimensionsJSON datatypes.JSON `gorm:"type:json"`
	ProfileJSON    datatypes.JSON `gorm:"type:json"`
	Failed         bool           `gorm:"default:false"`
	ErrorMessage   string         `gorm:"type:text"`
	CreatedAt      time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	ScoreBatch *ScoreBatch `gorm:"foreignKey:BatchID;references:BatchID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ScoreReportRecord) TableName() string {
	return "score_report_records"
}

// ToScoreReport 将数据库记录还原为领域模型。
func (r *ScoreReportRecord) ToScoreReport() types.ScoreReport {
	report := types.ScoreReport{
		CandidateName: r.CandidateName,
		Failed:        r.Failed,
		Error:         r.ErrorMessage,
	}
	if r.TotalScore != nil {
		report.Total = *r.TotalScore
	}
	if len(r.DimensionsJSON) > 0 {
		dims := make(map[types.Dimension]types.DimensionScore)
		if err := json.Unmarshal(r.DimensionsJSON, &dims); err == nil {
			report.Dimensions = dims
		}
	}
	return report
}

// FromScoreReport 从领域模型填充数据库记录，profile 可为 nil。
func (r *ScoreReportRecord) FromScoreReport(report types.ScoreReport, profile *types.CandidateProfile) error {
	r.CandidateName = report.CandidateName
	r.Failed = report.Failed
	r.ErrorMessage = report.Error
	total := report.Total
	r.TotalScore = &total

	if len(report.Dimensions) > 0 {
		dimsJSON, err := json.Marshal(report.Dimensions)
		if err != nil {
			return err
		}
		r.DimensionsJSON = datatypes.JSON(dimsJSON)
	}

	if profile != nil {
		r.Designation = profile.Designation
		profileJSON, err := json.Marshal(profile)
		if err != nil {
			return err
		}
		r.ProfileJSON = datatypes.JSON(profileJSON)
	}
	return nil
}

// StringToJSON Helper function to convert string to datatypes.JSON
func StringToJSON(s string) datatypes.JSON {
	return datatypes.JSON(s)
}

// MapToJSON Helper function to convert map[string]interface{} to datatypes.JSON
func MapToJSON(m map[string]interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
