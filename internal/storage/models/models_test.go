package models

import (
	"testing"

	"cv-scoring-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreReportRecord_FromScoreReport(t *testing.T) {
	report := types.ScoreReport{
		CandidateName: "Alice",
		Total:         72.5,
		Dimensions: map[types.Dimension]types.DimensionScore{
			types.DimSkills:    types.Score(0.8),
			types.DimLanguages: types.NA(),
		},
	}
	profile := &types.CandidateProfile{
		Name:        "Alice",
		Designation: "Backend Engineer",
		Skills:      []string{"Go"},
	}

	var record ScoreReportRecord
	require.NoError(t, record.FromScoreReport(report, profile))

	assert.Equal(t, "Alice", record.CandidateName)
	assert.Equal(t, "Backend Engineer", record.Designation)
	require.NotNil(t, record.TotalScore)
	assert.InDelta(t, 72.5, *record.TotalScore, 1e-9)
	assert.False(t, record.Failed)
	assert.NotEmpty(t, record.DimensionsJSON)
	assert.NotEmpty(t, record.ProfileJSON)

	restored := record.ToScoreReport()
	assert.Equal(t, "Alice", restored.CandidateName)
	assert.InDelta(t, 72.5, restored.Total, 1e-9)
	require.Contains(t, restored.Dimensions, types.DimSkills)
	assert.InDelta(t, 0.8, restored.Dimensions[types.DimSkills].Value, 1e-9)
	assert.True(t, restored.Dimensions[types.DimSkills].Applicable)
	assert.False(t, restored.Dimensions[types.DimLanguages].Applicable)
}

func TestScoreReportRecord_FromScoreReport_NilProfile(t *testing.T) {
	report := types.ScoreReport{
		CandidateName: "Bob",
		Failed:        true,
		Error:         "画像缺失关键字段",
	}

	var record ScoreReportRecord
	require.NoError(t, record.FromScoreReport(report, nil))

	assert.Empty(t, record.Designation)
	assert.Empty(t, record.ProfileJSON)
	assert.True(t, record.Failed)
	assert.Equal(t, "画像缺失关键字段", record.ErrorMessage)

	restored := record.ToScoreReport()
	assert.True(t, restored.Failed)
	assert.Equal(t, "画像缺失关键字段", restored.Error)
	assert.Nil(t, restored.Dimensions)
}
