package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cv-scoring-go/internal/types"
)

func TestAggregator_WeightedSum(t *testing.T) {
	agg, err := NewAggregator(ModeWeightedSum, Weights{
		types.DimSkills:     25,
		types.DimExperience: 20,
		types.DimGPA:        10,
	})
	require.NoError(t, err)

	scores := map[types.Dimension]types.DimensionScore{
		types.DimSkills:     types.Score(0.5),
		types.DimExperience: types.Score(1),
		types.DimGPA:        types.NA(), // 不适用按0权重贡献
	}
	assert.InDelta(t, 25*0.5+20, agg.Total(scores), 1e-9)
}

func TestAggregator_WeightedSum_SkillsScenario(t *testing.T) {
	// 要求 ["python","react"]，候选命中一个：得分 = 权重 × 0.5
	agg, err := NewAggregator(ModeWeightedSum, nil)
	require.NoError(t, err)
	total := agg.Total(map[types.Dimension]types.DimensionScore{
		types.DimSkills: types.Score(0.5),
	})
	assert.InDelta(t, DefaultWeights()[types.DimSkills]*0.5, total, 1e-9)
}

func TestAggregator_NormalizedAverage(t *testing.T) {
	agg, err := NewAggregator(ModeNormalizedAverage, nil)
	require.NoError(t, err)

	t.Run("sentinels excluded from numerator and denominator", func(t *testing.T) {
		// GPA要求为0 → 哨兵，无论候选GPA多高都不影响均值
		scores := map[types.Dimension]types.DimensionScore{
			types.DimSkills:     types.Score(0.8),
			types.DimExperience: types.Score(0.4),
			types.DimGPA:        types.NA(),
			types.DimDegree:     types.NA(),
		}
		assert.InDelta(t, (0.8+0.4)/2, agg.Total(scores), 1e-9)
	})

	t.Run("no applicable dimensions gives zero", func(t *testing.T) {
		scores := map[types.Dimension]types.DimensionScore{
			types.DimGPA:    types.NA(),
			types.DimDegree: types.NA(),
		}
		assert.Zero(t, agg.Total(scores))
	})

	t.Run("total stays in unit interval", func(t *testing.T) {
		scores := map[types.Dimension]types.DimensionScore{}
		for _, d := range types.AllDimensions {
			scores[d] = types.Score(1)
		}
		assert.InDelta(t, 1.0, agg.Total(scores), 1e-9)
	})
}

func TestAggregator_Deterministic(t *testing.T) {
	agg, err := NewAggregator(ModeWeightedSum, nil)
	require.NoError(t, err)
	scores := map[types.Dimension]types.DimensionScore{
		types.DimSkills:      types.Score(0.3),
		types.DimExperience:  types.Score(0.7),
		types.DimDesignation: types.Score(0.9),
	}
	first := agg.Total(scores)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, agg.Total(scores))
	}
}

func TestNewAggregator_UnknownMode(t *testing.T) {
	_, err := NewAggregator("median", nil)
	assert.Error(t, err)
}

func TestBuildReport_FixedDimensionOrder(t *testing.T) {
	agg, err := NewAggregator(ModeWeightedSum, nil)
	require.NoError(t, err)
	report := agg.BuildReport("Nguyen Van An", map[types.Dimension]types.DimensionScore{
		types.DimSkills: types.Score(1),
	})
	assert.Equal(t, "Nguyen Van An", report.CandidateName)
	assert.Len(t, report.Dimensions, len(types.AllDimensions))
	assert.False(t, report.Failed)
}

func TestErrorReport(t *testing.T) {
	r := ErrorReport("x", assert.AnError)
	assert.True(t, r.Failed)
	assert.NotEmpty(t, r.Error)
	assert.Zero(t, r.Total)
}
