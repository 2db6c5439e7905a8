package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cv-scoring-go/internal/scorer"
	"cv-scoring-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRequirementExtractor 返回固定的JD要求
type mockRequirementExtractor struct {
	profile   *types.RequirementProfile
	err       error
	callCount int
}

func (m *mockRequirementExtractor) ExtractRequirements(ctx context.Context, jdText string) (*types.RequirementProfile, error) {
	m.callCount++
	if m.err != nil {
		return nil, m.err
	}
	return m.profile, nil
}

// mockCandidateScorer 按候选人姓名返回预设分数或错误
type mockCandidateScorer struct {
	failFor  map[string]error
	scoreFor map[string]float64
}

func (m *mockCandidateScorer) ScoreAll(ctx context.Context, cand *types.CandidateProfile, req *types.RequirementProfile) (map[types.Dimension]types.DimensionScore, error) {
	if err, ok := m.failFor[cand.Name]; ok {
		return nil, err
	}
	value := 0.5
	if v, ok := m.scoreFor[cand.Name]; ok {
		value = v
	}
	scores := make(map[types.Dimension]types.DimensionScore)
	for _, d := range types.AllDimensions {
		scores[d] = types.Score(value)
	}
	return scores, nil
}

func newTestProcessor(t *testing.T, extractorMock RequirementExtractor, scorerMock CandidateScorer) *ScoreProcessor {
	t.Helper()
	agg, err := scorer.NewAggregator(scorer.ModeNormalizedAverage, nil)
	require.NoError(t, err)

	p, err := NewScoreProcessor(Components{
		JDExtractor: extractorMock,
		Scorer:      scorerMock,
		Aggregator:  agg,
	}, WithsetMaxworkers(4))
	require.NoError(t, err)
	return p
}

func testRequirement() *types.RequirementProfile {
	return &types.RequirementProfile{
		Designation:    "Backend Developer",
		RequiredYears:  2,
		RequiredSkills: []string{"go", "mysql"},
	}
}

func TestScoreBatch_Success(t *testing.T) {
	ext := &mockRequirementExtractor{profile: testRequirement()}
	sc := &mockCandidateScorer{scoreFor: map[string]float64{"A": 0.9, "B": 0.3}}
	p := newTestProcessor(t, ext, sc)

	candidates := []types.CandidateProfile{
		{Name: "A"}, {Name: "B"},
	}
	result, err := p.ScoreBatch(context.Background(), "batch-1", "need a backend dev", candidates)
	require.NoError(t, err)

	require.Len(t, result.Reports, 2)
	assert.Equal(t, "batch-1", result.BatchID)
	assert.Equal(t, testRequirement().Designation, result.Requirement.Designation)

	// 报告顺序与候选人输入顺序一致
	assert.Equal(t, "A", result.Reports[0].CandidateName)
	assert.Equal(t, "B", result.Reports[1].CandidateName)
	assert.InDelta(t, 0.9, result.Reports[0].Total, 1e-9)
	assert.InDelta(t, 0.3, result.Reports[1].Total, 1e-9)
	assert.False(t, result.Reports[0].Failed)
}

func TestScoreBatch_PerCandidateFailureIsolated(t *testing.T) {
	ext := &mockRequirementExtractor{profile: testRequirement()}
	sc := &mockCandidateScorer{
		failFor:  map[string]error{"B": fmt.Errorf("画像缺失关键字段")},
		scoreFor: map[string]float64{"A": 0.8, "C": 0.6},
	}
	p := newTestProcessor(t, ext, sc)

	candidates := []types.CandidateProfile{
		{Name: "A"}, {Name: "B"}, {Name: "C"},
	}
	result, err := p.ScoreBatch(context.Background(), "batch-2", "jd", candidates)
	require.NoError(t, err)
	require.Len(t, result.Reports, 3)

	assert.False(t, result.Reports[0].Failed)
	assert.True(t, result.Reports[1].Failed)
	assert.Contains(t, result.Reports[1].Error, "画像缺失关键字段")
	assert.False(t, result.Reports[2].Failed)
	assert.InDelta(t, 0.6, result.Reports[2].Total, 1e-9)
}

func TestScoreBatch_ProviderUnavailableFailsWholeBatch(t *testing.T) {
	ext := &mockRequirementExtractor{profile: testRequirement()}
	sc := &mockCandidateScorer{
		failFor: map[string]error{
			"A": fmt.Errorf("技能向量化失败: %w", scorer.ErrProviderUnavailable),
		},
	}
	p := newTestProcessor(t, ext, sc)

	_, err := p.ScoreBatch(context.Background(), "batch-3", "jd", []types.CandidateProfile{
		{Name: "A"}, {Name: "B"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbeddingUnavailable))
}

func TestScoreBatch_EmptyBatch(t *testing.T) {
	p := newTestProcessor(t, &mockRequirementExtractor{profile: testRequirement()}, &mockCandidateScorer{})

	_, err := p.ScoreBatch(context.Background(), "batch-4", "jd", nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestScoreBatch_ExtractionErrorWrapped(t *testing.T) {
	ext := &mockRequirementExtractor{err: fmt.Errorf("LLM超时")}
	p := newTestProcessor(t, ext, &mockCandidateScorer{})

	_, err := p.ScoreBatch(context.Background(), "batch-5", "jd", []types.CandidateProfile{{Name: "A"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequirementExtraction)
}

func TestExtractCandidate_NoRedis(t *testing.T) {
	p := newTestProcessor(t, &mockRequirementExtractor{profile: testRequirement()}, &mockCandidateScorer{})

	tokens := []types.Token{
		{Text: "ja", Tag: "B-NAME", Position: 1},
		{Text: "##ne", Tag: "L-NAME", Position: 2},
		{Text: "golang", Tag: "U-TECHSTACK_SKILLS", Position: 4},
	}
	spans, profile, err := p.ExtractCandidate(context.Background(), tokens)
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, "jane", spans[0].Text)
	assert.Equal(t, "jane", profile.Name)
	assert.Equal(t, []string{"golang"}, profile.Skills)
}

func TestExtractCandidate_EmptyTokens(t *testing.T) {
	p := newTestProcessor(t, &mockRequirementExtractor{profile: testRequirement()}, &mockCandidateScorer{})

	_, _, err := p.ExtractCandidate(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewScoreProcessor_RequiredComponents(t *testing.T) {
	agg, err := scorer.NewAggregator(scorer.ModeWeightedSum, nil)
	require.NoError(t, err)

	_, err = NewScoreProcessor(Components{Scorer: &mockCandidateScorer{}, Aggregator: agg})
	assert.Error(t, err, "缺少JD提取器应当报错")

	_, err = NewScoreProcessor(Components{JDExtractor: &mockRequirementExtractor{}, Aggregator: agg})
	assert.Error(t, err, "缺少打分器应当报错")

	_, err = NewScoreProcessor(Components{JDExtractor: &mockRequirementExtractor{}, Scorer: &mockCandidateScorer{}})
	assert.Error(t, err, "缺少聚合器应当报错")
}

func TestSubmissionHash(t *testing.T) {
	cands := []types.CandidateProfile{{Name: "Alice", Skills: []string{"go", "mysql"}}}

	h1, err := submissionHash("Backend Engineer", cands)
	require.NoError(t, err)
	h2, err := submissionHash("Backend Engineer", cands)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "相同提交应得到相同去重键")

	// 候选人集合变化不能命中同一历史批次
	h3, err := submissionHash("Backend Engineer", []types.CandidateProfile{{Name: "Bob"}})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	h4, err := submissionHash("Frontend Engineer", cands)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h4)
}
