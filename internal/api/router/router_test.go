package router

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"cv-scoring-go/internal/api/handler"
	"cv-scoring-go/internal/config"
	"cv-scoring-go/internal/processor"
	"cv-scoring-go/internal/scorer"
	"cv-scoring-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedJDExtractor struct{}

func (fixedJDExtractor) ExtractRequirements(ctx context.Context, jdText string) (*types.RequirementProfile, error) {
	return &types.RequirementProfile{Designation: "Backend Engineer"}, nil
}

type fixedScorer struct{}

func (fixedScorer) ScoreAll(ctx context.Context, cand *types.CandidateProfile, req *types.RequirementProfile) (map[types.Dimension]types.DimensionScore, error) {
	scores := make(map[types.Dimension]types.DimensionScore, len(types.AllDimensions))
	for _, dim := range types.AllDimensions {
		scores[dim] = types.Score(0.6)
	}
	return scores, nil
}

func newTestServer(t *testing.T, apiKeys []string) *server.Hertz {
	t.Helper()
	agg, err := scorer.NewAggregator(scorer.ModeNormalizedAverage, nil)
	require.NoError(t, err)
	proc, err := processor.NewScoreProcessor(processor.Components{
		JDExtractor: fixedJDExtractor{},
		Scorer:      fixedScorer{},
		Aggregator:  agg,
	})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.APIKeys = apiKeys
	scoreHandler := handler.NewScoreHandler(cfg, nil, proc, nil, nil)

	h := server.Default()
	RegisterRoutes(h, cfg, scoreHandler)
	return h
}

func scoreBody(t *testing.T) *ut.Body {
	t.Helper()
	payload, err := json.Marshal(types.ScoreBatchRequest{
		JDText:     "Backend Engineer, Go",
		Candidates: []types.CandidateProfile{{Name: "Alice"}},
	})
	require.NoError(t, err)
	return &ut.Body{Body: bytes.NewBuffer(payload), Len: len(payload)}
}

func TestRouter_Health(t *testing.T) {
	h := newTestServer(t, nil)
	w := ut.PerformRequest(h.Engine, "GET", "/api/v1/health", nil)
	assert.Equal(t, consts.StatusOK, w.Result().StatusCode())
}

func TestRouter_ScoreWithoutAuth(t *testing.T) {
	h := newTestServer(t, nil)
	w := ut.PerformRequest(h.Engine, "POST", "/api/v1/score", scoreBody(t),
		ut.Header{Key: "Content-Type", Value: "application/json"})

	resp := w.Result()
	require.Equal(t, consts.StatusOK, resp.StatusCode())

	var result types.ScoreBatchResult
	require.NoError(t, json.Unmarshal(resp.Body(), &result))
	require.Len(t, result.Reports, 1)
	assert.InDelta(t, 0.6, result.Reports[0].Total, 1e-9)
}

func TestRouter_APIKeyRequired(t *testing.T) {
	h := newTestServer(t, []string{"secret-key"})

	w := ut.PerformRequest(h.Engine, "POST", "/api/v1/score", scoreBody(t),
		ut.Header{Key: "Content-Type", Value: "application/json"})
	assert.NotEqual(t, consts.StatusOK, w.Result().StatusCode())

	w = ut.PerformRequest(h.Engine, "POST", "/api/v1/score", scoreBody(t),
		ut.Header{Key: "Content-Type", Value: "application/json"},
		ut.Header{Key: "X-API-Key", Value: "secret-key"})
	assert.Equal(t, consts.StatusOK, w.Result().StatusCode())

	// 健康检查不受鉴权影响
	w = ut.PerformRequest(h.Engine, "GET", "/api/v1/health", nil)
	assert.Equal(t, consts.StatusOK, w.Result().StatusCode())
}

func TestRouter_ReportNotFound(t *testing.T) {
	h := newTestServer(t, nil)
	w := ut.PerformRequest(h.Engine, "GET", "/api/v1/score/reports/no-such-batch", nil)
	assert.Equal(t, consts.StatusNotFound, w.Result().StatusCode())
}

func TestRouter_ExtractFromTokens(t *testing.T) {
	h := newTestServer(t, nil)
	payload, err := json.Marshal(handler.ExtractRequest{
		Tokens: []types.Token{{Text: "golang", Tag: "U-TECHSTACK_SKILLS", Position: 0}},
	})
	require.NoError(t, err)

	w := ut.PerformRequest(h.Engine, "POST", "/api/v1/resume/extract",
		&ut.Body{Body: bytes.NewBuffer(payload), Len: len(payload)},
		ut.Header{Key: "Content-Type", Value: "application/json"})

	resp := w.Result()
	require.Equal(t, consts.StatusOK, resp.StatusCode())

	var extracted handler.ExtractResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &extracted))
	require.NotNil(t, extracted.Profile)
	assert.Equal(t, []string{"golang"}, extracted.Profile.Skills)
}
