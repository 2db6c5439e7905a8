package parser

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cv-scoring-go/internal/types"
)

// 测试用LLM模型模拟器
type mockChatModel struct {
	mockResponse string
	err          error
	callCount    int
}

func (m *mockChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	m.callCount++
	if m.err != nil {
		return nil, m.err
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: m.mockResponse,
	}, nil
}

func (m *mockChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func (m *mockChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func TestJDExtractorParsesLLMResponse(t *testing.T) {
	mockResponse := "```json\n" + `{
		"designation": "Senior Java Developer",
		"required_experience_years": 3,
		"required_degree": "Bachelor of Science in Computer Science",
		"required_skills": ["Java", "Spring Boot", "MySQL"],
		"required_gpa": 3.0,
		"required_languages": ["English"],
		"required_certifications": [],
		"required_awards": []
	}` + "\n```"

	extractor := NewJDExtractor(&mockChatModel{mockResponse: mockResponse}, nil)

	profile, err := extractor.ExtractRequirements(context.Background(), "We need a senior Java developer...")
	require.NoError(t, err)
	assert.Equal(t, "Senior Java Developer", profile.Designation)
	assert.InDelta(t, 3.0, profile.RequiredYears, 1e-9)
	assert.Equal(t, "Bachelor of Science in Computer Science", profile.RequiredDegree)
	assert.Equal(t, []string{"Java", "Spring Boot", "MySQL"}, profile.RequiredSkills)
	assert.InDelta(t, 3.0, profile.RequiredGPA, 1e-9)
	assert.Equal(t, []string{"English"}, profile.RequiredLanguages)
	assert.Empty(t, profile.RequiredCertifications)
}

func TestJDExtractorStringNumbers(t *testing.T) {
	// 历史上数值字段可能以带引号字符串返回
	mockResponse := `{
		"designation": "Laravel Developer",
		"required_experience_years": "2",
		"required_degree": "GENERIC_IT_DEGREE",
		"required_skills": ["PHP", "Laravel"],
		"required_gpa": "0"
	}`

	extractor := NewJDExtractor(&mockChatModel{mockResponse: mockResponse}, nil)

	profile, err := extractor.ExtractRequirements(context.Background(), "Laravel dev needed")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, profile.RequiredYears, 1e-9)
	assert.Equal(t, types.GenericITDegree, profile.RequiredDegree)
	assert.Zero(t, profile.RequiredGPA)
}

func TestJDExtractorFallbackOnLLMError(t *testing.T) {
	extractor := NewJDExtractor(&mockChatModel{err: assert.AnError}, nil)

	profile, err := extractor.ExtractRequirements(context.Background(),
		"Looking for someone who knows Java, Docker and PostgreSQL")
	require.NoError(t, err)
	assert.Empty(t, profile.Designation)
	assert.Contains(t, profile.RequiredSkills, "Java")
	assert.Contains(t, profile.RequiredSkills, "Docker")
	assert.Contains(t, profile.RequiredSkills, "PostgreSQL")
}

func TestJDExtractorFallbackOnGarbageResponse(t *testing.T) {
	extractor := NewJDExtractor(&mockChatModel{mockResponse: "I cannot help with that."}, nil)

	profile, err := extractor.ExtractRequirements(context.Background(), "Kubernetes administrator wanted")
	require.NoError(t, err)
	assert.Contains(t, profile.RequiredSkills, "Kubernetes")
}

func TestJDExtractorEmptyJD(t *testing.T) {
	extractor := NewJDExtractor(&mockChatModel{}, nil)
	_, err := extractor.ExtractRequirements(context.Background(), "  ")
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"纯JSON", `{"a": 1}`, `{"a": 1}`},
		{"markdown包裹", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"前后有解释文字", "Here you go: {\"a\": {\"b\": 2}} hope it helps", `{"a": {"b": 2}}`},
		{"无JSON", "no json here", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSON(tt.input))
		})
	}
}

func TestScanSkillKeywords(t *testing.T) {
	found := ScanSkillKeywords("We use golang, Redis and kafka in production")
	assert.Contains(t, found, "Go")
	assert.Contains(t, found, "Redis")
	assert.Contains(t, found, "Kafka")
	assert.NotContains(t, found, "PHP")
}
