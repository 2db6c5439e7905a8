package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"cv-scoring-go/internal/types"
)

// JDExtractor 使用LLM从岗位描述中提取结构化招聘要求。
// LLM输出属于不可信输入，这里只负责解析与兜底，不做字段语义校验。
type JDExtractor struct {
	llmModel       model.ToolCallingChatModel
	promptTemplate string
	timeout        time.Duration
	logger         *log.Logger
}

// JDExtractorOption JD提取器配置选项
type JDExtractorOption func(*JDExtractor)

// WithExtractionTimeout 设置单次LLM调用超时
func WithExtractionTimeout(d time.Duration) JDExtractorOption {
	return func(e *JDExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCustomPrompt 替换默认提示词模板，模板需含一个 %s 占位符接收JD文本
func WithCustomPrompt(template string) JDExtractorOption {
	return func(e *JDExtractor) {
		if template != "" {
			e.promptTemplate = template
		}
	}
}

// NewJDExtractor 创建JD要求提取器
func NewJDExtractor(llmModel model.ToolCallingChatModel, logger *log.Logger, options ...JDExtractorOption) *JDExtractor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	e := &JDExtractor{
		llmModel: llmModel,
		timeout:  60 * time.Second,
		logger:   logger,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.promptTemplate == "" {
		e.promptTemplate = defaultJDPrompt
	}
	return e
}

// defaultJDPrompt 要求提取提示词。
// 学历要求若只写"相关专业即可"之类的泛化表述，约定返回哨兵值 GENERIC_IT_DEGREE。
const defaultJDPrompt = `As an expert HR AI, analyze the following job description (JD) and extract the key recruitment information.

**Job Description:**
%s

**Instructions:**
1. **Extract the main job title.** Be specific (e.g., "Senior Java Developer" instead of just "Developer"). If no specific title is mentioned but can be inferred from skills (e.g., "requires proficiency in Laravel"), create a logical title like "Laravel Developer". If no title can be found, return "".
2. **Extract the required years of experience.** Find the minimum number of years required (e.g., "at least 3 years" -> 3, "3-5 years" -> 3). If not mentioned, return 0.
3. **Extract the required degree.**
   * If a specific degree is mentioned (e.g., "Bachelor of Science in Computer Science"), return that full string.
   * If a generic requirement is mentioned (e.g., "University degree in related fields", "Tốt nghiệp đại học chuyên ngành liên quan"), return the special token "GENERIC_IT_DEGREE".
   * If no degree is mentioned, return "".
4. **Extract all required technical skills.** List all programming languages, frameworks, databases, tools, and methodologies mentioned.
5. **Extract the required minimum GPA** as a number (e.g., "GPA 3.0 or above" -> 3.0). If not mentioned, return 0.
6. **Extract required languages** (human languages, e.g., "English", "Japanese"). If not mentioned, return [].
7. **Extract required certifications** (e.g., "AWS Certified Solutions Architect"). If not mentioned, return [].
8. **Extract required awards or honors** if the JD explicitly asks for them. If not mentioned, return [].

**Return ONLY a valid JSON object in the following format. Do not include any explanatory text or markdown.**
` + "```json" + `
{
    "designation": "string",
    "required_experience_years": "number",
    "required_degree": "string",
    "required_skills": ["string"],
    "required_gpa": "number",
    "required_languages": ["string"],
    "required_certifications": ["string"],
    "required_awards": ["string"]
}
` + "```"

// rawRequirement LLM响应的宽容解析结构。
// 数值字段历史上既出现过数字也出现过字符串，统一用 json.Number 吸收。
type rawRequirement struct {
	Designation            string          `json:"designation"`
	RequiredYears          json.RawMessage `json:"required_experience_years"`
	RequiredDegree         string          `json:"required_degree"`
	RequiredSkills         []string        `json:"required_skills"`
	RequiredGPA            json.RawMessage `json:"required_gpa"`
	RequiredLanguages      []string        `json:"required_languages"`
	RequiredCertifications []string        `json:"required_certifications"`
	RequiredAwards         []string        `json:"required_awards"`
}

// ExtractRequirements 从JD文本提取要求画像。
// LLM失败或返回不可解析内容时回退到关键词扫描，只填充技能字段，其余为零值。
func (e *JDExtractor) ExtractRequirements(ctx context.Context, jdText string) (*types.RequirementProfile, error) {
	if strings.TrimSpace(jdText) == "" {
		return nil, fmt.Errorf("JD文本为空")
	}

	response, err := e.callLLM(ctx, fmt.Sprintf(e.promptTemplate, jdText))
	if err != nil {
		e.logger.Printf("LLM调用失败，回退到关键词技能扫描: %v", err)
		return e.fallbackProfile(jdText), nil
	}

	jsonStr := extractJSON(response)
	if jsonStr == "" {
		e.logger.Printf("LLM响应无有效JSON，回退到关键词技能扫描。原始响应: %.200s", response)
		return e.fallbackProfile(jdText), nil
	}

	var raw rawRequirement
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		e.logger.Printf("解析LLM JSON失败，回退到关键词技能扫描: %v", err)
		return e.fallbackProfile(jdText), nil
	}

	profile := &types.RequirementProfile{
		Designation:            strings.TrimSpace(raw.Designation),
		RequiredYears:          flexibleNumber(raw.RequiredYears),
		RequiredDegree:         strings.TrimSpace(raw.RequiredDegree),
		RequiredSkills:         cleanStringList(raw.RequiredSkills),
		RequiredGPA:            flexibleNumber(raw.RequiredGPA),
		RequiredLanguages:      cleanStringList(raw.RequiredLanguages),
		RequiredCertifications: cleanStringList(raw.RequiredCertifications),
		RequiredAwards:         cleanStringList(raw.RequiredAwards),
	}

	// LLM一个技能都没给时补一轮关键词扫描，避免技能维度空转
	if len(profile.RequiredSkills) == 0 {
		profile.RequiredSkills = ScanSkillKeywords(jdText)
	}

	e.logger.Printf("JD要求提取完成: 职位=%q, 经验=%.1f年, 技能=%d项",
		profile.Designation, profile.RequiredYears, len(profile.RequiredSkills))
	return profile, nil
}

// fallbackProfile 纯关键词扫描的降级画像
func (e *JDExtractor) fallbackProfile(jdText string) *types.RequirementProfile {
	return &types.RequirementProfile{
		RequiredSkills: ScanSkillKeywords(jdText),
	}
}

// callLLM 带重试的LLM调用
func (e *JDExtractor) callLLM(ctx context.Context, prompt string) (string, error) {
	messages := []*einoschema.Message{
		{Role: "user", Content: prompt},
	}

	maxRetries := 2
	retryDelay := 2 * time.Second

	var response *einoschema.Message
	var err error

	for retry := 0; retry <= maxRetries; retry++ {
		if retry > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("上下文已取消: %w", ctx.Err())
			case <-time.After(retryDelay):
				retryDelay *= 2
				e.logger.Printf("重试LLM调用 (第%d次)", retry)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		response, err = e.llmModel.Generate(callCtx, messages)
		cancel()

		if err == nil {
			break
		}
		if !isRetryableError(err) || retry >= maxRetries {
			return "", fmt.Errorf("LLM Generate failed: %w", err)
		}
	}

	return response.Content, nil
}

// isRetryableError 判断错误是否应该重试
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host")
}

// extractJSON 从LLM响应中提取JSON部分（防止返回的不是纯JSON）
func extractJSON(text string) string {
	re := regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	matches := re.FindStringSubmatch(text)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	for i := start; i < len(text); i++ {
		if text[i] == '{' {
			level++
		} else if text[i] == '}' {
			level--
			if level == 0 {
				return strings.TrimSpace(text[start : i+1])
			}
		}
	}
	return ""
}

// flexibleNumber 解析可能是数字也可能是带引号字符串的数值字段
func flexibleNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return 0
}

// cleanStringList 去掉空白项并trim
func cleanStringList(items []string) []string {
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
