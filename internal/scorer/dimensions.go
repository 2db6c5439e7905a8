package scorer

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"cv-scoring-go/internal/textnorm"
	"cv-scoring-go/internal/types"
)

// GPAPolicy GPA打分策略。分档与二元判定两种口径不可混用，按部署选定一种。
type GPAPolicy string

const (
	// GPAPolicyBanded 分档计分（默认，与线上历史行为一致）
	GPAPolicyBanded GPAPolicy = "banded"
	// GPAPolicyBinary 达标/不达标二元判定
	GPAPolicyBinary GPAPolicy = "binary"
)

// Config 各维度的阈值参数。零值字段在 NewScorer 中回填默认值。
type Config struct {
	SkillMatchThreshold   float64   `yaml:"skill_match_threshold"`   // 技能向量匹配阈值
	DesignationTagBonus   float64   `yaml:"designation_tag_bonus"`   // 角色标签重叠加成
	DesignationTagPenalty float64   `yaml:"designation_tag_penalty"` // 前后端互斥惩罚
	LogisticMidpoint      float64   `yaml:"logistic_midpoint"`
	LogisticSteepness     float64   `yaml:"logistic_steepness"`
	DegreeMatchThreshold  float64   `yaml:"degree_match_threshold"`    // 指定学位直接比对阈值
	ITDegreeThreshold     float64   `yaml:"it_degree_threshold"`       // 通用IT学位原型阈值
	ITDegreePrototypes    []string  `yaml:"it_degree_prototypes"`      // 原型学位短语
	GPAPolicy             GPAPolicy `yaml:"gpa_policy"`
	GPABinaryThreshold    float64   `yaml:"gpa_binary_threshold"` // 二元策略下的4分制达标线（要求侧为0时不生效）
}

func (c *Config) applyDefaults() {
	if c.SkillMatchThreshold == 0 {
		c.SkillMatchThreshold = 0.7
	}
	if c.DesignationTagBonus == 0 {
		c.DesignationTagBonus = 0.07
	}
	if c.DesignationTagPenalty == 0 {
		c.DesignationTagPenalty = 0.05
	}
	if c.LogisticMidpoint == 0 {
		c.LogisticMidpoint = 0.5
	}
	if c.LogisticSteepness == 0 {
		c.LogisticSteepness = 12
	}
	if c.DegreeMatchThreshold == 0 {
		c.DegreeMatchThreshold = 0.6
	}
	if c.ITDegreeThreshold == 0 {
		c.ITDegreeThreshold = 0.5
	}
	if len(c.ITDegreePrototypes) == 0 {
		c.ITDegreePrototypes = []string{
			"bachelor of science in computer science",
			"associate in information technology",
		}
	}
	if c.GPAPolicy == "" {
		c.GPAPolicy = GPAPolicyBanded
	}
}

// Scorer 聚合全部维度打分器。无内部可变状态，可并发使用。
type Scorer struct {
	provider EmbeddingProvider
	norm     *textnorm.Normalizer
	roles    *textnorm.RoleTagger
	cfg      Config
}

// NewScorer 创建打分器。provider 不能为空。
func NewScorer(provider EmbeddingProvider, norm *textnorm.Normalizer, roles *textnorm.RoleTagger, cfg Config) (*Scorer, error) {
	if provider == nil {
		return nil, fmt.Errorf("EmbeddingProvider 不能为空")
	}
	if norm == nil {
		var err error
		norm, err = textnorm.NewNormalizer(nil)
		if err != nil {
			return nil, err
		}
	}
	if roles == nil {
		roles = textnorm.NewRoleTagger(nil)
	}
	cfg.applyDefaults()
	return &Scorer{provider: provider, norm: norm, roles: roles, cfg: cfg}, nil
}

// SkillsScore 技能维度。
// 要求侧为空 → 不适用；候选侧为空 → 0；
// 否则每个要求技能只要有任一候选技能的余弦相似度超过阈值即视为命中，
// 得分 = 命中数/要求数，封顶1。
func (s *Scorer) SkillsScore(ctx context.Context, candidate, required []string) (types.DimensionScore, error) {
	required = lowerTrim(required)
	if len(required) == 0 {
		return types.NA(), nil
	}
	candidate = lowerTrim(candidate)
	if len(candidate) == 0 {
		return types.Score(0), nil
	}

	all := make([]string, 0, len(candidate)+len(required))
	all = append(all, candidate...)
	all = append(all, required...)
	vectors, err := s.provider.EmbedStrings(ctx, all)
	if err != nil {
		return types.DimensionScore{}, fmt.Errorf("技能向量化失败: %w", err)
	}
	if len(vectors) != len(all) {
		return types.DimensionScore{}, fmt.Errorf("技能向量化结果数量不符: 期望%d, 实际%d", len(all), len(vectors))
	}
	candVecs, reqVecs := vectors[:len(candidate)], vectors[len(candidate):]

	matched := 0
	for _, rv := range reqVecs {
		for _, cv := range candVecs {
			if CosineSimilarity(cv, rv) > s.cfg.SkillMatchThreshold {
				matched++
				break
			}
		}
	}
	return types.Score(float64(matched) / float64(len(required))), nil
}

// ExperienceScore 经验年限维度。
// 要求为0年 → 满分（选定的策略：无年限要求等同于人人达标，而非哨兵）。
// 候选 ≥ 要求 → 1；否则线性给部分分；候选缺失或无法解析 → 0。
func (s *Scorer) ExperienceScore(candidateRaw string, requiredYears float64) types.DimensionScore {
	if requiredYears <= 0 {
		return types.Score(1)
	}
	years, ok := parseLeadingFloat(candidateRaw)
	if !ok || years <= 0 {
		return types.Score(0)
	}
	if years >= requiredYears {
		return types.Score(1)
	}
	return types.Score(years / requiredYears)
}

// DesignationScore 职位名称维度。该维度永远适用：要求侧一经提取必然存在，
// 任一侧为空直接得0。
// 相似度经过角色标签修正后，用以0.5为中心、斜率12的logistic函数锐化。
func (s *Scorer) DesignationScore(ctx context.Context, candidate, required string) (types.DimensionScore, error) {
	if isMissing(candidate) || isMissing(required) {
		return types.Score(0), nil
	}
	cand := s.norm.Normalize(candidate)
	req := s.norm.Normalize(required)

	vectors, err := s.provider.EmbedStrings(ctx, []string{cand, req})
	if err != nil {
		return types.DimensionScore{}, fmt.Errorf("职位向量化失败: %w", err)
	}
	if len(vectors) != 2 {
		return types.DimensionScore{}, fmt.Errorf("职位向量化结果数量不符: %d", len(vectors))
	}
	sim := CosineSimilarity(vectors[0], vectors[1])

	tagsCand, tagsReq := s.roles.TagSet(cand), s.roles.TagSet(req)
	if textnorm.Intersects(tagsCand, tagsReq) {
		sim = math.Min(sim+s.cfg.DesignationTagBonus, 1)
	} else if hasRole(tagsCand, tagsReq, "frontend") && hasRole(tagsCand, tagsReq, "backend") {
		// 一侧纯前端、另一侧纯后端：方向相反，额外压低
		sim = math.Max(sim-s.cfg.DesignationTagPenalty, 0)
	}

	score := 1 / (1 + math.Exp(-s.cfg.LogisticSteepness*(sim-s.cfg.LogisticMidpoint)))
	return types.Score(score), nil
}

// DegreeScore 学位维度。
// 要求侧为空 → 不适用；候选侧为空 → 0。
// 要求为通用IT学位哨兵时与IT学位原型向量比对，否则与指定学位直接比对。
// 两条路径都是过阈值得满分、否则0分的二元结果。
func (s *Scorer) DegreeScore(ctx context.Context, candidate, required string) (types.DimensionScore, error) {
	if strings.TrimSpace(required) == "" {
		return types.NA(), nil
	}
	if isMissing(candidate) {
		return types.Score(0), nil
	}

	if required == types.GenericITDegree {
		texts := append([]string{candidate}, s.cfg.ITDegreePrototypes...)
		vectors, err := s.provider.EmbedStrings(ctx, texts)
		if err != nil {
			return types.DimensionScore{}, fmt.Errorf("学位向量化失败: %w", err)
		}
		if len(vectors) != len(texts) {
			return types.DimensionScore{}, fmt.Errorf("学位向量化结果数量不符: %d", len(vectors))
		}
		prototype := meanVector(vectors[1:])
		if CosineSimilarity(vectors[0], prototype) > s.cfg.ITDegreeThreshold {
			return types.Score(1), nil
		}
		return types.Score(0), nil
	}

	vectors, err := s.provider.EmbedStrings(ctx, []string{candidate, required})
	if err != nil {
		return types.DimensionScore{}, fmt.Errorf("学位向量化失败: %w", err)
	}
	if len(vectors) != 2 {
		return types.DimensionScore{}, fmt.Errorf("学位向量化结果数量不符: %d", len(vectors))
	}
	if CosineSimilarity(vectors[0], vectors[1]) > s.cfg.DegreeMatchThreshold {
		return types.Score(1), nil
	}
	return types.Score(0), nil
}

// GPAScore GPA维度。要求侧为0 → 不适用；候选缺失或无法解析 → 0。
// 取"/"前的数值，按"/10"字样或数值大于4判定10分制。
func (s *Scorer) GPAScore(candidateRaw string, requiredGPA float64) types.DimensionScore {
	if requiredGPA <= 0 {
		return types.NA()
	}
	raw := strings.TrimSpace(candidateRaw)
	if raw == "" || raw == types.NotProvided {
		return types.Score(0)
	}
	value, ok := parseLeadingFloat(strings.SplitN(raw, "/", 2)[0])
	if !ok {
		return types.Score(0)
	}

	scaleMax := 4.0
	if strings.Contains(raw, "/10") || value > 4.0 {
		scaleMax = 10.0
	}
	value = math.Min(math.Max(value, 0), scaleMax)

	switch s.cfg.GPAPolicy {
	case GPAPolicyBinary:
		// 统一折算到4分制后与要求比较（10分制除以2.5）
		normalized := value
		if scaleMax == 10.0 {
			normalized = value / 2.5
		}
		threshold := requiredGPA
		if s.cfg.GPABinaryThreshold > 0 {
			threshold = s.cfg.GPABinaryThreshold
		}
		if normalized >= threshold {
			return types.Score(1)
		}
		return types.Score(0)
	default:
		// 分档：档位按满分比例划定，保证10分制9.2与4分制3.7落在同一档
		ratio := value / scaleMax
		switch {
		case ratio >= 0.9:
			return types.Score(1)
		case ratio >= 0.8:
			return types.Score(0.7)
		case ratio >= 0.7:
			return types.Score(0.4)
		default:
			return types.Score(0)
		}
	}
}

// LanguagesScore 外语维度：存在性检查（策略a）。
// 要求侧为空 → 不适用；候选有任意非空值即满分。
func (s *Scorer) LanguagesScore(candidate string, required []string) types.DimensionScore {
	if len(required) == 0 {
		return types.NA()
	}
	if isMissing(candidate) {
		return types.Score(0)
	}
	return types.Score(1)
}

// CertificationsScore 证书维度：与技能相同的向量重叠口径（策略b）。
func (s *Scorer) CertificationsScore(ctx context.Context, candidate string, required []string) (types.DimensionScore, error) {
	return s.listOverlapScore(ctx, candidate, required)
}

// AwardsScore 奖项维度：与技能相同的向量重叠口径（策略b）。
func (s *Scorer) AwardsScore(ctx context.Context, candidate string, required []string) (types.DimensionScore, error) {
	return s.listOverlapScore(ctx, candidate, required)
}

func (s *Scorer) listOverlapScore(ctx context.Context, candidate string, required []string) (types.DimensionScore, error) {
	if len(required) == 0 {
		return types.NA(), nil
	}
	if isMissing(candidate) {
		return types.Score(0), nil
	}
	return s.SkillsScore(ctx, splitList(candidate), required)
}

// ScoreAll 对一个候选人计算全部维度。
// 任一依赖向量的维度失败都使整个调用失败，服务级故障不做按维度降级。
func (s *Scorer) ScoreAll(ctx context.Context, cand *types.CandidateProfile, req *types.RequirementProfile) (map[types.Dimension]types.DimensionScore, error) {
	scores := make(map[types.Dimension]types.DimensionScore, len(types.AllDimensions))

	var err error
	if scores[types.DimSkills], err = s.SkillsScore(ctx, cand.Skills, req.RequiredSkills); err != nil {
		return nil, err
	}
	scores[types.DimExperience] = s.ExperienceScore(cand.YearsRaw, req.RequiredYears)
	if scores[types.DimDesignation], err = s.DesignationScore(ctx, cand.Designation, req.Designation); err != nil {
		return nil, err
	}
	if scores[types.DimDegree], err = s.DegreeScore(ctx, cand.Degree, req.RequiredDegree); err != nil {
		return nil, err
	}
	scores[types.DimGPA] = s.GPAScore(cand.GPARaw, req.RequiredGPA)
	scores[types.DimLanguages] = s.LanguagesScore(cand.Languages, req.RequiredLanguages)
	if scores[types.DimCertifications], err = s.CertificationsScore(ctx, cand.Certifications, req.RequiredCertifications); err != nil {
		return nil, err
	}
	if scores[types.DimAwards], err = s.AwardsScore(ctx, cand.Awards, req.RequiredAwards); err != nil {
		return nil, err
	}
	return scores, nil
}

// hasRole 判断角色是否出现在两个集合的并集中。
func hasRole(a, b map[string]struct{}, role string) bool {
	if _, ok := a[role]; ok {
		return true
	}
	_, ok := b[role]
	return ok
}

func isMissing(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == types.NotProvided
}

func lowerTrim(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.ToLower(strings.TrimSpace(it))
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseLeadingFloat 提取字符串开头的数值，容忍"3 năm"、"2.5 years"这类带单位文本。
func parseLeadingFloat(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == types.NotProvided {
		return 0, false
	}
	end := 0
	seenDot := false
	for end < len(raw) {
		c := raw[end]
		if c >= '0' && c <= '9' {
			end++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(raw[:end], "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
