package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Token 表示上游标注服务输出的单个词元。
// 由BERT序列标注模型产生，创建后不可变。
type Token struct {
	Text       string   `json:"token"`
	Tag        string   `json:"tag"`
	Position   int      `json:"position"`
	Confidence *float64 `json:"confidence,omitempty"` // 模型置信度，可选
}

// EntitySpan 表示从词元序列中还原出的命名实体片段。
// 仅由 extractor 包创建，文本已去除子词标记（##）。
type EntitySpan struct {
	Text     string `json:"text"`
	Label    string `json:"label"`
	StartPos int    `json:"start_position"`
	EndPos   int    `json:"end_position"`
}

// NotProvided 候选人字段的"未提供"标记。
// 与空字符串语义不同：空串表示解析结果为空，NotProvided表示简历中根本没有该信息，
// 两者在打分时走不同分支。
const NotProvided = "Not Provided"

// GenericITDegree JD学历要求的通用IT学位哨兵值。
// 当JD只要求"IT相关学位"而非具体专业时，要求提取器输出该值，
// 学位维度据此改用原型向量比对。
const GenericITDegree = "GENERIC_IT_DEGREE"

// RequirementProfile 岗位要求画像，由JD要求提取器产出。
// 属于不可信输入：数值为0或列表为空统一表示"无此要求"。
type RequirementProfile struct {
	Designation            string   `json:"designation"`
	RequiredYears          float64  `json:"required_experience_years"`
	RequiredDegree         string   `json:"required_degree"` // 可能为 GenericITDegree
	RequiredSkills         []string `json:"required_skills"`
	RequiredGPA            float64  `json:"required_gpa"`
	RequiredLanguages      []string `json:"required_languages"`
	RequiredCertifications []string `json:"required_certifications"`
	RequiredAwards         []string `json:"required_awards"`
}

// CandidateProfile 候选人画像，与RequirementProfile的各维度一一对应。
// 字段缺失时取 NotProvided，而不是空串。
type CandidateProfile struct {
	Name           string   `json:"name,omitempty"`
	Designation    string   `json:"designation"`
	YearsRaw       string   `json:"years_of_experience"` // 原始文本，如 "3 năm"、"2.5 years"
	Degree         string   `json:"degree"`
	Skills         []string `json:"skills"`
	GPARaw         string   `json:"gpa"` // 原始文本，如 "3.6/4.0"、"8.5/10"
	Languages      string   `json:"languages"`
	Certifications string   `json:"certifications"`
	Awards         string   `json:"awards"`
	GitHub         string   `json:"github,omitempty"`
	Projects       string   `json:"projects,omitempty"`
}

// Dimension 打分维度标识。
type Dimension string

const (
	DimSkills         Dimension = "skills"
	DimExperience     Dimension = "experience"
	DimDesignation    Dimension = "designation"
	DimDegree         Dimension = "degree"
	DimGPA            Dimension = "gpa"
	DimLanguages      Dimension = "languages"
	DimCertifications Dimension = "certifications"
	DimAwards         Dimension = "awards"
)

// AllDimensions 固定的维度顺序，ScoreReport 按此顺序输出。
var AllDimensions = []Dimension{
	DimSkills,
	DimExperience,
	DimDesignation,
	DimDegree,
	DimGPA,
	DimLanguages,
	DimCertifications,
	DimAwards,
}

// DimensionScore 单个维度的打分结果。
// Applicable 为 false 表示该维度的要求侧缺失（"not applicable"哨兵），
// 此时 Value 恒为0且不参与归一化聚合。创建后不再修改。
type DimensionScore struct {
	Value      float64 `json:"value"`
	Applicable bool    `json:"applicable"`
}

// NA 返回"不适用"哨兵分。
func NA() DimensionScore {
	return DimensionScore{Applicable: false}
}

// Score 返回一个适用的维度分，值被钳制到 [0,1]。
func Score(v float64) DimensionScore {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return DimensionScore{Value: v, Applicable: true}
}

// DimensionScores 候选人的各维度得分。
// 序列化时键按 AllDimensions 的固定顺序输出，报告逐字节可复现。
type DimensionScores map[Dimension]DimensionScore

// MarshalJSON 按 AllDimensions 顺序输出；集合外的键（不应出现）按字典序追加兜底。
func (d DimensionScores) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	written := 0
	writeEntry := func(dim Dimension, ds DimensionScore) error {
		if written > 0 {
			buf.WriteByte(',')
		}
		written++
		val, err := json.Marshal(ds)
		if err != nil {
			return err
		}
		fmt.Fprintf(&buf, "%q:%s", string(dim), val)
		return nil
	}
	for _, dim := range AllDimensions {
		ds, ok := d[dim]
		if !ok {
			continue
		}
		if err := writeEntry(dim, ds); err != nil {
			return nil, err
		}
	}
	if written < len(d) {
		known := make(map[Dimension]struct{}, len(AllDimensions))
		for _, dim := range AllDimensions {
			known[dim] = struct{}{}
		}
		extras := make([]Dimension, 0, len(d)-written)
		for dim := range d {
			if _, ok := known[dim]; !ok {
				extras = append(extras, dim)
			}
		}
		sort.Slice(extras, func(i, j int) bool { return extras[i] < extras[j] })
		for _, dim := range extras {
			if err := writeEntry(dim, d[dim]); err != nil {
				return nil, err
			}
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ScoreReport 单个候选人的完整打分报告。
// Dimensions 的键集合固定为 AllDimensions；每次请求新建，不可变。
type ScoreReport struct {
	CandidateName string          `json:"candidate_name,omitempty"`
	Dimensions    DimensionScores `json:"dimensions"`
	Total         float64         `json:"total_score"`
	// Failed 表示该候选人在批量处理中出错，所有维度均为错误标记。
	Failed bool   `json:"failed,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ScoreBatchRequest 批量打分请求体。
type ScoreBatchRequest struct {
	JDText     string             `json:"jd_text"`
	Candidates []CandidateProfile `json:"candidates"`
}

// ScoreBatchResult 批量打分的最终产物。
type ScoreBatchResult struct {
	BatchID     string              `json:"batch_id"`
	Requirement *RequirementProfile `json:"requirement"`
	Reports     []ScoreReport       `json:"reports"`
}
