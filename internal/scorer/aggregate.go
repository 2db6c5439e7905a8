package scorer

import (
	"fmt"

	"cv-scoring-go/internal/types"
)

// AggregationMode 总分聚合口径。两种口径按部署二选一，绝不混用。
type AggregationMode string

const (
	// ModeWeightedSum 加权求和：每个维度有固定配点，总分在 [0, Σ权重]。
	// "不适用"的维度按0权重贡献处理。
	ModeWeightedSum AggregationMode = "weighted_sum"
	// ModeNormalizedAverage 归一化平均：只对适用的维度取算术平均，总分在 [0,1]。
	// 没有任何适用维度时总分为0。
	ModeNormalizedAverage AggregationMode = "normalized_average"
)

// Weights 各维度的配点。仅加权求和口径使用。
type Weights map[types.Dimension]float64

// DefaultWeights 默认配点方案，合计100分。
func DefaultWeights() Weights {
	return Weights{
		types.DimSkills:         25,
		types.DimExperience:     20,
		types.DimDesignation:    15,
		types.DimDegree:         10,
		types.DimGPA:            10,
		types.DimLanguages:      5,
		types.DimCertifications: 10,
		types.DimAwards:         5,
	}
}

// Aggregator 总分聚合器。不修改输入，相同输入产出相同结果。
type Aggregator struct {
	mode    AggregationMode
	weights Weights
}

// NewAggregator 创建聚合器。加权口径下 weights 为空时使用默认配点。
func NewAggregator(mode AggregationMode, weights Weights) (*Aggregator, error) {
	switch mode {
	case ModeWeightedSum:
		if len(weights) == 0 {
			weights = DefaultWeights()
		}
	case ModeNormalizedAverage:
		// 归一化口径不看配点
	default:
		return nil, fmt.Errorf("未知的聚合口径: %q", mode)
	}
	return &Aggregator{mode: mode, weights: weights}, nil
}

// Mode 返回聚合口径。
func (a *Aggregator) Mode() AggregationMode {
	return a.mode
}

// Total 按选定口径计算总分。
func (a *Aggregator) Total(scores map[types.Dimension]types.DimensionScore) float64 {
	switch a.mode {
	case ModeWeightedSum:
		var total float64
		for dim, sc := range scores {
			if !sc.Applicable {
				continue
			}
			total += sc.Value * a.weights[dim]
		}
		return total
	default:
		var sum float64
		applicable := 0
		for _, sc := range scores {
			if !sc.Applicable {
				continue
			}
			sum += sc.Value
			applicable++
		}
		if applicable == 0 {
			return 0
		}
		return sum / float64(applicable)
	}
}

// BuildReport 组装单个候选人的打分报告。维度顺序固定为 types.AllDimensions。
func (a *Aggregator) BuildReport(candidateName string, scores map[types.Dimension]types.DimensionScore) types.ScoreReport {
	dims := make(map[types.Dimension]types.DimensionScore, len(types.AllDimensions))
	for _, d := range types.AllDimensions {
		dims[d] = scores[d]
	}
	return types.ScoreReport{
		CandidateName: candidateName,
		Dimensions:    dims,
		Total:         a.Total(scores),
	}
}

// ErrorReport 构造批量处理中单个候选人失败时的错误标记报告。
func ErrorReport(candidateName string, err error) types.ScoreReport {
	msg := "处理失败"
	if err != nil {
		msg = err.Error()
	}
	return types.ScoreReport{
		CandidateName: candidateName,
		Dimensions:    map[types.Dimension]types.DimensionScore{},
		Failed:        true,
		Error:         msg,
	}
}
