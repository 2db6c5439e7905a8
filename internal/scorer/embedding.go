// Package scorer 实现候选人-岗位多维度契合度打分。
// 所有打分函数对给定输入与向量化服务都是纯函数，无共享可变状态。
package scorer

import (
	"context"
	"errors"
	"math"
)

// EmbeddingProvider 文本向量化能力。
// 实现必须满足：相同文本在固定模型版本下返回确定性的向量；
// 可被多个并发打分请求只读共享。
type EmbeddingProvider interface {
	EmbedStrings(ctx context.Context, texts []string) ([][]float64, error)
}

// ErrProviderUnavailable 向量化服务不可用。
// 依赖向量的维度遇到该错误时整个打分请求失败，绝不降级成一个悄悄算错的分数。
var ErrProviderUnavailable = errors.New("向量化服务不可用")

// CosineSimilarity 计算两个向量的余弦相似度，值域 [-1,1]。
// 维度不一致或零向量时返回0。
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// meanVector 取一组向量的逐维平均，用于构造原型向量。
func meanVector(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	mean := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i := range mean {
			mean[i] += v[i]
		}
	}
	for i := range mean {
		mean[i] /= float64(len(vectors))
	}
	return mean
}
