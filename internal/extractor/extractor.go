// Package extractor 将上游序列标注模型输出的BILOU词元序列还原为带标签的实体片段。
// 状态机对畸形标签序列采取本地恢复策略（强制闭合），从不向调用方报错。
package extractor

import (
	"strings"

	"cv-scoring-go/internal/types"
)

// Extractor BILOU实体抽取器。无内部状态，可并发使用。
type Extractor struct {
	// legacy 为 true 时逐位还原历史版本的两处缺陷行为：
	// 1. 标签不匹配的 L- 不闭合当前实体，实体一直悬挂到下一个开启标签或序列结束；
	// 2. 实体未闭合时出现 U- 标签，被悬挂的实体直接丢弃而非强制闭合。
	legacy bool
}

// Option 抽取器配置选项。
type Option func(*Extractor)

// WithLegacyCompat 启用与历史实现逐位一致的兼容模式。
func WithLegacyCompat() Option {
	return func(e *Extractor) {
		e.legacy = true
	}
}

// New 创建抽取器。默认使用修正后的语义。
func New(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract 单遍扫描词元序列，输出按开启位置排序、互不重叠的实体片段。
// 确定性：相同输入永远产生相同输出。
func (e *Extractor) Extract(tokens []types.Token) []types.EntitySpan {
	tags := make([]Tag, len(tokens))
	for i, tok := range tokens {
		tags[i] = DecodeTag(tok.Tag)
	}

	spans := make([]types.EntitySpan, 0, len(tokens)/4)

	var (
		pieces   []string // 已吸收词元的文本
		curLabel string
		startPos int
		open     bool
	)

	emit := func(endPos int) {
		spans = append(spans, types.EntitySpan{
			Text:     stripSubwordMarkers(strings.Join(pieces, "")),
			Label:    curLabel,
			StartPos: startPos,
			EndPos:   endPos,
		})
		pieces = nil
		open = false
	}

	// 强制闭合：结束位置取序列中紧邻的前一个词元
	forceClose := func(i int) {
		if !open {
			return
		}
		endPos := startPos
		if i > 0 {
			endPos = tokens[i-1].Position
		}
		emit(endPos)
	}

	for i := 0; i < len(tokens); i++ {
		tag := tags[i]
		switch tag.Pos {
		case PosSpecial, PosOutside, PosSub:
			// O 和游离的 X 不闭合悬挂中的实体，直接跳过
			continue

		case PosBegin:
			forceClose(i)
			curLabel = tag.Label
			startPos = tokens[i].Position
			pieces = append(pieces[:0], tokens[i].Text)
			open = true

			// 前瞻吸收：I-<L> 与 X 继续，L-<L> 收尾并附带其后的X连跑
			j := i + 1
			for ; j < len(tokens); j++ {
				next := tags[j]
				if (next.Pos == PosInside && next.Label == curLabel) || next.Pos == PosSub {
					pieces = append(pieces, tokens[j].Text)
					continue
				}
				if next.Pos == PosLast && next.Label == curLabel {
					pieces = append(pieces, tokens[j].Text)
					end := j
					for k := j + 1; k < len(tokens) && tags[k].Pos == PosSub; k++ {
						pieces = append(pieces, tokens[k].Text)
						end = k
					}
					emit(tokens[end].Position)
					i = end
					j = -1
					break
				}
				// 既非 I-<L>/X 也非匹配的 L-<L>：终止前瞻，不消费该词元，实体保持悬挂
				break
			}
			if j >= 0 {
				i = j - 1
			}

		case PosUnit:
			if open {
				if e.legacy {
					// 历史行为：悬挂实体被直接覆盖丢弃
					pieces = pieces[:0]
					open = false
				} else {
					forceClose(i)
				}
			}
			curLabel = tag.Label
			startPos = tokens[i].Position
			pieces = append(pieces[:0], tokens[i].Text)
			open = true
			end := i
			for k := i + 1; k < len(tokens) && tags[k].Pos == PosSub; k++ {
				pieces = append(pieces, tokens[k].Text)
				end = k
			}
			emit(tokens[end].Position)
			i = end

		case PosInside, PosLast, PosOther:
			// 游离标记：自身不开启实体，只强制闭合悬挂中的实体。
			// 兼容模式下标签不匹配的 L- 不是闭合符，实体继续悬挂。
			if e.legacy && tag.Pos == PosLast {
				continue
			}
			forceClose(i)
		}
	}

	// 序列结束仍悬挂的实体，用最后一个词元的位置闭合
	if open && len(tokens) > 0 {
		emit(tokens[len(tokens)-1].Position)
	}

	return spans
}
