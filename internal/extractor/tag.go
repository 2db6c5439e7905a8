package extractor

import "strings"

// Position BILOU标签的位置类别。
// 标签字符串在进入状态机前统一解码为 (Position, Label) 结构，
// 后续流程不再做字符串切片，非法的标签组合在类型上即不可表达。
type Position int

const (
	// PosOutside O标签，不属于任何实体
	PosOutside Position = iota
	// PosSub X标签，子词延续片段，自身无独立语义标签
	PosSub
	// PosSpecial [CLS]/[SEP]特殊标记，完全跳过
	PosSpecial
	// PosBegin B-标签，实体开始
	PosBegin
	// PosInside I-标签，实体内部
	PosInside
	// PosLast L-标签，实体结束
	PosLast
	// PosUnit U-标签，单词元实体
	PosUnit
	// PosOther 词表之外的独立标记，只会强制闭合已打开的实体
	PosOther
)

// Tag 解码后的标签。Label 仅在 Begin/Inside/Last/Unit 时非空。
type Tag struct {
	Pos   Position
	Label string
}

// KnownLabels 上游标注模型的封闭标签集合。
// 与标注服务的 tag2idx 词表保持一致。
var KnownLabels = map[string]struct{}{
	"NAME":                        {},
	"EMAIL":                       {},
	"PHONE":                       {},
	"GITHUB":                      {},
	"LOC":                         {},
	"UNI":                         {},
	"DEG":                         {},
	"GRADUATION_YEAR":             {},
	"CERTIFICATION":               {},
	"PROJECT":                     {},
	"PROJECT_DESCRIPTION":         {},
	"WORKING_COMPANY_EXPERIENCES": {},
	"WORKING_TIME_EXPERIENCES":    {},
	"WORKING_DESCRIPTION":         {},
	"TECHSTACK_SKILLS":            {},
	"DESIG":                       {},
	"GPA":                         {},
}

// IsKnownLabel 判断标签是否在封闭词表内。
// 状态机本身不拒绝未知标签（防御上游演进），调用方可用它做校验。
func IsKnownLabel(label string) bool {
	_, ok := KnownLabels[label]
	return ok
}

// DecodeTag 将原始标签字符串解码为 Tag。
// 词表外且不带 B-/I-/L-/U- 前缀的字符串一律归为 PosOther。
func DecodeTag(raw string) Tag {
	switch raw {
	case "O":
		return Tag{Pos: PosOutside}
	case "X":
		return Tag{Pos: PosSub}
	case "[CLS]", "[SEP]":
		return Tag{Pos: PosSpecial}
	}
	if len(raw) > 2 && raw[1] == '-' {
		label := raw[2:]
		switch raw[0] {
		case 'B':
			return Tag{Pos: PosBegin, Label: label}
		case 'I':
			return Tag{Pos: PosInside, Label: label}
		case 'L':
			return Tag{Pos: PosLast, Label: label}
		case 'U':
			return Tag{Pos: PosUnit, Label: label}
		}
	}
	return Tag{Pos: PosOther}
}

// stripSubwordMarkers 去掉WordPiece分词器的子词连接符，得到人类可读文本。
func stripSubwordMarkers(s string) string {
	return strings.ReplaceAll(s, "##", "")
}
