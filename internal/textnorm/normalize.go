// Package textnorm 提供打分前的自由文本规范化与职能角色打标。
// 规则顺序敏感：后面的折叠规则作用于已被前面规则折叠过的文本。
package textnorm

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldingRule 一条短语折叠规则。Pattern 为正则，作用于已小写化的文本。
type FoldingRule struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// DefaultFoldingRules 内置折叠规则，与线上打分行为一致。
// 可通过配置整体替换，便于在不改代码的情况下审计打分行为变化。
func DefaultFoldingRules() []FoldingRule {
	return []FoldingRule{
		{`\b(full[\s\-]?stack|mern|mean|lamp)\b`, "full stack"},
		{`\bfront[\s\-]?end\b`, "frontend"},
		{`\bback[\s\-]?end\b`, "backend"},
		{`\bdev[\s\-]?ops\b`, "devops"},
		{`\bsite reliability( engineer|)\b`, "sre"},
		{`\bquality[\s\-]?assurance\b`, "qa"},
		{`\b(machine[\s\-]?learning|ml engineer)\b`, "ml"},
		{`\bdata[\s\-]?science\b`, "data"},
		{`\b(cyber[\s\-]?security|info[\s\-]?sec)\b`, "security"},
		{`\bios\b`, "ios"},
	}
}

var (
	// 保留对技术词汇有意义的 + # /，其余标点替换为空格
	punctPattern      = regexp.MustCompile(`[^\p{L}\p{N}_+#/\s]`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	// NFKD分解后去掉组合用变音符号
	stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
)

// 折叠规则迭代到不动点的最大轮数
const maxFoldingPasses = 4

type compiledRule struct {
	re   *regexp.Regexp
	repl string
}

// Normalizer 文本规范化器。线程安全，可全局共享。
type Normalizer struct {
	rules []compiledRule
}

// NewNormalizer 编译折叠规则并返回规范化器。rules 为空时使用内置规则。
func NewNormalizer(rules []FoldingRule) (*Normalizer, error) {
	if len(rules) == 0 {
		rules = DefaultFoldingRules()
	}
	n := &Normalizer{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("编译折叠规则 %q 失败: %w", r.Pattern, err)
		}
		n.rules = append(n.rules, compiledRule{re: re, repl: r.Replacement})
	}
	return n, nil
}

// Normalize 规范化文本：Unicode兼容分解、小写化、按序折叠短语、
// 剔除无关标点、压缩空白。幂等：Normalize(Normalize(x)) == Normalize(x)。
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}
	decomposed, _, err := transform.String(stripMarks, text)
	if err == nil {
		text = decomposed
	}
	text = strings.ToLower(text)
	// 折叠到不动点：一条规则的替换产物可能再次命中同一条或后续规则
	// （如 machine learning engineer → ml engineer → ml）。设上限防止
	// 自定义规则互相改写时死循环。
	for pass := 0; pass < maxFoldingPasses; pass++ {
		prev := text
		for _, rule := range n.rules {
			text = rule.re.ReplaceAllString(text, rule.repl)
		}
		if text == prev {
			break
		}
	}
	text = punctPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}
