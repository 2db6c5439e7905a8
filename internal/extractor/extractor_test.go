package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cv-scoring-go/internal/types"
)

func tok(text, tag string, pos int) types.Token {
	return types.Token{Text: text, Tag: tag, Position: pos}
}

func TestDecodeTag(t *testing.T) {
	assert.Equal(t, Tag{Pos: PosOutside}, DecodeTag("O"))
	assert.Equal(t, Tag{Pos: PosSub}, DecodeTag("X"))
	assert.Equal(t, Tag{Pos: PosSpecial}, DecodeTag("[CLS]"))
	assert.Equal(t, Tag{Pos: PosSpecial}, DecodeTag("[SEP]"))
	assert.Equal(t, Tag{Pos: PosBegin, Label: "NAME"}, DecodeTag("B-NAME"))
	assert.Equal(t, Tag{Pos: PosInside, Label: "TECHSTACK_SKILLS"}, DecodeTag("I-TECHSTACK_SKILLS"))
	assert.Equal(t, Tag{Pos: PosLast, Label: "UNI"}, DecodeTag("L-UNI"))
	assert.Equal(t, Tag{Pos: PosUnit, Label: "GPA"}, DecodeTag("U-GPA"))
	// 词表外的奇怪标签归为独立标记
	assert.Equal(t, Tag{Pos: PosOther}, DecodeTag("PAD"))
	assert.Equal(t, Tag{Pos: PosOther}, DecodeTag("B"))

	assert.True(t, IsKnownLabel("DESIG"))
	assert.False(t, IsKnownLabel("SALARY"))
}

func TestExtract_WellFormedEntity(t *testing.T) {
	// B- I- L- 序列：文本为全部吸收词元的拼接，子词标记去除，结束位置为L-词元
	tokens := []types.Token{
		tok("[CLS]", "[CLS]", 0),
		tok("Nguyen", "B-NAME", 1),
		tok("Van", "I-NAME", 2),
		tok("An", "L-NAME", 3),
		tok("[SEP]", "[SEP]", 4),
	}
	spans := New().Extract(tokens)
	require.Len(t, spans, 1)
	assert.Equal(t, types.EntitySpan{Text: "NguyenVanAn", Label: "NAME", StartPos: 1, EndPos: 3}, spans[0])
}

func TestExtract_SubwordAbsorptionAndTrailingX(t *testing.T) {
	// L- 之后紧跟的X连跑也要吸收进实体，结束位置随之后移
	tokens := []types.Token{
		tok("Ha", "B-UNI", 0),
		tok("##noi", "X", 1),
		tok("University", "I-UNI", 2),
		tok("of", "I-UNI", 3),
		tok("Scien", "L-UNI", 4),
		tok("##ce", "X", 5),
		tok("and", "O", 6),
	}
	spans := New().Extract(tokens)
	require.Len(t, spans, 1)
	assert.Equal(t, "HanoiUniversityofScience", spans[0].Text)
	assert.Equal(t, 0, spans[0].StartPos)
	assert.Equal(t, 5, spans[0].EndPos)
}

func TestExtract_UnitEntity(t *testing.T) {
	// 孤立的U-词元：单词元实体，起止位置相同
	tokens := []types.Token{
		tok("python", "U-TECHSTACK_SKILLS", 7),
	}
	spans := New().Extract(tokens)
	require.Len(t, spans, 1)
	assert.Equal(t, types.EntitySpan{Text: "python", Label: "TECHSTACK_SKILLS", StartPos: 7, EndPos: 7}, spans[0])
}

func TestExtract_UnitEntityWithTrailingX(t *testing.T) {
	tokens := []types.Token{
		tok("git", "U-GITHUB", 2),
		tok("##hub", "X", 3),
		tok(".com", "X", 4),
		tok("foo", "O", 5),
	}
	spans := New().Extract(tokens)
	require.Len(t, spans, 1)
	assert.Equal(t, "github.com", spans[0].Text)
	assert.Equal(t, 2, spans[0].StartPos)
	assert.Equal(t, 4, spans[0].EndPos)
}

func TestExtract_ForceCloseOnNewBegin(t *testing.T) {
	// 缺少L-收尾的实体，被下一个B-强制闭合
	tokens := []types.Token{
		tok("Java", "B-TECHSTACK_SKILLS", 0),
		tok("Spring", "I-TECHSTACK_SKILLS", 1),
		tok("Hanoi", "B-LOC", 2),
		tok("City", "L-LOC", 3),
	}
	spans := New().Extract(tokens)
	require.Len(t, spans, 2)
	assert.Equal(t, "JavaSpring", spans[0].Text)
	assert.Equal(t, "TECHSTACK_SKILLS", spans[0].Label)
	assert.Equal(t, 1, spans[0].EndPos)
	assert.Equal(t, "HanoiCity", spans[1].Text)
}

func TestExtract_ForceCloseAtEndOfInput(t *testing.T) {
	tokens := []types.Token{
		tok("Hanoi", "O", 0),
		tok("Backend", "B-DESIG", 1),
		tok("Developer", "I-DESIG", 2),
	}
	spans := New().Extract(tokens)
	require.Len(t, spans, 1)
	assert.Equal(t, "BackendDeveloper", spans[0].Text)
	assert.Equal(t, 2, spans[0].EndPos)
}

func TestExtract_StandaloneMarkerForceCloses(t *testing.T) {
	// 词表外的独立标记闭合悬挂实体，但自身不产生实体
	tokens := []types.Token{
		tok("Backend", "B-DESIG", 0),
		tok("Dev", "I-DESIG", 1),
		tok("???", "PAD", 2),
		tok("rest", "O", 3),
	}
	spans := New().Extract(tokens)
	require.Len(t, spans, 1)
	assert.Equal(t, "BackendDev", spans[0].Text)
	assert.Equal(t, 1, spans[0].EndPos)
}

func TestExtract_MismatchedLastTag(t *testing.T) {
	tokens := []types.Token{
		tok("Bach", "B-UNI", 0),
		tok("Khoa", "I-UNI", 1),
		tok("Hanoi", "L-LOC", 2), // 标签不匹配的L-
		tok("x", "O", 3),
		tok("y", "O", 4),
	}

	t.Run("default closes at previous token", func(t *testing.T) {
		spans := New().Extract(tokens)
		require.Len(t, spans, 1)
		assert.Equal(t, "BachKhoa", spans[0].Text)
		assert.Equal(t, "UNI", spans[0].Label)
		assert.Equal(t, 1, spans[0].EndPos)
	})

	t.Run("legacy keeps entity open until end", func(t *testing.T) {
		spans := New(WithLegacyCompat()).Extract(tokens)
		require.Len(t, spans, 1)
		assert.Equal(t, "BachKhoa", spans[0].Text)
		// 悬挂到序列结束，用最后一个词元的位置闭合
		assert.Equal(t, 4, spans[0].EndPos)
	})
}

func TestExtract_UnitWhileEntityOpen(t *testing.T) {
	tokens := []types.Token{
		tok("Backend", "B-DESIG", 0),
		tok("Dev", "I-DESIG", 1),
		tok("3.6", "U-GPA", 2),
	}

	t.Run("default force-closes open entity first", func(t *testing.T) {
		spans := New().Extract(tokens)
		require.Len(t, spans, 2)
		assert.Equal(t, "BackendDev", spans[0].Text)
		assert.Equal(t, 1, spans[0].EndPos)
		assert.Equal(t, "3.6", spans[1].Text)
		assert.Equal(t, "GPA", spans[1].Label)
	})

	t.Run("legacy drops the open entity", func(t *testing.T) {
		spans := New(WithLegacyCompat()).Extract(tokens)
		require.Len(t, spans, 1)
		assert.Equal(t, "3.6", spans[0].Text)
	})
}

func TestExtract_SpansOrderedAndNonOverlapping(t *testing.T) {
	tokens := []types.Token{
		tok("[CLS]", "[CLS]", 0),
		tok("An", "U-NAME", 1),
		tok("works", "O", 2),
		tok("at", "O", 3),
		tok("FPT", "B-WORKING_COMPANY_EXPERIENCES", 4),
		tok("Soft", "I-WORKING_COMPANY_EXPERIENCES", 5),
		tok("##ware", "X", 6),
		tok("Hanoi", "L-WORKING_COMPANY_EXPERIENCES", 7),
		tok("react", "U-TECHSTACK_SKILLS", 8),
		tok("[SEP]", "[SEP]", 9),
	}
	spans := New().Extract(tokens)
	require.Len(t, spans, 3)
	for i := 1; i < len(spans); i++ {
		assert.Greater(t, spans[i].StartPos, spans[i-1].EndPos, "spans must not overlap and stay ordered")
	}
	assert.Equal(t, "FPTSoftwareHanoi", spans[1].Text)
}

func TestExtract_EmptyAndSpecialOnly(t *testing.T) {
	assert.Empty(t, New().Extract(nil))
	assert.Empty(t, New().Extract([]types.Token{tok("[CLS]", "[CLS]", 0), tok("[SEP]", "[SEP]", 1)}))
}

func TestExtract_Deterministic(t *testing.T) {
	tokens := []types.Token{
		tok("Le", "B-NAME", 0),
		tok("Thi", "I-NAME", 1),
		tok("Mai", "L-NAME", 2),
		tok("java", "U-TECHSTACK_SKILLS", 3),
	}
	e := New()
	first := e.Extract(tokens)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Extract(tokens))
	}
}
