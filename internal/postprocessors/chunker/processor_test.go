package chunker

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("chunk-%d", n)
	}
}

var testMeta = domain.DocumentMetadata{
	DocumentType: domain.DocumentTypeFinancialStatement,
	Filename:     "FAB-FS-Q1-2025-English.pdf",
	Quarter:      "Q1",
	Year:         "2025",
	FiscalPeriod: "Q1 2025",
}

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		p := New()
		if p.MaxChars() != DefaultMaxChars {
			t.Errorf("expected maxChars %d, got %d", DefaultMaxChars, p.MaxChars())
		}
	})

	t.Run("custom max chars", func(t *testing.T) {
		p := New(WithMaxChars(500))
		if p.MaxChars() != 500 {
			t.Errorf("expected maxChars 500, got %d", p.MaxChars())
		}
	})

	t.Run("zero values ignored", func(t *testing.T) {
		p := New(WithMaxChars(0), WithIDFunc(nil))
		if p.MaxChars() != DefaultMaxChars {
			t.Errorf("expected default maxChars, got %d", p.MaxChars())
		}
		if p.newID == nil {
			t.Error("expected default id func")
		}
	})
}

func TestProcessor_Name(t *testing.T) {
	p := New()
	if p.Name() != "chunker" {
		t.Errorf("expected name 'chunker', got '%s'", p.Name())
	}
}

func TestProcessor_Process_BalanceSheetExample(t *testing.T) {
	p := New()
	doc := &domain.ProcessedDocument{
		Content:  "#Section Balance Sheet\n#Page 3\nTotal Assets AED 100 million\n\n|A|B|\n|-|-|\n|1|2|\n",
		Metadata: testMeta,
	}

	chunks, err := p.Process(context.Background(), doc, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, domain.ContentTypeText, chunks[0].Metadata.ContentType)
	assert.Equal(t, "Total Assets AED 100 million", chunks[0].Content)
	assert.Equal(t, domain.ContentTypeTable, chunks[1].Metadata.ContentType)
	assert.Equal(t, "|A|B|\n|-|-|\n|1|2|", chunks[1].Content)

	for i, c := range chunks {
		assert.Equal(t, "Balance Sheet", c.Metadata.SectionName)
		assert.Equal(t, 3, c.Metadata.PageNumber)
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		assert.NotEmpty(t, c.ID)
	}
}

func TestProcessor_Process_NoSections(t *testing.T) {
	p := New()
	doc := &domain.ProcessedDocument{Content: "plain text without markers", Metadata: testMeta}

	chunks, err := p.Process(context.Background(), doc, nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestProcessor_Process_IgnoresInputChunks(t *testing.T) {
	p := New()
	doc := &domain.ProcessedDocument{Content: "#Section A\n#Page 1\nbody", Metadata: testMeta}
	input := []domain.Chunk{{ID: "existing", Content: "old"}}

	chunks, err := p.Process(context.Background(), doc, input)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.NotEqual(t, "existing", chunks[0].ID)
	assert.Equal(t, "body", chunks[0].Content)
}

func TestProcessor_Process_ChunkIndexRestartsPerSection(t *testing.T) {
	p := New(WithMaxChars(10))
	doc := &domain.ProcessedDocument{
		Content:  "#Section A\n#Page 1\nalpha one\n\nalpha two\n#Section B\n#Page 2\nbeta",
		Metadata: testMeta,
	}

	chunks, err := p.Process(context.Background(), doc, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 1, 0}, []int{
		chunks[0].Metadata.ChunkIndex,
		chunks[1].Metadata.ChunkIndex,
		chunks[2].Metadata.ChunkIndex,
	})
	assert.Equal(t, "B", chunks[2].Metadata.SectionName)
}

func TestSplit_Metadata(t *testing.T) {
	p := New(WithIDFunc(sequentialIDs()))

	chunks := p.Split(domain.Section{Name: "Income Statement", Page: 5, Content: "Net profit AED 4.6bn"}, testMeta)

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.Chunk{
		ID:      "chunk-1",
		Content: "Net profit AED 4.6bn",
		Metadata: domain.ChunkMetadata{
			DocumentType:   "financial_statement",
			Filename:       "FAB-FS-Q1-2025-English.pdf",
			Quarter:        "Q1",
			Year:           "2025",
			FiscalPeriod:   "Q1 2025",
			SectionName:    "Income Statement",
			PageNumber:     5,
			ChunkIndex:     0,
			ContentType:    domain.ContentTypeText,
			SourceDocument: "FAB-FS-Q1-2025-English.pdf",
		},
	}, chunks[0])
}

func TestSplit_MissingPeriodDefaultsToUnknown(t *testing.T) {
	p := New()

	chunks := p.Split(domain.Section{Name: "Notes", Page: 1, Content: "text"},
		domain.DocumentMetadata{Filename: "notes.md"})

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.Unknown, chunks[0].Metadata.Quarter)
	assert.Equal(t, domain.Unknown, chunks[0].Metadata.Year)
	assert.Equal(t, domain.Unknown, chunks[0].Metadata.FiscalPeriod)
}

func TestSplit_PacksParagraphs(t *testing.T) {
	p := New(WithMaxChars(20))
	sec := domain.Section{Name: "S", Page: 1, Content: "aaaa\n\nbbbb\n\ncccccccccccccccc"}

	chunks := p.Split(sec, testMeta)

	require.Len(t, chunks, 2)
	assert.Equal(t, "aaaa\n\nbbbb", chunks[0].Content)
	assert.Equal(t, "cccccccccccccccc", chunks[1].Content)
}

func TestSplit_OversizedParagraphKeptWhole(t *testing.T) {
	p := New(WithMaxChars(10))
	long := strings.Repeat("x", 50)
	sec := domain.Section{Name: "S", Page: 1, Content: "short\n\n" + long + "\n\ntail"}

	chunks := p.Split(sec, testMeta)

	require.Len(t, chunks, 3)
	assert.Equal(t, "short", chunks[0].Content)
	assert.Equal(t, long, chunks[1].Content)
	assert.Equal(t, "tail", chunks[2].Content)
}

func TestSplit_TableFlushesPendingText(t *testing.T) {
	p := New()
	sec := domain.Section{Name: "S", Page: 2, Content: "intro\n| Metric | Q1 |\n| --- | --- |\n| NPAT | 4.6 |\n| ROE | 18% |\noutro"}

	chunks := p.Split(sec, testMeta)

	require.Len(t, chunks, 3)
	assert.Equal(t, "intro", chunks[0].Content)
	assert.Equal(t, domain.ContentTypeTable, chunks[1].Metadata.ContentType)
	assert.Equal(t, "| Metric | Q1 |\n| --- | --- |\n| NPAT | 4.6 |\n| ROE | 18% |", chunks[1].Content)
	assert.Equal(t, "outro", chunks[2].Content)
	assert.Equal(t, domain.ContentTypeText, chunks[2].Metadata.ContentType)
}

func TestSplit_PipeLinesWithoutSeparatorAreText(t *testing.T) {
	p := New()
	sec := domain.Section{Name: "S", Page: 1, Content: "|not|a|\n|table|row|"}

	chunks := p.Split(sec, testMeta)

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.ContentTypeText, chunks[0].Metadata.ContentType)
}

func TestSplit_CountsCharactersNotBytes(t *testing.T) {
	p := New(WithMaxChars(12))
	sec := domain.Section{Name: "S", Page: 1, Content: "ربحربح\n\nربح"}

	chunks := p.Split(sec, testMeta)

	require.Len(t, chunks, 1, "6+2+3 characters fit in a budget of 12 even though the bytes do not")
}

func TestSegment(t *testing.T) {
	blocks := segment("a\n|h|\n|-|\n|1|\nb\n|x|\n|:--|\n")

	require.Len(t, blocks, 4)
	assert.Equal(t, block{text: "a\n"}, blocks[0])
	assert.Equal(t, block{text: "|h|\n|-|\n|1|\n", table: true}, blocks[1])
	assert.Equal(t, block{text: "b\n"}, blocks[2])
	assert.Equal(t, block{text: "|x|\n|:--|\n", table: true}, blocks[3])
}

// randomSection builds section content from paragraphs and tables of
// varied sizes, some paragraphs exceeding the budget.
func randomSection(r *rand.Rand) string {
	var parts []string
	for i := 0; i < 5+r.Intn(20); i++ {
		if r.Intn(5) == 0 {
			rows := []string{"| Item | Value |", "| --- | --- |"}
			for j := 0; j < r.Intn(4); j++ {
				rows = append(rows, fmt.Sprintf("| row%d | %d |", j, r.Intn(1000)))
			}
			parts = append(parts, strings.Join(rows, "\n"))
			continue
		}
		words := make([]string, 1+r.Intn(400))
		for j := range words {
			words[j] = strings.Repeat("w", 1+r.Intn(9))
		}
		parts = append(parts, strings.Join(words, " "))
	}
	return strings.Join(parts, "\n\n")
}

func TestSplit_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	p := New()

	for n := 0; n < 50; n++ {
		content := randomSection(r)
		checkSplit(t, p, content)
		checkSplit(t, p, strings.ReplaceAll(content, "\n", "\r\n"))
	}
}

func checkSplit(t *testing.T, p *Processor, content string) {
	t.Helper()
	chunks := p.Split(domain.Section{Name: "S", Page: 1, Content: content}, testMeta)

	var joined strings.Builder
	for i, c := range chunks {
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		joined.WriteString(c.Content)

		if c.Metadata.ContentType == domain.ContentTypeTable {
			continue
		}
		if size := utf8.RuneCountInString(c.Content); size > DefaultMaxChars {
			assert.NotContains(t, c.Content, "\n\n",
				"chunk of %d chars must be a single oversized paragraph", size)
		}
	}

	assert.Equal(t, stripSpace(content), stripSpace(joined.String()),
		"chunks must reproduce the section content")
}

func TestSplit_CRLFParagraphs(t *testing.T) {
	para := strings.Repeat("a", 1000)
	chunks := New().Split(domain.Section{Name: "S", Page: 1, Content: para + "\r\n\r\n" + para}, testMeta)

	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, domain.ContentTypeText, c.Metadata.ContentType)
		assert.Equal(t, para, c.Content)
	}
}

func TestSplit_CRLFTable(t *testing.T) {
	content := "Total assets\r\n\r\n| A | B |\r\n|---|---|\r\n| 1 | 2 |\r\n"
	chunks := New().Split(domain.Section{Name: "S", Page: 1, Content: content}, testMeta)

	require.Len(t, chunks, 2)
	assert.Equal(t, domain.ContentTypeText, chunks[0].Metadata.ContentType)
	assert.Equal(t, domain.ContentTypeTable, chunks[1].Metadata.ContentType)
	assert.NotContains(t, chunks[1].Content, "\r")
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
