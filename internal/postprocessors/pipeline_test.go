package postprocessors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

// mockProcessor is a test processor that returns predefined chunks.
type mockProcessor struct {
	name   string
	chunks []domain.Chunk
	err    error
	seen   []domain.Chunk
}

func (m *mockProcessor) Name() string {
	return m.name
}

func (m *mockProcessor) Process(_ context.Context, _ *domain.ProcessedDocument, chunks []domain.Chunk) ([]domain.Chunk, error) {
	m.seen = chunks
	if m.err != nil {
		return nil, m.err
	}
	if m.chunks != nil {
		return m.chunks, nil
	}
	return chunks, nil
}

func TestPipeline_AddAndLen(t *testing.T) {
	p := NewPipeline()
	assert.Equal(t, 0, p.Len())

	p.Add(&mockProcessor{name: "test"})
	assert.Equal(t, 1, p.Len())
}

func TestPipeline_Process_NilDocument(t *testing.T) {
	_, err := NewPipeline().Process(context.Background(), nil)
	assert.Error(t, err)
}

func TestPipeline_Process_ChainsProcessors(t *testing.T) {
	first := &mockProcessor{name: "first", chunks: []domain.Chunk{{ID: "a"}}}
	second := &mockProcessor{name: "second"}
	p := NewPipeline(first, second)

	chunks, err := p.Process(context.Background(), &domain.ProcessedDocument{Content: "x"})

	require.NoError(t, err)
	assert.Nil(t, first.seen)
	assert.Equal(t, []domain.Chunk{{ID: "a"}}, second.seen)
	assert.Equal(t, []domain.Chunk{{ID: "a"}}, chunks)
}

func TestPipeline_Process_ProcessorError(t *testing.T) {
	p := NewPipeline(&mockProcessor{name: "broken", err: errors.New("boom")})

	_, err := p.Process(context.Background(), &domain.ProcessedDocument{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "processor broken: boom")
}

func TestPipeline_Process_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPipeline(&mockProcessor{name: "a"}).Process(ctx, &domain.ProcessedDocument{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewDefaultPipeline(t *testing.T) {
	p, err := NewDefaultPipeline(domain.ChunkerSettings{MaxChars: 1500})
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	doc := &domain.ProcessedDocument{
		Content: "#Section Income Statement\n#Page 2\nNet profit\n" +
			"#Section Balance Sheet\n#Page 3\nAssets\n\n|A|B|\n|-|-|\n|1|2|",
		Metadata: domain.DocumentMetadata{Filename: "fs.md"},
	}
	chunks, err := p.Process(context.Background(), doc)

	require.NoError(t, err)
	assert.Len(t, chunks, 3)
	assert.Equal(t, 2, SectionCount(chunks))
}

func TestSectionCount(t *testing.T) {
	chunks := []domain.Chunk{
		{Metadata: domain.ChunkMetadata{ChunkIndex: 0}},
		{Metadata: domain.ChunkMetadata{ChunkIndex: 1}},
		{Metadata: domain.ChunkMetadata{ChunkIndex: 0}},
	}
	assert.Equal(t, 2, SectionCount(chunks))
	assert.Equal(t, 0, SectionCount(nil))
}
