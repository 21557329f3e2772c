// Package chunker splits document sections into retrievable chunks.
//
// Markdown tables become standalone chunks. Other text is split on blank
// lines and paragraphs are packed into chunks up to a character budget.
package chunker

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/logger"
	"github.com/custodia-labs/finqa/internal/postprocessors/sections"
)

// DefaultMaxChars is the default character budget for a text chunk.
const DefaultMaxChars = 1500

// paragraphSep joins paragraphs packed into one chunk.
const paragraphSep = "\n\n"

// Processor splits document content into section-aware chunks.
// It implements the PostProcessor interface.
type Processor struct {
	maxChars int
	newID    func() string
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithMaxChars sets the character budget for text chunks.
func WithMaxChars(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxChars = n
		}
	}
}

// WithIDFunc overrides chunk ID generation.
func WithIDFunc(fn func() string) Option {
	return func(p *Processor) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		maxChars: DefaultMaxChars,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// MaxChars returns the configured character budget.
func (p *Processor) MaxChars() int {
	return p.maxChars
}

// Process extracts the sections of doc and splits each of them.
// Input chunks are ignored; this processor creates new chunks from document content.
func (p *Processor) Process(_ context.Context, doc *domain.ProcessedDocument, _ []domain.Chunk) ([]domain.Chunk, error) {
	secs := sections.Extract(doc.Content)
	if len(secs) == 0 {
		if doc.Content != "" {
			logger.Warn("no sections found in %s", doc.Metadata.Filename)
		}
		return nil, nil
	}

	var chunks []domain.Chunk
	for _, sec := range secs {
		chunks = append(chunks, p.Split(sec, doc.Metadata)...)
	}
	logger.Debug("chunker: %d sections, %d chunks from %s", len(secs), len(chunks), doc.Metadata.Filename)
	return chunks, nil
}

// Split turns one section into chunks numbered from zero.
// A text chunk holds at most MaxChars characters unless it is a single
// paragraph that is longer on its own.
func (p *Processor) Split(sec domain.Section, meta domain.DocumentMetadata) []domain.Chunk {
	meta = meta.WithDefaults()

	var (
		chunks []domain.Chunk
		buf    strings.Builder
		bufLen int
	)

	emit := func(content string, ct domain.ContentType) {
		chunks = append(chunks, domain.Chunk{
			ID:      p.newID(),
			Content: content,
			Metadata: domain.ChunkMetadata{
				DocumentType:   meta.DocumentType.String(),
				Filename:       meta.Filename,
				Quarter:        meta.Quarter,
				Year:           meta.Year,
				FiscalPeriod:   meta.FiscalPeriod,
				SectionName:    sec.Name,
				PageNumber:     sec.Page,
				ChunkIndex:     len(chunks),
				ContentType:    ct,
				SourceDocument: sourceDocument(meta),
			},
		})
	}

	flush := func() {
		if text := strings.TrimSpace(buf.String()); text != "" {
			emit(text, domain.ContentTypeText)
		}
		buf.Reset()
		bufLen = 0
	}

	for _, b := range segment(sections.NormalizeNewlines(sec.Content)) {
		if b.table {
			flush()
			emit(strings.TrimSpace(b.text), domain.ContentTypeTable)
			continue
		}
		for _, para := range strings.Split(b.text, paragraphSep) {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			n := utf8.RuneCountInString(para)
			if bufLen > 0 && bufLen+len(paragraphSep)+n > p.maxChars {
				flush()
			}
			if bufLen > 0 {
				buf.WriteString(paragraphSep)
				bufLen += len(paragraphSep)
			}
			buf.WriteString(para)
			bufLen += n
		}
	}
	flush()

	return chunks
}

func sourceDocument(meta domain.DocumentMetadata) string {
	if meta.SourceDocument != "" {
		return meta.SourceDocument
	}
	return meta.Filename
}

// block is a run of section content that is either one table or prose.
type block struct {
	text  string
	table bool
}

// segment splits content into alternating prose and table blocks.
// A table is a pipe-prefixed header line, a pipe-prefixed separator line
// containing a dash, and any following pipe-prefixed lines.
func segment(content string) []block {
	lines := strings.SplitAfter(content, "\n")

	var (
		out   []block
		prose strings.Builder
	)
	flushProse := func() {
		if prose.Len() > 0 {
			out = append(out, block{text: prose.String()})
			prose.Reset()
		}
	}

	for i := 0; i < len(lines); {
		if i+1 < len(lines) && isRow(lines[i]) && isSeparator(lines[i+1]) {
			j := i + 2
			for j < len(lines) && isRow(lines[j]) {
				j++
			}
			flushProse()
			out = append(out, block{text: strings.Join(lines[i:j], ""), table: true})
			i = j
			continue
		}
		prose.WriteString(lines[i])
		i++
	}
	flushProse()

	return out
}

func isRow(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "|")
}

func isSeparator(line string) bool {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "|") || !strings.Contains(s, "-") {
		return false
	}
	return strings.Trim(s, "|-: \t") == ""
}
