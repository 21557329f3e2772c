package domain

import "strconv"

// Unknown is the metadata value recorded when a field could not be inferred.
const Unknown = "unknown"

// DocumentType classifies a source document.
type DocumentType string

// Known document types.
const (
	DocumentTypeFinancialStatement   DocumentType = "financial_statement"
	DocumentTypeEarningsPresentation DocumentType = "earnings_presentation"
	DocumentTypeResultsCall          DocumentType = "results_call"
	DocumentTypeGeneral              DocumentType = "general"
)

// IsValid returns true if the document type is recognised.
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeFinancialStatement, DocumentTypeEarningsPresentation,
		DocumentTypeResultsCall, DocumentTypeGeneral:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t DocumentType) String() string {
	return string(t)
}

// ContentType tags a chunk as prose or tabular.
type ContentType string

// Chunk content types.
const (
	ContentTypeText  ContentType = "text"
	ContentTypeTable ContentType = "table"
)

// Section is a named, paged span of converted document content.
// Names are not unique within a document.
type Section struct {
	// Name is the text following the #Section marker.
	Name string

	// Page is the number following the #Page marker.
	Page int

	// Content is the trimmed text up to the next section marker.
	Content string
}

// DocumentMetadata is the per-document provenance copied onto every chunk.
type DocumentMetadata struct {
	DocumentType   DocumentType
	Filename       string
	Quarter        string
	Year           string
	FiscalPeriod   string
	SourceDocument string
}

// WithDefaults returns a copy where missing period fields are set to Unknown.
func (m DocumentMetadata) WithDefaults() DocumentMetadata {
	if m.Quarter == "" {
		m.Quarter = Unknown
	}
	if m.Year == "" {
		m.Year = Unknown
	}
	if m.FiscalPeriod == "" {
		m.FiscalPeriod = Unknown
	}
	if m.DocumentType == "" {
		m.DocumentType = DocumentTypeGeneral
	}
	return m
}

// ProcessedDocument is converted markdown ready for sectioning.
type ProcessedDocument struct {
	Content  string
	Metadata DocumentMetadata
}

// ChunkMetadata is persisted alongside every chunk.
// Field names are the stable wire and column schema.
type ChunkMetadata struct {
	DocumentType   string      `json:"document_type"`
	Filename       string      `json:"filename"`
	Quarter        string      `json:"quarter"`
	Year           string      `json:"year"`
	FiscalPeriod   string      `json:"fiscal_period"`
	SectionName    string      `json:"section_name"`
	PageNumber     int         `json:"page_number"`
	ChunkIndex     int         `json:"chunk_index"`
	ContentType    ContentType `json:"content_type"`
	SourceDocument string      `json:"source_document"`
	EmbeddingModel string      `json:"embedding_model,omitempty"`
}

// Field returns the string value of a filterable metadata field.
// The second result is false when name is not a filterable field.
func (m ChunkMetadata) Field(name string) (string, bool) {
	switch name {
	case FieldDocumentType:
		return m.DocumentType, true
	case FieldFilename:
		return m.Filename, true
	case FieldQuarter:
		return m.Quarter, true
	case FieldYear:
		return m.Year, true
	case FieldFiscalPeriod:
		return m.FiscalPeriod, true
	case FieldSectionName:
		return m.SectionName, true
	case FieldPageNumber:
		return strconv.Itoa(m.PageNumber), true
	case FieldChunkIndex:
		return strconv.Itoa(m.ChunkIndex), true
	case FieldContentType:
		return string(m.ContentType), true
	case FieldSourceDocument:
		return m.SourceDocument, true
	default:
		return "", false
	}
}

// Filterable metadata field names.
const (
	FieldDocumentType   = "document_type"
	FieldFilename       = "filename"
	FieldQuarter        = "quarter"
	FieldYear           = "year"
	FieldFiscalPeriod   = "fiscal_period"
	FieldSectionName    = "section_name"
	FieldPageNumber     = "page_number"
	FieldChunkIndex     = "chunk_index"
	FieldContentType    = "content_type"
	FieldSourceDocument = "source_document"
)

// FilterFields returns the metadata fields accepted in Filters.
func FilterFields() []string {
	return []string{
		FieldDocumentType,
		FieldFilename,
		FieldQuarter,
		FieldYear,
		FieldFiscalPeriod,
		FieldSectionName,
		FieldPageNumber,
		FieldChunkIndex,
		FieldContentType,
		FieldSourceDocument,
	}
}

// IsFilterField reports whether name can be used as a filter key.
func IsFilterField(name string) bool {
	_, ok := ChunkMetadata{}.Field(name)
	return ok
}

// IsIntegerField reports whether name is a filter field holding a number.
func IsIntegerField(name string) bool {
	return name == FieldPageNumber || name == FieldChunkIndex
}

// Chunk is a retrievable unit of document text.
type Chunk struct {
	// ID is a random UUID assigned at split time.
	ID string

	// Content is the chunk text.
	Content string

	// Metadata is the provenance of the chunk.
	Metadata ChunkMetadata
}

// IngestReport summarises the ingestion of one or more documents.
type IngestReport struct {
	Files    []FileReport `json:"files"`
	Sections int          `json:"sections"`
	Chunks   int          `json:"chunks"`
}

// FileReport is the outcome of ingesting a single file.
type FileReport struct {
	Path     string `json:"path"`
	Sections int    `json:"sections"`
	Chunks   int    `json:"chunks"`
	Error    string `json:"error,omitempty"`
}

// Failed returns the number of files that could not be ingested.
func (r IngestReport) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Error != "" {
			n++
		}
	}
	return n
}
