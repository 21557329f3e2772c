package domain

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings, LLM or conversion.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderGemini is the Google Gemini API.
	AIProviderGemini AIProvider = "gemini"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderGemini:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic || p == AIProviderGemini
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderGemini:
		return "Gemini (cloud)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI and Gemini).
	APIKey string
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Provider == AIProviderAnthropic {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
// Planning uses Model; retrieval, calculation and synthesis use SpecialistModel.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the orchestrator model name.
	Model string

	// SpecialistModel is the model for the specialist nodes.
	// Empty means Model.
	SpecialistModel string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI, Anthropic and Gemini).
	APIKey string

	// Temperature is applied to every completion.
	Temperature float64 `validate:"gte=0,lte=2"`
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// Specialist returns the settings for the specialist nodes.
func (l LLMSettings) Specialist() LLMSettings {
	if l.SpecialistModel != "" {
		l.Model = l.SpecialistModel
	}
	return l
}

// ConverterSettings holds document conversion configuration.
type ConverterSettings struct {
	// Provider is AIProviderGemini for PDF conversion. Empty means
	// only pre-converted text files can be ingested.
	Provider AIProvider

	// Model is the conversion model name.
	Model string

	// APIKey is the API key.
	APIKey string
}

// IsConfigured returns true if PDF conversion is available.
func (c ConverterSettings) IsConfigured() bool {
	return c.Provider == AIProviderGemini && c.APIKey != ""
}

// StoreBackend selects the vector index implementation.
type StoreBackend string

// Available store backends.
const (
	StoreBackendMemory   StoreBackend = "memory"
	StoreBackendSQLite   StoreBackend = "sqlite"
	StoreBackendPGVector StoreBackend = "pgvector"
)

// IsValid returns true if the backend is recognised.
func (b StoreBackend) IsValid() bool {
	switch b {
	case StoreBackendMemory, StoreBackendSQLite, StoreBackendPGVector:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (b StoreBackend) String() string {
	return string(b)
}

// StoreSettings holds chunk store configuration.
type StoreSettings struct {
	// Backend is the vector index implementation.
	Backend StoreBackend `validate:"required,oneof=memory sqlite pgvector"`

	// Path is the SQLite database file.
	Path string `validate:"required_if=Backend sqlite"`

	// DSN is the PostgreSQL connection string.
	DSN string `validate:"required_if=Backend pgvector"`
}

// RetrievalSettings tunes the retrieval planner.
type RetrievalSettings struct {
	// PerQueryLimit is the number of results requested per search query.
	PerQueryLimit int `validate:"gte=1,lte=100"`

	// DedupPrefix is the number of leading content runes used as the
	// dedup fingerprint.
	DedupPrefix int `validate:"gte=1"`

	// RelaxedMaxDistance drops results of an unfiltered retry whose
	// distance exceeds it. Zero keeps every result.
	RelaxedMaxDistance float64 `validate:"gte=0"`

	// ContextTokens caps the retrieved context rendered into a prompt.
	// Zero means no cap.
	ContextTokens int `validate:"gte=0"`
}

// ChunkerSettings tunes the section splitter.
type ChunkerSettings struct {
	// MaxChars is the soft upper bound for text chunk length.
	MaxChars int `validate:"gte=100"`
}

// IngestSettings tunes batch ingestion.
type IngestSettings struct {
	// Concurrency is the number of files processed at once.
	Concurrency int `validate:"gte=1,lte=32"`
}

// RateLimitSettings throttles outbound AI calls.
type RateLimitSettings struct {
	// RequestsPerSecond is the sustained call rate. Zero disables throttling.
	RequestsPerSecond float64 `validate:"gte=0"`
}

// AppSettings holds all application settings.
type AppSettings struct {
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Converter ConverterSettings
	Store     StoreSettings
	Retrieval RetrievalSettings
	Chunker   ChunkerSettings
	Ingest    IngestSettings
	RateLimit RateLimitSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// Embedding uses a local Ollama; LLM and conversion are left unconfigured.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider: AIProviderOllama,
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		LLM: LLMSettings{
			Temperature: 0.1,
		},
		Converter: ConverterSettings{
			Model: "gemini-2.5-flash",
		},
		Store: StoreSettings{
			Backend: StoreBackendSQLite,
			Path:    "finqa.db",
		},
		Retrieval: RetrievalSettings{
			PerQueryLimit: 5,
			DedupPrefix:   100,
		},
		Chunker: ChunkerSettings{
			MaxChars: 1500,
		},
		Ingest: IngestSettings{
			Concurrency: 4,
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderGemini,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
		AIProviderGemini,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
		AIProviderGemini: "text-embedding-004",
	}
}

// DefaultLLMModels returns default orchestrator models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
		AIProviderGemini:    "gemini-2.5-flash",
	}
}

// DefaultSpecialistModels returns default specialist models for each LLM provider.
func DefaultSpecialistModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-3.5-turbo",
		AIProviderAnthropic: "claude-3-5-haiku-latest",
		AIProviderGemini:    "gemini-2.5-flash-lite",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Gemini models
		"text-embedding-004": 768,
	}
}
