// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - VectorIndex: Chunk vector storage and filtered nearest-neighbour search
//   - EmbeddingService: Generates vector embeddings for chunks and queries
//   - ConfigStore: Application configuration
//   - PromptStore: Prompt templates for every LLM call
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LLMService: Language model completions. Without it, ingestion and
//     direct search work but query analysis is disabled.
//   - DocumentConverter: PDF to marked text. Without it, only pre-converted
//     text files can be ingested.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or postprocessor package
package driven
