// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// A query runs through Workflow, a state machine over four nodes:
// Orchestrator plans, RetrievalPlanner searches the ChunkStore,
// CalculationEngine evaluates formulas locally, and Synthesizer writes
// and grades the answer. IngestService fills the ChunkStore.
//
// Services are pure Go with no CGO dependencies.
package services
