package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure AI providers, the chunk store and PDF conversion.

Use subcommands to configure specific settings or run the interactive wizard.
API keys can also be supplied through OPENAI_API_KEY, ANTHROPIC_API_KEY
and GEMINI_API_KEY.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactive setup wizard",
	Long:  `Run an interactive wizard to configure all settings step by step.`,
	RunE:  runSettingsWizard,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure embedding provider",
	Long:  `Configure the embedding provider used to index and search chunks.`,
	RunE:  runSettingsEmbedding,
}

var settingsLLMCmd = &cobra.Command{
	Use:   "llm",
	Short: "Configure LLM provider",
	Long: `Configure the LLM provider used to answer questions.

The orchestrator model plans each question. The specialist model handles
retrieval planning, calculations and answer synthesis.`,
	RunE: runSettingsLLM,
}

var settingsStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Configure chunk store",
	Long: `Select where chunks and embeddings are stored.

Available backends:
  sqlite   - Local database file (default)
  pgvector - PostgreSQL with the pgvector extension
  memory   - In process only, lost on exit`,
	RunE: runSettingsStore,
}

var settingsConverterCmd = &cobra.Command{
	Use:   "converter",
	Short: "Configure PDF conversion",
	Long: `Configure Gemini for converting PDF filings to sectioned markdown.
Without it only .md and .txt files can be ingested.`,
	RunE: runSettingsConverter,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsWizardCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsLLMCmd)
	settingsCmd.AddCommand(settingsStoreCmd)
	settingsCmd.AddCommand(settingsConverterCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	// Embedding settings
	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	if settings.Embedding.Provider.IsLocal() {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	printAPIKey(cmd, settings.Embedding.Provider, settings.Embedding.APIKey)
	printStatus(cmd, settings.Embedding.IsConfigured())

	// LLM settings
	cmd.Println("[LLM]")
	cmd.Printf("  Provider: %s\n", settings.LLM.Provider.Description())
	if settings.LLM.Provider.IsValid() {
		cmd.Printf("  Orchestrator model: %s\n", settings.LLM.Model)
		cmd.Printf("  Specialist model: %s\n", settings.LLM.Specialist().Model)
		cmd.Printf("  Temperature: %.2f\n", settings.LLM.Temperature)
	}
	if settings.LLM.Provider.IsLocal() {
		cmd.Printf("  Base URL: %s\n", settings.LLM.BaseURL)
	}
	printAPIKey(cmd, settings.LLM.Provider, settings.LLM.APIKey)
	printStatus(cmd, settings.LLM.IsConfigured())

	// Store settings
	cmd.Println("[Store]")
	cmd.Printf("  Backend: %s\n", settings.Store.Backend)
	switch settings.Store.Backend {
	case domain.StoreBackendSQLite:
		cmd.Printf("  Path: %s\n", settings.Store.Path)
	case domain.StoreBackendPGVector:
		if settings.Store.DSN != "" {
			cmd.Printf("  DSN: %s\n", maskDSN(settings.Store.DSN))
		} else {
			cmd.Printf("  DSN: (not set)\n")
		}
	case domain.StoreBackendMemory:
	}
	cmd.Println()

	// Converter settings
	cmd.Println("[PDF Conversion]")
	if settings.Converter.Provider != "" {
		cmd.Printf("  Provider: %s\n", settings.Converter.Provider.Description())
		cmd.Printf("  Model: %s\n", settings.Converter.Model)
		printAPIKey(cmd, settings.Converter.Provider, settings.Converter.APIKey)
	}
	printStatus(cmd, settings.Converter.IsConfigured())

	// Validation
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'finqa settings wizard' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func printAPIKey(cmd *cobra.Command, provider domain.AIProvider, key string) {
	if !provider.RequiresAPIKey() {
		return
	}
	if key != "" {
		cmd.Printf("  API Key: %s\n", maskAPIKey(key))
	} else {
		cmd.Printf("  API Key: (not set)\n")
	}
}

func printStatus(cmd *cobra.Command, configured bool) {
	status := "configured"
	if !configured {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
	cmd.Println()
}

func runSettingsWizard(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	cmd.Println("finqa Settings Wizard")
	cmd.Println("=====================")
	cmd.Println()

	reader := bufio.NewReader(cmd.InOrStdin())

	// Step 1: Embedding is always required
	cmd.Println("Step 1: Configure Embedding Provider")
	cmd.Println("------------------------------------")
	cmd.Println("Chunks are indexed and searched by embedding.")
	cmd.Println()
	if err := configureEmbeddingProvider(cmd, reader); err != nil {
		return err
	}

	// Step 2: LLM
	cmd.Println("Step 2: Configure LLM Provider")
	cmd.Println("------------------------------")
	if confirm(cmd, reader, "Configure an LLM to answer questions?", true) {
		if err := configureLLMProvider(cmd, reader); err != nil {
			return err
		}
	} else {
		cmd.Println("Skipped. Only search, stats and documents will be available.")
		cmd.Println()
	}

	// Step 3: Store
	cmd.Println("Step 3: Configure Chunk Store")
	cmd.Println("-----------------------------")
	if err := configureStore(cmd, reader); err != nil {
		return err
	}

	// Step 4: Converter
	cmd.Println("Step 4: Configure PDF Conversion")
	cmd.Println("--------------------------------")
	if confirm(cmd, reader, "Convert PDFs with Gemini?", false) {
		if err := configureConverter(cmd, reader); err != nil {
			return err
		}
	} else {
		cmd.Println("Skipped. Only .md and .txt files can be ingested.")
		cmd.Println()
	}

	// Final validation
	cmd.Println("Configuration Complete!")
	cmd.Println("=======================")
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("All settings are valid and saved.")
	}

	return nil
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return configureEmbeddingProvider(cmd, bufio.NewReader(cmd.InOrStdin()))
}

func runSettingsLLM(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return configureLLMProvider(cmd, bufio.NewReader(cmd.InOrStdin()))
}

func runSettingsStore(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return configureStore(cmd, bufio.NewReader(cmd.InOrStdin()))
}

func runSettingsConverter(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return configureConverter(cmd, bufio.NewReader(cmd.InOrStdin()))
}

//nolint:dupl // Similar to configureLLMProvider but for embeddings - intentional for CLI flow clarity
func configureEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select Embedding Provider")
	providers := domain.AllEmbeddingProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	input := readLine(reader)
	idx := parseChoice(input, len(providers), 1)
	selectedProvider := providers[idx-1]

	// Get model
	defaultModel := domain.DefaultEmbeddingModels()[selectedProvider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	apiKey, err := promptAPIKey(cmd, reader, selectedProvider)
	if err != nil {
		return err
	}

	if err := settingsService.SetEmbeddingProvider(selectedProvider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	// Validate the configuration by pinging the service
	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Embedding provider configured: %s (%s)\n\n", selectedProvider.Description(), model)
	return nil
}

//nolint:dupl // Similar to configureEmbeddingProvider but for LLM - intentional for CLI flow clarity
func configureLLMProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select LLM Provider")
	providers := domain.AllLLMProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	input := readLine(reader)
	idx := parseChoice(input, len(providers), 1)
	selectedProvider := providers[idx-1]

	// Get models
	defaultModel := domain.DefaultLLMModels()[selectedProvider]
	cmd.Printf("Enter orchestrator model [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}
	defaultSpecialist := domain.DefaultSpecialistModels()[selectedProvider]
	cmd.Printf("Enter specialist model [%s]: ", defaultSpecialist)
	specialist := readLine(reader)

	apiKey, err := promptAPIKey(cmd, reader, selectedProvider)
	if err != nil {
		return err
	}

	if err := settingsService.SetLLMProvider(selectedProvider, model, specialist, apiKey); err != nil {
		return fmt.Errorf("failed to configure LLM provider: %w", err)
	}

	// Validate the configuration by pinging the service
	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateLLMConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("LLM configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("LLM provider configured: %s (%s)\n\n", selectedProvider.Description(), model)
	return nil
}

func configureStore(cmd *cobra.Command, reader *bufio.Reader) error {
	backends := []domain.StoreBackend{
		domain.StoreBackendSQLite,
		domain.StoreBackendPGVector,
		domain.StoreBackendMemory,
	}
	cmd.Println("Select Store Backend")
	for i, b := range backends {
		cmd.Printf("  %d. %s\n", i+1, b)
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(backends), 1)
	backend := backends[idx-1]

	var location string
	switch backend {
	case domain.StoreBackendSQLite:
		cmd.Print("Enter database path [finqa.db]: ")
		location = readLine(reader)
	case domain.StoreBackendPGVector:
		cmd.Print("Enter PostgreSQL DSN (empty to use FINQA_PG_DSN): ")
		location = readLine(reader)
	case domain.StoreBackendMemory:
	}

	if err := settingsService.SetStoreBackend(backend, location); err != nil {
		return fmt.Errorf("failed to configure store: %w", err)
	}
	cmd.Printf("Store configured: %s\n\n", backend)
	return nil
}

func configureConverter(cmd *cobra.Command, reader *bufio.Reader) error {
	const defaultModel = "gemini-2.5-flash"
	cmd.Printf("Enter conversion model [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	apiKey, err := promptAPIKey(cmd, reader, domain.AIProviderGemini)
	if err != nil {
		return err
	}

	if err := settingsService.SetConverter(domain.AIProviderGemini, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure PDF conversion: %w", err)
	}
	cmd.Printf("PDF conversion configured: %s\n\n", model)
	return nil
}

// promptAPIKey asks for a key when provider needs one.
// An empty answer is accepted when the key is set in the environment.
func promptAPIKey(cmd *cobra.Command, reader *bufio.Reader, provider domain.AIProvider) (string, error) {
	if !provider.RequiresAPIKey() {
		return "", nil
	}
	env := apiKeyEnv(provider)
	if env != "" && os.Getenv(env) != "" {
		cmd.Printf("Enter API key (empty to use %s): ", env)
	} else {
		cmd.Print("Enter API key: ")
	}
	apiKey := readPassword(cmd.InOrStdin(), reader)
	cmd.Println()
	if apiKey == "" && (env == "" || os.Getenv(env) == "") {
		return "", errors.New("API key is required for this provider")
	}
	return apiKey, nil
}

// apiKeyEnv names the environment variable holding provider's key.
func apiKeyEnv(provider domain.AIProvider) string {
	switch provider {
	case domain.AIProviderOpenAI:
		return "OPENAI_API_KEY"
	case domain.AIProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case domain.AIProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// Helper functions.

func confirm(cmd *cobra.Command, reader *bufio.Reader, question string, defaultYes bool) bool {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	cmd.Printf("%s %s: ", question, hint)
	switch strings.ToLower(readLine(reader)) {
	case "":
		return defaultYes
	case "y", "yes":
		return true
	default:
		return false
	}
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo when in is a terminal and falls back to reader.
func readPassword(in io.Reader, reader *bufio.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskDSN hides the password of a postgres URL.
func maskDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPassword := strings.Cut(creds, ":")
	if !hasPassword {
		return dsn
	}
	return scheme + "://" + user + ":****@" + host
}
