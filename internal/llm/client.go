package llm

// Client defines the interface for LLM clients.
type Client interface {
	// Request sends a request to the LLM with system message and user prompt.
	Request(systemMessage, userPrompt string) (string, error)
}
