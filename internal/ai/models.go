package ai

// Request is one generation call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}
