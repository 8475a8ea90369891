package interfaces

import "context"

// ChatRequest is one structured-output completion request.
type ChatRequest struct {
	// System is the role-priming system message.
	System string

	// Prompt is the user message content.
	Prompt string

	// Key names the rubric key this call serves; used for per-key
	// circuit breaking and logging. May be empty for synthesis calls.
	Key string

	// JSONOutput requests the provider's JSON output mode.
	JSONOutput bool

	Temperature float64
}

// ChatResponse carries the raw model output plus accounting metadata.
type ChatResponse struct {
	// Raw is the model output text, expected (not guaranteed) to be JSON
	// when JSONOutput was requested.
	Raw string

	// Model is the model that actually served the call after fallbacks.
	Model string

	// TokensUsed is total tokens reported by the provider, 0 if unknown.
	TokensUsed int
}

// ChatClient is the minimal contract to a chat-completion LLM provider.
type ChatClient interface {
	Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}
