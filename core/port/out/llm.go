package out

import "context"

// JSONCompleter is the raw language-model capability: a system and user prompt in,
// a JSON object (as text) out.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
