// Package planner turns a free-text question into a validated query plan by
// prompting a generation oracle and normalizing what it returns.
package planner

import "context"

// Oracle is a text-completion capability: two prompt blocks in, text out.
type Oracle interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OracleFunc adapts a plain function to Oracle
type OracleFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// Generate calls f
func (f OracleFunc) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}
