// Package answer turns query results into a natural-language reply by
// prompting a generation oracle with the question and the raw rows.
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/logging"
	"github.com/kyleking/dataverse-agent/internal/planner"
)

const systemPrompt = `You are a business assistant.
Answer the user's question ONLY from the data provided below.
If the data is empty, say that you cannot find the answer.`

const userPromptTemplate = `USER QUESTION:
%s

DATAVERSE RESULTS (JSON):
%s`

var htmlTag = regexp.MustCompile(`<(?i:p|div|br|span|table|tr|td|ul|ol|li|b|i|strong|em|a|h[1-6]|font)\b[^>]*>`)

// Synthesizer writes answers with an oracle
type Synthesizer struct {
	oracle planner.Oracle
	logger *logging.Logger
}

// New creates a synthesizer around oracle
func New(oracle planner.Oracle, logger *logging.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &Synthesizer{oracle: oracle, logger: logger}
}

// Answer asks the oracle to answer question from result
func (s *Synthesizer) Answer(ctx context.Context, question string, result map[string]any) (string, error) {
	user, err := UserPrompt(question, result)
	if err != nil {
		return "", err
	}

	text, err := s.oracle.Generate(ctx, systemPrompt, user)
	if err != nil {
		return "", err
	}

	s.logger.WithField("component", "answer").Debugf("answer: %s", text)

	return strings.TrimSpace(text), nil
}

// SystemPrompt returns the answer instructions
func SystemPrompt() string {
	return systemPrompt
}

// UserPrompt renders the question and the cleaned result as indented JSON
func UserPrompt(question string, result map[string]any) (string, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(Clean(result)); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeInternal, "failed to encode query result")
	}

	return fmt.Sprintf(userPromptTemplate, strings.TrimSpace(question), strings.TrimRight(buf.String(), "\n")), nil
}

// Clean returns a copy of v with rich-text string values converted from HTML
// to Markdown. Other values are copied as-is.
func Clean(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Clean(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Clean(item)
		}
		return out
	case string:
		return cleanString(val)
	default:
		return val
	}
}

func cleanString(s string) string {
	if !htmlTag.MatchString(s) {
		return s
	}

	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}

	return strings.TrimSpace(md)
}
