// Package llm is the narrow adapter the engine uses to talk to language
// model providers: complete a prompt, or produce a schema-checked JSON
// object, with ordered fallback across configured providers.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAllProvidersFailed means every provider in the chain failed; the caller
// retries on its next pass.
var ErrAllProvidersFailed = errors.New("all llm providers failed")

// Client is one provider connection.
type Client interface {
	Name() string
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// StructuredRequest describes one structured-output call.
type StructuredRequest struct {
	Prompt       string
	SystemPrompt string
	// RequiredKeys must all be present at the top level of the returned
	// object; a response missing one is rejected.
	RequiredKeys []string
	Timeout      time.Duration
	// TaskType tags the call in logs (sentence_generation, mapping_check).
	TaskType string
}

// GenerateStructured runs one structured call against a client and parses
// the reply as a JSON object. Providers routinely wrap JSON in markdown
// fences; the wrapper is stripped before parsing.
func GenerateStructured(ctx context.Context, c Client, req StructuredRequest) (map[string]any, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	raw, err := c.CompleteWithSystem(ctx, req.SystemPrompt, req.Prompt)
	if err != nil {
		return nil, err
	}

	cleaned := UnwrapFences(raw)
	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	for _, key := range req.RequiredKeys {
		if _, ok := obj[key]; !ok {
			return nil, fmt.Errorf("response missing required key %q", key)
		}
	}
	return obj, nil
}

// UnwrapFences strips a surrounding markdown code fence, with or without a
// language tag, and falls back to the first {...} span when extra prose
// surrounds the object.
func UnwrapFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			// Drop the language tag line (```json).
			first := strings.TrimSpace(s[:i])
			if first != "" && !strings.ContainsAny(first, "{[") {
				s = s[i+1:]
			}
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		start := strings.IndexByte(s, '{')
		end := strings.LastIndexByte(s, '}')
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}
