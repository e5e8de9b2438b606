package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Chain tries an ordered list of providers; the first success wins. Every
// failure is logged with the provider name and call duration.
type Chain struct {
	clients []Client
	log     *zap.Logger
}

func NewChain(log *zap.Logger, clients ...Client) *Chain {
	return &Chain{clients: clients, log: log}
}

func (c *Chain) Name() string { return "chain" }

// Providers returns the names of the configured providers in order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.clients))
	for i, cl := range c.clients {
		names[i] = cl.Name()
	}
	return names
}

// CompleteWithSystem walks the provider list until one answers.
func (c *Chain) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if len(c.clients) == 0 {
		return "", fmt.Errorf("no providers configured: %w", ErrAllProvidersFailed)
	}
	var lastErr error
	for _, client := range c.clients {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		start := time.Now()
		out, err := client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
		if err == nil {
			c.log.Debug("llm call succeeded",
				zap.String("provider", client.Name()),
				zap.Duration("duration", time.Since(start)))
			return out, nil
		}
		lastErr = err
		c.log.Warn("llm provider failed",
			zap.String("provider", client.Name()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	}
	return "", fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}
