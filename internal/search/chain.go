package search

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Provider is a named Searcher in a fallback chain.
type Provider struct {
	Name     string
	Searcher Searcher
}

// Chain tries each provider in order. The first provider that succeeds with
// at least one link wins; an all-empty run returns an empty list.
type Chain struct {
	providers []Provider
	log       *zap.Logger
}

func NewChain(log *zap.Logger, providers ...Provider) *Chain {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chain{providers: providers, log: log}
}

// Len is the number of providers in the chain.
func (c *Chain) Len() int { return len(c.providers) }

func (c *Chain) Links(ctx context.Context, query string) ([]string, error) {
	if len(c.providers) == 0 {
		return nil, ErrNotConfigured
	}
	var (
		lastErr   error
		succeeded bool
	)
	for _, p := range c.providers {
		links, err := p.Searcher.Links(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "search: chain cancelled")
			}
			if !errors.Is(err, ErrNotConfigured) {
				c.log.Warn("search provider failed", zap.String("provider", p.Name), zap.Error(err))
			}
			lastErr = err
			continue
		}
		succeeded = true
		if len(links) > 0 {
			return links, nil
		}
	}
	if succeeded {
		return []string{}, nil
	}
	return nil, lastErr
}
