// Package search runs web and reverse-image searches used to enrich scan results.
package search

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/semaphore"
)

// ErrNotConfigured is returned by providers that have no credentials.
var ErrNotConfigured = eris.New("search: provider not configured")

// Searcher returns the ordered result links for a web query.
type Searcher interface {
	Links(ctx context.Context, query string) ([]string, error)
}

// VisualMatcher returns the title of the best visual match for an image URL.
// An empty title with a nil error means the image had no match.
type VisualMatcher interface {
	FirstVisualMatchTitle(ctx context.Context, imageURL string) (string, error)
}

// Gate bounds concurrent Links calls across every caller sharing it.
type Gate struct {
	next Searcher
	sem  *semaphore.Weighted
}

// NewGate allows at most n concurrent searches through next.
func NewGate(next Searcher, n int64) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{next: next, sem: semaphore.NewWeighted(n)}
}

func (g *Gate) Links(ctx context.Context, query string) ([]string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, eris.Wrap(err, "search: acquire slot")
	}
	defer g.sem.Release(1)
	return g.next.Links(ctx, query)
}
