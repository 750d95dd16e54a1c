package scan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"sitescan/internal/models"
)

func testPrompts() *Prompts {
	return &Prompts{
		Classify:   "classify",
		Tool:       "tool",
		Material:   "material",
		Building:   "building",
		TitleClean: "clean " + TitleInputPlaceholder,
	}
}

type reply struct {
	text string
	err  error
}

// fakeModel answers Describe by prompt. Queued replies are consumed in
// order; the last one repeats.
type fakeModel struct {
	mu        sync.Mutex
	replies   map[string][]reply
	delays    map[string]time.Duration
	calls     map[string]int
	imageRefs []string
	completes []string
	complete  reply
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		replies: map[string][]reply{},
		delays:  map[string]time.Duration{},
		calls:   map[string]int{},
	}
}

func (f *fakeModel) on(prompt string, replies ...reply) *fakeModel {
	f.replies[prompt] = replies
	return f
}

func (f *fakeModel) Describe(ctx context.Context, prompt, imageRef string, _ int) (string, error) {
	f.mu.Lock()
	f.calls[prompt]++
	f.imageRefs = append(f.imageRefs, imageRef)
	queue := f.replies[prompt]
	var r reply
	switch len(queue) {
	case 0:
		r = reply{err: errors.New("unexpected prompt " + prompt)}
	case 1:
		r = queue[0]
	default:
		r = queue[0]
		f.replies[prompt] = queue[1:]
	}
	delay := f.delays[prompt]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.text, r.err
}

func (f *fakeModel) Complete(_ context.Context, prompt string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes = append(f.completes, prompt)
	return f.complete.text, f.complete.err
}

func (f *fakeModel) callCount(prompt string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[prompt]
}

func (f *fakeModel) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n + len(f.completes)
}

// fakeSearch returns one link derived from the query, or err.
type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	err     error
}

func (s *fakeSearch) Links(_ context.Context, query string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return []string{"https://example.com/?q=" + strings.ReplaceAll(query, " ", "+")}, nil
}

func (s *fakeSearch) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

type fakeLens struct {
	mu    sync.Mutex
	title string
	err   error
	calls int
}

func (l *fakeLens) FirstVisualMatchTitle(context.Context, string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.title, l.err
}

func (l *fakeLens) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type memStore struct {
	mu        sync.Mutex
	nextID    int64
	tools     []models.ToolScan
	materials []models.MaterialScan
	buildings []models.BuildingScan
	fail      map[models.Category]error
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) SaveTool(_ context.Context, rec *models.ToolScan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[models.CategoryTool]; err != nil {
		return err
	}
	rec.ID, rec.CreatedAt = s.id(), time.Now()
	s.tools = append(s.tools, *rec)
	return nil
}

func (s *memStore) SaveMaterial(_ context.Context, rec *models.MaterialScan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[models.CategoryMaterial]; err != nil {
		return err
	}
	rec.ID, rec.CreatedAt = s.id(), time.Now()
	s.materials = append(s.materials, *rec)
	return nil
}

func (s *memStore) SaveBuilding(_ context.Context, rec *models.BuildingScan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[models.CategoryBuilding]; err != nil {
		return err
	}
	rec.ID, rec.CreatedAt = s.id(), time.Now()
	s.buildings = append(s.buildings, *rec)
	return nil
}
