package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searcherFunc func(ctx context.Context, q string) ([]string, error)

func (f searcherFunc) Links(ctx context.Context, q string) ([]string, error) { return f(ctx, q) }

type fakeTool struct {
	out  string
	err  error
	args string
}

func (f *fakeTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: "fake"}, nil
}

func (f *fakeTool) InvokableRun(_ context.Context, args string, _ ...tool.Option) (string, error) {
	f.args = args
	return f.out, f.err
}

func TestExtractLinks(t *testing.T) {
	doc := `{"items":[{"title":"a","link":"https://a"},{"nested":{"url":"https://b"}}],
		"results":[{"URL":"https://a"},{"href":"https://c"},{"link":""}]}`
	assert.Equal(t, []string{"https://a", "https://b", "https://c"}, ExtractLinks(doc))
	assert.Empty(t, ExtractLinks("not json"))
}

func TestToolSearcher(t *testing.T) {
	ft := &fakeTool{out: `{"results":[{"url":"https://x"}]}`}
	s := NewToolSearcher("fake", ft)

	links, err := s.Links(context.Background(), `say "hi"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x"}, links)
	assert.JSONEq(t, `{"query":"say \"hi\""}`, ft.args)

	ft.err = errors.New("boom")
	_, err = s.Links(context.Background(), "q")
	assert.Error(t, err)
}

func TestChainFallsBack(t *testing.T) {
	var calls []string
	failing := searcherFunc(func(context.Context, string) ([]string, error) {
		calls = append(calls, "failing")
		return nil, errors.New("down")
	})
	empty := searcherFunc(func(context.Context, string) ([]string, error) {
		calls = append(calls, "empty")
		return []string{}, nil
	})
	good := searcherFunc(func(context.Context, string) ([]string, error) {
		calls = append(calls, "good")
		return []string{"https://ok"}, nil
	})

	chain := NewChain(nil, Provider{"failing", failing}, Provider{"empty", empty}, Provider{"good", good})
	links, err := chain.Links(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://ok"}, links)
	assert.Equal(t, []string{"failing", "empty", "good"}, calls)

	onlyEmpty := NewChain(nil, Provider{"failing", failing}, Provider{"empty", empty})
	links, err = onlyEmpty.Links(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, links)

	allFail := NewChain(nil, Provider{"failing", failing})
	_, err = allFail.Links(context.Background(), "q")
	assert.Error(t, err)

	_, err = NewChain(nil).Links(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGateBoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	slow := searcherFunc(func(context.Context, string) ([]string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return []string{"x"}, nil
	})

	gate := NewGate(slow, 2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = gate.Links(context.Background(), "q")
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestGateHonoursCancellation(t *testing.T) {
	block := make(chan struct{})
	s := searcherFunc(func(context.Context, string) ([]string, error) {
		<-block
		return nil, nil
	})
	gate := NewGate(s, 1)
	go func() { _, _ = gate.Links(context.Background(), "a") }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gate.Links(ctx, "b")
	assert.Error(t, err)
	close(block)
}

func TestCacheWithoutRedisPassesThrough(t *testing.T) {
	var n int
	s := searcherFunc(func(context.Context, string) ([]string, error) {
		n++
		return []string{"https://a"}, nil
	})
	c := NewCache(s, nil, time.Minute, nil)
	for i := 0; i < 2; i++ {
		links, err := c.Links(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a"}, links)
	}
	assert.Equal(t, 2, n)
	assert.Equal(t, cacheKey(" Q "), cacheKey("q"))
}
