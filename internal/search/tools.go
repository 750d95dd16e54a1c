package search

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"sitescan/internal/metrics"
)

// ToolSearcher adapts an eino search tool to Searcher.
type ToolSearcher struct {
	name string
	tool tool.InvokableTool
}

// NewToolSearcher wraps an invokable tool that accepts {"query": "..."}.
func NewToolSearcher(name string, t tool.InvokableTool) *ToolSearcher {
	return &ToolSearcher{name: name, tool: t}
}

// NewGoogleSearcher builds the Google Custom Search tool. It returns
// ErrNotConfigured when either credential is missing.
func NewGoogleSearcher(ctx context.Context, apiKey, engineID string) (*ToolSearcher, error) {
	if apiKey == "" || engineID == "" {
		return nil, ErrNotConfigured
	}
	t, err := googlesearch.NewTool(ctx, &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         apiKey,
		SearchEngineID: engineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: init google tool")
	}
	return NewToolSearcher("google", t), nil
}

// NewDuckDuckGoSearcher builds the DuckDuckGo text search tool.
func NewDuckDuckGoSearcher(ctx context.Context) (*ToolSearcher, error) {
	t, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 5,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: init duckduckgo tool")
	}
	return NewToolSearcher("duckduckgo", t), nil
}

// Name identifies the provider in logs.
func (s *ToolSearcher) Name() string { return s.name }

func (s *ToolSearcher) Links(ctx context.Context, query string) (links []string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveCall("tool_"+s.name, start, err) }()

	args, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, eris.Wrap(err, "search: marshal tool args")
	}
	out, err := s.tool.InvokableRun(ctx, string(args))
	if err != nil {
		return nil, eris.Wrapf(err, "search: %s tool", s.name)
	}
	return ExtractLinks(out), nil
}

// ExtractLinks collects every "link" or "url" string in a JSON document in
// document order, dropping empties and duplicates.
func ExtractLinks(doc string) []string {
	links := []string{}
	if !gjson.Valid(doc) {
		return links
	}
	seen := map[string]struct{}{}
	var walk func(v gjson.Result)
	walk = func(v gjson.Result) {
		v.ForEach(func(key, val gjson.Result) bool {
			if val.IsObject() || val.IsArray() {
				walk(val)
				return true
			}
			switch strings.ToLower(key.String()) {
			case "link", "url", "href":
				link := strings.TrimSpace(val.String())
				if _, dup := seen[link]; link != "" && !dup {
					seen[link] = struct{}{}
					links = append(links, link)
				}
			}
			return true
		})
	}
	walk(gjson.Parse(doc))
	return links
}
