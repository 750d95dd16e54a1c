package search

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"sitescan/internal/metrics"
)

const defaultSerpBaseURL = "https://serpapi.com"

// SerpOption configures the SerpAPI client.
type SerpOption func(*SerpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) SerpOption {
	return func(c *SerpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) SerpOption {
	return func(c *SerpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSec float64) SerpOption {
	return func(c *SerpClient) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// SerpClient queries SerpAPI's google and google_lens engines.
type SerpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewSerpClient creates a SerpAPI client. An empty key yields a client whose
// calls return ErrNotConfigured.
func NewSerpClient(apiKey string, opts ...SerpOption) *SerpClient {
	c := &SerpClient{
		apiKey:  apiKey,
		baseURL: defaultSerpBaseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reports whether an API key is set.
func (c *SerpClient) Configured() bool { return c.apiKey != "" }

// Links runs a google web search and returns organic result links in rank order.
func (c *SerpClient) Links(ctx context.Context, query string) ([]string, error) {
	body, err := c.get(ctx, "/search", url.Values{
		"q":      {query},
		"engine": {"google"},
	}, "serpapi_google")
	if err != nil {
		return nil, err
	}

	links := []string{}
	for _, r := range gjson.GetBytes(body, "organic_results.#.link").Array() {
		if link := strings.TrimSpace(r.String()); link != "" {
			links = append(links, link)
		}
	}
	return links, nil
}

// FirstVisualMatchTitle runs a google_lens search for the image URL.
func (c *SerpClient) FirstVisualMatchTitle(ctx context.Context, imageURL string) (string, error) {
	body, err := c.get(ctx, "/search.json", url.Values{
		"engine": {"google_lens"},
		"url":    {imageURL},
	}, "serpapi_lens")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(gjson.GetBytes(body, "visual_matches.0.title").String()), nil
}

func (c *SerpClient) get(ctx context.Context, path string, params url.Values, target string) (body []byte, err error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "serpapi: rate limit wait")
		}
	}

	start := time.Now()
	defer func() { metrics.ObserveCall(target, start, err) }()

	params.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("serpapi: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}
	if !gjson.ValidBytes(body) {
		return nil, eris.New("serpapi: response is not valid JSON")
	}
	if msg := gjson.GetBytes(body, "error").String(); msg != "" {
		// SerpAPI reports "no results" as an error string on a 200.
		if strings.Contains(strings.ToLower(msg), "hasn't returned any results") {
			return []byte(`{}`), nil
		}
		return nil, eris.Errorf("serpapi: %s", msg)
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
