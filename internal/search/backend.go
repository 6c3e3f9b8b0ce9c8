package search

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mg-platform/enrich-cli/internal/validate"
)

// Backend queries a search engine and returns filtered candidate URLs.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string) ([]string, error)
}

// BackendOption configures an HTML search backend.
type BackendOption func(*htmlBackend)

// WithBaseURL overrides the results page URL (for testing).
func WithBaseURL(u string) BackendOption {
	return func(b *htmlBackend) { b.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) BackendOption {
	return func(b *htmlBackend) { b.client = hc }
}

// WithBackendUserAgents sets the rotated user agents.
func WithBackendUserAgents(list []string) BackendOption {
	return func(b *htmlBackend) { b.agents = newAgents(list) }
}

// WithMaxResults caps the number of URLs returned per query.
func WithMaxResults(n int) BackendOption {
	return func(b *htmlBackend) {
		if n > 0 {
			b.maxResults = n
		}
	}
}

// WithRetryWait sets how long to wait before retrying a deferred (HTTP 202) response.
func WithRetryWait(d time.Duration) BackendOption {
	return func(b *htmlBackend) { b.retryWait = d }
}

// htmlBackend scrapes an HTML results page. The concrete engines differ only
// in URL shape, result selector and redirect unwrapping.
type htmlBackend struct {
	name       string
	baseURL    string
	extraQuery url.Values
	selector   string
	unwrap     func(href string) string
	client     *http.Client
	throttle   *Throttle
	agents     *agents
	maxResults int
	retryWait  time.Duration
}

func newHTMLBackend(b *htmlBackend, throttle *Throttle, opts []BackendOption) *htmlBackend {
	b.throttle = throttle
	b.agents = newAgents(nil)
	b.client = &http.Client{Timeout: 10 * time.Second}
	b.retryWait = 2 * time.Second
	for _, o := range opts {
		o(b)
	}
	return b
}

// NewDuckDuckGo creates the primary backend against the DuckDuckGo HTML endpoint.
func NewDuckDuckGo(throttle *Throttle, opts ...BackendOption) Backend {
	return newHTMLBackend(&htmlBackend{
		name:       "duckduckgo",
		baseURL:    "https://html.duckduckgo.com/html/",
		selector:   "div.result, div.web-result",
		unwrap:     unwrapDuckDuckGo,
		maxResults: 5,
	}, throttle, opts)
}

// NewGoogle creates the secondary backend against the Google results page.
func NewGoogle(throttle *Throttle, opts ...BackendOption) Backend {
	b := newHTMLBackend(&htmlBackend{
		name:       "google",
		baseURL:    "https://www.google.com/search",
		selector:   "div.g",
		unwrap:     unwrapGoogle,
		maxResults: 3,
	}, throttle, opts)
	b.extraQuery = url.Values{"num": {strconv.Itoa(b.maxResults)}}
	return b
}

func (b *htmlBackend) Name() string { return b.name }

// Search issues one query and returns business-looking result URLs.
func (b *htmlBackend) Search(ctx context.Context, query string) ([]string, error) {
	resp, err := b.get(ctx, query)
	if err != nil {
		return nil, err
	}
	pushedBack := false
	if resp.StatusCode == http.StatusAccepted {
		// The engine asks to come back later: wait once and retry.
		_ = resp.Body.Close()
		pushedBack = true
		b.throttle.OnRateLimit()
		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "search: "+b.name+" retry wait")
		case <-time.After(b.retryWait):
		}
		resp, err = b.get(ctx, query)
		if err != nil {
			return nil, err
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		b.throttle.OnRateLimit()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("search: %s status %d", b.name, resp.StatusCode)
	}
	if !pushedBack {
		b.throttle.Reset()
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "search: %s parse results", b.name)
	}
	return b.extract(doc), nil
}

func (b *htmlBackend) get(ctx context.Context, query string) (*http.Response, error) {
	if err := b.throttle.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "search: %s throttle", b.name)
	}

	params := url.Values{"q": {query}}
	for k, v := range b.extraQuery {
		params[k] = v
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "search: %s create request", b.name)
	}
	req.Header.Set("User-Agent", b.agents.pick())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.8")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "search: %s request", b.name)
	}
	return resp, nil
}

func (b *htmlBackend) extract(doc *goquery.Document) []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	doc.Find(b.selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Find("a[href]").First().Attr("href")
		if !ok {
			return true
		}
		target := b.unwrap(href)
		if target == "" || seen[target] || !validate.BusinessWebsite(target) {
			return true
		}
		seen[target] = true
		out = append(out, target)
		return len(out) < b.maxResults
	})
	zap.L().Debug("search: backend results",
		zap.String("backend", b.name),
		zap.Int("count", len(out)),
	)
	return out
}

// unwrapDuckDuckGo resolves "/l/?uddg=<encoded>" redirect links.
func unwrapDuckDuckGo(href string) string {
	const marker = "/l/?uddg="
	i := strings.Index(href, marker)
	if i < 0 {
		return href
	}
	enc, _, _ := strings.Cut(href[i+len(marker):], "&")
	target, err := url.QueryUnescape(enc)
	if err != nil {
		return ""
	}
	return target
}

// unwrapGoogle resolves "/url?q=<encoded>" redirect links.
func unwrapGoogle(href string) string {
	const marker = "/url?q="
	if !strings.HasPrefix(href, marker) {
		return href
	}
	enc, _, _ := strings.Cut(href[len(marker):], "&")
	target, err := url.QueryUnescape(enc)
	if err != nil {
		return ""
	}
	return target
}
