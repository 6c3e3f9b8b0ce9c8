package search

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// DefaultMaxPageBytes bounds how much of a candidate page is read.
const DefaultMaxPageBytes = 50 * 1024

// DefaultUserAgents is rotated across outbound requests.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// PageFetcher downloads a candidate page and returns its lower-cased text.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// agents rotates user agents without randomness.
type agents struct {
	list []string
	next atomic.Uint64
}

func newAgents(list []string) *agents {
	if len(list) == 0 {
		list = DefaultUserAgents
	}
	return &agents{list: list}
}

func (a *agents) pick() string {
	n := a.next.Add(1) - 1
	return a.list[n%uint64(len(a.list))]
}

// HTTPFetcher fetches candidate pages over net/http.
type HTTPFetcher struct {
	client   *http.Client
	throttle *Throttle
	agents   *agents
	maxBytes int64
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithFetchTimeout sets the per-page timeout.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithMaxPageBytes sets the read budget per page.
func WithMaxPageBytes(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithUserAgents sets the rotated user agents.
func WithUserAgents(list []string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.agents = newAgents(list)
	}
}

// NewHTTPFetcher creates an HTTPFetcher with an 8s timeout and a 50 KiB budget.
func NewHTTPFetcher(throttle *Throttle, opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: 8 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		throttle: throttle,
		agents:   newAgents(nil),
		maxBytes: DefaultMaxPageBytes,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch downloads url, rejects blocked or non-200 pages, and returns the
// visible text lower-cased with whitespace collapsed.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := f.throttle.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "search: fetch throttle")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrap(err, "search: fetch create request")
	}
	req.Header.Set("User-Agent", f.agents.pick())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "search: fetch %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", eris.Wrapf(err, "search: read %s", url)
	}

	if bt := DetectBlock(resp, body); bt != BlockNone {
		if bt == BlockRateLimited {
			f.throttle.OnRateLimit()
		}
		return "", eris.Errorf("search: fetch %s blocked (%s)", url, bt)
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("search: fetch %s status %d", url, resp.StatusCode)
	}

	return PageText(body)
}

// PageText extracts the visible text of an HTML document, lower-cased.
func PageText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "search: parse page")
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")
	return strings.ToLower(text), nil
}
