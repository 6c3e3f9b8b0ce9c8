package search

import (
	"net/http"
	"strings"
)

// BlockType describes why a fetched page cannot be scored.
type BlockType string

const (
	BlockNone        BlockType = ""
	BlockRateLimited BlockType = "rate_limited"
	BlockCloudflare  BlockType = "cloudflare"
	BlockCaptcha     BlockType = "captcha"
	BlockJSShell     BlockType = "js_shell"
)

// DetectBlock checks a candidate page for anti-bot walls. A blocked page
// carries no company text, so the candidate is treated as failed.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp == nil {
		return BlockNone
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return BlockRateLimited
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	switch {
	case strings.Contains(lower, "checking your browser"),
		strings.Contains(lower, "cf-browser-verification"):
		return BlockCloudflare
	case strings.Contains(lower, "captcha"):
		return BlockCaptcha
	case len(body) < 2000 && strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript"):
		return BlockJSShell
	}
	return BlockNone
}
