// Package validate holds pure predicates and normalizers for registry data.
package validate

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ExcludedDomains lists host fragments that are never a company's own site:
// search engines, social networks, registries, directories and marketplaces.
var ExcludedDomains = []string{
	"google.", "bing.", "yahoo.", "duckduckgo.",
	"facebook.", "twitter.", "instagram.", "tiktok.",
	"youtube.", "wikipedia.", "wikimedia.",
	"societe.com", "verif.com", "infogreffe.",
	"pages-jaunes.", "pagesjaunes.", "kompass.",
	"amazon.", "ebay.", "leboncoin.",
}

// BusinessIndicators lists TLDs and hosting platforms typical of small business sites.
var BusinessIndicators = []string{
	".fr", ".com", ".net", ".org", ".eu",
	"wix.", "wordpress.", "jimdo.", "shopify.",
	"business.site", "sites.google.",
}

// BusinessWebsite reports whether rawURL plausibly points at a company website.
func BusinessWebsite(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	u, err := url.Parse(lower)
	if err != nil || u.Host == "" {
		return false
	}
	for _, d := range ExcludedDomains {
		if strings.Contains(lower, d) {
			return false
		}
	}
	for _, ind := range BusinessIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// legalFormPattern matches a trailing French legal form.
var legalFormPattern = regexp.MustCompile(`(?i)\s+(SARL|SAS|EURL|SA|SNC|SCI|SASU)$`)

// CleanCompanyName strips a trailing legal form and collapses whitespace.
func CleanCompanyName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = legalFormPattern.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}

var communePunct = regexp.MustCompile(`[^\p{L}\p{N}\s\-_]`)

// NormalizeCommune title-cases a locality and replaces punctuation with spaces.
func NormalizeCommune(commune string) string {
	commune = strings.TrimSpace(commune)
	if commune == "" {
		return ""
	}
	commune = TitleCase(commune)
	commune = communePunct.ReplaceAllString(commune, " ")
	return strings.Join(strings.Fields(commune), " ")
}

// TitleCase upper-cases the first letter of every word using French rules.
func TitleCase(s string) string {
	return cases.Title(language.French).String(s)
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Email reports whether s has the shape of an email address.
func Email(s string) bool {
	return s != "" && emailPattern.MatchString(s)
}
