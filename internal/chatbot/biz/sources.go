package biz

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kart-io/docschat/internal/chatbot/store"
)

// maxExcerptSources caps the excerpt-based placeholder fallback.
const maxExcerptSources = 3

// SourceExtractorConfig configures documentation link recognition.
type SourceExtractorConfig struct {
	// DocsBaseURL is the absolute root that relative links resolve against,
	// e.g. "https://docs.example.com".
	DocsBaseURL string
	// PathPrefixes are the URL path prefixes treated as documentation links.
	PathPrefixes []string
}

// DefaultPathPrefixes are the link prefixes recognized in passage content
// and generated answers.
var DefaultPathPrefixes = []string{"/docs", "/guides", "/reference", "/blog"}

// SourceExtractor is the one shared utility for pulling documentation links
// out of text. The retriever uses it on passage content and the generator
// uses it on the finished answer, so both recognize exactly the same links.
type SourceExtractor struct {
	config  *SourceExtractorConfig
	linkRe  *regexp.Regexp
	baseURL string
}

// NewSourceExtractor creates a link extractor for the given documentation
// site.
func NewSourceExtractor(config *SourceExtractorConfig) *SourceExtractor {
	prefixes := config.PathPrefixes
	if len(prefixes) == 0 {
		prefixes = DefaultPathPrefixes
	}

	quoted := make([]string, len(prefixes))
	for i, p := range prefixes {
		quoted[i] = regexp.QuoteMeta(p)
	}

	// Matches both absolute links (any host) and bare relative paths that
	// start with a known documentation prefix.
	pattern := fmt.Sprintf(`(https?://[\w.-]+)?(%s)(/[\w\-./%%]*)?(#[\w\-]*)?`, strings.Join(quoted, "|"))

	return &SourceExtractor{
		config:  config,
		linkRe:  regexp.MustCompile(pattern),
		baseURL: strings.TrimRight(config.DocsBaseURL, "/"),
	}
}

// ExtractLinks returns all documentation links found in text, as absolute
// URLs with fragments and trailing punctuation stripped, deduplicated and
// sorted.
func (e *SourceExtractor) ExtractLinks(text string) []string {
	matches := e.linkRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		host, prefix, rest := m[1], m[2], m[3]

		link := prefix + rest
		link = strings.TrimRight(link, ".,;:!?)\"'")
		if host == "" {
			link = e.baseURL + link
		} else {
			link = host + link
		}

		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}

	sort.Strings(links)
	return links
}

// SourcesFromResults builds the attribution list for a set of retrieved
// passages. Links found in passage content win; otherwise section or source
// metadata is used with a domain label; as a last resort a short excerpt
// placeholder per passage, capped at maxExcerptSources. The list is never
// empty when results is non-empty, and always sorted.
func (e *SourceExtractor) SourcesFromResults(domainLabel string, results []*store.SearchResult) []string {
	var links []string
	for _, r := range results {
		links = append(links, e.ExtractLinks(r.Content)...)
	}
	if len(links) > 0 {
		return dedupeSorted(links)
	}

	var labels []string
	for _, r := range results {
		ref := r.Section
		if ref == "" {
			ref = r.Source
		}
		if ref == "" {
			continue
		}
		labels = append(labels, fmt.Sprintf("%s: %s", domainLabel, ref))
	}
	if len(labels) > 0 {
		return dedupeSorted(labels)
	}

	var excerpts []string
	for _, r := range results {
		if len(excerpts) >= maxExcerptSources {
			break
		}
		excerpts = append(excerpts, fmt.Sprintf("%s excerpt: %s", domainLabel, excerpt(r.Content, 60)))
	}
	return dedupeSorted(excerpts)
}

// MergeSources unions two source lists, deduplicated and sorted.
func MergeSources(a, b []string) []string {
	merged := make([]string, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	return dedupeSorted(merged)
}

func dedupeSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func excerpt(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
