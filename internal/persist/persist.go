// Package persist saves query responses as timestamped markdown files
// and reformats markdown citations for terminal display.
package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// slugStopwords are dropped from queries when building filenames.
var slugStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"from": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"been": {}, "do": {}, "does": {}, "did": {}, "has": {}, "have": {},
	"had": {}, "i": {}, "me": {}, "my": {}, "you": {}, "your": {}, "we": {},
	"our": {}, "they": {}, "their": {}, "it": {}, "its": {}, "this": {},
	"that": {}, "what": {}, "which": {}, "who": {}, "whom": {}, "how": {},
	"when": {}, "where": {}, "why": {}, "about": {}, "all": {}, "any": {},
	"can": {}, "could": {}, "would": {}, "should": {}, "will": {},
	"just": {}, "not": {}, "no": {}, "so": {}, "if": {}, "then": {},
	"than": {}, "too": {}, "very": {}, "some": {}, "most": {}, "more": {},
	"much": {}, "many": {}, "each": {}, "every": {}, "tell": {}, "say": {},
	"said": {}, "think": {}, "know": {},
}

const (
	maxSlugLen    = 48
	minSlugTokens = 2
	maxSlugTokens = 5
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9\s]`)
var repeatedHyphens = regexp.MustCompile(`-{2,}`)

// BuildQuerySlug derives a short filesystem-safe slug from a query:
// two to five informative lowercase tokens joined by hyphens, capped at
// 48 chars, deterministic, with "response" as the last resort.
func BuildQuerySlug(query string) string {
	clean := nonSlugChars.ReplaceAllString(strings.ToLower(query), " ")
	tokens := strings.Fields(clean)

	var informative []string
	for _, t := range tokens {
		if _, stop := slugStopwords[t]; !stop && len(t) > 1 {
			informative = append(informative, t)
		}
	}
	if len(informative) < minSlugTokens {
		informative = informative[:0]
		for _, t := range tokens {
			if len(t) > 1 {
				informative = append(informative, t)
			}
		}
	}
	if len(informative) == 0 {
		return "response"
	}
	if len(informative) > maxSlugTokens {
		informative = informative[:maxSlugTokens]
	}

	slug := strings.Join(informative, "-")
	slug = strings.Trim(repeatedHyphens.ReplaceAllString(slug, "-"), "-")

	if len(slug) > maxSlugLen {
		truncated := slug[:maxSlugLen]
		if i := strings.LastIndexByte(truncated, '-'); i > 10 {
			slug = truncated[:i]
		} else {
			slug = strings.TrimRight(truncated, "-")
		}
	}
	if slug == "" {
		return "response"
	}
	return slug
}

// resolveCollision appends -1, -2, ... before the extension until the
// path is free.
func resolveCollision(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, counter, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// SaveMarkdown writes the answer to a timestamped markdown file in
// outputDir with a YAML header carrying the query, route, and cost
// summary. Returns the path written.
func SaveMarkdown(query, answer, mode, costSummary, outputDir string, now time.Time) (string, error) {
	if outputDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve output dir: %w", err)
		}
		outputDir = wd
	}

	filename := fmt.Sprintf("%s-%s.md", now.Format("20060102-150405"), BuildQuerySlug(query))
	path := resolveCollision(filepath.Join(outputDir, filename))

	var sb strings.Builder
	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "timestamp: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "query: %q\n", query)
	fmt.Fprintf(&sb, "route: %s\n", mode)
	sb.WriteString("cost: |\n")
	for _, line := range strings.Split(strings.TrimSpace(costSummary), "\n") {
		fmt.Fprintf(&sb, "  %s\n", line)
	}
	sb.WriteString("---\n\n")
	sb.WriteString(answer)
	sb.WriteString("\n")

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write response file: %w", err)
	}
	return path, nil
}

// citationRe matches the ([link](url)) citation tail produced by the
// synthesis prompts.
var citationRe = regexp.MustCompile(`\(\[(?:link|Link|watch|Watch|YouTube|youtube|video|listen)\]\((https?://[^)]+)\)\)`)

// mdLinkRe matches any markdown link.
var mdLinkRe = regexp.MustCompile(`\[([^\]]*)\]\((https?://[^)]+)\)`)

// FormatTerminalCitations rewrites markdown links so every URL appears
// as plain text the terminal can auto-link. The citation pattern
// "... ([link](url))" moves the URL onto its own indented line; other
// links become "text (url)".
func FormatTerminalCitations(answer string) string {
	var out []string
	for _, line := range strings.Split(answer, "\n") {
		if loc := citationRe.FindStringSubmatchIndex(line); loc != nil {
			url := line[loc[2]:loc[3]]
			cleaned := strings.TrimRight(line[:loc[0]], " ")
			cleaned = strings.TrimRight(strings.TrimRight(cleaned, ":"), "-")
			cleaned = strings.TrimRight(cleaned, " ")
			out = append(out, cleaned, "  "+url)
			continue
		}
		if mdLinkRe.MatchString(line) {
			out = append(out, mdLinkRe.ReplaceAllString(line, "$1 ($2)"))
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
