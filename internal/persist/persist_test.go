package persist

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildQuerySlug(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"drops stopwords", "What did Brian Chesky say about founder mode?", "brian-chesky-founder-mode"},
		{"caps at five tokens", "growth retention pricing hiring culture strategy roadmap", "growth-retention-pricing-hiring-culture"},
		{"lowercases", "PRICING Strategy", "pricing-strategy"},
		{"strips punctuation", "what's the best B2B go-to-market motion?!", "best-b2b-go-market-motion"},
		{"keeps numeric tokens", "top 10 lessons from 2024", "top-10-lessons-2024"},
		{"all stopwords falls back to any tokens", "what is it about", "what-is-it-about"},
		{"empty query", "", "response"},
		{"only punctuation", "???!!!", "response"},
		{"single short token", "a", "response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, BuildQuerySlug(tt.query))
		})
	}
}

func TestBuildQuerySlugInvariants(t *testing.T) {
	queries := []string{
		"How do the best product managers prioritize ruthlessly across many competing stakeholder demands?",
		"supercalifragilisticexpialidocious antidisestablishmentarianism floccinaucinihilipilification extraordinarily",
		"émojis 🚀 and unicode ünïcode everywhere",
	}
	valid := regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	for _, q := range queries {
		slug := BuildQuerySlug(q)
		require.LessOrEqual(t, len(slug), 48, "query %q", q)
		require.Regexp(t, valid, slug, "query %q", q)
		require.Equal(t, slug, BuildQuerySlug(q), "slug must be deterministic")
	}
}

func TestSaveMarkdown(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 3, 15, 14, 30, 45, 0, time.UTC)

	path, err := SaveMarkdown(
		"What did Brian say about pricing?",
		"He said price on value.",
		"fast",
		"  Sonnet: 1 calls\n  Query total: $0.0042 in 3.1s",
		dir, now,
	)
	require.NoError(t, err)
	require.Equal(t, "20250315-143045-brian-pricing.md", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	require.True(t, strings.HasPrefix(content, "---\n"))
	require.Contains(t, content, "timestamp: 2025-03-15 14:30:45\n")
	require.Contains(t, content, `query: "What did Brian say about pricing?"`)
	require.Contains(t, content, "route: fast\n")
	require.Contains(t, content, "cost: |\n")
	require.Contains(t, content, "  Query total: $0.0042 in 3.1s\n")
	require.True(t, strings.HasSuffix(content, "He said price on value.\n"))
}

func TestSaveMarkdownCollision(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 3, 15, 14, 30, 45, 0, time.UTC)

	first, err := SaveMarkdown("same query here", "a1", "deep", "cost", dir, now)
	require.NoError(t, err)
	second, err := SaveMarkdown("same query here", "a2", "deep", "cost", dir, now)
	require.NoError(t, err)
	third, err := SaveMarkdown("same query here", "a3", "deep", "cost", dir, now)
	require.NoError(t, err)

	require.Equal(t, "20250315-143045-same-query-here.md", filepath.Base(first))
	require.Equal(t, "20250315-143045-same-query-here-1.md", filepath.Base(second))
	require.Equal(t, "20250315-143045-same-query-here-2.md", filepath.Base(third))
}

func TestFormatTerminalCitations(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"citation moves url to own line",
			"**Lenny** in *Growth* ([link](https://youtube.com/watch?v=abc))",
			"**Lenny** in *Growth*\n  https://youtube.com/watch?v=abc",
		},
		{
			"trailing colon stripped",
			"**Lenny** in *Growth*: ([watch](https://yt/x))",
			"**Lenny** in *Growth*\n  https://yt/x",
		},
		{
			"trailing hyphen stripped",
			"**Lenny** in *Growth* - ([YouTube](https://yt/x))",
			"**Lenny** in *Growth*\n  https://yt/x",
		},
		{
			"general link inlined",
			"see [the episode](https://yt/ep) for more",
			"see the episode (https://yt/ep) for more",
		},
		{
			"plain text untouched",
			"no links here at all",
			"no links here at all",
		},
		{
			"multiline mixed",
			"intro line\n**G** in *T* ([link](https://u/1))\nclosing [ref](https://u/2) text",
			"intro line\n**G** in *T*\n  https://u/1\nclosing ref (https://u/2) text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FormatTerminalCitations(tt.in))
		})
	}
}
