package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const cheskyTranscript = `---
guest: Brian Chesky
title: Founder mode at Airbnb
youtube_url: https://youtube.com/watch?v=abc
video_id: abc
publish_date: "2024-11-03"
description: Brian on staying in the details.
duration: "1:32:10"
duration_seconds: 5530.5
view_count: 120000
keywords:
  - founder mode
  - culture
  - product reviews
---

Brian talked about founder mode and why founders should stay close to
the details of the product instead of delegating everything.
`

const zhuoTranscript = `---
guest: Julie Zhuo
title: Making of a manager
youtube_url: https://youtube.com/watch?v=def
publish_date: "2024-06-12"
---

Julie covered the transition from IC to manager and running effective
one-on-ones with new reports.
`

func writeTranscript(t *testing.T, dir, slug, content string) {
	t.Helper()
	epDir := filepath.Join(dir, slug)
	require.NoError(t, os.MkdirAll(epDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(epDir, "transcript.md"), []byte(content), 0o644))
}

func fixtureDir(t *testing.T) string {
	dir := t.TempDir()
	writeTranscript(t, dir, "brian-chesky", cheskyTranscript)
	writeTranscript(t, dir, "julie-zhuo", zhuoTranscript)
	return dir
}

func TestLoad(t *testing.T) {
	idx, err := Load(fixtureDir(t))
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())
	require.Equal(t, []string{"brian-chesky", "julie-zhuo"}, idx.Slugs())

	ep, ok := idx.Episode("brian-chesky")
	require.True(t, ok)
	require.Equal(t, "Brian Chesky", ep.Guest)
	require.Equal(t, "Founder mode at Airbnb", ep.Title)
	require.Equal(t, "https://youtube.com/watch?v=abc", ep.YoutubeURL)
	require.Equal(t, "abc", ep.VideoID)
	require.Equal(t, "2024-11-03", ep.PublishDate)
	require.Equal(t, "1:32:10", ep.Duration)
	require.InDelta(t, 5530.5, ep.DurationSeconds, 1e-9)
	require.Equal(t, 120000, ep.ViewCount)
	require.Equal(t, []string{"founder mode", "culture", "product reviews"}, ep.Keywords)
}

func TestLoadDefaultsAndSkips(t *testing.T) {
	dir := fixtureDir(t)
	// No front-matter at all: skipped.
	writeTranscript(t, dir, "no-meta", "just a plain transcript body")
	// Unclosed front-matter block: skipped.
	writeTranscript(t, dir, "broken", "---\nguest: Someone\nnever closed")
	// Directory without a transcript file: skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty-dir"), 0o755))
	// Stray file at the top level: ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644))

	idx, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())

	// Missing guest falls back to the slug.
	writeTranscript(t, dir, "anon", "---\ntitle: Untitled\n---\n\nbody")
	idx, err = Load(dir)
	require.NoError(t, err)
	ep, ok := idx.Episode("anon")
	require.True(t, ok)
	require.Equal(t, "anon", ep.Guest)
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "LENNY_TRANSCRIPTS")
}

func TestTranscriptStripsFrontmatter(t *testing.T) {
	idx, err := Load(fixtureDir(t))
	require.NoError(t, err)

	body, err := idx.Transcript("brian-chesky")
	require.NoError(t, err)
	require.NotContains(t, body, "---")
	require.NotContains(t, body, "youtube_url")
	require.Contains(t, body, "Brian talked about founder mode")

	_, err = idx.Transcript("unknown-slug")
	require.Error(t, err)
}

func TestCatalog(t *testing.T) {
	idx, err := Load(fixtureDir(t))
	require.NoError(t, err)

	catalog := idx.Catalog()
	require.Len(t, catalog, 2)
	require.Equal(t, "brian-chesky", catalog[0].Slug)
	require.Equal(t, "Brian Chesky", catalog[0].Guest)
	require.Equal(t, "https://youtube.com/watch?v=abc", catalog[0].YoutubeURL)
	require.Equal(t, []string{"founder mode", "culture", "product reviews"}, catalog[0].Keywords)
	require.Empty(t, catalog[1].Keywords)
}

func TestEpisodeInfo(t *testing.T) {
	idx, err := Load(fixtureDir(t))
	require.NoError(t, err)

	guest, title, url, ok := idx.EpisodeInfo("julie-zhuo")
	require.True(t, ok)
	require.Equal(t, "Julie Zhuo", guest)
	require.Equal(t, "Making of a manager", title)
	require.Equal(t, "https://youtube.com/watch?v=def", url)

	_, _, _, ok = idx.EpisodeInfo("missing")
	require.False(t, ok)
}

func TestSearchTranscripts(t *testing.T) {
	idx, err := Load(fixtureDir(t))
	require.NoError(t, err)

	// Body match returns a snippet around the hit.
	results := idx.SearchTranscripts("one-on-ones")
	require.Len(t, results, 1)
	require.Equal(t, "julie-zhuo", results[0].Slug)
	require.Equal(t, "content", results[0].MatchType)
	require.Contains(t, results[0].Text, "one-on-ones")

	// Keyword-tag match reported when the body has no hit.
	results = idx.SearchTranscripts("product reviews")
	require.Len(t, results, 1)
	require.Equal(t, "brian-chesky", results[0].Slug)
	require.Equal(t, "keyword_tag", results[0].MatchType)

	require.Empty(t, idx.SearchTranscripts("zyzzyva"))
}

func TestSearchTranscriptsCaseInsensitive(t *testing.T) {
	idx, err := Load(fixtureDir(t))
	require.NoError(t, err)

	results := idx.SearchTranscripts("FOUNDER MODE")
	require.NotEmpty(t, results)
	require.Equal(t, "brian-chesky", results[0].Slug)
}
