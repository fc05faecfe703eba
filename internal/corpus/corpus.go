// Package corpus loads podcast episode metadata and transcripts from disk.
//
// The corpus layout is one directory per episode, each containing a
// transcript.md with YAML front-matter followed by the transcript body.
package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Episode holds the metadata parsed from a transcript's front-matter.
// Episodes are immutable once loaded.
type Episode struct {
	Slug            string
	Guest           string
	Title           string
	YoutubeURL      string
	VideoID         string
	PublishDate     string
	Description     string
	Duration        string
	DurationSeconds float64
	ViewCount       int
	Keywords        []string
	FilePath        string
}

// CatalogEntry is the compact episode representation handed to the deep
// path's context payload.
type CatalogEntry struct {
	Slug        string   `json:"slug"`
	Guest       string   `json:"guest"`
	Title       string   `json:"title"`
	YoutubeURL  string   `json:"youtube_url,omitempty"`
	PublishDate string   `json:"publish_date"`
	Duration    string   `json:"duration"`
	Keywords    []string `json:"keywords"`
}

// Index is a read-only lookup of episodes by slug.
type Index struct {
	episodes map[string]Episode
	slugs    []string // sorted, preserves deterministic iteration
	dir      string
}

// Load reads all episode metadata from the transcripts directory.
func Load(dir string) (*Index, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("transcript data not found at %q.\n"+
			"Set LENNY_TRANSCRIPTS to the episodes directory, or run "+
			"`lenny chat` to download transcripts automatically", dir)
	}

	idx := &Index{
		episodes: make(map[string]Episode),
		dir:      dir,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read transcript dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		slug := entry.Name()
		path := filepath.Join(dir, slug, "transcript.md")
		meta, ok := parseFrontmatter(path)
		if !ok {
			continue
		}

		ep := Episode{
			Slug:            slug,
			Guest:           meta.stringOr("guest", slug),
			Title:           meta.stringOr("title", ""),
			YoutubeURL:      meta.stringOr("youtube_url", ""),
			VideoID:         meta.stringOr("video_id", ""),
			PublishDate:     meta.stringOr("publish_date", ""),
			Description:     meta.stringOr("description", ""),
			Duration:        meta.stringOr("duration", ""),
			DurationSeconds: meta.floatOr("duration_seconds", 0),
			ViewCount:       meta.intOr("view_count", 0),
			Keywords:        meta.stringsOr("keywords"),
			FilePath:        path,
		}
		idx.episodes[slug] = ep
		idx.slugs = append(idx.slugs, slug)
	}
	sort.Strings(idx.slugs)

	return idx, nil
}

// Dir returns the transcript directory this index was loaded from.
func (idx *Index) Dir() string { return idx.dir }

// Len returns the number of loaded episodes.
func (idx *Index) Len() int { return len(idx.episodes) }

// Slugs returns all episode slugs in sorted order.
func (idx *Index) Slugs() []string { return idx.slugs }

// Episode returns the episode for a slug.
func (idx *Index) Episode(slug string) (Episode, bool) {
	ep, ok := idx.episodes[slug]
	return ep, ok
}

// EpisodeInfo returns the citation metadata for a slug. Satisfies the
// search package's corpus view.
func (idx *Index) EpisodeInfo(slug string) (guest, title, youtubeURL string, ok bool) {
	ep, ok := idx.episodes[slug]
	return ep.Guest, ep.Title, ep.YoutubeURL, ok
}

// Episodes returns all episodes in slug order.
func (idx *Index) Episodes() []Episode {
	out := make([]Episode, 0, len(idx.slugs))
	for _, slug := range idx.slugs {
		out = append(out, idx.episodes[slug])
	}
	return out
}

// Catalog returns compact entries for every episode, in slug order.
func (idx *Index) Catalog() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(idx.slugs))
	for _, slug := range idx.slugs {
		ep := idx.episodes[slug]
		out = append(out, CatalogEntry{
			Slug:        ep.Slug,
			Guest:       ep.Guest,
			Title:       ep.Title,
			YoutubeURL:  ep.YoutubeURL,
			PublishDate: ep.PublishDate,
			Duration:    ep.Duration,
			Keywords:    ep.Keywords,
		})
	}
	return out
}

// Transcript returns the transcript body for a slug with the front-matter
// stripped, or an error if the episode is unknown or unreadable.
func (idx *Index) Transcript(slug string) (string, error) {
	ep, ok := idx.episodes[slug]
	if !ok {
		return "", fmt.Errorf("unknown episode: %s", slug)
	}
	raw, err := os.ReadFile(ep.FilePath)
	if err != nil {
		return "", fmt.Errorf("read transcript %s: %w", slug, err)
	}
	return strings.TrimSpace(stripFrontmatter(string(raw))), nil
}

// Snippet is a keyword match from SearchTranscripts.
type Snippet struct {
	Slug       string
	Guest      string
	Title      string
	YoutubeURL string
	MatchType  string // "content" or "keyword_tag"
	Text       string
}

// SearchTranscripts scans every transcript body for a keyword and
// returns a snippet around the first match. Episodes whose keyword tags
// match are reported even when the body does not.
func (idx *Index) SearchTranscripts(keyword string) []Snippet {
	kw := strings.ToLower(keyword)
	var results []Snippet

	for _, slug := range idx.slugs {
		ep := idx.episodes[slug]
		raw, err := os.ReadFile(ep.FilePath)
		if err != nil {
			continue
		}
		content := strings.TrimSpace(stripFrontmatter(string(raw)))
		pos := strings.Index(strings.ToLower(content), kw)
		if pos == -1 {
			if matchesKeywordTag(ep.Keywords, kw) {
				results = append(results, Snippet{
					Slug:       slug,
					Guest:      ep.Guest,
					Title:      ep.Title,
					YoutubeURL: ep.YoutubeURL,
					MatchType:  "keyword_tag",
					Text:       fmt.Sprintf("Tagged with keyword matching %q", keyword),
				})
			}
			continue
		}

		start := max(0, pos-100)
		end := min(len(content), pos+len(keyword)+100)
		snippet := strings.TrimSpace(strings.ReplaceAll(content[start:end], "\n", " "))
		if start > 0 {
			snippet = "..." + snippet
		}
		if end < len(content) {
			snippet += "..."
		}
		results = append(results, Snippet{
			Slug:       slug,
			Guest:      ep.Guest,
			Title:      ep.Title,
			YoutubeURL: ep.YoutubeURL,
			MatchType:  "content",
			Text:       snippet,
		})
	}
	return results
}

func matchesKeywordTag(keywords []string, kw string) bool {
	for _, tag := range keywords {
		if strings.Contains(strings.ToLower(tag), kw) {
			return true
		}
	}
	return false
}
