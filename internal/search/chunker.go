package search

import (
	"regexp"
	"strings"
)

// Chunking parameters. Chunks target ~800 chars with a ~100 char
// word-aligned overlap carried into the next chunk; fragments below the
// minimum are dropped.
const (
	MinChunkChars    = 50
	TargetChunkChars = 800
	OverlapChars     = 100
)

// Chunk is a bounded span of transcript text with episode metadata.
// Chunks are immutable and serialized verbatim into the disk cache.
type Chunk struct {
	EpisodeSlug    string `json:"episode_slug"`
	Guest          string `json:"guest"`
	Title          string `json:"title"`
	YoutubeURL     string `json:"youtube_url"`
	Text           string `json:"text"`
	ParagraphIndex int    `json:"paragraph_index"`
}

var paragraphSplitRe = regexp.MustCompile(`\n\n+`)

// splitChunks splits transcript text into overlapping chunks.
//
// Paragraphs (blank-line separated) are greedily merged while the running
// length stays under the target size. When the next paragraph would
// overflow, the current chunk is emitted (if it meets the minimum) and the
// next chunk is seeded with a word-boundary-aligned tail of the previous
// one. Deterministic: identical input yields identical chunks.
func splitChunks(text, slug, guest, title, youtubeURL string) []Chunk {
	var paragraphs []string
	for _, p := range paragraphSplitRe.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []Chunk
	current := ""
	chunkIdx := 0

	emit := func() {
		if len(current) >= MinChunkChars {
			chunks = append(chunks, Chunk{
				EpisodeSlug:    slug,
				Guest:          guest,
				Title:          title,
				YoutubeURL:     youtubeURL,
				Text:           current,
				ParagraphIndex: chunkIdx,
			})
			chunkIdx++
		}
	}

	for _, para := range paragraphs {
		switch {
		case current == "":
			current = para
		case len(current)+len(para)+2 <= TargetChunkChars:
			current += "\n\n" + para
		default:
			emit()
			current = overlapTail(current) + para
		}
	}
	emit()

	return chunks
}

// overlapTail returns the word-aligned trailing overlap of a closed chunk,
// ready to prefix the next chunk ("" when the chunk is too short to carry
// an overlap).
func overlapTail(closed string) string {
	if len(closed) <= OverlapChars {
		return ""
	}
	tail := closed[len(closed)-OverlapChars:]
	if cut := strings.Index(tail, " "); cut > 0 {
		tail = tail[cut+1:]
	}
	return tail + "\n\n"
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases text and extracts maximal alphanumeric runs.
// No stemming, no stopword removal.
func tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}
