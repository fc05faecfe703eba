// Package search implements the BM25 lexical index over paragraph-level
// transcript chunks, with a fingerprinted disk cache.
package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Corpus is the read-only view of the transcript corpus the index is
// built from.
type Corpus interface {
	Dir() string
	Len() int
	Slugs() []string
	Transcript(slug string) (string, error)
	EpisodeInfo(slug string) (guest, title, youtubeURL string, ok bool)
}

// Result pairs a chunk with its BM25 score.
type Result struct {
	Chunk Chunk
	Score float64
}

// Index is the lexical search index: an ordered chunk sequence plus the
// BM25 scoring structure derived from it. Read-only after construction and
// safe for concurrent searches.
type Index struct {
	chunks []Chunk
	bm25   *bm25
	meta   cacheMeta
}

// Build chunks every transcript in the corpus and computes the BM25
// structure over the full chunk collection.
func Build(c Corpus) (*Index, error) {
	var chunks []Chunk
	for _, slug := range c.Slugs() {
		text, err := c.Transcript(slug)
		if err != nil || text == "" {
			continue
		}
		guest, title, url, ok := c.EpisodeInfo(slug)
		if !ok {
			continue
		}
		chunks = append(chunks, splitChunks(text, slug, guest, title, url)...)
	}

	dirMtime, err := dirMtimeNanos(c.Dir())
	if err != nil {
		return nil, fmt.Errorf("stat transcript dir: %w", err)
	}

	idx := &Index{
		chunks: chunks,
		bm25:   rebuildScorer(chunks),
		meta: cacheMeta{
			TranscriptDir:      c.Dir(),
			TranscriptDirMtime: dirMtime,
			EpisodeCount:       c.Len(),
			ContentHash:        ContentHash(c.Dir()),
		},
	}
	return idx, nil
}

// rebuildScorer recomputes the BM25 structure from chunk text. The scorer
// is pure derived state: it is never serialized and is always rebuilt to
// match the chunk sequence.
func rebuildScorer(chunks []Chunk) *bm25 {
	docs := make([][]string, len(chunks))
	for i, c := range chunks {
		docs[i] = tokenize(c.Text)
	}
	return newBM25(docs)
}

// Len returns the number of chunks in the index.
func (idx *Index) Len() int { return len(idx.chunks) }

// Search returns the top-K chunks for a query, best first. Zero-score
// chunks are excluded; ties keep insertion order.
func (idx *Index) Search(query string, topK int) []Chunk {
	results := idx.SearchWithScores(query, topK)
	chunks := make([]Chunk, len(results))
	for i, r := range results {
		chunks[i] = r.Chunk
	}
	return chunks
}

// SearchWithScores is Search with the BM25 score attached to each chunk,
// for downstream relevance gating.
func (idx *Index) SearchWithScores(query string, topK int) []Result {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	idxs, scores := idx.bm25.topK(tokens, topK)
	results := make([]Result, len(idxs))
	for i, chunkIdx := range idxs {
		results[i] = Result{Chunk: idx.chunks[chunkIdx], Score: scores[i]}
	}
	return results
}

// ContentHash computes a fingerprint over the corpus directory without
// reading file contents: a SHA-256 of the sorted (name, mtime-ns, size)
// rows for every episode transcript. Detects additions, deletions, and
// modifications; a same-mtime same-size content change is not detected,
// an accepted tradeoff for never re-reading the corpus.
func ContentHash(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return hashLines(nil)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		st, err := os.Stat(filepath.Join(dir, name, "transcript.md"))
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s:%d:%d", name, st.ModTime().UnixNano(), st.Size()))
	}
	return hashLines(lines)
}

func hashLines(lines []string) string {
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

func dirMtimeNanos(dir string) (int64, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return 0, err
	}
	return st.ModTime().UnixNano(), nil
}

// LoadOrBuild loads a fresh cache from cachePath, or builds the index and
// attempts to re-cache it. A stale, corrupt, or missing cache is never an
// error; a failed cache write degrades to in-memory operation.
func LoadOrBuild(c Corpus, cachePath string) (*Index, error) {
	if cached := loadFromCache(cachePath); cached != nil {
		dirMtime, err := dirMtimeNanos(c.Dir())
		if err == nil &&
			cached.meta.TranscriptDir == c.Dir() &&
			cached.meta.TranscriptDirMtime == dirMtime &&
			cached.meta.EpisodeCount == c.Len() &&
			cached.meta.ContentHash == ContentHash(c.Dir()) {
			return cached, nil
		}
		slog.Debug("search index cache stale, rebuilding", "path", cachePath)
	}

	fresh, err := Build(c)
	if err != nil {
		return nil, err
	}
	if err := fresh.Save(cachePath); err != nil {
		slog.Warn("search index cache write failed, continuing in-memory", "path", cachePath, "error", err)
	}
	return fresh, nil
}
