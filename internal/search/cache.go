package search

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// cacheVersion tags the on-disk format. A mismatch invalidates the cache
// unconditionally; the loader never migrates.
const cacheVersion = 1

// cacheMeta is stored alongside the chunks to detect staleness.
type cacheMeta struct {
	TranscriptDir      string `json:"transcript_dir"`
	TranscriptDirMtime int64  `json:"transcript_dir_mtime"`
	EpisodeCount       int    `json:"episode_count"`
	ContentHash        string `json:"content_hash"`
}

type cachePayload struct {
	Version int       `json:"version"`
	Meta    cacheMeta `json:"cache_meta"`
	Chunks  []Chunk   `json:"chunks"`
}

// Save writes the index to disk as a single JSON file. Only the chunk
// list is serialized; the BM25 structure is rebuilt on load.
//
// The write is atomic: a temp file in the target directory is renamed
// over the destination, so concurrent readers see either the old or the
// new file, never a partial one. Any error leaves no temp file behind.
func (idx *Index) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	payload := cachePayload{
		Version: cacheVersion,
		Meta:    idx.meta,
		Chunks:  idx.chunks,
	}

	tmp, err := os.CreateTemp(dir, ".bm25_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := json.NewEncoder(tmp).Encode(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// loadFromCache reads a cached index from disk, or nil on any failure:
// missing file, unparseable JSON, version mismatch, or structural problems
// all count as a cache miss, never an error.
func loadFromCache(path string) *Index {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var payload cachePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		slog.Debug("search index cache unreadable", "path", path, "error", err)
		return nil
	}
	if payload.Version != cacheVersion {
		slog.Debug("search index cache version mismatch", "path", path, "version", payload.Version)
		return nil
	}
	if payload.Chunks == nil {
		slog.Debug("search index cache missing chunks", "path", path)
		return nil
	}
	for _, c := range payload.Chunks {
		if c.EpisodeSlug == "" || c.Text == "" {
			slog.Debug("search index cache has malformed chunk", "path", path)
			return nil
		}
	}

	return &Index{
		chunks: payload.Chunks,
		bm25:   rebuildScorer(payload.Chunks),
		meta:   payload.Meta,
	}
}
