// Package transcripts locates the podcast corpus on disk and handles
// first-run download, via git when available and a pinned tarball
// otherwise.
package transcripts

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	repoURL = "https://github.com/ChatPRD/lennys-podcast-transcripts.git"
	branch  = "main"

	// Pinned to commit be8ab89 (2026-02-17). Update when the corpus is
	// refreshed.
	tarballSHA = "be8ab89a890a833cbba2c892178f823fff178c65"
)

var tarballURL = "https://github.com/ChatPRD/lennys-podcast-transcripts/archive/" + tarballSHA + ".tar.gz"

// ErrNotFound carries the setup instructions shown when the corpus
// cannot be located and cannot be downloaded.
var ErrNotFound = errors.New("transcript data not found.\n\n" +
	"Set the LENNY_TRANSCRIPTS environment variable to the episodes directory:\n" +
	"  export LENNY_TRANSCRIPTS=/path/to/transcripts/episodes\n\n" +
	"Or clone the transcripts manually:\n" +
	"  git clone " + repoURL + " ~/lenny-transcripts\n" +
	"  export LENNY_TRANSCRIPTS=~/lenny-transcripts/episodes")

// DataDir returns the platform data directory for downloaded transcripts.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "lenny", "transcripts")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "lenny", "transcripts")
	}
	return filepath.Join(home, ".local", "share", "lenny", "transcripts")
}

// FindEpisodesDir locates the episodes directory.
//
// Search order: the LENNY_TRANSCRIPTS env var, then transcripts/episodes
// walking up from the working directory, then a previous download in the
// data directory. Returns "" when nothing is found.
func FindEpisodesDir() string {
	if env := os.Getenv("LENNY_TRANSCRIPTS"); env != "" {
		if isDir(env) {
			return env
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		dir := cwd
		for range 10 {
			candidate := filepath.Join(dir, "transcripts", "episodes")
			if isDir(candidate) {
				return candidate
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if candidate := filepath.Join(DataDir(), "episodes"); isDir(candidate) {
		return candidate
	}
	return ""
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Download fetches the corpus into dest, which must not already exist.
// Prefers a shallow git clone; falls back to the pinned tarball when git
// is missing.
func Download(dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("download destination already exists: %s", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if gitAvailable() {
		return downloadViaGit(dest)
	}
	slog.Info("git not found, falling back to tarball download")
	return downloadViaTarball(dest)
}

func gitAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

func downloadViaGit(dest string) error {
	cmd := exec.Command("git", "clone", "--depth", "1", "--branch", branch, repoURL, dest)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone: %w: %s", err, strings.TrimSpace(string(out)))
	}
	if !isDir(filepath.Join(dest, "episodes")) {
		return errors.New("cloned repository missing episodes/ directory")
	}
	return nil
}

// downloadViaTarball downloads the pinned archive, extracts it into a
// staging directory with a path traversal guard, validates the layout,
// then moves it into place.
func downloadViaTarball(dest string) error {
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Get(tarballURL)
	if err != nil {
		return fmt.Errorf("download tarball: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download tarball: unexpected status %s", resp.Status)
	}

	staging, err := os.MkdirTemp("", "lenny-extract-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := extractTarGz(resp.Body, staging); err != nil {
		return fmt.Errorf("extract tarball: %w", err)
	}

	root := filepath.Join(staging, "lennys-podcast-transcripts-"+tarballSHA)
	if !isDir(root) {
		entries, err := os.ReadDir(staging)
		if err != nil || len(entries) != 1 || !entries[0].IsDir() {
			return errors.New("could not locate extracted root directory")
		}
		root = filepath.Join(staging, entries[0].Name())
	}
	if !isDir(filepath.Join(root, "episodes")) {
		return errors.New("extracted tarball missing episodes/ directory")
	}

	if err := os.Rename(root, dest); err != nil {
		return fmt.Errorf("move into place: %w", err)
	}
	return nil
}

// extractTarGz extracts a gzipped tarball into root, rejecting any
// member whose cleaned destination escapes root.
func extractTarGz(r io.Reader, root string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	rootPrefix := filepath.Clean(root) + string(os.PathSeparator)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		target := filepath.Join(root, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, rootPrefix) {
			return fmt.Errorf("path traversal detected in tarball member: %q", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent of %s: %w", hdr.Name, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return fmt.Errorf("create file %s: %w", hdr.Name, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("write file %s: %w", hdr.Name, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close file %s: %w", hdr.Name, err)
			}
		default:
			// Symlinks and specials are dropped; the corpus has none.
		}
	}
}
