package corpus

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatter is the raw YAML mapping parsed from a transcript header.
type frontmatter map[string]any

// parseFrontmatter reads the YAML front-matter block from a markdown file.
// Returns ok=false when the file is missing, has no front-matter, or the
// YAML does not parse; such episodes are skipped at load time.
func parseFrontmatter(path string) (frontmatter, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	content := string(raw)
	if !strings.HasPrefix(content, "---") {
		return nil, false
	}

	end := strings.Index(content[3:], "\n---")
	if end == -1 {
		return nil, false
	}
	block := content[3 : 3+end]

	var meta frontmatter
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return nil, false
	}
	return meta, true
}

// stripFrontmatter removes a leading front-matter block, returning the body.
func stripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	end := strings.Index(content[3:], "\n---")
	if end == -1 {
		return content
	}
	rest := content[3+end+len("\n---"):]
	// Drop the newline terminating the closing fence
	return strings.TrimPrefix(rest, "\n")
}

func (m frontmatter) stringOr(key, fallback string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fallback
}

func (m frontmatter) floatOr(key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func (m frontmatter) intOr(key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (m frontmatter) stringsOr(key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
