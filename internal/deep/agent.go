package deep

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/marcus-pm/lenny-cli/internal/costs"
	"github.com/marcus-pm/lenny-cli/internal/sandbox"
)

const (
	planMaxTokens      = 1024
	synthesisTokens    = 16384
	maxPlannedEpisodes = 8
	maxExcerptChars    = 3000
	maxExcerptsPerRun  = 24
	subPromptBatchSize = 3
)

const planPrompt = `You are planning a research pass over Lenny's Podcast transcripts.

Given the episode catalog (JSON) and a question, select the episodes most
likely to contain relevant material. Respond with ONLY a JSON array of
episode slugs, most relevant first, at most %d entries.`

const synthesisPrompt = `You are a research assistant specialized in analyzing Lenny's Podcast transcripts. You are given extracted findings from transcript excerpts. Synthesize them into a final answer.

## Citation Requirements
ALWAYS cite specific episodes in your final answer:
- Include the guest name, episode title, and YouTube URL
- Format: "**Guest Name** in *Episode Title* ([link](youtube_url))"
- When quoting, attribute the quote to the speaker

## Output Format
Well-structured markdown with:
- A clear answer to the question
- Cited episodes with YouTube links
- Key quotes or findings attributed to specific guests
- Organized with headers/bullets as appropriate

Base the answer only on the findings provided. If they are thin, say so.`

// RootModel is the orchestrator-side completion capability.
type RootModel interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, costs.Usage, error)
}

// ModelAgent is the built-in deep agent: a plan / extract / analyze /
// synthesize pipeline. The orchestrator model picks episodes, transcript
// reads go through the sandbox policy, excerpt analysis fans out through
// the throttled sub-call pool, and the orchestrator writes the final
// cited answer.
type ModelAgent struct {
	root   RootModel
	pool   *SubcallPool
	policy *sandbox.Policy
}

// NewModelAgent wires the built-in agent. All transcript access runs
// through policy.
func NewModelAgent(root RootModel, pool *SubcallPool, policy *sandbox.Policy) *ModelAgent {
	return &ModelAgent{root: root, pool: pool, policy: policy}
}

type excerpt struct {
	Slug       string
	Guest      string
	Title      string
	YoutubeURL string
	Text       string
}

// Run executes one deep analysis pass.
func (a *ModelAgent) Run(ctx context.Context, question string, payload ContextPayload) (Result, error) {
	usage := make(map[string]costs.Usage)
	a.pool.ResetUsage()

	slugs, planUsage, err := a.plan(ctx, question, payload)
	if err != nil {
		return Result{}, err
	}
	addUsage(usage, a.root.Name(), planUsage)

	excerpts := a.extract(question, payload, slugs)
	slog.Debug("deep agent extracted excerpts",
		"episodes", len(slugs),
		"excerpts", len(excerpts),
	)

	findings, err := a.analyze(ctx, question, excerpts)
	if err != nil {
		addUsage(usage, a.pool.ModelName(), a.pool.ResetUsage())
		return Result{}, err
	}
	addUsage(usage, a.pool.ModelName(), a.pool.ResetUsage())

	answer, synthUsage, err := a.synthesize(ctx, question, payload, findings)
	if err != nil {
		return Result{}, err
	}
	addUsage(usage, a.root.Name(), synthUsage)

	return Result{Answer: answer, UsageByModel: usage}, nil
}

// plan asks the orchestrator which episodes to read. A malformed reply
// degrades to substring-matching slugs out of the raw text.
func (a *ModelAgent) plan(ctx context.Context, question string, payload ContextPayload) ([]string, costs.Usage, error) {
	catalogJSON, err := json.Marshal(payload.Catalog)
	if err != nil {
		return nil, costs.Usage{}, fmt.Errorf("marshal catalog: %w", err)
	}

	user := fmt.Sprintf("## Catalog\n%s\n\n## Question\n%s", catalogJSON, question)
	reply, usage, err := a.root.Complete(ctx, fmt.Sprintf(planPrompt, maxPlannedEpisodes), user, planMaxTokens)
	if err != nil {
		return nil, usage, fmt.Errorf("plan episodes: %w", err)
	}

	known := make(map[string]struct{}, len(payload.Catalog))
	for _, entry := range payload.Catalog {
		known[entry.Slug] = struct{}{}
	}

	var slugs []string
	var parsed []string
	if jsonErr := json.Unmarshal([]byte(extractJSONArray(reply)), &parsed); jsonErr == nil {
		for _, s := range parsed {
			if _, ok := known[s]; ok {
				slugs = append(slugs, s)
			}
		}
	} else {
		for _, entry := range payload.Catalog {
			if strings.Contains(reply, entry.Slug) {
				slugs = append(slugs, entry.Slug)
			}
		}
	}
	if len(slugs) > maxPlannedEpisodes {
		slugs = slugs[:maxPlannedEpisodes]
	}
	if len(slugs) == 0 {
		return nil, usage, fmt.Errorf("plan episodes: no usable slugs in reply")
	}
	return slugs, usage, nil
}

func extractJSONArray(s string) string {
	start := strings.IndexByte(s, '[')
	end := strings.LastIndexByte(s, ']')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// extract reads each planned transcript through the sandbox and keeps
// paragraphs that mention a query term. Failed reads are skipped, never
// fatal.
func (a *ModelAgent) extract(question string, payload ContextPayload, slugs []string) []excerpt {
	terms := queryTerms(question)

	meta := make(map[string]struct{ guest, title string }, len(payload.Catalog))
	for _, entry := range payload.Catalog {
		meta[entry.Slug] = struct{ guest, title string }{entry.Guest, entry.Title}
	}

	var out []excerpt
	for _, slug := range slugs {
		path := filepath.Join(payload.TranscriptDir, slug, "transcript.md")
		data, err := a.policy.ReadFile(path)
		if err != nil {
			slog.Warn("transcript read failed", "slug", slug, "error", err)
			continue
		}
		m := meta[slug]
		for _, para := range strings.Split(string(data), "\n\n") {
			if len(out) >= maxExcerptsPerRun {
				return out
			}
			if !mentionsAny(strings.ToLower(para), terms) {
				continue
			}
			text := truncateBytes(para, maxExcerptChars)
			out = append(out, excerpt{
				Slug:       slug,
				Guest:      m.guest,
				Title:      m.title,
				YoutubeURL: payload.YoutubeURLs[slug],
				Text:       text,
			})
		}
	}
	return out
}

var stopTerms = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "in": {},
	"on": {}, "to": {}, "for": {}, "with": {}, "about": {}, "what": {},
	"how": {}, "do": {}, "does": {}, "did": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "say": {}, "said": {}, "think": {},
}

func queryTerms(question string) []string {
	var terms []string
	for _, w := range wordRe.FindAllString(strings.ToLower(question), -1) {
		if _, stop := stopTerms[w]; stop || len(w) < 3 {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// truncateBytes caps s at n bytes without splitting a multibyte rune,
// so a capped excerpt never ends in an invalid byte.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func mentionsAny(paraLower string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(paraLower, t) {
			return true
		}
	}
	return false
}

// analyze fans focused excerpt prompts out through the sub-call pool in
// small batches and collects the findings.
func (a *ModelAgent) analyze(ctx context.Context, question string, excerpts []excerpt) ([]string, error) {
	var findings []string
	for i := 0; i < len(excerpts); i += subPromptBatchSize {
		batch := excerpts[i:min(i+subPromptBatchSize, len(excerpts))]
		prompts := make([]string, len(batch))
		for j, ex := range batch {
			prompts[j] = fmt.Sprintf(
				"Guest: %s (%s)\nYouTube: %s\n\nExcerpt:\n%s\n\nQuestion: %s\n\nExtract the key insight or quote relevant to the question. Be concise. If nothing is relevant, reply NONE.",
				ex.Guest, ex.Title, ex.YoutubeURL, ex.Text, question,
			)
		}
		answers, err := a.pool.QueryBatched(ctx, prompts)
		if err != nil {
			return nil, fmt.Errorf("analyze excerpts: %w", err)
		}
		for j, ans := range answers {
			if strings.TrimSpace(ans) == "" || strings.EqualFold(strings.TrimSpace(ans), "NONE") {
				continue
			}
			findings = append(findings, fmt.Sprintf(
				"- **%s** in *%s* (%s): %s",
				batch[j].Guest, batch[j].Title, batch[j].YoutubeURL, ans,
			))
		}
	}
	return findings, nil
}

func (a *ModelAgent) synthesize(ctx context.Context, question string, payload ContextPayload, findings []string) (string, costs.Usage, error) {
	var sb strings.Builder
	if len(payload.ConversationHistory) > 0 {
		sb.WriteString("## Conversation History\n")
		for _, h := range payload.ConversationHistory {
			fmt.Fprintf(&sb, "**Q:** %s\n**A:** %s\n\n", h.Question, h.Answer)
		}
	}
	sb.WriteString("## Findings\n")
	if len(findings) == 0 {
		sb.WriteString("(no relevant findings extracted)\n")
	}
	for _, f := range findings {
		sb.WriteString(f)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\n## Question\n%s", question)

	answer, usage, err := a.root.Complete(ctx, synthesisPrompt, sb.String(), synthesisTokens)
	if err != nil {
		return "", usage, fmt.Errorf("synthesize findings: %w", err)
	}
	return answer, usage, nil
}

func addUsage(m map[string]costs.Usage, model string, u costs.Usage) {
	if u == (costs.Usage{}) {
		return
	}
	prev := m[model]
	prev.Calls += u.Calls
	prev.InputTokens += u.InputTokens
	prev.OutputTokens += u.OutputTokens
	m[model] = prev
}
