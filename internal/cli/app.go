package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/marcus-pm/lenny-cli/internal/corpus"
	"github.com/marcus-pm/lenny-cli/internal/costs"
	"github.com/marcus-pm/lenny-cli/internal/deep"
	"github.com/marcus-pm/lenny-cli/internal/llm"
	"github.com/marcus-pm/lenny-cli/internal/rag"
	"github.com/marcus-pm/lenny-cli/internal/sandbox"
	"github.com/marcus-pm/lenny-cli/internal/search"
	"github.com/marcus-pm/lenny-cli/internal/session"
	"github.com/marcus-pm/lenny-cli/internal/transcripts"
)

// app bundles the wired components behind the chat loop and the one-shot
// commands.
type app struct {
	corpus  *corpus.Index
	search  *search.Index
	fast    *rag.Engine
	deepEng *deep.Engine
	judge   *llm.Model
	history *session.History
	ledger  *costs.Session

	scratchDir string

	// notifyWait is swapped in while a query runs so rate-limit backoff
	// shows up in the progress display.
	notifyWait func(wait time.Duration, attempt, total int)
}

// provisioner guards sandbox installation; one application per process.
var provisioner sandbox.Provisioner

// buildApp loads the corpus and search index and wires both query paths.
func buildApp(needLLM bool) (*app, error) {
	if needLLM {
		if err := ensureAPIKey(&cfg); err != nil {
			return nil, err
		}
	}

	episodesDir, err := locateEpisodes()
	if err != nil {
		return nil, err
	}

	corp, err := corpus.Load(episodesDir)
	if err != nil {
		return nil, fmt.Errorf("load transcripts: %w", err)
	}
	fmt.Printf("  Loaded %d episodes\n", corp.Len())

	cachePath := filepath.Join(filepath.Dir(episodesDir), ".cache", "bm25_index.json")
	idx, err := search.LoadOrBuild(corp, cachePath)
	if err != nil {
		return nil, fmt.Errorf("build search index: %w", err)
	}
	fmt.Printf("  Search index: %d chunks\n", idx.Len())

	a := &app{
		corpus:  corp,
		search:  idx,
		history: session.New(session.DefaultPolicy()),
		ledger:  costs.NewSession(),
	}
	if !needLLM {
		return a, nil
	}

	synthModel, err := llm.NewModel(cfg, cfg.SynthModel)
	if err != nil {
		return nil, fmt.Errorf("init synthesis model: %w", err)
	}
	a.judge, err = llm.NewModel(cfg, cfg.JudgeModel)
	if err != nil {
		return nil, fmt.Errorf("init judge model: %w", err)
	}
	agentModel, err := llm.NewModel(cfg, cfg.AgentModel)
	if err != nil {
		return nil, fmt.Errorf("init agent model: %w", err)
	}

	a.fast = rag.New(idx, synthModel, rag.Options{
		TopK:          cfg.TopK,
		Threshold:     cfg.RelevanceThreshold,
		MaxPerEpisode: cfg.MaxChunksPerEp,
		MaxTotal:      cfg.MaxTotalChunks,
	})

	a.scratchDir = filepath.Join(os.TempDir(), "lenny-"+uuid.NewString())
	if err := os.MkdirAll(a.scratchDir, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	policy, err := sandbox.NewPolicy(episodesDir, a.scratchDir)
	if err != nil {
		return nil, fmt.Errorf("build sandbox policy: %w", err)
	}

	// The agent is constructed inside the install callback so transcript
	// access cannot be wired up twice with different policies.
	pool := deep.NewSubcallPool(synthModel)
	var agent deep.Agent
	provisioner.Apply(policy, func(installed *sandbox.Policy) {
		agent = deep.NewModelAgent(agentModel, pool, installed)
	})
	if agent == nil {
		return nil, fmt.Errorf("sandbox policy already installed for this process")
	}
	a.deepEng = deep.New(corp, agent, func(wait time.Duration, attempt, total int) {
		if a.notifyWait != nil {
			a.notifyWait(wait, attempt, total)
		}
	})
	return a, nil
}

// close removes per-session scratch state.
func (a *app) close() {
	if a.scratchDir != "" {
		os.RemoveAll(a.scratchDir)
	}
}

// locateEpisodes finds the corpus directory, offering a download on
// first run when the terminal is interactive.
func locateEpisodes() (string, error) {
	if cfg.TranscriptDir != "" {
		if info, err := os.Stat(cfg.TranscriptDir); err == nil && info.IsDir() {
			return cfg.TranscriptDir, nil
		}
		return "", fmt.Errorf("LENNY_TRANSCRIPTS points to a missing directory: %s", cfg.TranscriptDir)
	}
	if dir := transcripts.FindEpisodesDir(); dir != "" {
		return dir, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", transcripts.ErrNotFound
	}

	dest := transcripts.DataDir()
	fmt.Println()
	fmt.Println("Transcript data not found.")
	fmt.Println()
	fmt.Println("  Lenny needs podcast transcripts to work.")
	fmt.Println("  I can download them for you (~50 MB).")
	fmt.Println()
	fmt.Printf("  Download transcripts to %s? [Y/n] ", dest)

	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "" && answer != "y" && answer != "yes" {
		return "", transcripts.ErrNotFound
	}

	fmt.Println("  Downloading transcripts...")
	if err := transcripts.Download(dest); err != nil {
		return "", fmt.Errorf("download transcripts: %w\n\nTo set up manually:\n  git clone https://github.com/ChatPRD/lennys-podcast-transcripts.git %s", err, dest)
	}
	fmt.Printf("  Transcripts downloaded to %s\n", dest)
	return filepath.Join(dest, "episodes"), nil
}
