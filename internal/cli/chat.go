package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	lipgloss "charm.land/lipgloss/v2"

	"github.com/marcus-pm/lenny-cli/internal/costs"
	"github.com/marcus-pm/lenny-cli/internal/persist"
	"github.com/marcus-pm/lenny-cli/internal/router"
	"github.com/marcus-pm/lenny-cli/internal/session"
)

const helpText = `
  /help      Show this help message
  /episodes  List loaded episodes (count + sample)
  /cost      Show session token usage and cost
  /mode      Show or set routing mode (auto, fast, deep)
  /save      Save the last answer as a markdown file
  /verbose   Toggle verbose mode
  /quit      Exit

  /mode auto   Automatic routing based on query (default)
  /mode fast   Force fast retrieval path for all queries
  /mode deep   Force deep analysis path for all queries
`

// forcedMode is "" for auto routing.
type forcedMode string

// lastResponse remembers the most recent successful answer for /save.
type lastResponse struct {
	query  string
	answer string
	mode   session.Mode
	cost   costs.QueryCost
}

func runChat(ctx context.Context) error {
	fmt.Println()
	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	theme := defaultTheme
	hint := theme.hintStyle().Render
	fmt.Println()
	fmt.Printf("Ask me anything about %d episodes of Lenny's Podcast.\n", a.corpus.Len())
	fmt.Println(hint("Commands: /help /episodes /cost /mode /save /verbose /quit"))
	fmt.Println()

	var (
		forced  forcedMode
		chatty  bool
		last    *lastResponse
		scanner = bufio.NewScanner(os.Stdin)
		prompt  = lipgloss.NewStyle().Foreground(theme.Success).Bold(true).Render("You:")
	)

	for {
		fmt.Printf("%s ", prompt)
		if !scanner.Scan() {
			fmt.Println("\n" + hint("Goodbye!"))
			return nil
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}

		if strings.HasPrefix(query, "/") {
			parts := strings.Fields(strings.ToLower(query))
			switch parts[0] {
			case "/quit", "/exit", "/q":
				fmt.Println(hint("Goodbye!"))
				return nil
			case "/help":
				fmt.Print(helpText, "\n")
			case "/episodes":
				a.printEpisodes()
			case "/cost":
				a.printCost()
			case "/mode":
				forced = handleModeCommand(parts, forced)
			case "/save":
				saveLast(last)
			case "/verbose":
				chatty = !chatty
				state := "off"
				if chatty {
					state = "on"
				}
				fmt.Printf("  Verbose mode: %s\n", state)
			default:
				fmt.Printf("  Unknown command: %s. Type /help for options.\n", parts[0])
			}
			continue
		}

		decision := a.route(ctx, query, forced)
		fmt.Println()
		fmt.Println(hint(fmt.Sprintf("  → %s (%s)", decision.Mode, decision.Reason)))

		answer, cost, err := a.execute(ctx, query, decision.Mode)
		if errors.Is(err, context.Canceled) {
			fmt.Println(hint("Query interrupted."))
			continue
		}
		if err != nil {
			fmt.Println(theme.errorStyle().Render("Error: ") + err.Error())
			continue
		}

		a.ledger.AddQuery(cost)
		a.history.Append(query, answer, decision.Mode)
		last = &lastResponse{query: query, answer: answer, mode: decision.Mode, cost: cost}

		printAnswer(answer, decision.Mode, theme)
		fmt.Println()
		fmt.Println(hint(costs.FormatQueryCost(cost)))
		fmt.Println()
	}
}

// route applies the forced mode or asks the classifier.
func (a *app) route(ctx context.Context, query string, forced forcedMode) router.Decision {
	switch forced {
	case forcedMode(session.ModeFast):
		return router.Decision{Mode: session.ModeFast, Reason: "forced"}
	case forcedMode(session.ModeDeep):
		return router.Decision{Mode: session.ModeDeep, Reason: "forced"}
	}
	return router.Classify(ctx, query, a.history.Recent(8), a.judge)
}

// execute runs the query down the chosen path under the progress
// display. Interruption surfaces as context.Canceled; neither history
// nor the ledger is touched here.
func (a *app) execute(ctx context.Context, query string, mode session.Mode) (string, costs.QueryCost, error) {
	if mode == session.ModeFast {
		return runWithProgress(ctx, "Searching transcripts...",
			func(qctx context.Context) (string, costs.QueryCost, error) {
				return a.fast.Query(qctx, query, a.history)
			}, nil)
	}

	status := fmt.Sprintf("Searching %d episodes...", a.corpus.Len())
	defer func() { a.notifyWait = nil }()
	return runWithProgress(ctx, status,
		func(qctx context.Context) (string, costs.QueryCost, error) {
			return a.deepEng.Query(qctx, query, a.history)
		},
		func(update func(string)) {
			a.notifyWait = func(wait time.Duration, attempt, total int) {
				update(fmt.Sprintf("Rate limited, waiting %s (retry %d/%d)...",
					wait.Round(time.Second), attempt, total))
			}
		})
}

func handleModeCommand(parts []string, current forcedMode) forcedMode {
	if len(parts) == 1 {
		name := string(current)
		if name == "" {
			name = "auto"
		}
		fmt.Printf("  Routing mode: %s\n", name)
		return current
	}
	switch parts[1] {
	case "auto":
		fmt.Println("  Routing mode: auto (queries routed automatically)")
		return ""
	case "fast", "rag":
		fmt.Println("  Routing mode: fast (all queries use fast retrieval)")
		return forcedMode(session.ModeFast)
	case "deep", "research", "rlm":
		fmt.Println("  Routing mode: deep (all queries use deep analysis)")
		return forcedMode(session.ModeDeep)
	default:
		fmt.Printf("  Unknown mode: %s. Options: auto, fast, deep\n", parts[1])
		return current
	}
}

func saveLast(last *lastResponse) {
	if last == nil {
		fmt.Println("  Nothing to save yet.")
		return
	}
	path, err := persist.SaveMarkdown(
		last.query,
		last.answer,
		string(last.mode),
		costs.FormatQueryCost(last.cost),
		saveDir,
		time.Now(),
	)
	if err != nil {
		fmt.Printf("  Save failed: %v\n", err)
		return
	}
	fmt.Printf("  Saved to %s\n", path)
}

func (a *app) printEpisodes() {
	hint := defaultTheme.hintStyle().Render
	fmt.Printf("\n  %d episodes loaded\n\n", a.corpus.Len())
	episodes := a.corpus.Episodes()
	for i, ep := range episodes {
		if i >= 10 {
			fmt.Println(hint(fmt.Sprintf("  ... and %d more", len(episodes)-10)))
			break
		}
		fmt.Printf("  %s  %s — %s\n", hint(ep.PublishDate), ep.Guest, ep.Title)
	}
	fmt.Println()
}

func (a *app) printCost() {
	fmt.Println()
	sum := a.ledger.Summary()
	if sum.Queries == 0 {
		fmt.Println("  No queries yet.")
	} else {
		fmt.Println(defaultTheme.hintStyle().Render(costs.FormatSessionCost(sum)))
	}
	fmt.Println()
}

func printAnswer(answer string, mode session.Mode, theme Theme) {
	border := theme.FastBorder
	if mode == session.ModeDeep {
		border = theme.DeepBorder
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(1, 2).
		Width(96)

	title := lipgloss.NewStyle().Bold(true).Render("Lenny") +
		theme.hintStyle().Render(fmt.Sprintf(" (%s)", mode))

	fmt.Println()
	fmt.Println(title)
	fmt.Println(panel.Render(persist.FormatTerminalCitations(answer)))
}
