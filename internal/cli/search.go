package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search transcript chunks without calling a model",
	Long: `Search the BM25 index directly and print the top matching chunks.

Useful for checking what the fast path would retrieve for a query.

Examples:
  lenny search "product market fit"
  lenny search churn -n 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		results := a.search.SearchWithScores(args[0], searchLimit)
		if len(results) == 0 {
			fmt.Println("No matches.")
			return nil
		}

		hint := defaultTheme.hintStyle().Render
		fmt.Println()
		for i, r := range results {
			fmt.Printf("%d. %s — %s %s\n", i+1, r.Chunk.Guest, r.Chunk.Title,
				hint(fmt.Sprintf("(score %.2f)", r.Score)))
			text := r.Chunk.Text
			if len(text) > 240 {
				text = text[:240] + "..."
			}
			fmt.Printf("   %s\n\n", text)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "max results")
}
