package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var episodesCmd = &cobra.Command{
	Use:   "episodes",
	Short: "List the loaded podcast episodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		fmt.Println()
		for _, ep := range a.corpus.Episodes() {
			fmt.Printf("%s  %s — %s\n", ep.PublishDate, ep.Guest, ep.Title)
		}
		return nil
	},
}
