package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/api"
	"github.com/fluidzero/fz-cli/internal/config"
)

func newSearchCmd() *cobra.Command {
	var flagNoCitations bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search documents using natural language",
		Long: `Search processed documents with a natural-language query. The search is
scoped to the selected project when one is set, otherwise the whole
organization.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			results, err := client.Search(cmd.Context(), resolvedCfg.ProjectID, args[0], !flagNoCitations)
			if err != nil {
				return err
			}

			return renderSearchResults(results)
		},
	}

	cmd.Flags().BoolVar(&flagNoCitations, "no-citations", false, "omit citation details")

	return cmd
}

// renderSearchResults prints search hits. Table mode gets a readable block
// per result instead of columns, since content is free-form prose.
func renderSearchResults(results []api.SearchResult) error {
	if resolvedCfg.Output == config.OutputJSON {
		return printJSON(results)
	}

	if resolvedCfg.Output == config.OutputCSV {
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			rows = append(rows, []string{r.Content, strconv.Itoa(len(r.Citations))})
		}

		return printCSV(os.Stdout, []string{"CONTENT", "CITATIONS"}, rows)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("--- Result %d ---\n%s\n", i+1, r.Content)

		for _, c := range r.Citations {
			label := c.Document
			if c.Page > 0 {
				label += fmt.Sprintf(", p.%d", c.Page)
			}

			if label == "" {
				label = "unknown source"
			}

			fmt.Printf("  [%s]", label)

			if c.URL != "" {
				fmt.Printf("  %s", c.URL)
			}

			fmt.Println()

			if c.Excerpt != "" {
				fmt.Printf("      %s\n", c.Excerpt)
			}
		}

		fmt.Println()
	}

	return nil
}
