package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/idantify-ai/localsource-scraper/internal/taxonomy"
)

func newLevelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "levels",
		Short: "Show the taxonomy levels resolved for every image",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(taxonomy.DefaultLevels))
			for _, l := range taxonomy.DefaultLevels {
				value := l.Name
				if l.Field != "" {
					value = "<" + l.Field + ">"
				}
				parent := l.ParentKey
				if parent == "" {
					parent = "-"
				}
				rows = append(rows, []string{string(l.Rank), l.Endpoint, parent, value})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Rank", "Endpoint", "Parent key", "Name"}, rows, nil))
			return nil
		},
	}
}
