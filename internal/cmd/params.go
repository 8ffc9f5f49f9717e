package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/watts/internal/params"
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Inspect parameter files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var (
	paramsSortBy   string
	paramsMetadata bool
)

var paramsShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print a summary of a parameter file",
	Long: `Print a summary of a YAML or JSON parameter file.

Examples:
  watts params show core.yaml
  watts params show core.yaml --sort-by key --metadata`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sortBy, err := params.ParseSortBy(paramsSortBy)
		if err != nil {
			return err
		}
		p, err := params.Load(args[0])
		if err != nil {
			return err
		}
		return p.ShowSummary(cmd.OutOrStdout(), params.SummaryOptions{SortBy: sortBy, ShowMetadata: paramsMetadata})
	},
}

func init() {
	paramsShowCmd.Flags().StringVar(&paramsSortBy, "sort-by", "insertion", "row order: insertion, key or time")
	paramsShowCmd.Flags().BoolVar(&paramsMetadata, "metadata", false, "show unit, description, label, user and time")

	paramsCmd.AddCommand(paramsShowCmd)
	rootCmd.AddCommand(paramsCmd)
}
