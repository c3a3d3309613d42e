package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/esg-hub/internal/mapping"
)

var (
	classifyColumn  string
	classifySamples []string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Suggest the KPI a column denotes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initHub(ctx, "classify")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Mapping.Suggest(ctx, []mapping.ColumnSample{{Column: classifyColumn, Samples: classifySamples}})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res[0])
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyColumn, "column", "", "column name (required)")
	classifyCmd.Flags().StringSliceVar(&classifySamples, "sample", nil, "sample cell value (repeatable)")
	_ = classifyCmd.MarkFlagRequired("column")
	rootCmd.AddCommand(classifyCmd)
}
