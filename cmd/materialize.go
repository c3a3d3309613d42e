package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/esg-hub/internal/ingest"
)

var materializeForce bool

var materializeCmd = &cobra.Command{
	Use:   "materialize <raw-record-id>...",
	Short: "Map stored raw records to normalized observations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initHub(ctx, "materialize")
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Materializer.MaterializeBatch(ctx, args, ingest.MaterializeOptions{Force: materializeForce})
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if res.Failed > 0 {
			return eris.Errorf("materialize: %d of %d records failed", res.Failed, len(args))
		}
		return nil
	},
}

func init() {
	materializeCmd.Flags().BoolVar(&materializeForce, "force", false, "re-materialize records that were already processed")
	rootCmd.AddCommand(materializeCmd)
}
