package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/esg-hub/internal/catalog"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the KPI catalog from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}

		kpis, err := catalog.LoadFile(seedFile)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertKPIs(ctx, kpis)
		if err != nil {
			return eris.Wrap(err, "seed kpis")
		}

		zap.L().Info("catalog seeded",
			zap.String("file", seedFile),
			zap.Int("kpis", len(kpis)),
			zap.Int64("upserted", n),
		)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "kpis.yaml", "path to the KPI catalog YAML")
	rootCmd.AddCommand(seedCmd)
}
