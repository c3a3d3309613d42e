package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/esg-hub/internal/ingest"
	"github.com/sells-group/esg-hub/internal/model"
)

var (
	ingestFile   string
	ingestSource string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Upload a JSON array of rows and materialize it",
	Long:  "Reads a JSON file holding an array of row objects, stores it as a raw record, maps its columns to KPIs and writes the normalized observations.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		rows, err := loadRows(ingestFile)
		if err != nil {
			return err
		}

		env, err := initHub(ctx, "materialize")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Ingest.Ingest(ctx, ingest.Request{
			DataSourceID: ingestSource,
			Filename:     filepath.Base(ingestFile),
			FileURI:      ingestFile,
			Rows:         rows,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

// loadRows reads a JSON array of objects.
func loadRows(path string) ([]model.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read rows %s", path)
	}
	var rows []model.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "parse rows %s", path)
	}
	return rows, nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "path to a JSON file with an array of rows (required)")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "data source id (required)")
	_ = ingestCmd.MarkFlagRequired("file")
	_ = ingestCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(ingestCmd)
}
