package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/acquire-pipeline/internal/model"
)

var (
	runSource string
	runID     string
	runTitle  string
	runURL    string
	runFile   string
	runText   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate a single listing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if runFile == "" && runText == "" {
			return eris.New("one of --file or --text is required")
		}

		rawText := runText
		if runFile != "" {
			data, err := os.ReadFile(runFile)
			if err != nil {
				return eris.Wrap(err, "read listing file")
			}
			rawText = string(data)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		listing := model.RawListing{
			Source:     runSource,
			ExternalID: runID,
			Title:      runTitle,
			URL:        runURL,
			RawText:    rawText,
			FetchedAt:  time.Now().UTC(),
		}

		result, err := env.Pipeline.Run(ctx, listing)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("evaluation complete",
			zap.String("business_id", result.BusinessID),
			zap.String("tier", string(result.Scoring.Tier)),
			zap.Float64("total", result.Scoring.Total),
			zap.Bool("eligible", result.Eligible),
			zap.Int("questions", len(result.Questions)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runSource, "source", "", "marketplace source name (required)")
	runCmd.Flags().StringVar(&runID, "id", "", "external listing ID (required)")
	runCmd.Flags().StringVar(&runTitle, "title", "", "listing title")
	runCmd.Flags().StringVar(&runURL, "url", "", "listing URL")
	runCmd.Flags().StringVar(&runFile, "file", "", "path to the raw listing text")
	runCmd.Flags().StringVar(&runText, "text", "", "raw listing text inline")
	_ = runCmd.MarkFlagRequired("source")
	_ = runCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(runCmd)
}
