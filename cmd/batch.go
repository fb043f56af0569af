package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/acquire-pipeline/internal/intake"
)

var (
	batchSource string
	batchInput  string
	batchLimit  int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate listings from a marketplace export",
	Long:  "Fetches a CSV or XLSX export from a local path, HTTP(S) URL, or FTP drop and evaluates every listing concurrently.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		source := intake.New(cfg.Intake, batchSource)
		listings, err := source.Fetch(ctx, batchInput)
		if err != nil {
			return eris.Wrap(err, "fetch listings")
		}
		if len(listings) == 0 {
			zap.L().Info("no listings in export")
			return nil
		}
		if batchLimit > 0 && len(listings) > batchLimit {
			listings = listings[:batchLimit]
		}

		summary, err := env.Pipeline.RunBatch(ctx, listings)
		if err != nil {
			return eris.Wrap(err, "batch run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchSource, "source", "", "marketplace source name (required)")
	batchCmd.Flags().StringVar(&batchInput, "input", "", "export locator: path, http(s) URL, or ftp URL (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max listings to evaluate (0 = all)")
	_ = batchCmd.MarkFlagRequired("source")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}
