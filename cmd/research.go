package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/acquire-pipeline/internal/config"
	"github.com/sells-group/acquire-pipeline/internal/jobs"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

var (
	researchSector      string
	researchDescription string
)

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Run deep sector research synchronously",
	Long:  "Fans out the five research agents for a sector, waits for the join, synthesizes a verdict, and prints the outcome. For asynchronous submission use the serve mode's job API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Same tracker the serve mode uses, run synchronously on one worker.
		tracker := jobs.New(env.Orchestrator, config.JobsConfig{Workers: 1})
		tracker.Start(ctx)

		job, err := tracker.Submit(researchSector, researchDescription)
		if err != nil {
			return eris.Wrap(err, "research submit")
		}
		job, err = tracker.Await(ctx, job.ID)
		if err != nil {
			return eris.Wrap(err, "research wait")
		}
		if job.State != model.JobCompleted {
			return eris.Errorf("research run %s: %s", job.State, job.Error)
		}
		outcome := job.Result

		zap.L().Info("research complete",
			zap.String("sector_key", outcome.SectorKey),
			zap.Int("succeeded", len(outcome.Results)),
			zap.Int("failed", len(outcome.Failures)),
			zap.String("verdict", string(outcome.Synthesis.Verdict)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	},
}

func init() {
	researchCmd.Flags().StringVar(&researchSector, "sector", "", "sector name (required)")
	researchCmd.Flags().StringVar(&researchDescription, "description", "", "sector description given to each agent (required)")
	_ = researchCmd.MarkFlagRequired("sector")
	_ = researchCmd.MarkFlagRequired("description")
	rootCmd.AddCommand(researchCmd)
}
