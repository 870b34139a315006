package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/artifacts"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/engine"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/evaluator"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/llm"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/store"
)

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		proposals []string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate [checkpoint-dir]",
		Short: "Score a checkpoint's proposals with the evaluator model",
		Long: `Evaluate loads the progress records of a saved checkpoint and scores each
proposal together with its insights, idea, reviews, rebuttals and
meta-review. Requests go to the OpenAI-compatible endpoint in llm.endpoint,
authenticated with the key in the environment variable named by
llm.api_key_env. Every proposal is scored unless --proposal is given.`,
		Example: `  RESEARCHTOWN_LLM_ENDPOINT=http://localhost:1234/v1 \
      researchtown evaluate ./ckpt --proposal p1 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := a.cfg.Checkpoint.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			cp, err := engine.ReadCheckpoint(dir)
			if err != nil {
				return err
			}

			progress := artifacts.NewProgressStore(store.NewMemoryBackend())
			progress.SetRunName(cp.Run.RunName)
			if err := progress.Restore(ctx, &cp.Progress); err != nil {
				return fmt.Errorf("failed to load progress: %w", err)
			}

			pks := proposals
			if len(pks) == 0 {
				for _, p := range cp.Progress.Proposals {
					pks = append(pks, p.PK)
				}
			}
			if len(pks) == 0 {
				return fmt.Errorf("checkpoint %s has no proposals to evaluate", dir)
			}

			client, err := llm.NewClient(a.cfg.LLM, a.logger)
			if err != nil {
				return err
			}
			ev, err := evaluator.New(client, a.cfg, a.logger)
			if err != nil {
				return err
			}

			results := make(map[string]*evaluator.PipelineResult, len(pks))
			for _, pk := range pks {
				res, err := ev.EvaluateProposalRecords(ctx, progress, pk)
				if err != nil {
					return fmt.Errorf("failed to evaluate proposal %s: %w", pk, err)
				}
				results[pk] = res
			}

			if asJSON {
				data, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}

			out := newPrinter(cmd.OutOrStdout())
			for _, pk := range pks {
				res := results[pk]
				out.Printf("Proposal %s (model %s)\n", pk, ev.Model())
				fields := map[string]string{
					"idea":        strconv.Itoa(res.Idea.OverallScore),
					"proposal":    strconv.Itoa(res.Proposal.OverallScore),
					"meta review": strconv.Itoa(res.MetaReview.OverallScore),
					"insights":    scoreList(res.Insights),
					"reviews":     scoreList(res.Reviews),
					"rebuttals":   scoreList(res.Rebuttals),
				}
				out.Fields(fields)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&proposals, "proposal", nil, "proposal primary key to score (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full results as JSON")
	return cmd
}

// scoreList renders overall scores as "86, 72", or "-" when empty.
func scoreList(outs []evaluator.Output) string {
	if len(outs) == 0 {
		return "-"
	}
	s := ""
	for i, o := range outs {
		if i > 0 {
			s += ", "
		}
		s += strconv.Itoa(o.OverallScore)
	}
	return s
}
