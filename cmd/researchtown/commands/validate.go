package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	var (
		pipelinePath string
		strict       bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a pipeline topology",
		Long: `Validate loads a pipeline topology and reports defects: stages without a
pass or fail edge, and entry stages with no path to end. Defects are
warnings unless --strict is set; the engine only fails when it takes a
missing edge.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newPrinter(cmd.OutOrStdout())

			spec, err := resolvePipelineSpec(a.cfg, pipelinePath)
			if err != nil {
				return err
			}
			p, _, err := scriptedPipeline(spec, nil, true, nil, a.cfg.Allocation)
			if err != nil {
				return err
			}

			issues := p.Check()
			for _, issue := range issues {
				out.Warning("%v", issue)
			}
			if len(issues) > 0 && strict {
				return fmt.Errorf("pipeline '%s' has %d issue(s)", p.Name(), len(issues))
			}

			out.Success("pipeline '%s': %d stages, %d edges, entry '%s'", p.Name(), len(p.Stages()), len(p.Edges()), p.Entry())
			return nil
		},
	}
	cmd.Flags().StringVarP(&pipelinePath, "pipeline", "p", "", "pipeline topology file (YAML); defaults to the config's pipeline")
	cmd.Flags().BoolVar(&strict, "strict", false, "treat topology warnings as errors")
	return cmd
}
