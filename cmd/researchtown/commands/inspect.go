package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/agents"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/engine"
)

func newInspectCmd(a *app) *cobra.Command {
	var showEvents bool
	cmd := &cobra.Command{
		Use:   "inspect [checkpoint-dir]",
		Short: "Summarize a saved checkpoint",
		Long: `Inspect reads a checkpoint written by run --checkpoint and prints the run
context, role assignments and artifact counts. The dir defaults to the
configured checkpoint dir.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Checkpoint.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			cp, err := engine.ReadCheckpoint(dir)
			if err != nil {
				return err
			}

			out := newPrinter(cmd.OutOrStdout())
			outcome := "-"
			if cp.Run.LastOutcome != nil {
				outcome = strconv.FormatBool(*cp.Run.LastOutcome)
			}
			out.Printf("Run\n")
			out.Fields(map[string]string{
				"run id":       cp.Run.RunID,
				"run name":     cp.Run.RunName,
				"pipeline":     cp.Run.Pipeline,
				"state":        cp.Run.State,
				"stage":        cp.Run.Stage,
				"step":         strconv.Itoa(cp.Run.Step),
				"base llm":     cp.Run.BaseLLM,
				"last outcome": outcome,
			})

			roles := map[string]string{}
			counts := map[agents.Role]int{}
			for _, p := range cp.Participants {
				role := p.Role
				if role == "" {
					role = agents.RoleUnassigned
				}
				counts[role]++
			}
			for role, n := range counts {
				roles[role.String()] = strconv.Itoa(n)
			}
			out.Printf("Participants (%d)\n", len(cp.Participants))
			out.Fields(roles)

			out.Printf("Artifacts\n")
			out.Fields(map[string]string{
				"papers":       strconv.Itoa(len(cp.Papers)),
				"insights":     strconv.Itoa(len(cp.Progress.Insights)),
				"ideas":        strconv.Itoa(len(cp.Progress.Ideas)),
				"proposals":    strconv.Itoa(len(cp.Progress.Proposals)),
				"reviews":      strconv.Itoa(len(cp.Progress.Reviews)),
				"rebuttals":    strconv.Itoa(len(cp.Progress.Rebuttals)),
				"meta reviews": strconv.Itoa(len(cp.Progress.MetaReviews)),
			})

			out.Printf("Events (%d)\n", len(cp.Events))
			if showEvents {
				for _, ev := range cp.Events {
					line := fmt.Sprintf("  %3d  step %-3d %-16s %s", ev.Seq, ev.Step, ev.Kind, ev.Stage)
					if ev.Target != "" {
						line += " -> " + ev.Target
					}
					if ev.Message != "" {
						line += "  " + ev.Message
					}
					out.Printf("%s\n", line)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showEvents, "events", false, "list every event")
	return cmd
}
