package commands

import (
	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/agents"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/store"
)

func newResetRolesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-roles",
		Short: "Mark every participant in the configured store unassigned",
		Long: `Reset-roles clears role assignments left in a persistent directory, for
example after an interrupted run against the Redis backend. Engines do the
same on construction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend, err := store.Open(ctx, store.Options{
				Kind:      a.cfg.Store.Backend,
				RedisURL:  a.cfg.Store.RedisURL,
				Namespace: a.cfg.Store.Namespace,
			})
			if err != nil {
				return err
			}
			defer backend.Close()

			matcher, err := agents.NewMatcher(a.cfg.Matching.Strategy, a.cfg.Matching.EmbeddingDim)
			if err != nil {
				return err
			}
			dir := agents.NewDirectory(backend, matcher)
			if err := dir.ResetRoleAvailability(ctx); err != nil {
				return err
			}
			participants, err := dir.Get(ctx, agents.Condition{})
			if err != nil {
				return err
			}

			a.logger.Info("roles_reset", "backend", a.cfg.Store.Backend, "participants", len(participants))
			newPrinter(cmd.OutOrStdout()).Success("reset %d participants in %s store", len(participants), a.cfg.Store.Backend)
			return nil
		},
	}
}
