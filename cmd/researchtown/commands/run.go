package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/jeeves-cluster-organization/researchtown/commbus"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/agents"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/config"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/engine"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/grpc"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/observability"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/pipeline"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/store"
)

type runOptions struct {
	task             string
	leader           string
	pipelinePath     string
	participantsPath string
	runName          string
	outcomes         []string
	defaultOutcome   bool
	maxSteps         int
	save             bool
	checkpoint       string
	statusAddr       string
	metricsAddr      string
	otlpEndpoint     string
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dry-run a pipeline with scripted stages",
		Long: `Run drives the engine over a pipeline topology whose stages are scripted:
each stage does no work and exits with the outcomes given by --outcome,
then with --default-outcome. Participants are allocated exactly as in a
real run, so run exercises topology, allocation and checkpointing.

The leader is matched against --task unless --leader names one. Stages
listed under the pipeline's roles allocate members, reviewers and a chair
on entry, sized by allocation.member_num and allocation.reviewer_num;
reviewers and chairs are matched against the task.`,
		Example: `  researchtown run -p pipeline.yaml --participants people.yaml \
      --task "graph neural networks" --outcome review=fail,pass --checkpoint ./ckpt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.task, "task", "t", "", "research task used to pick the leader")
	f.StringVar(&opts.leader, "leader", "", "primary key of the participant to lead the run")
	f.StringVarP(&opts.pipelinePath, "pipeline", "p", "", "pipeline topology file (YAML); defaults to the config's pipeline")
	f.StringVar(&opts.participantsPath, "participants", "", "participants file (YAML or JSON list) loaded into the directory")
	f.StringVar(&opts.runName, "run-name", "", "name scoping the progress store and event log")
	f.StringArrayVar(&opts.outcomes, "outcome", nil, "scripted exit outcomes, e.g. review=fail,pass (repeatable)")
	f.BoolVar(&opts.defaultOutcome, "default-outcome", true, "outcome once a stage's script is exhausted")
	f.IntVar(&opts.maxSteps, "max-steps", 100, "stop the run after this many transitions (0 = no limit)")
	f.BoolVar(&opts.save, "save", false, "save a checkpoint to the configured checkpoint dir")
	f.StringVar(&opts.checkpoint, "checkpoint", "", "save a checkpoint to this dir (implies --save)")
	f.StringVar(&opts.statusAddr, "status-addr", "", "serve the gRPC run service on this address during the run")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	f.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "export traces to this OTLP gRPC endpoint")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func (a *app) run(cmd *cobra.Command, opts runOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := newPrinter(cmd.OutOrStdout())

	spec, err := resolvePipelineSpec(a.cfg, opts.pipelinePath)
	if err != nil {
		return err
	}
	outcomes, err := parseOutcomes(opts.outcomes)
	if err != nil {
		return err
	}

	if opts.otlpEndpoint != "" {
		shutdown, err := observability.InitTracer("researchtown", opts.otlpEndpoint)
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()
	}

	backend, err := store.Open(ctx, store.Options{
		Kind:      a.cfg.Store.Backend,
		RedisURL:  a.cfg.Store.RedisURL,
		Namespace: a.cfg.Store.Namespace,
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	deps, err := engine.DependenciesFor(a.cfg, backend)
	if err != nil {
		return err
	}
	if opts.participantsPath != "" {
		n, err := seedParticipants(ctx, deps.Directory, opts.participantsPath)
		if err != nil {
			return err
		}
		out.Step("loaded %d participants", n)
	}

	alloc := agents.NewAllocator(deps.Directory, a.logger)
	p, stages, err := scriptedPipeline(spec, outcomes, opts.defaultOutcome, alloc, a.cfg.Allocation)
	if err != nil {
		return err
	}
	for _, st := range stages {
		st.Output = pipeline.Inputs{pipeline.AbstractKey: opts.task}
	}
	for _, issue := range p.Check() {
		a.logger.Warn("pipeline_check_issue", "pipeline", p.Name(), "issue", issue.Error())
	}

	bus := newRunBus(a.cfg.Bus, a.logger)
	deps.Bus = bus
	deps.RunName = opts.runName
	deps.LeaderPK = opts.leader
	deps.Logger = a.logger

	e, err := engine.New(ctx, p, deps)
	if err != nil {
		return err
	}
	defer e.Close()

	if opts.maxSteps > 0 {
		unsubscribe := bus.Subscribe("StageTransition", func(_ context.Context, msg commbus.Message) (any, error) {
			if t, ok := msg.(*commbus.StageTransition); ok && t.Step >= opts.maxSteps {
				e.Stop()
			}
			return nil, nil
		})
		defer unsubscribe()
	}

	serveCtx, cancelServe := context.WithCancel(ctx)
	servers := a.startServers(serveCtx, bus, opts, out)

	out.Step("running pipeline '%s' from '%s'", p.Name(), p.Entry())
	runErr := e.Run(ctx, opts.task)

	cancelServe()
	if err := servers.Wait(); err != nil {
		out.Warning("server error: %v", err)
	}

	st := e.Status()
	out.Fields(map[string]string{
		"run id": st.RunID,
		"state":  st.State,
		"stage":  st.Stage,
		"steps":  strconv.Itoa(st.Step),
	})

	if dir := checkpointDir(a, opts); dir != "" {
		if err := e.Save(context.WithoutCancel(ctx), dir, a.cfg.Checkpoint.WithEmbed); err != nil {
			return err
		}
		out.Success("checkpoint saved to %s", dir)
	}

	switch {
	case runErr == nil:
		out.Success("run completed in %d steps", st.Step)
		return nil
	case errors.Is(runErr, engine.ErrStopped):
		out.Warning("run stopped at step %d in stage '%s'", st.Step, st.Stage)
		return nil
	default:
		return fmt.Errorf("run failed: %w", runErr)
	}
}

// newRunBus builds the run's bus. Every message is logged; when
// cfg.CircuitThreshold is positive, queries and commands whose handlers keep
// failing are short-circuited while lifecycle events keep flowing.
func newRunBus(cfg config.BusConfig, logger observability.Logger) *commbus.InMemoryCommBus {
	bus := commbus.NewInMemoryCommBus(cfg.QueryTimeout, logger)
	bus.AddMiddleware(commbus.NewLoggingMiddleware(logger))
	if cfg.CircuitThreshold > 0 {
		bus.AddMiddleware(commbus.NewCircuitBreakerMiddleware(cfg.CircuitThreshold, cfg.CircuitResetTimeout, commbus.RunEventTypes, logger))
	}
	return bus
}

// startServers starts the optional status and metrics servers. Both stop
// when ctx is cancelled.
func (a *app) startServers(ctx context.Context, bus commbus.CommBus, opts runOptions, out *printer) *errgroup.Group {
	g, gctx := errgroup.WithContext(ctx)

	if opts.statusAddr != "" {
		server := grpc.NewGracefulServer(grpc.NewRunServer(bus, a.logger), opts.statusAddr)
		g.Go(func() error {
			if err := server.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		out.Step("run service on %s", opts.statusAddr)
	}

	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: opts.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		out.Step("metrics on %s/metrics", opts.metricsAddr)
	}
	return g
}

func checkpointDir(a *app, opts runOptions) string {
	if opts.checkpoint != "" {
		return opts.checkpoint
	}
	if opts.save {
		return a.cfg.Checkpoint.Dir
	}
	return ""
}

// seedParticipants stores every participant listed in path. YAML is read with
// the participants' lowercase field names, so JSON files work too.
func seedParticipants(ctx context.Context, dir agents.Directory, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read participants: %w", err)
	}
	var participants []agents.Participant
	if err := yaml.Unmarshal(data, &participants); err != nil {
		return 0, fmt.Errorf("failed to parse participants: %w", err)
	}
	for _, p := range participants {
		if p.Role == "" {
			p.Role = agents.RoleUnassigned
		}
		if err := dir.Put(ctx, p); err != nil {
			return 0, fmt.Errorf("failed to store participant %s: %w", p.PK, err)
		}
	}
	return len(participants), nil
}
