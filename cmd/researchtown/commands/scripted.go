package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/agents"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/config"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/pipeline"
)

// scriptedPipeline registers a ScriptedStage for every stage in spec and
// forwards participants along every edge. Edges into a stage with roles in
// spec allocate those roles through alloc, sized by sizes.
func scriptedPipeline(spec *config.PipelineSpec, outcomes map[string][]bool, defaultOutcome bool, alloc *agents.Allocator, sizes config.AllocationConfig) (*pipeline.Pipeline, map[string]*pipeline.ScriptedStage, error) {
	b := pipeline.NewBuilder(spec.Name).ApplySpec(spec)
	stages := make(map[string]*pipeline.ScriptedStage, len(spec.Stages))
	for _, name := range spec.Stages {
		st := pipeline.NewScriptedStage(outcomes[name]...)
		st.Default = defaultOutcome
		stages[name] = st
		b.AddStage(name, st)
	}
	for name := range outcomes {
		if _, ok := stages[name]; !ok {
			return nil, nil, fmt.Errorf("outcome given for undeclared stage '%s'", name)
		}
	}
	for _, e := range spec.Edges() {
		fn := pipeline.ForwardParticipants
		if roles := spec.Roles[e.To]; len(roles) > 0 {
			plan, err := allocationPlan(roles, sizes)
			if err != nil {
				return nil, nil, err
			}
			fn = pipeline.Allocate(alloc, plan...)
		}
		b.AddTransitionFunc(e.From, e.To, fn)
	}
	p, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	return p, stages, nil
}

// allocationPlan sizes each role: members and reviewers from sizes, one chair.
func allocationPlan(roles []string, sizes config.AllocationConfig) ([]pipeline.Allocation, error) {
	plan := make([]pipeline.Allocation, 0, len(roles))
	for _, name := range roles {
		role, err := agents.RoleFromString(name)
		if err != nil {
			return nil, err
		}
		num := 1
		switch role {
		case agents.RoleMember:
			num = sizes.MemberNum
		case agents.RoleReviewer:
			num = sizes.ReviewerNum
		}
		plan = append(plan, pipeline.Allocation{Role: role, Num: num})
	}
	return plan, nil
}

// parseOutcomes parses "stage=true,false,..." entries.
func parseOutcomes(entries []string) (map[string][]bool, error) {
	out := make(map[string][]bool, len(entries))
	for _, entry := range entries {
		name, list, ok := strings.Cut(entry, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid outcome %q: want stage=true,false", entry)
		}
		for _, field := range strings.Split(list, ",") {
			field = strings.TrimSpace(field)
			switch field {
			case "pass":
				field = "true"
			case "fail":
				field = "false"
			}
			v, err := strconv.ParseBool(field)
			if err != nil {
				return nil, fmt.Errorf("invalid outcome %q for stage '%s'", field, name)
			}
			out[name] = append(out[name], v)
		}
	}
	return out, nil
}
