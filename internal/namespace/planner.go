package namespace

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"claimspace/go-backend/internal/platform/metrics"
)

// Step is one idempotent mutation against the registry, paired with a
// human-readable description for review UIs.
type Step struct {
	Description string
	Run         func(ctx context.Context) error
}

// Plan is an ordered step sequence. It carries no persisted state: callers
// either inspect it (dry mode) or hand it to Execute.
type Plan struct {
	Operation string
	Path      Path
	Steps     []Step
}

func (p Plan) Descriptions() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Description
	}
	return out
}

// Planner builds and executes namespace mutation workflows.
type Planner struct {
	registry   Registry
	validator  *Validator
	enumerator *Enumerator
	log        *slog.Logger
}

func NewPlanner(registry Registry, validator *Validator, enumerator *Enumerator, log *slog.Logger) *Planner {
	if log == nil {
		log = slog.Default()
	}
	return &Planner{registry: registry, validator: validator, enumerator: enumerator, log: log}
}

// PlanCreate assembles the creation steps for a node in strict top-down,
// left-to-right order: the node itself, its display name, its definition,
// then the roles anchor (org and app) and the apps anchor (org only).
func (pl *Planner) PlanCreate(path Path, kind Kind, def Definition) (Plan, error) {
	if path.Parent() == "" {
		return Plan{}, fmt.Errorf("%w: %s has no parent namespace", ErrInvalidPath, path)
	}
	switch kind {
	case KindOrganization, KindApplication, KindRole:
	default:
		return Plan{}, ErrUnsupportedKind
	}

	steps := []Step{
		pl.createStep(path, kind.String()+" node"),
		pl.setNameStep(path),
		{
			Description: fmt.Sprintf("set definition of %s", path),
			Run: func(ctx context.Context) error {
				return pl.registry.SetDefinition(ctx, path, def)
			},
		},
	}
	if kind != KindRole {
		roles := path.RolesAnchor()
		steps = append(steps, pl.createStep(roles, "roles anchor"), pl.setNameStep(roles))
	}
	if kind == KindOrganization {
		apps := path.AppsAnchor()
		steps = append(steps, pl.createStep(apps, "apps anchor"), pl.setNameStep(apps))
	}
	return Plan{Operation: "create", Path: path, Steps: steps}, nil
}

// PlanDelete builds the teardown plan for a node. Preconditions are hard
// stops checked before any step exists: the actor must pass ownership
// validation, and org/app nodes must have no live dependent applications.
// Steps are assembled in creation order and then reversed, so children and
// anchors are torn down first and the top-level node last; executing the
// top-level delete first would leave the subtree orphaned and unreachable.
func (pl *Planner) PlanDelete(ctx context.Context, path Path, kind Kind, owner common.Address) (Plan, error) {
	targets, err := pl.mutationTargets(ctx, path, kind, owner)
	if err != nil {
		return Plan{}, err
	}
	steps := make([]Step, 0, len(targets))
	for _, target := range targets {
		target := target
		steps = append(steps, Step{
			Description: fmt.Sprintf("delete %s", target),
			Run: func(ctx context.Context) error {
				return pl.registry.Delete(ctx, target)
			},
		})
	}
	reverseSteps(steps)
	return Plan{Operation: "delete", Path: path, Steps: steps}, nil
}

// PlanTransfer mirrors PlanDelete with ownership transfers instead of
// deletions, in the same reversed order so the actor still holds the parent
// authority chain while each child is re-owned.
func (pl *Planner) PlanTransfer(ctx context.Context, path Path, kind Kind, owner, newOwner common.Address) (Plan, error) {
	targets, err := pl.mutationTargets(ctx, path, kind, owner)
	if err != nil {
		return Plan{}, err
	}
	steps := make([]Step, 0, len(targets))
	for _, target := range targets {
		target := target
		steps = append(steps, Step{
			Description: fmt.Sprintf("transfer %s to %s", target, newOwner.Hex()),
			Run: func(ctx context.Context) error {
				return pl.registry.TransferOwner(ctx, target, newOwner)
			},
		})
	}
	reverseSteps(steps)
	return Plan{Operation: "transfer", Path: path, Steps: steps}, nil
}

// mutationTargets validates preconditions and lists the affected paths in
// creation order: the node, its anchors, then the role leaves discovered
// from the current roles subtree.
func (pl *Planner) mutationTargets(ctx context.Context, path Path, kind Kind, owner common.Address) ([]Path, error) {
	if err := pl.validator.Validate(ctx, path, kind, owner); err != nil {
		return nil, err
	}
	if kind == KindRole {
		return []Path{path}, nil
	}

	apps, err := pl.enumerator.ChildApplications(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(apps) > 0 {
		return nil, &DependentChildrenError{Path: path, Children: apps}
	}

	targets := []Path{path, path.RolesAnchor()}
	if kind == KindOrganization {
		targets = append(targets, path.AppsAnchor())
	}
	roleLabels, err := pl.enumerator.Children(ctx, path.RolesAnchor())
	if err != nil {
		return nil, err
	}
	for _, label := range roleLabels {
		targets = append(targets, path.RolesAnchor().Child(label))
	}
	return targets, nil
}

// Execute runs the plan strictly sequentially. The first failure aborts the
// remaining steps; steps already applied stay applied. The caller receives
// the failed step's index and description and decides whether to resume,
// compensate, or abandon.
func (pl *Planner) Execute(ctx context.Context, plan Plan) error {
	for i, step := range plan.Steps {
		if err := step.Run(ctx); err != nil {
			metrics.PlanStepsFailed.Inc()
			pl.log.Warn("plan step failed",
				"operation", plan.Operation,
				"path", plan.Path.String(),
				"step", i,
				"description", step.Description)
			return &StepError{Index: i, Description: step.Description, Err: err}
		}
		metrics.PlanStepsExecuted.Inc()
	}
	pl.log.Info("plan executed",
		"operation", plan.Operation,
		"path", plan.Path.String(),
		"steps", len(plan.Steps))
	return nil
}

func (pl *Planner) createStep(path Path, what string) Step {
	return Step{
		Description: fmt.Sprintf("create %s %s", what, path),
		Run: func(ctx context.Context) error {
			return pl.registry.Create(ctx, path.Parent(), path.Label())
		},
	}
}

func (pl *Planner) setNameStep(path Path) Step {
	return Step{
		Description: fmt.Sprintf("register display name of %s", path),
		Run: func(ctx context.Context) error {
			return pl.registry.SetName(ctx, path)
		},
	}
}

func reverseSteps(steps []Step) {
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
}
