package workflow

import (
	"context"

	"github.com/IGNF/gpf-sdk-go/pkg/action"
	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
)

// Runner executes a parsed Document's steps in dependency order, one
// action at a time within each step (spec.md §4.6: "not concurrent: all
// actions run single-threaded in dependency order").
type Runner struct {
	Env       *action.Environment
	Datastore string
}

// NewRunner constructs a Runner bound to env and an optional default
// datastore (empty defers to env.Datastore for every action).
func NewRunner(env *action.Environment, datastore string) *Runner {
	return &Runner{Env: env, Datastore: datastore}
}

// Run walks doc's steps in topological order and, within each step, its
// actions in declared order, constructing and running each one via
// action.New. A per-action behavior override in the document takes
// precedence over the process-wide processing_execution.behavior_if_exists
// default.
func (r *Runner) Run(ctx context.Context, doc *Document) error {
	fallback, err := action.ParseBehaviorPolicy(r.Env.ProcessingExecutionCfg.BehaviorIfExists)
	if err != nil {
		return gpferrors.NewWorkflowError("", "", "comportement par défaut de configuration invalide", err)
	}

	for _, step := range doc.Steps() {
		for _, def := range step.Actions {
			behavior, err := behaviorFor(def, fallback)
			if err != nil {
				return gpferrors.NewWorkflowError(step.Name, def.Type, "politique de comportement invalide", err)
			}

			act, err := action.New(r.Env, action.Definition{
				Type:           def.Type,
				BodyParameters: def.BodyParameters,
				URLParameters:  def.URLParameters,
				Tags:           def.Tags,
				Comments:       def.Comments,
			}, behavior)
			if err != nil {
				return gpferrors.NewWorkflowError(step.Name, def.Type, "action inconnue", err)
			}

			if err := act.Run(ctx, r.Datastore); err != nil {
				return gpferrors.NewWorkflowError(step.Name, def.Type, "l'action a échoué", err)
			}
		}
	}
	return nil
}
