// Package action implements the action runtime (C5): the staged pipelines
// that translate a workflow step's action definitions into entity mutations
// against the platform, plus the reconciliation state machine and
// monitoring loop that give processing-execution its behavioral depth.
//
// The action-kind dispatch mirrors pkg/arc.IngestionService's
// map[string]SourceConnector registry: every concrete action kind embeds a
// shared Base the same way arc's connectors embed *arc.BaseConnector.
package action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IGNF/gpf-sdk-go/pkg/config"
	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
	"github.com/IGNF/gpf-sdk-go/pkg/request"
)

// BehaviorPolicy governs how an action reacts to a pre-existing matching
// remote entity (spec.md §3).
type BehaviorPolicy string

const (
	BehaviorStop     BehaviorPolicy = "STOP"
	BehaviorDelete   BehaviorPolicy = "DELETE"
	BehaviorContinue BehaviorPolicy = "CONTINUE"
	BehaviorResume   BehaviorPolicy = "RESUME"
)

// ParseBehaviorPolicy validates a raw string against the four known
// policies.
func ParseBehaviorPolicy(s string) (BehaviorPolicy, error) {
	switch BehaviorPolicy(s) {
	case BehaviorStop, BehaviorDelete, BehaviorContinue, BehaviorResume:
		return BehaviorPolicy(s), nil
	default:
		return "", fmt.Errorf("comportement inconnu %q, attendu parmi STOP, DELETE, CONTINUE, RESUME", s)
	}
}

// Definition is an action's declarative description, as parsed out of a
// workflow document (spec.md §3).
type Definition struct {
	Type           string                 `json:"type"`
	BodyParameters map[string]interface{} `json:"body_parameters"`
	URLParameters  map[string]string      `json:"url_parameters,omitempty"`
	Tags           map[string]string      `json:"tags,omitempty"`
	Comments       []string               `json:"comments,omitempty"`
}

// Environment is the set of process-wide dependencies every action needs:
// the requester actions issue calls through, and the typed config sections
// that shape processing-execution's and cartes-mode's behavior.
type Environment struct {
	Req                    *request.Requester
	Datastore              string
	ProcessingExecutionCfg config.ProcessingExecutionConfig
	Cartes                 config.CompatibilityCartesConfig
	Logger                 *slog.Logger
}

// NewEnvironment builds an Environment from the process-wide config.
func NewEnvironment(req *request.Requester, cfg *config.Config, datastore string) *Environment {
	return &Environment{
		Req:                    req,
		Datastore:              datastore,
		ProcessingExecutionCfg: cfg.ProcessingExecutionCfg(),
		Cartes:                 cfg.CompatibilityCartes(),
		Logger:                 slog.Default().With("component", "action"),
	}
}

// Action is implemented by every action kind.
type Action interface {
	Run(ctx context.Context, datastore string) error
}

// Base is embedded by every concrete action kind.
type Base struct {
	Env      *Environment
	Def      Definition
	Behavior BehaviorPolicy
}

func (b *Base) resolveDatastore(override string) string {
	if override != "" {
		return override
	}
	return b.Env.Datastore
}

// Factory constructs a concrete Action for one action kind.
type Factory func(env *Environment, def Definition, behavior BehaviorPolicy) Action

var registry = map[string]Factory{
	"upload":               func(env *Environment, def Definition, b BehaviorPolicy) Action { return NewUploadAction(env, def, b) },
	"configuration":        func(env *Environment, def Definition, b BehaviorPolicy) Action { return newSimpleAction(env, def, b, "configuration", "configuration_id") },
	"offering":             func(env *Environment, def Definition, b BehaviorPolicy) Action { return NewOfferingAction(env, def, b) },
	"processing-execution": func(env *Environment, def Definition, b BehaviorPolicy) Action { return NewProcessingExecutionAction(env, def, b) },
	"synchronization":      func(env *Environment, def Definition, b BehaviorPolicy) Action { return newSynchronizationAction(env, def, b) },
	"edit-used-data":       func(env *Environment, def Definition, b BehaviorPolicy) Action { return newSimpleAction(env, def, b, "stored_data", "stored_data_id") },
	"access":               func(env *Environment, def Definition, b BehaviorPolicy) Action { return newIdempotentListAction(env, def, b, "access") },
	"permission":           func(env *Environment, def Definition, b BehaviorPolicy) Action { return newIdempotentListAction(env, def, b, "permission") },
}

// New dispatches def.Type to the matching Action constructor.
func New(env *Environment, def Definition, behavior BehaviorPolicy) (Action, error) {
	factory, ok := registry[def.Type]
	if !ok {
		return nil, gpferrors.NewStepActionError(def.Type, fmt.Sprintf("type d'action inconnu : %q", def.Type))
	}
	return factory(env, def, behavior), nil
}
