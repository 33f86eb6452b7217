// Package workflow implements the workflow driver (C6): parsing a workflow
// document into a DAG of named steps, validating it against an embedded
// JSON schema, and running it to completion one step at a time.
//
// Document parsing is grounded on github.com/tailscale/hujson (JSON with
// comments, the same JWCC dialect Tailscale's own config files use) and
// schema validation on pkg/firewall/firewall.go's jsonschema.Compiler /
// jsonschema.Draft2020 usage from the teacher.
package workflow

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tailscale/hujson"

	"github.com/IGNF/gpf-sdk-go/pkg/action"
	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://gpf-sdk-go.local/workflow.schema.json"

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("workflow: embedded schema failed to load: %v", err))
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("workflow: embedded schema failed to compile: %v", err))
	}
	compiledSchema = schema
}

// actionDoc is an action exactly as it appears in a workflow document —
// everything action.Definition carries, plus the optional per-action
// behavior override (spec.md §3's behavior policy, chosen per action
// rather than globally when present).
type actionDoc struct {
	Type           string                 `json:"type"`
	Behavior       string                 `json:"behavior,omitempty"`
	BodyParameters map[string]interface{} `json:"body_parameters"`
	URLParameters  map[string]string      `json:"url_parameters,omitempty"`
	Tags           map[string]string      `json:"tags,omitempty"`
	Comments       []string               `json:"comments,omitempty"`
}

type stepDoc struct {
	Actions []actionDoc `json:"actions"`
	Parents []string    `json:"parents,omitempty"`
}

type documentDoc struct {
	Workflow struct {
		Steps map[string]stepDoc `json:"steps"`
	} `json:"workflow"`
}

// Step is one named node of a parsed workflow's DAG.
type Step struct {
	Name    string
	Actions []actionDoc
	Parents []string
}

// Document is a parsed, schema-validated, topologically-orderable workflow.
type Document struct {
	order []Step
}

// ParseDocument strips comments per the JSON-with-comments document format
// (spec.md §6), validates the result against the embedded schema, then
// topologically orders its steps. The DAG must be acyclic and every
// parent name must name a declared step; either violation raises
// WorkflowError.
func ParseDocument(data []byte) (*Document, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, gpferrors.NewWorkflowError("", "", "document de workflow invalide (JSON avec commentaires illisible)", err)
	}

	var generic interface{}
	if err := json.Unmarshal(standardized, &generic); err != nil {
		return nil, gpferrors.NewWorkflowError("", "", "document de workflow illisible", err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, gpferrors.NewWorkflowError("", "", "document de workflow non conforme au schéma", err)
	}

	var doc documentDoc
	if err := json.Unmarshal(standardized, &doc); err != nil {
		return nil, gpferrors.NewWorkflowError("", "", "document de workflow illisible", err)
	}

	steps := make(map[string]Step, len(doc.Workflow.Steps))
	for name, s := range doc.Workflow.Steps {
		steps[name] = Step{Name: name, Actions: s.Actions, Parents: s.Parents}
	}
	for name, s := range steps {
		for _, parent := range s.Parents {
			if _, ok := steps[parent]; !ok {
				return nil, gpferrors.NewWorkflowError(name, "", fmt.Sprintf("l'étape %q référence un parent inconnu %q", name, parent), nil)
			}
		}
	}

	order, err := topologicalOrder(steps)
	if err != nil {
		return nil, err
	}
	return &Document{order: order}, nil
}

// Steps returns the workflow's steps in dependency order.
func (d *Document) Steps() []Step { return d.order }

func behaviorFor(def actionDoc, fallback action.BehaviorPolicy) (action.BehaviorPolicy, error) {
	if def.Behavior == "" {
		return fallback, nil
	}
	return action.ParseBehaviorPolicy(def.Behavior)
}
