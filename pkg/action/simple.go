package action

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/IGNF/gpf-sdk-go/pkg/entities"
	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
)

// SimpleAction is the pass-through shape shared by action kinds with no
// reconciliation state machine of their own: create the entity, tag it,
// comment it. Used for "configuration".
type SimpleAction struct {
	Base

	entityName string
}

func newSimpleAction(env *Environment, def Definition, behavior BehaviorPolicy, entityName, idParam string) *SimpleAction {
	return &SimpleAction{Base: Base{Env: env, Def: def, Behavior: behavior}, entityName: entityName}
}

// Run creates the entity from body_parameters and applies tags/comments.
// "edit-used-data" is the one caller that instead targets an existing
// stored-data by _id; it is routed through editUsedData below rather than
// this generic create path.
func (a *SimpleAction) Run(ctx context.Context, datastore string) error {
	ds := a.resolveDatastore(datastore)

	if a.entityName == "stored_data" {
		return a.editUsedData(ctx, ds)
	}

	c := entities.NewConfiguration(a.Env.Req, ds, nil)
	if err := c.ApiCreate(ctx, a.Def.BodyParameters); err != nil {
		return err
	}
	if len(a.Def.Tags) > 0 {
		if err := c.ApiAddTags(ctx, a.Def.Tags); err != nil {
			return err
		}
	}
	return addMissingComments(ctx, c, a.Def.Comments)
}

// editUsedData full-edits an existing stored-data's used-data description
// (spec.md §4.5.4's "edit-used-data" action): the target is identified by
// body_parameters._id, and the rest of body_parameters replaces its
// used_data attribute wholesale, per the no-merge invariant every
// api_full_edit call carries.
func (a *SimpleAction) editUsedData(ctx context.Context, ds string) error {
	id, _ := a.Def.BodyParameters["_id"].(string)
	if id == "" {
		return gpferrors.NewStepActionError("edit-used-data", "body_parameters._id est requis")
	}
	s := entities.NewStoredData(a.Env.Req, ds, entities.Entity{"_id": id})
	body := make(map[string]interface{}, len(a.Def.BodyParameters))
	for k, v := range a.Def.BodyParameters {
		if k != "_id" {
			body[k] = v
		}
	}
	return s.ApiFullEdit(ctx, body)
}

func addMissingComments(ctx context.Context, c entities.Comments, comments []string) error {
	if len(comments) == 0 {
		return nil
	}
	existing, err := c.ApiListComments(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	for _, comment := range comments {
		if seen[comment] {
			continue
		}
		if err := c.ApiAddComment(ctx, comment); err != nil {
			return err
		}
	}
	return nil
}

// SynchronizationAction re-publishes (or reuses) an offering the same way
// OfferingAction does, then — per SPEC_FULL.md §4.5's supplement — re-reads
// the offering's urls once published and fails if the platform did not
// actually expose any, since a synchronization with no resulting url is
// silently useless to the caller that requested it.
type SynchronizationAction struct {
	*OfferingAction
}

func newSynchronizationAction(env *Environment, def Definition, behavior BehaviorPolicy) *SynchronizationAction {
	return &SynchronizationAction{OfferingAction: NewOfferingAction(env, def, behavior)}
}

func (a *SynchronizationAction) Run(ctx context.Context, datastore string) error {
	if err := a.OfferingAction.Run(ctx, datastore); err != nil {
		return err
	}
	if len(a.offering.Urls()) == 0 {
		return gpferrors.NewStepActionError("synchronization", "la synchronisation n'a produit aucune url exploitable")
	}
	return nil
}

// IdempotentListAction implements the access/permission action kinds: both
// add an entry to a datastore-scoped list via <kind>_add, but must not
// create a duplicate entry if an identical one already exists — the same
// idempotent-add rule spec.md §4.5.1 states for processing-execution's
// comments, generalized here per SPEC_FULL.md §4.5.
type IdempotentListAction struct {
	Base

	kind string
}

func newIdempotentListAction(env *Environment, def Definition, behavior BehaviorPolicy, kind string) *IdempotentListAction {
	return &IdempotentListAction{Base: Base{Env: env, Def: def, Behavior: behavior}, kind: kind}
}

func (a *IdempotentListAction) Run(ctx context.Context, datastore string) error {
	ds := a.resolveDatastore(datastore)
	routeParams := map[string]string{"datastore": ds}

	resp, err := a.Env.Req.RouteRequest(ctx, a.kind+"_list", routeParams, "", nil, nil, false, nil, nil, 0)
	if err != nil {
		return err
	}
	var existing []map[string]interface{}
	if err := resp.JSON(&existing); err != nil {
		return gpferrors.NewGpfSdkError("liste "+a.kind+" illisible", err)
	}

	wanted, err := json.Marshal(a.Def.BodyParameters)
	if err != nil {
		return gpferrors.NewGpfSdkError("corps "+a.kind+" invalide", err)
	}
	for _, entry := range existing {
		got, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		if bytes.Equal(got, wanted) {
			return nil
		}
	}

	_, err = a.Env.Req.RouteRequest(ctx, a.kind+"_add", routeParams, "", nil, bytes.NewReader(wanted), true, nil, nil, 0)
	return err
}
