package action

import (
	"context"
	"fmt"
	"time"

	"github.com/IGNF/gpf-sdk-go/pkg/entities"
	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
)

// OfferingAction finds or creates an offering published from a
// configuration, publishes it, then polls until the platform settles it
// into PUBLISHED or UNSTABLE (spec.md §4.5.4). An offering's urls are read
// through entities.Offering.Urls, which already normalizes both shapes the
// platform is documented to emit.
type OfferingAction struct {
	Base

	offering *entities.Offering
}

// NewOfferingAction constructs an OfferingAction.
func NewOfferingAction(env *Environment, def Definition, behavior BehaviorPolicy) *OfferingAction {
	return &OfferingAction{Base: Base{Env: env, Def: def, Behavior: behavior}}
}

// Run executes the find-or-create, publish and monitor pipeline.
func (a *OfferingAction) Run(ctx context.Context, datastore string) error {
	ds := a.resolveDatastore(datastore)

	if err := a.reconcile(ctx, ds); err != nil {
		return err
	}

	if a.offering.Status() != entities.OfferingPublished {
		if err := a.offering.ApiPublish(ctx); err != nil {
			return err
		}
	}

	status, err := a.monitor(ctx)
	if err != nil {
		return err
	}

	if status == entities.OfferingUnstable {
		return gpferrors.NewStepActionError("offering", fmt.Sprintf("l'offre %s est dans un état instable après publication", a.offering.ID()))
	}

	if len(a.Def.Tags) > 0 {
		if err := a.offering.ApiAddTags(ctx, a.Def.Tags); err != nil {
			return err
		}
	}
	return nil
}

func (a *OfferingAction) reconcile(ctx context.Context, ds string) error {
	existing, err := a.findExisting(ctx, ds)
	if err != nil {
		return err
	}

	if existing != nil {
		switch a.Behavior {
		case BehaviorStop:
			configurationID := a.Def.URLParameters["configuration"]
			return gpferrors.NewStepActionError("offering", fmt.Sprintf("une offre existe déjà pour la configuration %q", configurationID))
		case BehaviorDelete:
			if err := existing.ApiDelete(ctx); err != nil {
				return err
			}
		case BehaviorResume, BehaviorContinue:
			a.offering = existing
			return nil
		default:
			return gpferrors.NewStepActionError("offering",
				fmt.Sprintf("comportement inconnu %q, attendu parmi STOP, DELETE, CONTINUE, RESUME", a.Behavior))
		}
	}

	o := entities.NewOffering(a.Env.Req, ds, nil)
	if err := o.ApiCreate(ctx, a.Def.BodyParameters); err != nil {
		return err
	}
	a.offering = o
	return nil
}

// findExisting looks up the offering that should be created by this action,
// if it already exists: the one published from url_parameters.configuration
// on the endpoint named in body_parameters.endpoint. Grounded on
// original_source/ignf_gpf_sdk/workflow/action/OfferingAction.py's
// find_offering, which lists the configuration's offerings and walks them
// comparing each one's endpoint id — a plain "configuration" filter is not
// enough, since a configuration may be published on several endpoints.
func (a *OfferingAction) findExisting(ctx context.Context, ds string) (*entities.Offering, error) {
	configurationID := a.Def.URLParameters["configuration"]
	endpointID, _ := a.Def.BodyParameters["endpoint"].(string)
	if configurationID == "" || endpointID == "" {
		return nil, nil
	}

	cfg := entities.NewConfiguration(a.Env.Req, ds, entities.Entity{"_id": configurationID})
	list, err := cfg.ApiListOfferings(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, o := range list {
		if err := o.ApiUpdate(ctx); err != nil {
			return nil, err
		}
		if o.EndpointID() == endpointID {
			return o, nil
		}
	}
	return nil, nil
}

func (a *OfferingAction) monitor(ctx context.Context) (string, error) {
	interval := a.Env.ProcessingExecutionCfg.NbSecBetweenCheckUpdates
	if interval <= 0 {
		interval = 30 * time.Second
	}
	for {
		if err := a.offering.ApiUpdate(ctx); err != nil {
			return "", err
		}
		switch a.offering.Status() {
		case entities.OfferingPublished, entities.OfferingUnstable:
			return a.offering.Status(), nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}
