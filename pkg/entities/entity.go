// Package entities implements the entity wrappers (C4): thin Go types over
// the platform's JSON resources (Upload, StoredData, Offering,
// ProcessingExecution, Configuration). Every verb is a call to the shared
// ApiRequester; a wrapper caches nothing beyond the attribute map fetched on
// its most recent call.
package entities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
	"github.com/IGNF/gpf-sdk-go/pkg/request"
)

// Entity is the attribute map shape shared by every entity kind: a
// string-keyed bag of arbitrary JSON, with a required _id once the entity
// exists remotely.
type Entity map[string]interface{}

// ID returns the entity's _id, or "" before the entity has been created or
// fetched remotely.
func (e Entity) ID() string {
	v, ok := e["_id"]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Status returns the entity's status attribute, or "" if absent.
func (e Entity) Status() string {
	v, ok := e["status"]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Base is embedded by every concrete entity wrapper. It implements the
// canonical CRUD verbs (api_get, api_list, api_create, api_update,
// api_delete, api_full_edit) as thin calls to request.Requester, resolving
// route names of the form "<entity_name>_<verb>" per spec.md §3.
type Base struct {
	Attrs Entity

	req        *request.Requester
	entityName string
	idParam    string
	datastore  string
}

// NewBase constructs a Base wrapper around an already-known attribute map
// (e.g. one row of a list response). attrs may be nil for an entity that
// does not exist remotely yet.
func NewBase(req *request.Requester, entityName, idParam, datastore string, attrs Entity) Base {
	if attrs == nil {
		attrs = Entity{}
	}
	return Base{Attrs: attrs, req: req, entityName: entityName, idParam: idParam, datastore: datastore}
}

// ID returns the wrapped entity's _id.
func (b *Base) ID() string { return b.Attrs.ID() }

// Status returns the wrapped entity's status attribute.
func (b *Base) Status() string { return b.Attrs.Status() }

// Datastore returns the datastore the wrapper operates against.
func (b *Base) Datastore() string { return b.datastore }

func (b *Base) routeParams(extra map[string]string) map[string]string {
	params := map[string]string{"datastore": b.datastore}
	if id := b.ID(); id != "" {
		params[b.idParam] = id
	}
	for k, v := range extra {
		params[k] = v
	}
	return params
}

func (b *Base) replaceAttrs(resp *request.Response) error {
	var attrs Entity
	if err := resp.JSON(&attrs); err != nil {
		return gpferrors.NewGpfSdkError(fmt.Sprintf("réponse %s illisible", b.entityName), err)
	}
	b.Attrs = attrs
	return nil
}

// ApiGet fetches the entity by id and replaces the local attribute map
// wholesale with the authoritative remote snapshot.
func (b *Base) ApiGet(ctx context.Context) error {
	resp, err := b.req.RouteRequest(ctx, b.entityName+"_get", b.routeParams(nil), "", nil, nil, false, nil, nil, 0)
	if err != nil {
		return err
	}
	return b.replaceAttrs(resp)
}

// ApiUpdate refreshes the entity in place. Per spec.md §3's invariant,
// api_update replaces the attribute map wholesale; it never merges.
func (b *Base) ApiUpdate(ctx context.Context) error {
	return b.ApiGet(ctx)
}

// ApiCreate POSTs body (JSON-encoded) to the entity's create route, merging
// urlParams into the route's placeholder substitution, and replaces the
// local attribute map with the server's response.
func (b *Base) ApiCreate(ctx context.Context, body map[string]interface{}, urlParams map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return gpferrors.NewGpfSdkError(fmt.Sprintf("corps de création %s invalide", b.entityName), err)
	}
	resp, err := b.req.RouteRequest(ctx, b.entityName+"_create", b.routeParams(urlParams), "", nil, bytes.NewReader(payload), true, nil, nil, 0)
	if err != nil {
		return err
	}
	return b.replaceAttrs(resp)
}

// ApiDelete removes the entity remotely.
func (b *Base) ApiDelete(ctx context.Context) error {
	_, err := b.req.RouteRequest(ctx, b.entityName+"_delete", b.routeParams(nil), "", nil, nil, false, nil, nil, 0)
	return err
}

// ApiFullEdit PUTs a full replacement body and replaces the local attribute
// map with the server's response.
func (b *Base) ApiFullEdit(ctx context.Context, body map[string]interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return gpferrors.NewGpfSdkError(fmt.Sprintf("corps d'édition %s invalide", b.entityName), err)
	}
	resp, err := b.req.RouteRequest(ctx, b.entityName+"_full_edit", b.routeParams(nil), "", nil, bytes.NewReader(payload), true, nil, nil, 0)
	if err != nil {
		return err
	}
	return b.replaceAttrs(resp)
}

// apiList pages through the entity's list route, filtering on infos and
// tags, accumulating rows until RangeNextPage reports no more remain.
// pageSize <= 0 means the server's default page size.
func (b *Base) apiList(ctx context.Context, infosFilter, tagsFilter map[string]string, pageSize int) ([]Entity, error) {
	var all []Entity
	page := 1
	for {
		q := request.Params{}
		for k, v := range infosFilter {
			q = request.Add(q, k, v)
		}
		for k, v := range tagsFilter {
			q = request.Add(q, "tags."+k, v)
		}
		q = request.Add(q, "page", fmt.Sprintf("%d", page))
		if pageSize > 0 {
			q = request.Add(q, "limit", fmt.Sprintf("%d", pageSize))
		}

		resp, err := b.req.RouteRequest(ctx, b.entityName+"_list", b.routeParams(nil), "", q, nil, false, nil, nil, 0)
		if err != nil {
			return nil, err
		}
		var rows []Entity
		if err := resp.JSON(&rows); err != nil {
			return nil, gpferrors.NewGpfSdkError(fmt.Sprintf("liste %s illisible", b.entityName), err)
		}
		all = append(all, rows...)

		if !request.RangeNextPage(resp.Header.Get("Content-Range"), len(all)) {
			break
		}
		page++
	}
	return all, nil
}
