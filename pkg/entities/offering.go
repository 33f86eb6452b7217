package entities

import (
	"context"

	"github.com/IGNF/gpf-sdk-go/pkg/request"
)

// Offering status vocabulary (spec.md §3).
const (
	OfferingPublished = "PUBLISHED"
	OfferingUnstable  = "UNSTABLE"
)

// Offering wraps a platform offering: the published, externally-consumable
// face of a stored-data.
type Offering struct {
	Base
	TagsCapability
	CommentsCapability
}

// NewOffering wraps an existing offering's attribute map.
func NewOffering(req *request.Requester, datastore string, attrs Entity) *Offering {
	o := &Offering{Base: NewBase(req, "offering", "offering_id", datastore, attrs)}
	o.TagsCapability = TagsCapability{base: &o.Base}
	o.CommentsCapability = CommentsCapability{base: &o.Base}
	return o
}

// ApiCreate creates the offering remotely from body.
func (o *Offering) ApiCreate(ctx context.Context, body map[string]interface{}) error {
	return o.Base.ApiCreate(ctx, body, nil)
}

// ApiPublish publishes the offering.
func (o *Offering) ApiPublish(ctx context.Context) error {
	resp, err := o.req.RouteRequest(ctx, "offering_publish", o.routeParams(nil), "", nil, nil, false, nil, nil, 0)
	if err != nil {
		return err
	}
	return o.replaceAttrs(resp)
}

// ApiUnpublish unpublishes the offering.
func (o *Offering) ApiUnpublish(ctx context.Context) error {
	resp, err := o.req.RouteRequest(ctx, "offering_unpublish", o.routeParams(nil), "", nil, nil, false, nil, nil, 0)
	if err != nil {
		return err
	}
	return o.replaceAttrs(resp)
}

// EndpointID returns the id of the endpoint this offering is published on,
// as referenced by the action runtime's find_offering reconciliation.
func (o *Offering) EndpointID() string {
	endpoint, ok := o.Attrs["endpoint"].(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := endpoint["_id"].(string)
	return id
}

// Urls returns the offering's published links, accepting both shapes the
// platform is documented to emit: a list of plain strings, or a list of
// {"url": "..."} objects (spec.md §4.5.4).
func (o *Offering) Urls() []string {
	raw, ok := o.Attrs["urls"]
	if !ok {
		return nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	urls := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			urls = append(urls, v)
		case map[string]interface{}:
			if u, ok := v["url"].(string); ok {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// ApiListOfferings lists offerings in the datastore matching the given
// filters.
func ApiListOfferings(ctx context.Context, req *request.Requester, datastore string, infosFilter, tagsFilter map[string]string, pageSize int) ([]*Offering, error) {
	base := NewBase(req, "offering", "offering_id", datastore, nil)
	rows, err := base.apiList(ctx, infosFilter, tagsFilter, pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]*Offering, len(rows))
	for i, row := range rows {
		out[i] = NewOffering(req, datastore, row)
	}
	return out, nil
}
