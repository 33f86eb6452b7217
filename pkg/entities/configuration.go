package entities

import (
	"context"
	"strconv"

	"github.com/IGNF/gpf-sdk-go/pkg/request"
)

// Configuration wraps a platform configuration: the template a stored-data
// is published from as one or more offerings.
type Configuration struct {
	Base
	TagsCapability
	CommentsCapability
}

// NewConfiguration wraps an existing configuration's attribute map.
func NewConfiguration(req *request.Requester, datastore string, attrs Entity) *Configuration {
	c := &Configuration{Base: NewBase(req, "configuration", "configuration_id", datastore, attrs)}
	c.TagsCapability = TagsCapability{base: &c.Base}
	c.CommentsCapability = CommentsCapability{base: &c.Base}
	return c
}

// ApiCreate creates the configuration remotely from body.
func (c *Configuration) ApiCreate(ctx context.Context, body map[string]interface{}) error {
	return c.Base.ApiCreate(ctx, body, nil)
}

// ApiListOfferings lists the offerings published from this configuration.
// Listed in spec.md §4.4's bullet list but otherwise unspecified; implemented
// as a thin paginated list over the configuration_list_offerings route
// (SPEC_FULL.md §4.4).
func (c *Configuration) ApiListOfferings(ctx context.Context, pageSize int) ([]*Offering, error) {
	rows, err := c.apiList(ctx, nil, nil, pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]*Offering, len(rows))
	for i, row := range rows {
		out[i] = NewOffering(c.req, c.datastore, row)
	}
	return out, nil
}

// override the shared entity_list route: Configuration's offering listing
// has its own dedicated route rather than "configuration_list".
func (c *Configuration) apiList(ctx context.Context, infosFilter, tagsFilter map[string]string, pageSize int) ([]Entity, error) {
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
		q = request.Add(q, "page", strconv.Itoa(page))
		if pageSize > 0 {
			q = request.Add(q, "limit", strconv.Itoa(pageSize))
		}

		resp, err := c.req.RouteRequest(ctx, "configuration_list_offerings", c.routeParams(nil), "", q, nil, false, nil, nil, 0)
		if err != nil {
			return nil, err
		}
		var rows []Entity
		if err := resp.JSON(&rows); err != nil {
			return nil, err
		}
		all = append(all, rows...)

		if !request.RangeNextPage(resp.Header.Get("Content-Range"), len(all)) {
			break
		}
		page++
	}
	return all, nil
}
