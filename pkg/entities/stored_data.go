package entities

import (
	"context"

	"github.com/IGNF/gpf-sdk-go/pkg/request"
)

// StoredData status vocabulary (spec.md §3).
const (
	StoredDataCreated    = "CREATED"
	StoredDataGenerating = "GENERATING"
	StoredDataModifying  = "MODIFYING"
	StoredDataGenerated  = "GENERATED"
	StoredDataUnstable   = "UNSTABLE"
)

// StoredData wraps a platform stored-data resource: the durable output (or
// input) of a processing execution.
type StoredData struct {
	Base
	TagsCapability
	CommentsCapability
	SharingCapability
}

// NewStoredData wraps an existing stored-data's attribute map.
func NewStoredData(req *request.Requester, datastore string, attrs Entity) *StoredData {
	s := &StoredData{Base: NewBase(req, "stored_data", "stored_data_id", datastore, attrs)}
	s.TagsCapability = TagsCapability{base: &s.Base}
	s.CommentsCapability = CommentsCapability{base: &s.Base}
	s.SharingCapability = SharingCapability{base: &s.Base}
	return s
}

// ApiCreate creates the stored-data remotely from body.
func (s *StoredData) ApiCreate(ctx context.Context, body map[string]interface{}) error {
	return s.Base.ApiCreate(ctx, body, nil)
}

// ApiListStoredData lists stored-data in the datastore matching the given
// filters — used by the reconciliation state machine's find_stored_data
// step (spec.md §4.5.2).
func ApiListStoredData(ctx context.Context, req *request.Requester, datastore string, infosFilter, tagsFilter map[string]string, pageSize int) ([]*StoredData, error) {
	base := NewBase(req, "stored_data", "stored_data_id", datastore, nil)
	rows, err := base.apiList(ctx, infosFilter, tagsFilter, pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]*StoredData, len(rows))
	for i, row := range rows {
		out[i] = NewStoredData(req, datastore, row)
	}
	return out, nil
}
