package entities

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
)

// Tags is the capability interface for entities that can carry key/value
// tags (spec.md §4.4).
type Tags interface {
	ApiAddTags(ctx context.Context, tags map[string]string) error
	ApiRemoveTags(ctx context.Context, keys []string) error
	ApiListTags(ctx context.Context) (map[string]string, error)
}

// Comments is the capability interface for entities that carry an ordered
// list of free-text comments.
type Comments interface {
	ApiAddComment(ctx context.Context, text string) error
	ApiListComments(ctx context.Context) ([]string, error)
}

// Sharing is the capability interface for entities that can be shared with
// other communities.
type Sharing interface {
	ApiAddShare(ctx context.Context, community string) error
	ApiRemoveShare(ctx context.Context, community string) error
	ApiListShares(ctx context.Context) ([]string, error)
}

// ReUploadFile is the capability interface for entities that accept a
// replacement file via the shared store_entity_re_upload route.
type ReUploadFile interface {
	ApiReUpload(ctx context.Context, filePath string) error
}

// FullEdit is the capability interface for entities that accept a full
// replacement body.
type FullEdit interface {
	ApiFullEdit(ctx context.Context, body map[string]interface{}) error
}

// TagsCapability implements Tags as calls on a shared Base. It is composed
// into the concrete entity wrappers that support tagging, rather than Base
// itself implementing every capability — mirroring the orthogonal interface
// composition spec.md §9 calls for.
type TagsCapability struct{ base *Base }

func (t TagsCapability) ApiAddTags(ctx context.Context, tags map[string]string) error {
	payload, err := json.Marshal(tags)
	if err != nil {
		return gpferrors.NewGpfSdkError("tags invalides", err)
	}
	_, err = t.base.req.RouteRequest(ctx, t.base.entityName+"_add_tags", t.base.routeParams(nil), "", nil, bytes.NewReader(payload), true, nil, nil, 0)
	return err
}

func (t TagsCapability) ApiRemoveTags(ctx context.Context, keys []string) error {
	payload, err := json.Marshal(keys)
	if err != nil {
		return gpferrors.NewGpfSdkError("clés de tags invalides", err)
	}
	_, err = t.base.req.RouteRequest(ctx, t.base.entityName+"_remove_tags", t.base.routeParams(nil), "", nil, bytes.NewReader(payload), true, nil, nil, 0)
	return err
}

func (t TagsCapability) ApiListTags(ctx context.Context) (map[string]string, error) {
	resp, err := t.base.req.RouteRequest(ctx, t.base.entityName+"_list_tags", t.base.routeParams(nil), "", nil, nil, false, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	tags := map[string]string{}
	if err := resp.JSON(&tags); err != nil {
		return nil, gpferrors.NewGpfSdkError("réponse de tags illisible", err)
	}
	return tags, nil
}

// CommentsCapability implements Comments as calls on a shared Base.
type CommentsCapability struct{ base *Base }

func (c CommentsCapability) ApiAddComment(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return gpferrors.NewGpfSdkError("commentaire invalide", err)
	}
	_, err = c.base.req.RouteRequest(ctx, c.base.entityName+"_add_comment", c.base.routeParams(nil), "", nil, bytes.NewReader(payload), true, nil, nil, 0)
	return err
}

func (c CommentsCapability) ApiListComments(ctx context.Context) ([]string, error) {
	resp, err := c.base.req.RouteRequest(ctx, c.base.entityName+"_list_comments", c.base.routeParams(nil), "", nil, nil, false, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Text string `json:"text"`
	}
	if err := resp.JSON(&rows); err != nil {
		return nil, gpferrors.NewGpfSdkError("réponse de commentaires illisible", err)
	}
	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.Text
	}
	return texts, nil
}

// SharingCapability implements Sharing as calls on a shared Base.
type SharingCapability struct{ base *Base }

func (s SharingCapability) ApiAddShare(ctx context.Context, community string) error {
	payload, err := json.Marshal(map[string]string{"community": community})
	if err != nil {
		return gpferrors.NewGpfSdkError("partage invalide", err)
	}
	_, err = s.base.req.RouteRequest(ctx, s.base.entityName+"_add_share", s.base.routeParams(nil), "", nil, bytes.NewReader(payload), true, nil, nil, 0)
	return err
}

func (s SharingCapability) ApiRemoveShare(ctx context.Context, community string) error {
	_, err := s.base.req.RouteRequest(ctx, s.base.entityName+"_remove_share", s.base.routeParams(map[string]string{"community": community}), "", nil, nil, false, nil, nil, 0)
	return err
}

func (s SharingCapability) ApiListShares(ctx context.Context) ([]string, error) {
	resp, err := s.base.req.RouteRequest(ctx, s.base.entityName+"_list_shares", s.base.routeParams(nil), "", nil, nil, false, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	var communities []string
	if err := resp.JSON(&communities); err != nil {
		return nil, gpferrors.NewGpfSdkError("réponse de partages illisible", err)
	}
	return communities, nil
}

// ReUploadFileCapability implements ReUploadFile over the shared
// store_entity_re_upload route (spec.md §4.4).
type ReUploadFileCapability struct{ base *Base }

func (r ReUploadFileCapability) ApiReUpload(ctx context.Context, filePath string) error {
	_, err := r.base.req.RouteUploadFile(ctx, "store_entity_re_upload", filePath, "file", r.base.routeParams(nil), "", nil, nil)
	return err
}
