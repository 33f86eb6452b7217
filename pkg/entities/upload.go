package entities

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"

	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
	"github.com/IGNF/gpf-sdk-go/pkg/request"
)

// Upload status vocabulary (spec.md §3).
const (
	UploadOpen     = "OPEN"
	UploadClosed   = "CLOSED"
	UploadChecking = "CHECKING"
	UploadUnstable = "UNSTABLE"
)

// Upload wraps a store upload: a staging area files are pushed into before
// the platform checks and promotes them.
type Upload struct {
	Base
	TagsCapability
	CommentsCapability
	ReUploadFileCapability
}

// NewUpload wraps an existing upload's attribute map.
func NewUpload(req *request.Requester, datastore string, attrs Entity) *Upload {
	u := &Upload{Base: NewBase(req, "upload", "upload_id", datastore, attrs)}
	u.wireCapabilities()
	return u
}

func (u *Upload) wireCapabilities() {
	u.TagsCapability = TagsCapability{base: &u.Base}
	u.CommentsCapability = CommentsCapability{base: &u.Base}
	u.ReUploadFileCapability = ReUploadFileCapability{base: &u.Base}
}

// ApiCreate creates the upload remotely from body.
func (u *Upload) ApiCreate(ctx context.Context, body map[string]interface{}) error {
	return u.Base.ApiCreate(ctx, body, nil)
}

// ApiListUploads lists uploads in the datastore matching the given filters.
func ApiListUploads(ctx context.Context, req *request.Requester, datastore string, infosFilter, tagsFilter map[string]string, pageSize int) ([]*Upload, error) {
	base := NewBase(req, "upload", "upload_id", datastore, nil)
	rows, err := base.apiList(ctx, infosFilter, tagsFilter, pageSize)
	if err != nil {
		return nil, err
	}
	uploads := make([]*Upload, len(rows))
	for i, row := range rows {
		uploads[i] = NewUpload(req, datastore, row)
	}
	return uploads, nil
}

// ApiPushDataFile streams localPath to the upload under remoteSubdir (a
// path prefix inside the upload's staging area; "" means the upload root).
func (u *Upload) ApiPushDataFile(ctx context.Context, localPath, remoteSubdir string) error {
	data := map[string]string{}
	if remoteSubdir != "" {
		data["path"] = remoteSubdir
	}
	_, err := u.req.RouteUploadFile(ctx, "upload_push_data_file", localPath, "file", u.routeParams(nil), "", nil, data)
	return err
}

// ApiPushMd5File streams the md5 manifest at localPath to the upload.
func (u *Upload) ApiPushMd5File(ctx context.Context, localPath string) error {
	_, err := u.req.RouteUploadFile(ctx, "upload_push_md5_file", localPath, "file", u.routeParams(nil), "", nil, nil)
	return err
}

// ApiOpen transitions the upload to OPEN so files can be pushed into it.
func (u *Upload) ApiOpen(ctx context.Context) error {
	resp, err := u.req.RouteRequest(ctx, "upload_open", u.routeParams(nil), "", nil, nil, false, nil, nil, 0)
	if err != nil {
		return err
	}
	return u.replaceAttrs(resp)
}

// ApiClose closes the upload, triggering the platform's server-side checks.
func (u *Upload) ApiClose(ctx context.Context) error {
	resp, err := u.req.RouteRequest(ctx, "upload_close", u.routeParams(nil), "", nil, nil, false, nil, nil, 0)
	if err != nil {
		return err
	}
	return u.replaceAttrs(resp)
}

// ApiListOpenFiles lists the files already pushed to this (still open)
// upload, so the upload action does not re-push files already present.
// Supplemented per SPEC_FULL.md §4.4: not in spec.md's verb list, but
// implied by the upload action's "reconcile before mutate" behavior.
func (u *Upload) ApiListOpenFiles(ctx context.Context) ([]string, error) {
	resp, err := u.req.RouteRequest(ctx, "upload_list_open_files", u.routeParams(nil), "", nil, nil, false, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	var files []string
	if err := resp.JSON(&files); err != nil {
		return nil, gpferrors.NewGpfSdkError("liste des fichiers poussés illisible", err)
	}
	return files, nil
}

// ComputeFileMD5 streams path and returns its hex-encoded MD5 digest,
// without reading the whole file into memory — used by the upload action to
// build the *.md5 manifest pushed alongside each data file.
func ComputeFileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
