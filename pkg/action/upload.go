package action

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/IGNF/gpf-sdk-go/pkg/entities"
	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
)

// UploadAction finds or creates an upload, pushes its declared data files
// (each followed by a computed *.md5 manifest), closes it, then polls
// until the platform's checks settle it into CLOSED or UNSTABLE (spec.md
// §4.5.4).
type UploadAction struct {
	Base

	upload *entities.Upload
}

// NewUploadAction constructs an UploadAction.
func NewUploadAction(env *Environment, def Definition, behavior BehaviorPolicy) *UploadAction {
	return &UploadAction{Base: Base{Env: env, Def: def, Behavior: behavior}}
}

// uploadFile is one local data file to push, optionally under a remote
// subdirectory.
type uploadFile struct {
	LocalPath    string
	RemoteSubdir string
}

func (a *UploadAction) files() []uploadFile {
	raw, ok := a.Def.BodyParameters["files"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]uploadFile, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, uploadFile{LocalPath: v})
		case map[string]interface{}:
			f := uploadFile{}
			if p, ok := v["path"].(string); ok {
				f.LocalPath = p
			}
			if p, ok := v["remote_subdir"].(string); ok {
				f.RemoteSubdir = p
			}
			if f.LocalPath != "" {
				out = append(out, f)
			}
		}
	}
	return out
}

func (a *UploadAction) createBody() map[string]interface{} {
	body := make(map[string]interface{}, len(a.Def.BodyParameters))
	for k, v := range a.Def.BodyParameters {
		if k == "files" {
			continue
		}
		body[k] = v
	}
	return body
}

// Run executes the find-or-create, push, close and monitor pipeline.
func (a *UploadAction) Run(ctx context.Context, datastore string) error {
	ds := a.resolveDatastore(datastore)

	created, err := a.reconcile(ctx, ds)
	if err != nil {
		return err
	}

	if created {
		a.tagCartesStage(ctx, "upload_start")
	}

	if err := a.pushFiles(ctx); err != nil {
		return err
	}

	if a.upload.Status() == entities.UploadOpen {
		if err := a.upload.ApiClose(ctx); err != nil {
			return err
		}
	}

	status, err := a.monitor(ctx)
	if err != nil {
		return err
	}

	switch status {
	case entities.UploadClosed:
		a.tagCartesStage(ctx, "upload_end_ok")
		return nil
	case entities.UploadUnstable:
		a.tagCartesStage(ctx, "upload_end_ko")
		return gpferrors.NewStepActionError("upload", fmt.Sprintf("l'upload %s est dans un état instable après vérification", a.upload.ID()))
	default:
		return gpferrors.NewStepActionError("upload", fmt.Sprintf("statut d'upload inattendu : %q", status))
	}
}

// reconcile finds a pre-existing upload by {name, datastore} and applies
// this.Behavior to it, or creates a fresh one. Returns whether a new
// upload was created.
func (a *UploadAction) reconcile(ctx context.Context, ds string) (bool, error) {
	name, _ := a.Def.BodyParameters["name"].(string)
	existing, err := a.findExistingUpload(ctx, ds, name)
	if err != nil {
		return false, err
	}

	if existing != nil {
		switch a.Behavior {
		case BehaviorStop:
			return false, gpferrors.NewStepActionError("upload", fmt.Sprintf("un upload nommé %q existe déjà", name))
		case BehaviorDelete:
			if err := existing.ApiDelete(ctx); err != nil {
				return false, err
			}
			existing = nil
		case BehaviorResume, BehaviorContinue:
			if existing.Status() == entities.UploadUnstable {
				if a.Behavior == BehaviorResume {
					if err := existing.ApiDelete(ctx); err != nil {
						return false, err
					}
					existing = nil
				} else {
					return false, gpferrors.NewStepActionError("upload", fmt.Sprintf("l'upload %q précédent est instable", name))
				}
			}
		default:
			return false, gpferrors.NewStepActionError("upload",
				fmt.Sprintf("comportement inconnu %q, attendu parmi STOP, DELETE, CONTINUE, RESUME", a.Behavior))
		}
	}

	if existing != nil {
		a.upload = existing
		return false, nil
	}

	u := entities.NewUpload(a.Env.Req, ds, nil)
	if err := u.ApiCreate(ctx, a.createBody()); err != nil {
		return false, err
	}
	a.upload = u
	return true, nil
}

func (a *UploadAction) findExistingUpload(ctx context.Context, ds, name string) (*entities.Upload, error) {
	if name == "" {
		return nil, nil
	}
	list, err := entities.ApiListUploads(ctx, a.Env.Req, ds, map[string]string{"name": name}, nil, 0)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// pushFiles streams every not-yet-pushed data file, followed by a computed
// *.md5 manifest for it (entities.ComputeFileMD5 is streamed, so even large
// files are never buffered whole).
func (a *UploadAction) pushFiles(ctx context.Context) error {
	if a.upload.Status() != entities.UploadOpen {
		return nil
	}

	alreadyPushed := map[string]bool{}
	if names, err := a.upload.ApiListOpenFiles(ctx); err == nil {
		for _, n := range names {
			alreadyPushed[n] = true
		}
	}

	for _, f := range a.files() {
		base := filepath.Base(f.LocalPath)
		if alreadyPushed[base] {
			continue
		}
		if err := a.upload.ApiPushDataFile(ctx, f.LocalPath, f.RemoteSubdir); err != nil {
			return err
		}
		if err := a.pushMd5Manifest(ctx, f.LocalPath); err != nil {
			return err
		}
	}
	return nil
}

func (a *UploadAction) pushMd5Manifest(ctx context.Context, localPath string) error {
	digest, err := entities.ComputeFileMD5(localPath)
	if err != nil {
		return gpferrors.NewGpfSdkError(fmt.Sprintf("calcul du md5 de %q impossible", localPath), err)
	}

	tmp, err := os.CreateTemp("", "gpf-upload-*.md5")
	if err != nil {
		return gpferrors.NewGpfSdkError("création du manifeste md5 impossible", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := fmt.Fprintf(tmp, "%s  %s\n", digest, filepath.Base(localPath)); err != nil {
		tmp.Close()
		return gpferrors.NewGpfSdkError("écriture du manifeste md5 impossible", err)
	}
	if err := tmp.Close(); err != nil {
		return gpferrors.NewGpfSdkError("écriture du manifeste md5 impossible", err)
	}

	return a.upload.ApiPushMd5File(ctx, tmp.Name())
}

func (a *UploadAction) monitor(ctx context.Context) (string, error) {
	interval := a.Env.ProcessingExecutionCfg.NbSecBetweenCheckUpdates
	if interval <= 0 {
		interval = 30 * time.Second
	}
	for {
		if err := a.upload.ApiUpdate(ctx); err != nil {
			return "", err
		}
		switch a.upload.Status() {
		case entities.UploadClosed, entities.UploadUnstable:
			return a.upload.Status(), nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (a *UploadAction) tagCartesStage(ctx context.Context, stage string) {
	if !a.Env.Cartes.Enabled {
		return
	}
	_ = a.upload.ApiAddTags(ctx, map[string]string{"stage": stage})
}
