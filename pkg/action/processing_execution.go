package action

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/IGNF/gpf-sdk-go/pkg/entities"
	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
)

// ProcessingExecutionAction runs the staged pipeline spec.md §4.5.1
// describes: reconcile any pre-existing output before touching the
// platform, create the job if none was reused, resolve its declared
// inputs/output, apply tags and comments, then launch it. Grounded on
// pkg/executor/executor.go's SafeExecutor.Execute, whose stages are the
// same shape: a sequence of small named private steps called in order,
// each returning early on error.
type ProcessingExecutionAction struct {
	Base

	spec   outputSpec
	pe     *entities.ProcessingExecution
	output outputEntity
	inputs []outputEntity
}

// NewProcessingExecutionAction constructs a ProcessingExecutionAction.
func NewProcessingExecutionAction(env *Environment, def Definition, behavior BehaviorPolicy) *ProcessingExecutionAction {
	return &ProcessingExecutionAction{Base: Base{Env: env, Def: def, Behavior: behavior}}
}

// outputEntity is the narrow surface ProcessingExecutionAction needs from
// whichever concrete kind (entities.Upload or entities.StoredData) a job's
// declared output turns out to be. Both satisfy it structurally through
// their promoted entities.Base methods.
type outputEntity interface {
	ID() string
	Status() string
	ApiGet(ctx context.Context) error
	ApiDelete(ctx context.Context) error
}

type taggableEntity interface {
	ApiAddTags(ctx context.Context, tags map[string]string) error
	ApiListTags(ctx context.Context) (map[string]string, error)
}

type commentableEntity interface {
	ApiAddComment(ctx context.Context, text string) error
	ApiListComments(ctx context.Context) ([]string, error)
}

// outputSpec is the parsed shape of body_parameters.output (spec.md
// §4.5.1): exactly one of upload/stored_data/no_output, and within that
// either a name (a brand new entity) or an _id (reuse/update an existing
// one).
type outputSpec struct {
	kind     string // "upload", "stored_data" or "no_output"
	name     string
	id       string
	noOutput bool
}

func (s outputSpec) isNewEntity() bool    { return s.name != "" }
func (s outputSpec) isUpdateEntity() bool { return s.id != "" }

func parseOutputSpec(bodyParameters map[string]interface{}) (outputSpec, error) {
	raw, ok := bodyParameters["output"].(map[string]interface{})
	if !ok {
		return outputSpec{}, gpferrors.NewStepActionError("processing-execution",
			"body_parameters.output est requis et doit être un objet")
	}
	if _, ok := raw["no_output"]; ok {
		return outputSpec{kind: "no_output", noOutput: true}, nil
	}
	for _, kind := range []string{"upload", "stored_data"} {
		obj, ok := raw[kind].(map[string]interface{})
		if !ok {
			continue
		}
		spec := outputSpec{kind: kind}
		if name, ok := obj["name"].(string); ok {
			spec.name = name
		}
		if id, ok := obj["_id"].(string); ok {
			spec.id = id
		}
		if spec.name == "" && spec.id == "" {
			return outputSpec{}, gpferrors.NewStepActionError("processing-execution",
				"body_parameters.output doit fournir soit name soit _id")
		}
		return spec, nil
	}
	return outputSpec{}, gpferrors.NewStepActionError("processing-execution",
		"body_parameters.output doit être l'un de upload, stored_data, no_output")
}

func parseInputIDs(bodyParameters map[string]interface{}) (uploads []string, storedData []string) {
	raw, ok := bodyParameters["inputs"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	uploads = stringSlice(raw["upload"])
	storedData = stringSlice(raw["stored_data"])
	return uploads, storedData
}

func stringSlice(raw interface{}) []string {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]interface{}:
			if id, ok := v["_id"].(string); ok {
				out = append(out, id)
			}
		}
	}
	return out
}

func unstableStatusFor(kind string) string {
	if kind == "upload" {
		return entities.UploadUnstable
	}
	return entities.StoredDataUnstable
}

func isTerminalProcessingStatus(status string) bool {
	switch status {
	case entities.ProcessingExecutionSuccess, entities.ProcessingExecutionFailure, entities.ProcessingExecutionAborted:
		return true
	default:
		return false
	}
}

// Run executes the full pipeline.
func (a *ProcessingExecutionAction) Run(ctx context.Context, datastore string) error {
	ds := a.resolveDatastore(datastore)

	spec, err := parseOutputSpec(a.Def.BodyParameters)
	if err != nil {
		return err
	}
	a.spec = spec

	if err := a.reconcileExistingOutput(ctx, ds); err != nil {
		return err
	}
	if err := a.createRemote(ctx, ds); err != nil {
		return err
	}
	if err := a.resolveIO(ctx, ds); err != nil {
		return err
	}
	if err := a.applyTags(ctx); err != nil {
		return err
	}
	if err := a.applyComments(ctx); err != nil {
		return err
	}
	return a.launch(ctx)
}

// reconcileExistingOutput is step 1: decide, before any remote mutation,
// whether a pre-existing processing-execution or output entity should be
// reused, deleted, or left untouched ahead of a fresh create (spec.md
// §4.5.2).
func (a *ProcessingExecutionAction) reconcileExistingOutput(ctx context.Context, ds string) error {
	if a.spec.kind == "no_output" {
		return nil
	}
	if a.spec.isNewEntity() {
		return a.reconcileNewPath(ctx, ds)
	}
	if a.spec.isUpdateEntity() {
		return a.reconcileUpdatePath(ctx, ds)
	}
	return gpferrors.NewStepActionError("processing-execution", "body_parameters.output doit fournir soit name soit _id")
}

// reconcileNewPath handles body_parameters.output naming a brand new
// upload/stored_data by name: a prior run under the same name may already
// exist in the datastore.
func (a *ProcessingExecutionAction) reconcileNewPath(ctx context.Context, ds string) error {
	existing, err := a.findExistingOutputEntity(ctx, ds, a.spec)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	switch a.Behavior {
	case BehaviorStop:
		return gpferrors.NewStepActionError("processing-execution",
			fmt.Sprintf("une sortie %q nommée %q existe déjà", a.spec.kind, a.spec.name))

	case BehaviorDelete:
		if err := existing.ApiDelete(ctx); err != nil {
			return err
		}
		return nil

	case BehaviorResume, BehaviorContinue:
		if existing.Status() == unstableStatusFor(a.spec.kind) {
			if a.Behavior == BehaviorResume {
				if err := existing.ApiDelete(ctx); err != nil {
					return err
				}
				return nil
			}
			return gpferrors.NewStepActionError("processing-execution",
				fmt.Sprintf("la sortie %q précédente est dans un état instable", a.spec.kind))
		}
		prior, err := a.findProcessingExecutionByOutput(ctx, ds, a.spec.kind, existing.ID())
		if err != nil {
			return err
		}
		if prior == nil {
			return gpferrors.NewStepActionError("processing-execution",
				"aucune exécution de traitement existante à reprendre pour cette sortie")
		}
		a.pe = prior
		a.output = existing
		return nil

	default:
		return gpferrors.NewStepActionError("processing-execution",
			fmt.Sprintf("comportement inconnu %q, attendu parmi STOP, DELETE, CONTINUE, RESUME", a.Behavior))
	}
}

// reconcileUpdatePath handles body_parameters.output naming an existing
// entity by _id: a prior processing-execution targeting that same output
// may already exist.
func (a *ProcessingExecutionAction) reconcileUpdatePath(ctx context.Context, ds string) error {
	prior, err := a.findExistingProcessingExecution(ctx, ds)
	if err != nil {
		return err
	}
	if prior == nil {
		return nil
	}

	switch a.Behavior {
	case BehaviorStop:
		return gpferrors.NewStepActionError("processing-execution",
			"une exécution de traitement existe déjà pour cette sortie")

	case BehaviorDelete:
		// Open question (spec.md §9), preserved verbatim: DELETE on the
		// update path does not delete the prior processing-execution — it
		// silently leaves it in place and falls through to creating a fresh
		// job, unlike the new-entity path where DELETE does call
		// api_delete on the conflicting entity.
		return nil

	case BehaviorResume, BehaviorContinue:
		if a.Behavior == BehaviorResume &&
			(prior.Status() == entities.ProcessingExecutionFailure || prior.Status() == entities.ProcessingExecutionAborted) {
			return nil
		}
		// spec.md §4.5.2: reuse the prior job and its output, but only if
		// the output itself did not settle into an unstable state — a
		// distinct check from the prior job's own FAILURE/ABORTED status
		// above. Grounded on __gestion_update_entity's
		// StoredData.STATUS_UNSTABLE guard.
		output, err := a.fetchOutputByID(ctx, ds)
		if err != nil {
			return err
		}
		if output.Status() == unstableStatusFor(a.spec.kind) {
			return gpferrors.NewStepActionError("processing-execution",
				fmt.Sprintf("la sortie %q précédente est dans un état instable", a.spec.kind))
		}
		a.pe = prior
		a.output = output
		return nil

	default:
		return gpferrors.NewStepActionError("processing-execution",
			fmt.Sprintf("comportement inconnu %q, attendu parmi STOP, DELETE, CONTINUE, RESUME", a.Behavior))
	}
}

// fetchOutputByID refreshes the update-path output entity named by
// body_parameters.output's _id, so its current status can be checked
// before a prior processing-execution is reused (spec.md §4.5.2: reuse P
// and its output, but fail if the output's status is UNSTABLE).
func (a *ProcessingExecutionAction) fetchOutputByID(ctx context.Context, ds string) (outputEntity, error) {
	var out outputEntity
	switch a.spec.kind {
	case "upload":
		out = entities.NewUpload(a.Env.Req, ds, entities.Entity{"_id": a.spec.id})
	case "stored_data":
		out = entities.NewStoredData(a.Env.Req, ds, entities.Entity{"_id": a.spec.id})
	default:
		return nil, gpferrors.NewStepActionError("processing-execution", fmt.Sprintf("type de sortie %q inconnu", a.spec.kind))
	}
	if err := out.ApiGet(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *ProcessingExecutionAction) findExistingOutputEntity(ctx context.Context, ds string, spec outputSpec) (outputEntity, error) {
	infos := map[string]string{"name": spec.name}
	switch spec.kind {
	case "upload":
		list, err := entities.ApiListUploads(ctx, a.Env.Req, ds, infos, nil, 0)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	case "stored_data":
		list, err := entities.ApiListStoredData(ctx, a.Env.Req, ds, infos, nil, 0)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	default:
		return nil, gpferrors.NewStepActionError("processing-execution", fmt.Sprintf("type de sortie %q inconnu", spec.kind))
	}
}

func (a *ProcessingExecutionAction) findProcessingExecutionByOutput(ctx context.Context, ds, kind, outputID string) (*entities.ProcessingExecution, error) {
	filters := map[string]string{"output_" + kind: outputID}
	list, err := entities.ApiListProcessingExecutions(ctx, a.Env.Req, ds, filters, nil, 0)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// findExistingProcessingExecution looks up a prior job matching this
// action's processing id, output id and inputs. Open question (spec.md
// §9), preserved verbatim: the remote-side filter only ever considers one
// input kind, and only its first id — never both upload and stored_data at
// once. Reproduced verbatim from the platform's own lookup (an if/elif,
// not an if/if): when body_parameters.inputs.upload is non-empty the
// filter is input_upload only; input_stored_data is considered solely
// when upload is absent. Because that filter is coarse, each candidate the
// filter returns is refined by refetching it and comparing its full
// resolved input id sets and its parameters against this action's
// declaration — a candidate only counts as "the same job" once all three
// agree, not merely the first id of one input kind.
func (a *ProcessingExecutionAction) findExistingProcessingExecution(ctx context.Context, ds string) (*entities.ProcessingExecution, error) {
	filters := map[string]string{"output_" + a.spec.kind: a.spec.id}
	if processing, ok := a.Def.BodyParameters["processing"].(string); ok && processing != "" {
		filters["processing"] = processing
	}
	uploadIDs, storedDataIDs := parseInputIDs(a.Def.BodyParameters)
	if len(uploadIDs) > 0 {
		filters["input_upload"] = uploadIDs[0]
	} else if len(storedDataIDs) > 0 {
		filters["input_stored_data"] = storedDataIDs[0]
	}

	list, err := entities.ApiListProcessingExecutions(ctx, a.Env.Req, ds, filters, nil, 0)
	if err != nil {
		return nil, err
	}

	wantUpload := sortedCopy(uploadIDs)
	wantStoredData := sortedCopy(storedDataIDs)
	wantParameters, _ := a.Def.BodyParameters["parameters"].(map[string]interface{})

	for _, candidate := range list {
		if err := candidate.ApiUpdate(ctx); err != nil {
			return nil, err
		}
		gotUpload, gotStoredData := resolvedInputIDs(candidate.Attrs)
		if !stringSlicesEqual(sortedCopy(gotUpload), wantUpload) {
			continue
		}
		if !stringSlicesEqual(sortedCopy(gotStoredData), wantStoredData) {
			continue
		}
		gotParameters, _ := candidate.Attrs["parameters"].(map[string]interface{})
		if !parametersEqual(gotParameters, wantParameters) {
			continue
		}
		return candidate, nil
	}
	return nil, nil
}

// resolvedInputIDs extracts ids from a processing-execution's server-side
// "inputs" attribute, where upload/stored_data inputs are resolved to full
// {"_id": ...} objects rather than the bare id strings body_parameters.inputs
// is declared with.
func resolvedInputIDs(attrs map[string]interface{}) (uploads []string, storedData []string) {
	raw, ok := attrs["inputs"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	extract := func(key string) []string {
		items, ok := raw[key].([]interface{})
		if !ok {
			return nil
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if obj, ok := item.(map[string]interface{}); ok {
				if id, ok := obj["_id"].(string); ok {
					out = append(out, id)
				}
			}
		}
		return out
	}
	return extract("upload"), extract("stored_data")
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func parametersEqual(a, b map[string]interface{}) bool {
	if a == nil {
		a = map[string]interface{}{}
	}
	if b == nil {
		b = map[string]interface{}{}
	}
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}

// createRemote is step 2: if reconciliation did not reuse a prior job,
// create a fresh one from the action's declared body parameters.
func (a *ProcessingExecutionAction) createRemote(ctx context.Context, ds string) error {
	if a.pe != nil {
		return nil
	}
	pe := entities.NewProcessingExecution(a.Env.Req, ds, nil)
	if err := pe.ApiCreate(ctx, a.Def.BodyParameters); err != nil {
		return err
	}
	a.pe = pe
	return nil
}

// resolveIO is step 3: fetch the concrete input and output entities the
// created/reused job declares, so later steps (tagging, comments,
// monitoring) have live handles rather than bare ids.
func (a *ProcessingExecutionAction) resolveIO(ctx context.Context, ds string) error {
	uploadIDs, storedDataIDs := parseInputIDs(a.pe.Attrs)
	a.inputs = a.inputs[:0]
	for _, id := range uploadIDs {
		u := entities.NewUpload(a.Env.Req, ds, entities.Entity{"_id": id})
		if err := u.ApiGet(ctx); err != nil {
			return err
		}
		a.inputs = append(a.inputs, u)
	}
	for _, id := range storedDataIDs {
		s := entities.NewStoredData(a.Env.Req, ds, entities.Entity{"_id": id})
		if err := s.ApiGet(ctx); err != nil {
			return err
		}
		a.inputs = append(a.inputs, s)
	}

	if a.output != nil || a.spec.kind == "no_output" {
		return nil
	}
	out, err := a.fetchOutputFromJob(ctx, ds)
	if err != nil {
		return err
	}
	a.output = out
	return nil
}

func (a *ProcessingExecutionAction) fetchOutputFromJob(ctx context.Context, ds string) (outputEntity, error) {
	raw, ok := a.pe.Attrs["output"].(map[string]interface{})
	if !ok {
		return nil, gpferrors.NewStepActionError("processing-execution", "le job ne fournit pas de sortie exploitable")
	}
	if _, ok := raw["no_output"]; ok {
		return nil, nil
	}
	if obj, ok := raw["upload"].(map[string]interface{}); ok {
		id, _ := obj["_id"].(string)
		u := entities.NewUpload(a.Env.Req, ds, entities.Entity{"_id": id})
		if err := u.ApiGet(ctx); err != nil {
			return nil, err
		}
		return u, nil
	}
	if obj, ok := raw["stored_data"].(map[string]interface{}); ok {
		id, _ := obj["_id"].(string)
		s := entities.NewStoredData(a.Env.Req, ds, entities.Entity{"_id": id})
		if err := s.ApiGet(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, gpferrors.NewStepActionError("processing-execution", "sortie de job de forme inattendue")
}

// applyTags is step 4: tag the output with the action's declared tags,
// plus — in compatibility-cartes mode, for the distinguished
// id_mise_en_base processing — tag every input upload with the job's
// tracking ids and enforce that it already carries a datasheet_name tag.
func (a *ProcessingExecutionAction) applyTags(ctx context.Context) error {
	if len(a.Def.Tags) > 0 && a.output != nil {
		if t, ok := a.output.(taggableEntity); ok {
			if err := t.ApiAddTags(ctx, a.Def.Tags); err != nil {
				return err
			}
		}
	}

	if !a.cartesMode() {
		return nil
	}
	for _, in := range a.inputs {
		upload, ok := in.(*entities.Upload)
		if !ok {
			continue
		}
		if err := a.tagCartesUpload(ctx, upload); err != nil {
			return err
		}
	}
	return nil
}

func (a *ProcessingExecutionAction) cartesMode() bool {
	if a.pe == nil || !a.Env.Cartes.Enabled || a.Env.Cartes.IDMiseEnBase == "" {
		return false
	}
	processing, _ := a.pe.Attrs["processing"].(string)
	return processing == a.Env.Cartes.IDMiseEnBase
}

func (a *ProcessingExecutionAction) tagCartesUpload(ctx context.Context, upload *entities.Upload) error {
	existing, err := upload.ApiListTags(ctx)
	if err != nil {
		return err
	}
	if _, ok := existing[a.Env.Cartes.DatasheetTagKey]; !ok {
		return gpferrors.NewStepActionError("processing-execution",
			fmt.Sprintf("le tag %q est requis sur l'upload %s en mode compatibilité cartes", a.Env.Cartes.DatasheetTagKey, upload.ID()))
	}

	tags := map[string]string{"proc_int_id": a.pe.ID(), "stage": "execution_start"}
	if vectordbID, ok := stringParam(a.Def.BodyParameters, "vectordb_id"); ok {
		tags["vectordb_id"] = vectordbID
	}
	return upload.ApiAddTags(ctx, tags)
}

func stringParam(bodyParameters map[string]interface{}, key string) (string, bool) {
	params, ok := bodyParameters["parameters"].(map[string]interface{})
	if !ok {
		return "", false
	}
	s, ok := params[key].(string)
	return s, ok
}

// applyComments is step 5: add every declared comment not already present
// on the output — add-if-absent, never a duplicate, matching the
// idempotent-add semantics SPEC_FULL.md §4.5 generalizes from this step.
func (a *ProcessingExecutionAction) applyComments(ctx context.Context) error {
	if len(a.Def.Comments) == 0 || a.output == nil {
		return nil
	}
	c, ok := a.output.(commentableEntity)
	if !ok {
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
	for _, comment := range a.Def.Comments {
		if seen[comment] {
			continue
		}
		if err := c.ApiAddComment(ctx, comment); err != nil {
			return err
		}
	}
	return nil
}

// launch is step 6: start the job, unless it was reused mid-flight under
// CONTINUE/RESUME (in which case it is already running and launching again
// would be rejected by the platform).
func (a *ProcessingExecutionAction) launch(ctx context.Context) error {
	if a.pe.Status() == entities.ProcessingExecutionCreated {
		return a.pe.ApiLaunch(ctx)
	}
	if a.Behavior == BehaviorContinue || a.Behavior == BehaviorResume {
		return nil
	}
	return gpferrors.NewStepActionError("processing-execution", "l'exécution de traitement est déjà lancée")
}

// MonitoringUntilEnd polls the job every nb_sec_between_check_updates until
// it reaches a terminal status, invoking callback (if non-nil) after every
// refresh. ctrlC implements the two-step interrupt protocol of spec.md
// §4.5.3: on SIGINT, the status is refreshed once; if already terminal the
// interrupt is simply re-raised, otherwise ctrlC decides whether to abort
// the remote job (nil ctrlC means always abort) or resume polling.
func (a *ProcessingExecutionAction) MonitoringUntilEnd(ctx context.Context, callback func(entities.Entity), ctrlC func() bool) (string, error) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer func() { stop() }()

	interval := a.Env.ProcessingExecutionCfg.NbSecBetweenCheckUpdates
	if interval <= 0 {
		interval = 30 * time.Second
	}

	for {
		select {
		case <-sigCtx.Done():
			status, err := a.onInterrupt(ctx, callback, ctrlC)
			if err != nil {
				return status, err
			}
			// ctrlC declined: re-arm the interrupt watch so polling resumes.
			stop()
			sigCtx, stop = signal.NotifyContext(ctx, os.Interrupt)
			continue
		case <-time.After(interval):
		}

		if err := a.pe.ApiUpdate(ctx); err != nil {
			return "", err
		}
		if callback != nil {
			callback(a.pe.Attrs)
		}
		if status := a.pe.Status(); isTerminalProcessingStatus(status) {
			a.tagCartesCompletion(ctx, status)
			return status, nil
		}
	}
}

func (a *ProcessingExecutionAction) onInterrupt(ctx context.Context, callback func(entities.Entity), ctrlC func() bool) (string, error) {
	if err := a.pe.ApiUpdate(ctx); err != nil {
		return "", err
	}
	status := a.pe.Status()
	if isTerminalProcessingStatus(status) {
		if callback != nil {
			callback(a.pe.Attrs)
		}
		return status, gpferrors.NewGpfSdkError("suivi interrompu par l'utilisateur", context.Canceled)
	}

	abort := ctrlC == nil
	if ctrlC != nil {
		abort = ctrlC()
	}
	if !abort {
		return "", nil
	}

	if err := a.pe.ApiAbort(ctx); err != nil {
		return "", err
	}
	for {
		time.Sleep(2 * time.Second)
		if err := a.pe.ApiUpdate(ctx); err != nil {
			return "", err
		}
		if isTerminalProcessingStatus(a.pe.Status()) {
			break
		}
	}
	if callback != nil {
		callback(a.pe.Attrs)
	}
	final := a.pe.Status()
	if a.spec.isNewEntity() && final == entities.ProcessingExecutionAborted && a.output != nil {
		if err := a.output.ApiDelete(ctx); err != nil {
			a.Env.Logger.Error("échec de la suppression de la sortie après interruption",
				"output_id", a.output.ID(), "error", err)
		}
	}
	return final, gpferrors.NewGpfSdkError("suivi interrompu par l'utilisateur", context.Canceled)
}

func (a *ProcessingExecutionAction) tagCartesCompletion(ctx context.Context, status string) {
	if !a.cartesMode() {
		return
	}
	key := "failure"
	if status == entities.ProcessingExecutionSuccess {
		key = "success"
	}
	for _, in := range a.inputs {
		upload, ok := in.(*entities.Upload)
		if !ok {
			continue
		}
		if err := upload.ApiAddTags(ctx, map[string]string{"integration_progress": key}); err != nil {
			a.Env.Logger.Error("échec du marquage de fin d'intégration Cartes.gouv.fr",
				"upload_id", upload.ID(), "error", err)
		}
	}
}
