package action

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IGNF/gpf-sdk-go/pkg/auth"
	"github.com/IGNF/gpf-sdk-go/pkg/config"
	"github.com/IGNF/gpf-sdk-go/pkg/entities"
	"github.com/IGNF/gpf-sdk-go/pkg/request"
)

// internalTokenServer and internalTestEnv mirror action_test.go's
// tokenServer/newEnv helpers; duplicated here because this file lives in
// package action (to reach ProcessingExecutionAction's unexported fields)
// rather than package action_test.
func internalTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	}))
}

func internalTestEnv(t *testing.T, apiBaseURL string, routing ...string) *Environment {
	t.Helper()
	t.Cleanup(config.Reset)

	tok := internalTokenServer(t)
	t.Cleanup(tok.Close)

	var routingBlock string
	for _, r := range routing {
		routingBlock += r + "\n"
	}

	path := filepath.Join(t.TempDir(), "config.ini")
	content := fmt.Sprintf(`
[store_api]
root_url = %s
nb_attempts = 1
sec_between_attempts = 0
datastore = DS

[store_authentification]
auth_base_url = %s
login = alice
password = hunter2
client_id = gpf-cli
client_secret = shh

[routing]
%s
`, apiBaseURL, tok.URL, routingBlock)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	a := auth.New(cfg)
	req := request.New(cfg, a, nil)
	return NewEnvironment(req, cfg, "DS")
}

const monitoringRoutes = `
processing_execution_get = {"url": "/api/v1/datastores/{datastore}/processings/executions/{processing_execution_id}", "method": "GET"}
processing_execution_abort = {"url": "/api/v1/datastores/{datastore}/processings/executions/{processing_execution_id}/abort", "method": "POST"}
upload_delete = {"url": "/api/v1/datastores/{datastore}/uploads/{upload_id}", "method": "DELETE"}
`

// testable property 11: monitoring_until_end invokes callback exactly once
// per polling iteration including the final terminal iteration, and returns
// the terminal status verbatim.
func TestMonitoringUntilEnd_CallsCallbackPerIteration(t *testing.T) {
	statuses := []string{"CREATED", "PROGRESS", "SUCCESS"}
	idx := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := statuses[idx]
		if idx < len(statuses)-1 {
			idx++
		}
		_, _ = fmt.Fprintf(w, `{"_id":"pe1","status":%q}`, status)
	}))
	defer srv.Close()

	env := internalTestEnv(t, srv.URL, monitoringRoutes)

	a := &ProcessingExecutionAction{Base: Base{Env: env, Behavior: BehaviorStop}}
	a.spec = outputSpec{kind: "no_output", noOutput: true}
	a.pe = entities.NewProcessingExecution(env.Req, "DS", entities.Entity{"_id": "pe1", "status": "CREATED"})
	env.ProcessingExecutionCfg.NbSecBetweenCheckUpdates = 5 * time.Millisecond

	var calls int
	status, err := a.MonitoringUntilEnd(t.Context(), func(entities.Entity) { calls++ }, nil)
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", status)
	require.Equal(t, len(statuses), calls, "one callback per poll, including the terminal one")
}

// testable property 12 / scenario S6: under user interrupt with ctrlC
// returning true and a new-entity output, onInterrupt aborts the remote
// job exactly once, polls to terminal, deletes the output iff the final
// status is ABORTED, then re-raises the interrupt.
func TestOnInterrupt_AbortsPollsAndDeletesNewEntityOutput(t *testing.T) {
	var abortCalls, deleteCalls int
	pollStatuses := []string{"PROGRESS", "ABORTED"}
	pollIdx := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/datastores/DS/processings/executions/pe1/abort":
			abortCalls++
			_, _ = w.Write([]byte(`{"_id":"pe1","status":"PROGRESS"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/datastores/DS/processings/executions/pe1":
			status := pollStatuses[pollIdx]
			if pollIdx < len(pollStatuses)-1 {
				pollIdx++
			}
			_, _ = fmt.Fprintf(w, `{"_id":"pe1","status":%q}`, status)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/datastores/DS/uploads/u1":
			deleteCalls++
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	env := internalTestEnv(t, srv.URL, monitoringRoutes)

	a := &ProcessingExecutionAction{Base: Base{Env: env, Behavior: BehaviorContinue}}
	a.spec = outputSpec{kind: "upload", name: "X"}
	a.pe = entities.NewProcessingExecution(env.Req, "DS", entities.Entity{"_id": "pe1", "status": "PROGRESS"})
	a.output = entities.NewUpload(env.Req, "DS", entities.Entity{"_id": "u1", "status": "GENERATED"})

	var calls int
	status, err := a.onInterrupt(t.Context(), func(entities.Entity) { calls++ }, func() bool { return true })

	require.Error(t, err, "the interrupt must be re-raised")
	require.Equal(t, "ABORTED", status)
	require.Equal(t, 1, abortCalls)
	require.Equal(t, 1, deleteCalls)
	require.Equal(t, 1, calls, "callback runs once, after the final terminal poll")
}

// onInterrupt must not abort when ctrlC declines: it returns an empty
// status and no error so the caller resumes polling.
func TestOnInterrupt_DeclinedAbortLeavesJobRunning(t *testing.T) {
	var abortCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost && r.URL.Path == "/api/v1/datastores/DS/processings/executions/pe1/abort" {
			abortCalls++
			_, _ = w.Write([]byte(`{"_id":"pe1","status":"ABORTED"}`))
			return
		}
		if r.Method == http.MethodGet && r.URL.Path == "/api/v1/datastores/DS/processings/executions/pe1" {
			_, _ = w.Write([]byte(`{"_id":"pe1","status":"PROGRESS"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	env := internalTestEnv(t, srv.URL, monitoringRoutes)

	a := &ProcessingExecutionAction{Base: Base{Env: env, Behavior: BehaviorContinue}}
	a.spec = outputSpec{kind: "upload", name: "X"}
	a.pe = entities.NewProcessingExecution(env.Req, "DS", entities.Entity{"_id": "pe1", "status": "PROGRESS"})

	status, err := a.onInterrupt(t.Context(), nil, func() bool { return false })
	require.NoError(t, err)
	require.Empty(t, status)
	require.Equal(t, 0, abortCalls)
}

// reconcileUpdatePath's RESUME/CONTINUE branches must fail when the
// declared output entity is UNSTABLE, grounded on
// __gestion_update_entity's StoredData.STATUS_UNSTABLE check ahead of job
// reuse.
func TestReconcileUpdatePath_FailsWhenOutputUnstable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/datastores/DS/processings/executions":
			w.Header().Set("Content-Range", "0-0/1")
			_, _ = w.Write([]byte(`[{"_id":"pe1","status":"SUCCESS","inputs":{},"parameters":{}}]`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/datastores/DS/processings/executions/pe1":
			_, _ = w.Write([]byte(`{"_id":"pe1","status":"SUCCESS","inputs":{},"parameters":{}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/datastores/DS/stored_data/sd1":
			_, _ = w.Write([]byte(`{"_id":"sd1","status":"UNSTABLE"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	env := internalTestEnv(t, srv.URL,
		`processing_execution_list = {"url": "/api/v1/datastores/{datastore}/processings/executions", "method": "GET"}`,
		`processing_execution_get = {"url": "/api/v1/datastores/{datastore}/processings/executions/{processing_execution_id}", "method": "GET"}`,
		`stored_data_get = {"url": "/api/v1/datastores/{datastore}/stored_data/{stored_data_id}", "method": "GET"}`,
	)

	a := &ProcessingExecutionAction{Base: Base{Env: env, Behavior: BehaviorContinue, Def: Definition{BodyParameters: map[string]interface{}{
		"output": map[string]interface{}{"stored_data": map[string]interface{}{"_id": "sd1"}},
	}}}}
	a.spec = outputSpec{kind: "stored_data", id: "sd1"}

	err := a.reconcileUpdatePath(t.Context(), "DS")
	require.Error(t, err, "an UNSTABLE output must not be reused")
}

// findExistingProcessingExecution must refine the remote filter's
// candidates by comparing each one's full resolved input set and
// parameters, not just accept the first match the coarse filter returns
// (grounded on __gestion_update_entity's "affinage de la recherche" loop).
func TestFindExistingProcessingExecution_RefinesCandidatesByInputsAndParameters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/datastores/DS/processings/executions":
			w.Header().Set("Content-Range", "0-1/2")
			_, _ = w.Write([]byte(`[
				{"_id":"pe-wrong","status":"SUCCESS","inputs":{"stored_data":[{"_id":"id_1"}]},"parameters":{}},
				{"_id":"pe-right","status":"SUCCESS","inputs":{"stored_data":[{"_id":"id_1"},{"_id":"id_2"}]},"parameters":{"param1":"val1"}}
			]`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/datastores/DS/processings/executions/pe-wrong":
			_, _ = w.Write([]byte(`{"_id":"pe-wrong","status":"SUCCESS","inputs":{"stored_data":[{"_id":"id_1"}]},"parameters":{}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/datastores/DS/processings/executions/pe-right":
			_, _ = w.Write([]byte(`{"_id":"pe-right","status":"SUCCESS","inputs":{"stored_data":[{"_id":"id_1"},{"_id":"id_2"}]},"parameters":{"param1":"val1"}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	env := internalTestEnv(t, srv.URL,
		`processing_execution_list = {"url": "/api/v1/datastores/{datastore}/processings/executions", "method": "GET"}`,
		`processing_execution_get = {"url": "/api/v1/datastores/{datastore}/processings/executions/{processing_execution_id}", "method": "GET"}`,
	)

	a := &ProcessingExecutionAction{Base: Base{Env: env, Def: Definition{BodyParameters: map[string]interface{}{
		"processing": "id_processing",
		"inputs":     map[string]interface{}{"stored_data": []interface{}{"id_1", "id_2"}},
		"parameters": map[string]interface{}{"param1": "val1"},
	}}}}
	a.spec = outputSpec{kind: "stored_data", id: "sd1"}

	found, err := a.findExistingProcessingExecution(t.Context(), "DS")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "pe-right", found.ID())
}

// testable property 13: adding the same comments twice on a
// ProcessingExecutionAction's output adds each one at most once.
func TestApplyComments_IdempotentAcrossReruns(t *testing.T) {
	var added []string
	existing := []string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/datastores/DS/uploads/u1/comments":
			body := "["
			for i, c := range existing {
				if i > 0 {
					body += ","
				}
				body += fmt.Sprintf(`{"text":%q}`, c)
			}
			body += "]"
			_, _ = w.Write([]byte(body))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/datastores/DS/uploads/u1/comments":
			added = append(added, "call")
			_, _ = w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	env := internalTestEnv(t, srv.URL,
		`upload_add_comment = {"url": "/api/v1/datastores/{datastore}/uploads/{upload_id}/comments", "method": "POST"}`,
		`upload_list_comments = {"url": "/api/v1/datastores/{datastore}/uploads/{upload_id}/comments", "method": "GET"}`,
	)

	a := &ProcessingExecutionAction{Base: Base{Env: env, Behavior: BehaviorStop, Def: Definition{Comments: []string{"c1", "c2"}}}}
	a.output = entities.NewUpload(env.Req, "DS", entities.Entity{"_id": "u1"})

	require.NoError(t, a.applyComments(t.Context()))
	require.Len(t, added, 2)

	existing = []string{"c1", "c2"}
	added = nil
	require.NoError(t, a.applyComments(t.Context()))
	require.Empty(t, added, "re-running with both comments already present must add nothing")
}
