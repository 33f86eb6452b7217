package entities_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IGNF/gpf-sdk-go/pkg/auth"
	"github.com/IGNF/gpf-sdk-go/pkg/config"
	"github.com/IGNF/gpf-sdk-go/pkg/entities"
	"github.com/IGNF/gpf-sdk-go/pkg/request"
)

func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	}))
}

func newRequester(t *testing.T, apiBaseURL string, routing ...string) *request.Requester {
	t.Helper()
	t.Cleanup(config.Reset)

	tok := tokenServer(t)
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
	return request.New(cfg, a, nil)
}

func TestUpload_ApiGet_ReplacesAttrsWholesale(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/datastores/DS/uploads/u1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"_id":"u1","status":"OPEN","name":"n"}`))
	}))
	defer srv.Close()

	req := newRequester(t, srv.URL,
		`upload_get = {"url": "/api/v1/datastores/{datastore}/uploads/{upload_id}", "method": "GET"}`)

	u := entities.NewUpload(req, "DS", entities.Entity{"_id": "u1", "stale": true})
	require.NoError(t, u.ApiGet(t.Context()))
	require.Equal(t, "u1", u.ID())
	require.Equal(t, entities.UploadOpen, u.Status())
	_, stale := u.Attrs["stale"]
	require.False(t, stale, "api_get must replace the attribute map, not merge into it")
}

func TestUpload_ApiCreate(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 256)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"_id":"u2","status":"OPEN"}`))
	}))
	defer srv.Close()

	req := newRequester(t, srv.URL,
		`upload_create = {"url": "/api/v1/datastores/{datastore}/uploads", "method": "POST"}`)

	u := entities.NewUpload(req, "DS", nil)
	require.NoError(t, u.ApiCreate(t.Context(), map[string]interface{}{"name": "n"}))
	require.Equal(t, "u2", u.ID())
	require.Contains(t, gotBody, `"name":"n"`)
}

func TestUpload_ApiPushDataFile_StreamsFile(t *testing.T) {
	var receivedSize int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		buf := make([]byte, 4096)
		n, _ := f.Read(buf)
		receivedSize = int64(n)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req := newRequester(t, srv.URL,
		`upload_push_data_file = {"url": "/api/v1/datastores/{datastore}/uploads/{upload_id}/data", "method": "POST"}`)

	tmp := filepath.Join(t.TempDir(), "d.bin")
	require.NoError(t, os.WriteFile(tmp, []byte("some file content"), 0o644))

	u := entities.NewUpload(req, "DS", entities.Entity{"_id": "u3"})
	require.NoError(t, u.ApiPushDataFile(t.Context(), tmp, ""))
	require.EqualValues(t, len("some file content"), receivedSize)
}

func TestProcessingExecution_ApiLogs_AcceptsBothShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"raw string", `"line one\nline two"`, "line one\nline two"},
		{"json array", `["line one","line two"]`, "line one\nline two"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			req := newRequester(t, srv.URL,
				`processing_execution_logs = {"url": "/api/v1/datastores/{datastore}/processings/executions/{processing_execution_id}/logs", "method": "GET"}`)

			pe := entities.NewProcessingExecution(req, "DS", entities.Entity{"_id": "p1"})
			got, err := pe.ApiLogs(t.Context())
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestProcessingExecution_ApiListLogsTail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["a","b","c","d"]`))
	}))
	defer srv.Close()

	req := newRequester(t, srv.URL,
		`processing_execution_logs = {"url": "/api/v1/datastores/{datastore}/processings/executions/{processing_execution_id}/logs", "method": "GET"}`)

	pe := entities.NewProcessingExecution(req, "DS", entities.Entity{"_id": "p1"})
	got, err := pe.ApiListLogsTail(t.Context(), 2)
	require.NoError(t, err)
	require.Equal(t, "c\nd", got)
}

func TestOffering_Urls_AcceptsBothShapes(t *testing.T) {
	stringsShape := entities.NewOffering(nil, "DS", entities.Entity{
		"urls": []interface{}{"https://a", "https://b"},
	})
	require.Equal(t, []string{"https://a", "https://b"}, stringsShape.Urls())

	dictsShape := entities.NewOffering(nil, "DS", entities.Entity{
		"urls": []interface{}{
			map[string]interface{}{"url": "https://a"},
			map[string]interface{}{"url": "https://b"},
		},
	})
	require.Equal(t, []string{"https://a", "https://b"}, dictsShape.Urls())
}

func TestTagsCapability_AddRemoveList(t *testing.T) {
	var gotAdd, gotRemove bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/datastores/DS/stored_data/s1/tags/add":
			gotAdd = true
			w.WriteHeader(http.StatusOK)
		case "/api/v1/datastores/DS/stored_data/s1/tags/remove":
			gotRemove = true
			w.WriteHeader(http.StatusOK)
		case "/api/v1/datastores/DS/stored_data/s1/tags":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"k":"v"}`))
		}
	}))
	defer srv.Close()

	req := newRequester(t, srv.URL,
		`stored_data_add_tags = {"url": "/api/v1/datastores/{datastore}/stored_data/{stored_data_id}/tags/add", "method": "POST"}`,
		`stored_data_remove_tags = {"url": "/api/v1/datastores/{datastore}/stored_data/{stored_data_id}/tags/remove", "method": "POST"}`,
		`stored_data_list_tags = {"url": "/api/v1/datastores/{datastore}/stored_data/{stored_data_id}/tags", "method": "GET"}`,
	)

	sd := entities.NewStoredData(req, "DS", entities.Entity{"_id": "s1"})
	require.NoError(t, sd.ApiAddTags(t.Context(), map[string]string{"k": "v"}))
	require.True(t, gotAdd)
	require.NoError(t, sd.ApiRemoveTags(t.Context(), []string{"k"}))
	require.True(t, gotRemove)
	tags, err := sd.ApiListTags(t.Context())
	require.NoError(t, err)
	require.Equal(t, map[string]string{"k": "v"}, tags)
}

func TestApiList_FollowsContentRangePagination(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			w.Header().Set("Content-Range", "1-2/3")
			_, _ = w.Write([]byte(`[{"_id":"u1"},{"_id":"u2"}]`))
		default:
			w.Header().Set("Content-Range", "3-3/3")
			_, _ = w.Write([]byte(`[{"_id":"u3"}]`))
		}
	}))
	defer srv.Close()

	req := newRequester(t, srv.URL,
		`upload_list = {"url": "/api/v1/datastores/{datastore}/uploads", "method": "GET"}`)

	uploads, err := entities.ApiListUploads(t.Context(), req, "DS", nil, nil, 2)
	require.NoError(t, err)
	require.Len(t, uploads, 3)
	require.Equal(t, 2, calls)
}

func TestReUploadFile_UsesSharedRoute(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req := newRequester(t, srv.URL,
		`store_entity_re_upload = {"url": "/api/v1/datastores/{datastore}/uploads/{upload_id}/file", "method": "PUT"}`)

	tmp := filepath.Join(t.TempDir(), "r.bin")
	require.NoError(t, os.WriteFile(tmp, []byte("x"), 0o644))

	u := entities.NewUpload(req, "DS", entities.Entity{"_id": "u1"})
	require.NoError(t, u.ApiReUpload(t.Context(), tmp))
	require.Equal(t, "/api/v1/datastores/DS/uploads/u1/file", gotPath)
}

func TestCommentsCapability_AddAndList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusOK)
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"text":"hello"},{"text":"world"}]`))
		}
	}))
	defer srv.Close()

	req := newRequester(t, srv.URL,
		`processing_execution_add_comment = {"url": "/api/v1/datastores/{datastore}/processings/executions/{processing_execution_id}/comments", "method": "POST"}`,
		`processing_execution_list_comments = {"url": "/api/v1/datastores/{datastore}/processings/executions/{processing_execution_id}/comments", "method": "GET"}`,
	)

	pe := entities.NewProcessingExecution(req, "DS", entities.Entity{"_id": "p1"})
	require.NoError(t, pe.ApiAddComment(t.Context(), "hello"))
	texts, err := pe.ApiListComments(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"hello", "world"}, texts)
}

func TestOffering_PublishUnpublish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/unpublish") {
			_, _ = w.Write([]byte(`{"_id":"o1","status":"UNSTABLE"}`))
			return
		}
		_, _ = w.Write([]byte(`{"_id":"o1","status":"PUBLISHED"}`))
	}))
	defer srv.Close()

	req := newRequester(t, srv.URL,
		`offering_publish = {"url": "/api/v1/datastores/{datastore}/offerings/{offering_id}/publish", "method": "POST"}`,
		`offering_unpublish = {"url": "/api/v1/datastores/{datastore}/offerings/{offering_id}/unpublish", "method": "POST"}`,
	)

	o := entities.NewOffering(req, "DS", entities.Entity{"_id": "o1"})
	require.NoError(t, o.ApiPublish(t.Context()))
	require.Equal(t, entities.OfferingPublished, o.Status())
	require.NoError(t, o.ApiUnpublish(t.Context()))
	require.Equal(t, entities.OfferingUnstable, o.Status())
}

func TestConfiguration_ApiListOfferings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Range", "1-1/1")
		_, _ = w.Write([]byte(`[{"_id":"o1","status":"PUBLISHED"}]`))
	}))
	defer srv.Close()

	req := newRequester(t, srv.URL,
		`configuration_list_offerings = {"url": "/api/v1/datastores/{datastore}/configurations/{configuration_id}/offerings", "method": "GET"}`,
	)

	cfg := entities.NewConfiguration(req, "DS", entities.Entity{"_id": "c1"})
	offerings, err := cfg.ApiListOfferings(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, offerings, 1)
	require.Equal(t, "o1", offerings[0].ID())
}

func TestComputeFileMD5(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "m.bin")
	require.NoError(t, os.WriteFile(tmp, []byte("hello world"), 0o644))
	sum, err := entities.ComputeFileMD5(tmp)
	require.NoError(t, err)
	require.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", sum)
}
