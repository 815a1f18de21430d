package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jeremybastin1207/mindia/internal/dbstore"
	"github.com/jeremybastin1207/mindia/pkg/media"
	"github.com/jeremybastin1207/mindia/pkg/objectstore/local"
	"github.com/jeremybastin1207/mindia/pkg/task"
	"github.com/jeremybastin1207/mindia/pkg/upload"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	gormStore, err := dbstore.New(&dbstore.Config{
		Type:   dbstore.DatabaseTypeSQLite,
		SQLite: dbstore.SQLiteConfig{Path: ":memory:"},
	}, append(append(task.AllModels(), media.AllModels()...), upload.AllModels()...)...)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	objStore, err := local.New(local.Config{RootDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create test object store: %v", err)
	}

	taskHandler := NewTaskHandler(task.NewRepository(gormStore))
	mediaRepo := media.NewRepository(gormStore.DB(), objStore)
	uploadHandler := NewUploadHandler(upload.NewCoordinator(upload.NewRepository(gormStore.DB()), mediaRepo, objStore, nil))

	return NewRouter(taskHandler, uploadHandler)
}

func doJSON(t *testing.T, r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointReturnsOK(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", rec.Code)
	}
}

func TestIsHealthPath(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/", true},
		{"/health/ready", true},
		{"/api/v1/tasks", false},
		{"/healthcheck", false},
	}
	for _, c := range cases {
		if got := isHealthPath(c.path); got != c.want {
			t.Errorf("isHealthPath(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestSubmitTaskThenGetRoundTrips(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/tasks", SubmitRequest{Tenant: "acme", Kind: "thumbnail"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 from submit, got %d: %s", rec.Code, rec.Body.String())
	}

	var submitResp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &submitResp); err != nil {
		t.Fatalf("unmarshal submit response: %v", err)
	}
	data, ok := submitResp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected submit data to be an object, got %T", submitResp.Data)
	}
	id, _ := data["id"].(string)
	if id == "" {
		t.Fatal("expected the created task to carry a non-empty id")
	}

	getRec := doJSON(t, r, http.MethodGet, "/api/v1/tasks/"+id+"?tenant=acme", nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from get, got %d: %s", getRec.Code, getRec.Body.String())
	}
}

func TestSubmitTaskMissingTenantReturnsBadRequest(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/v1/tasks", SubmitRequest{Kind: "thumbnail"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing tenant, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetTaskMissingTenantReturnsBadRequest(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/api/v1/tasks/some-id", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when tenant is omitted, got %d", rec.Code)
	}
}

func TestGetTaskNotFoundReturns404(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/api/v1/tasks/does-not-exist?tenant=acme", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown task id, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListAndStatsTasks(t *testing.T) {
	r := newTestRouter(t)

	for _, kind := range []string{"thumbnail", "transcode"} {
		rec := doJSON(t, r, http.MethodPost, "/api/v1/tasks", SubmitRequest{Tenant: "acme", Kind: kind})
		if rec.Code != http.StatusCreated {
			t.Fatalf("submit %s: expected 201, got %d", kind, rec.Code)
		}
	}

	listRec := doJSON(t, r, http.MethodGet, "/api/v1/tasks?tenant=acme", nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from list, got %d", listRec.Code)
	}
	var listResp Response
	if err := json.Unmarshal(listRec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("unmarshal list response: %v", err)
	}
	rows, ok := listResp.Data.([]any)
	if !ok || len(rows) != 2 {
		t.Fatalf("expected 2 tasks listed, got %v", listResp.Data)
	}

	statsRec := doJSON(t, r, http.MethodGet, "/api/v1/tasks/stats?tenant=acme", nil)
	if statsRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from stats, got %d: %s", statsRec.Code, statsRec.Body.String())
	}
}

func TestCancelThenRetryTask(t *testing.T) {
	r := newTestRouter(t)

	submitRec := doJSON(t, r, http.MethodPost, "/api/v1/tasks", SubmitRequest{Tenant: "acme", Kind: "thumbnail"})
	var submitResp Response
	if err := json.Unmarshal(submitRec.Body.Bytes(), &submitResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	id := submitResp.Data.(map[string]any)["id"].(string)

	cancelRec := doJSON(t, r, http.MethodPost, "/api/v1/tasks/"+id+"/cancel?tenant=acme", nil)
	if cancelRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from cancel, got %d: %s", cancelRec.Code, cancelRec.Body.String())
	}

	// A cancelled task is not in the Failed state RetryTask requires, so
	// the state-machine guard should surface as a 409.
	retryRec := doJSON(t, r, http.MethodPost, "/api/v1/tasks/"+id+"/retry?tenant=acme", nil)
	if retryRec.Code != http.StatusConflict {
		t.Fatalf("expected 409 retrying a cancelled task, got %d: %s", retryRec.Code, retryRec.Body.String())
	}
}

func TestStartUploadAgainstLocalStoreReturnsUnprocessable(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/uploads", StartRequest{
		Tenant:        "acme",
		Filename:      "movie.mp4",
		ContentType:   "video/mp4",
		DeclaredSize:  1024,
		MediaKind:     string(media.KindVideo),
		ChunkSize:     256,
		StoreBehavior: string(media.StoreBehaviorPermanent),
	})
	// The test object store is filesystem-backed and cannot hand out
	// presigned PUT URLs; the coordinator reports this as Unrecoverable,
	// which the HTTP layer maps to 422.
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 starting an upload against a local store, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartUploadMissingFieldsReturnsBadRequest(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/v1/uploads", StartRequest{Tenant: "acme"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a start request missing required fields, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUploadProgressMissingTenantReturnsBadRequest(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/api/v1/uploads/some-session/progress", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when tenant is omitted, got %d", rec.Code)
	}
}

func TestSubmitTaskInvalidBodyReturnsBadRequest(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed JSON body, got %d", rec.Code)
	}
}
