package handlers_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hseproject/handlers"
	"hseproject/kinds"
	"hseproject/middlewares"
	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/routes"
	"hseproject/services"
	"hseproject/storage"

	"go.uber.org/zap"
)

const secret = "handler-test-secret"

var (
	alice = models.Actor{ID: "u-alice", Name: "Alice", Role: models.RoleUser}
	bob   = models.Actor{ID: "u-bob", Name: "Bob", Role: models.RoleUser}
	admin = models.Actor{ID: "u-admin", Name: "Root", Role: models.RoleAdmin}
)

type testServer struct {
	t   *testing.T
	mux *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	opts := handlers.Options{Logger: zap.NewNop(), Timeout: 5 * time.Second}
	store := repository.NewMemoryStore()
	blobs := storage.NewMemoryStore("/api/upload/files")
	uploads := services.NewUploadService(blobs, 1200, 5, zap.NewNop())

	mux := routes.SetupRoutes(routes.Handlers{
		Records: routes.RecordRoutes(kinds.All(), func(r kinds.Route) *handlers.RecordHandler {
			return handlers.NewRecordHandler(services.NewRecordService(r.Kind, store, zap.NewNop()), opts)
		}),
		Uploads:    handlers.NewUploadHandler(uploads, 1<<20, opts),
		Attendees:  handlers.NewAttendeeHandler(opts),
		Health:     handlers.NewHealthHandler(nil),
		ServeBlobs: true,
	}, secret, "")
	return &testServer{t: t, mux: mux}
}

func (s *testServer) do(actor *models.Actor, method, target string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	s.authorize(actor, req)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) authorize(actor *models.Actor, req *http.Request) {
	s.t.Helper()
	if actor == nil {
		return
	}
	token, err := middlewares.IssueToken(secret, "", *actor, time.Hour)
	if err != nil {
		s.t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

type envelope struct {
	StatusCode int                `json:"status_code"`
	Message    string             `json:"message"`
	Data       json.RawMessage    `json:"data"`
	Errors     json.RawMessage    `json:"errors"`
	Pagination *models.Pagination `json:"pagination"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, want int) envelope {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d: %s", rec.Code, want, rec.Body)
	}
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func document(t *testing.T, env envelope) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal(env.Data, &doc); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return doc
}

func nearMiss() map[string]any {
	return map[string]any{
		"projectId":            "p1",
		"dateTime":             time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339),
		"location":             "Block A",
		"situation":            "Loose scaffold board",
		"potentialConsequence": "Fall of material",
		"preventiveActions":    "Secured the board",
		"reportedBy":           "Alice",
		"severity":             "high",
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	env := decode(t, s.do(nil, http.MethodGet, "/api/health", nil), http.StatusOK)
	if doc := document(t, env); doc["status"] != "OK" || doc["database"] != "memory" {
		t.Errorf("health = %v", doc)
	}
}

func TestRecordRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	env := decode(t, s.do(nil, http.MethodGet, "/api/near-miss", nil), http.StatusUnauthorized)
	if env.Message != "Authorization header required" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestCreateGetUpdateDelete(t *testing.T) {
	s := newTestServer(t)

	created := document(t, decode(t, s.do(&alice, http.MethodPost, "/api/near-miss", nearMiss()), http.StatusCreated))
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("no id in %v", created)
	}
	if created["status"] != kinds.NearMissReported || created["createdBy"] != alice.ID {
		t.Errorf("created = %v", created)
	}

	got := document(t, decode(t, s.do(&bob, http.MethodGet, "/api/near-miss/"+id, nil), http.StatusOK))
	if got["location"] != "Block A" {
		t.Errorf("get = %v", got)
	}

	updated := document(t, decode(t, s.do(&bob, http.MethodPut, "/api/near-miss/"+id,
		map[string]any{"location": "Block B"}), http.StatusOK))
	if updated["location"] != "Block B" || updated["updatedBy"] != bob.ID {
		t.Errorf("updated = %v", updated)
	}

	env := decode(t, s.do(&bob, http.MethodDelete, "/api/near-miss/"+id, nil), http.StatusForbidden)
	if !strings.Contains(env.Message, "Only the creator or an administrator") {
		t.Errorf("message = %q", env.Message)
	}
	decode(t, s.do(&admin, http.MethodDelete, "/api/near-miss/"+id, nil), http.StatusOK)
	decode(t, s.do(&alice, http.MethodGet, "/api/near-miss/"+id, nil), http.StatusNotFound)
}

func TestCreateReportsEveryViolation(t *testing.T) {
	s := newTestServer(t)
	payload := nearMiss()
	delete(payload, "location")
	delete(payload, "situation")
	payload["severity"] = "extreme"

	env := decode(t, s.do(&alice, http.MethodPost, "/api/near-miss", payload), http.StatusBadRequest)
	var errs []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(env.Errors, &errs); err != nil {
		t.Fatalf("errors: %v (%s)", err, env.Errors)
	}
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	for _, want := range []string{"location", "situation", "severity"} {
		if !fields[want] {
			t.Errorf("missing violation for %s in %s", want, env.Errors)
		}
	}
}

func TestMalformedJSON(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/near-miss", strings.NewReader("{not json"))
	s.authorize(&alice, req)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestListPagination(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		decode(t, s.do(&alice, http.MethodPost, "/api/near-miss", nearMiss()), http.StatusCreated)
	}

	env := decode(t, s.do(&alice, http.MethodGet, "/api/near-miss?page=2&limit=2", nil), http.StatusOK)
	var docs []map[string]any
	if err := json.Unmarshal(env.Data, &docs); err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Errorf("page 2 has %d records", len(docs))
	}
	want := models.Pagination{Current: 2, Pages: 2, Total: 3, Limit: 2}
	if env.Pagination == nil || *env.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", env.Pagination, want)
	}

	decode(t, s.do(&alice, http.MethodGet, "/api/near-miss?limit=500", nil), http.StatusBadRequest)
	decode(t, s.do(&alice, http.MethodGet, "/api/near-miss?page=x", nil), http.StatusBadRequest)
	decode(t, s.do(&alice, http.MethodGet, "/api/near-miss?sortOrder=sideways", nil), http.StatusBadRequest)
}

func TestLifecycleAction(t *testing.T) {
	s := newTestServer(t)
	created := document(t, decode(t, s.do(&alice, http.MethodPost, "/api/near-miss", nearMiss()), http.StatusCreated))
	base := "/api/near-miss/" + created["id"].(string)

	reviewed := document(t, decode(t, s.do(&bob, http.MethodPost, base+"/actions/start-review",
		map[string]any{"reviewNotes": "checked"}), http.StatusOK))
	if reviewed["status"] != kinds.NearMissUnderReview || reviewed["reviewNotes"] != "checked" {
		t.Errorf("reviewed = %v", reviewed)
	}

	// start-review is only allowed from reported
	decode(t, s.do(&bob, http.MethodPost, base+"/actions/start-review", nil), http.StatusBadRequest)
	decode(t, s.do(&bob, http.MethodPost, base+"/actions/teleport", nil), http.StatusNotFound)
}

func TestGenerateID(t *testing.T) {
	s := newTestServer(t)
	doc := document(t, decode(t, s.do(&alice, http.MethodPost, "/api/daily-briefing/generate-id", nil), http.StatusOK))
	talk, _ := doc["talkNumber"].(string)
	if want := "TBT-" + time.Now().Format("2006") + "-"; !strings.HasPrefix(talk, want) {
		t.Errorf("talkNumber = %q, want prefix %q", talk, want)
	}

	// near misses carry no human identifier, so the route is not mounted
	rec := s.do(&alice, http.MethodPost, "/api/near-miss/generate-id", nil)
	if rec.Code == http.StatusOK {
		t.Errorf("generate-id on near-miss answered %d", rec.Code)
	}
}

func TestStatsAndReports(t *testing.T) {
	s := newTestServer(t)
	decode(t, s.do(&alice, http.MethodPost, "/api/near-miss", nearMiss()), http.StatusCreated)

	stats := document(t, decode(t, s.do(&alice, http.MethodGet, "/api/near-miss/stats/overview", nil), http.StatusOK))
	summary, _ := stats["summary"].(map[string]any)
	if summary["total"] != float64(1) || summary["high"] != float64(1) {
		t.Errorf("summary = %v", stats["summary"])
	}

	env := decode(t, s.do(&alice, http.MethodGet, "/api/near-miss/actions/overdue", nil), http.StatusOK)
	if string(env.Data) != "[]" {
		t.Errorf("overdue = %s", env.Data)
	}
	if rec := s.do(&alice, http.MethodGet, "/api/near-miss/stats/nothing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown report answered %d", rec.Code)
	}
}

func TestAttendeeTemplate(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(&alice, http.MethodGet, "/api/csv-upload/template", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("template: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rec.Body.String(), services.AttendeeTemplate[:10]) {
		t.Errorf("body = %q", rec.Body)
	}
}

func TestUploadSignatureAndServe(t *testing.T) {
	s := newTestServer(t)

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	img.Set(1, 1, color.Black)
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatal(err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("signature", "sig.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(pngBuf.Bytes())
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload/signature", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	s.authorize(&alice, req)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	up := document(t, decode(t, rec, http.StatusOK))
	url, _ := up["url"].(string)
	if !strings.HasPrefix(url, "/api/upload/files/") {
		t.Fatalf("url = %q", url)
	}

	rec = s.do(nil, http.MethodGet, url, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("serve: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Errorf("served body is not a png")
	}
	key, _ := up["key"].(string)
	decode(t, s.do(&bob, http.MethodDelete, "/api/upload/"+key, nil), http.StatusForbidden)
	decode(t, s.do(&alice, http.MethodDelete, "/api/upload/"+key, nil), http.StatusOK)
	if rec := s.do(nil, http.MethodGet, url, nil); rec.Code != http.StatusNotFound {
		t.Errorf("deleted blob still served: %d", rec.Code)
	}
}
