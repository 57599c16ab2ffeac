package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storylab-server/auth"
	"storylab-server/config"
	"storylab-server/models"
	"storylab-server/routers"
	"storylab-server/routers/api"
	"storylab-server/service"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

var apiDBSeq atomic.Int64

// fakeUpstream plays the generation service for end-to-end handler tests.
type fakeUpstream struct {
	srv *httptest.Server

	mu    sync.Mutex
	reply string
}

func (f *fakeUpstream) setReply(s string) {
	f.mu.Lock()
	f.reply = s
	f.mu.Unlock()
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	gen    *fakeUpstream
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:api%d?mode=memory&cache=shared", apiDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	gen := &fakeUpstream{}
	gen.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gen.mu.Lock()
		reply := gen.reply
		gen.mu.Unlock()
		resp, _ := json.Marshal(map[string]interface{}{"response": reply, "done": true})
		w.Write(resp)
	}))
	t.Cleanup(gen.srv.Close)

	cfg := config.AIConfig{
		OllamaBaseURL:    gen.srv.URL,
		TextDefault:      "llama3.1:8b",
		TextScreenwriter: "qwen2.5:32b",
		SceneDefault:     "openhermes:7b",
		SceneCreative:    "mythomax:13b",
		Temperature:      0.8,
		MaxTokens:        256,
		TimeoutSeconds:   5,
		Retries:          0,
		Backoff:          0.1,
	}
	client := service.NewOllamaClient(cfg)
	t.Cleanup(client.Close)

	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	orch := service.NewOrchestrator(db, client, cfg)
	// No image backend configured; the image endpoint must answer 501.
	media := service.NewMediaService(db, nil, cfg)

	h := api.New(db, tokens, orch, client, media)
	return &testEnv{router: routers.InitRouter(h), db: db, gen: gen}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

// signup registers and logs in a user, returning the access token.
func (e *testEnv) signup(t *testing.T, email string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"email":    email,
		"password": "hunter2hunter2",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, w.Code, w.Body.String())
	}
	w = e.do(t, http.MethodPost, "/auth/login", "", gin.H{
		"email":    email,
		"password": "hunter2hunter2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, w.Code, w.Body.String())
	}
	out := decode(t, w)
	token := out["token"].(map[string]interface{})
	return token["access_token"].(string)
}

func (e *testEnv) createProject(t *testing.T, token, name string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/projects", token, gin.H{"name": name})
	if w.Code != http.StatusCreated {
		t.Fatalf("create project: status %d body %s", w.Code, w.Body.String())
	}
	return decode(t, w)["id"].(string)
}

func (e *testEnv) createScreenplay(t *testing.T, token, projectID, title string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/screenplays", token, gin.H{
		"project_id": projectID,
		"title":      title,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create screenplay: status %d body %s", w.Code, w.Body.String())
	}
	return decode(t, w)["id"].(string)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if decode(t, w)["status"] != "ok" {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	body := gin.H{"email": "dupe@example.com", "password": "hunter2hunter2"}

	w := env.do(t, http.MethodPost, "/auth/register", "", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("first register: status %d", w.Code)
	}
	if _, leaked := decode(t, w)["password_hash"]; leaked {
		t.Error("password hash leaked in register response")
	}

	w = env.do(t, http.MethodPost, "/auth/register", "", body)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register: status %d, want 409", w.Code)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"email":    "short@example.com",
		"password": "short",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice@example.com")

	w := env.do(t, http.MethodPost, "/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "not-the-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/auth/login", "", gin.H{
		"email":    "nobody@example.com",
		"password": "hunter2hunter2",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, http.MethodGet, "/projects", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/projects", "not-a-jwt", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status %d, want 401", w.Code)
	}
}

func TestProjectOwnerScoping(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice@example.com")
	bob := env.signup(t, "bob@example.com")
	projectID := env.createProject(t, alice, "Alice Project")

	if w := env.do(t, http.MethodGet, "/projects/"+projectID, alice, nil); w.Code != http.StatusOK {
		t.Errorf("owner get: status %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/projects/"+projectID, bob, nil); w.Code != http.StatusForbidden {
		t.Errorf("foreign get: status %d, want 403", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/projects/unknown-id", alice, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing get: status %d, want 404", w.Code)
	}

	// Listing only returns the caller's rows.
	env.createProject(t, bob, "Bob Project")
	w := env.do(t, http.MethodGet, "/projects", alice, nil)
	var rows []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "Alice Project" {
		t.Errorf("list = %s", w.Body.String())
	}
}

func TestProjectPartialUpdate(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice@example.com")
	projectID := env.createProject(t, alice, "Draft")

	w := env.do(t, http.MethodPatch, "/projects/"+projectID, alice, gin.H{"description": "notes"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch: status %d body %s", w.Code, w.Body.String())
	}
	out := decode(t, w)
	if out["name"] != "Draft" || out["description"] != "notes" {
		t.Errorf("patched project = %s", w.Body.String())
	}

	w = env.do(t, http.MethodPatch, "/projects/"+projectID, alice, gin.H{"name": "x"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("too-short name: status %d, want 422", w.Code)
	}
}

func TestProjectDeleteCascadesScreenplays(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice@example.com")
	projectID := env.createProject(t, alice, "Doomed")
	spID := env.createScreenplay(t, alice, projectID, "Doomed Script")

	if w := env.do(t, http.MethodDelete, "/projects/"+projectID, alice, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/projects/"+projectID, alice, nil); w.Code != http.StatusNotFound {
		t.Errorf("project after delete: status %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/screenplays/"+spID, alice, nil); w.Code != http.StatusNotFound {
		t.Errorf("screenplay after cascade: status %d, want 404", w.Code)
	}
}

func TestCreateScreenplayUnderForeignProject(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice@example.com")
	bob := env.signup(t, "bob@example.com")
	projectID := env.createProject(t, alice, "Alice Project")

	w := env.do(t, http.MethodPost, "/screenplays", bob, gin.H{
		"project_id": projectID,
		"title":      "Sneaky",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for foreign project", w.Code)
	}
}

func TestScreenplayForeignReadIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice@example.com")
	bob := env.signup(t, "bob@example.com")
	projectID := env.createProject(t, alice, "Alice Project")
	spID := env.createScreenplay(t, alice, projectID, "Private")

	if w := env.do(t, http.MethodGet, "/screenplays/"+spID, bob, nil); w.Code != http.StatusNotFound {
		t.Errorf("foreign get: status %d, want 404", w.Code)
	}
}

func TestScreenplayPartialUpdate(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice@example.com")
	projectID := env.createProject(t, alice, "Alice Project")
	spID := env.createScreenplay(t, alice, projectID, "Working Title")

	w := env.do(t, http.MethodPatch, "/screenplays/"+spID, alice, gin.H{"state": "S3"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch: status %d body %s", w.Code, w.Body.String())
	}
	out := decode(t, w)
	if out["state"] != "S3" || out["title"] != "Working Title" {
		t.Errorf("patched screenplay = %s", w.Body.String())
	}

	w = env.do(t, http.MethodPatch, "/screenplays/"+spID, alice, gin.H{"state": "S99"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown state: status %d, want 422", w.Code)
	}
	w = env.do(t, http.MethodPatch, "/screenplays/"+spID, alice, gin.H{"title": ""})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty title: status %d, want 422", w.Code)
	}
}

func TestScreenplayListFilteredByProject(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice@example.com")
	first := env.createProject(t, alice, "First")
	second := env.createProject(t, alice, "Second")
	env.createScreenplay(t, alice, first, "A")
	env.createScreenplay(t, alice, second, "B")

	w := env.do(t, http.MethodGet, "/screenplays?project_id="+second, alice, nil)
	var rows []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(rows) != 1 || rows[0]["title"] != "B" {
		t.Errorf("filtered list = %s", w.Body.String())
	}
}

func TestSynopsisEndpoint(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice@example.com")
	projectID := env.createProject(t, alice, "Alice Project")
	spID := env.createScreenplay(t, alice, projectID, "Western")
	env.gen.setReply("A drifter returns home.")

	w := env.do(t, http.MethodPost, "/ai/synopsis", alice, gin.H{
		"idea":          "homecoming",
		"premise":       "debts come due",
		"mainTheme":     "revenge",
		"genre":         "western",
		"screenplay_id": spID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	out := decode(t, w)
	if out["synopsis"] != "A drifter returns home." {
		t.Errorf("synopsis = %v", out["synopsis"])
	}
	ia := out["iaLog"].(map[string]interface{})
	if ia["model"] != "llama3.1:8b" {
		t.Errorf("iaLog.model = %v", ia["model"])
	}

	// The result lands on the screenplay row.
	w = env.do(t, http.MethodGet, "/screenplays/"+spID, alice, nil)
	if decode(t, w)["synopsis"] != "A drifter returns home." {
		t.Errorf("screenplay after generation = %s", w.Body.String())
	}
}

func TestTreatmentBeforeSynopsisIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice@example.com")
	projectID := env.createProject(t, alice, "Alice Project")
	spID := env.createScreenplay(t, alice, projectID, "Western")
	env.gen.setReply("a treatment")

	w := env.do(t, http.MethodPost, "/ai/treatment", alice, gin.H{
		"logline":       "a man, a town, a debt",
		"screenplay_id": spID,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 while synopsis missing", w.Code)
	}
}

func TestTurningPointsShapeErrorIsBadGateway(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice@example.com")
	projectID := env.createProject(t, alice, "Alice Project")
	spID := env.createScreenplay(t, alice, projectID, "Western")

	env.gen.setReply("a synopsis")
	if w := env.do(t, http.MethodPost, "/ai/synopsis", alice, gin.H{
		"idea": "i", "premise": "p", "mainTheme": "t", "genre": "g",
		"screenplay_id": spID,
	}); w.Code != http.StatusOK {
		t.Fatalf("synopsis: status %d", w.Code)
	}
	env.gen.setReply("a treatment")
	if w := env.do(t, http.MethodPost, "/ai/treatment", alice, gin.H{
		"logline": "l", "screenplay_id": spID,
	}); w.Code != http.StatusOK {
		t.Fatalf("treatment: status %d", w.Code)
	}

	env.gen.setReply("Here are your turning points, enjoy!")
	w := env.do(t, http.MethodPost, "/ai/turning-points", alice, gin.H{
		"screenplay_id": spID,
	})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	out := decode(t, w)
	ia, ok := out["iaLog"].(map[string]interface{})
	if !ok {
		t.Fatalf("502 body missing iaLog: %s", w.Body.String())
	}
	if ia["original_message"] != "Here are your turning points, enjoy!" {
		t.Errorf("iaLog.original_message = %v", ia["original_message"])
	}
}

func TestImageEndpointNotConfigured(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice@example.com")
	projectID := env.createProject(t, alice, "Alice Project")
	spID := env.createScreenplay(t, alice, projectID, "Western")

	w := env.do(t, http.MethodPost, "/media/image", alice, gin.H{
		"prompt":        "a dusty main street at noon",
		"style":         "fast",
		"screenplay_id": spID,
	})
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", w.Code)
	}
}
