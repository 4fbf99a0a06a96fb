package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/commitdeck/commitdeck/internal/config"
	"github.com/commitdeck/commitdeck/internal/core"
	"github.com/commitdeck/commitdeck/internal/github"
	"github.com/commitdeck/commitdeck/internal/llm"
	"github.com/commitdeck/commitdeck/internal/store"
)

// stubSource returns the same markdown commit for every window, which is
// enough for the handlers: window slicing itself is covered in core.
type stubSource struct{}

func (stubSource) ListCommits(_ context.Context, _ github.Repo, _, _ time.Time) ([]github.Commit, error) {
	return []github.Commit{{SHA: "abc1234def"}}, nil
}

func (stubSource) GetCommitDetail(_ context.Context, _ github.Repo, _ string) (*github.Commit, error) {
	return &github.Commit{
		SHA:     "abc1234def",
		Message: "write up notes",
		Files:   []github.CommitFile{{Path: "notes.md", Status: "added"}},
	}, nil
}

func (stubSource) GetFileContent(_ context.Context, _ github.Repo, _, _ string) (string, error) {
	return "# Notes\n\nSome learning notes.", nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, _ string, _ llm.ContentType) ([]llm.Item, error) {
	return []llm.Item{{Question: "What did the notes cover?", Answer: "Learning notes."}}, nil
}

func (stubGenerator) RegenerateQuestion(_ context.Context, _, _, existingAnswer string) (llm.Item, error) {
	return llm.Item{Question: "What changed, rephrased?", Answer: existingAnswer}, nil
}

type testServer struct {
	handler http.Handler
	users   *store.SQLiteStore
}

func newTestServer(t *testing.T, demoRepo github.Repo) *testServer {
	t.Helper()
	config.AppConfig.JWTSecret = "test-secret"

	users, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { users.Close() })

	cards := store.NewMemoryCardStore()
	gen := stubGenerator{}
	pipeline := core.NewPipeline(cards, gen, time.UTC)
	regen := core.NewRegenerator(users, cards, gen, time.UTC)
	newSource := func(string) core.CommitSource { return stubSource{} }

	h := NewAPIHandler(users, pipeline, regen, newSource, demoRepo, "")
	return &testServer{handler: NewRouter(h), users: users}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// signupAndLogin registers a user and returns their bearer token.
func (s *testServer) signupAndLogin(t *testing.T, email string) string {
	t.Helper()
	creds := map[string]string{"email": email, "password": "hunter22"}

	if rec := s.do(t, http.MethodPost, "/api/signup", "", creds); rec.Code != http.StatusCreated {
		t.Fatalf("signup = %d: %s", rec.Code, rec.Body.String())
	}
	rec := s.do(t, http.MethodPost, "/api/login", "", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp["token"] == "" {
		t.Fatal("login returned no token")
	}
	return resp["token"]
}

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, github.Repo{})
	rec := s.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, github.Repo{})
	paths := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/cards/today"},
		{http.MethodPost, "/api/cards/regenerate-today"},
		{http.MethodGet, "/api/repositories"},
		{http.MethodPut, "/api/repositories"},
	}
	for _, p := range paths {
		if rec := s.do(t, p.method, p.path, "", nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want 401", p.method, p.path, rec.Code)
		}
	}

	if rec := s.do(t, http.MethodGet, "/api/cards/today", "not-a-jwt", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token = %d, want 401", rec.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t, github.Repo{})
	s.signupAndLogin(t, "dev@example.com")

	rec := s.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "dev@example.com", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password = %d, want 401", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "ghost@example.com", "password": "hunter22"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown email = %d, want 401", rec.Code)
	}
}

func TestTodayCardsWithoutRepository(t *testing.T) {
	s := newTestServer(t, github.Repo{})
	token := s.signupAndLogin(t, "dev@example.com")

	rec := s.do(t, http.MethodGet, "/api/cards/today", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != "NO_REPOSITORY" {
		t.Errorf("code = %q, want NO_REPOSITORY", resp.Code)
	}
}

func TestRepositoryManagementAndTodayCards(t *testing.T) {
	s := newTestServer(t, github.Repo{})
	token := s.signupAndLogin(t, "dev@example.com")

	// Free tier caps at one repository.
	over := map[string]any{"repositories": []github.Repo{
		{FullName: "octocat/a", Branch: "main"},
		{FullName: "octocat/b", Branch: "main"},
	}}
	rec := s.do(t, http.MethodPut, "/api/repositories", token, over)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("over-limit update = %d, want 403", rec.Code)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != "REPO_LIMIT" || resp.Limit != 1 {
		t.Errorf("error = %+v, want REPO_LIMIT with limit 1", resp)
	}

	// fullName must be owner/name.
	bad := map[string]any{"repositories": []github.Repo{{FullName: "nopath", Branch: "main"}}}
	if rec := s.do(t, http.MethodPut, "/api/repositories", token, bad); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed fullName = %d, want 400", rec.Code)
	}

	one := map[string]any{"repositories": []github.Repo{{FullName: "octocat/notes", Branch: "main"}}}
	if rec := s.do(t, http.MethodPut, "/api/repositories", token, one); rec.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/repositories", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	var repos []github.Repo
	if err := json.NewDecoder(rec.Body).Decode(&repos); err != nil {
		t.Fatalf("decode repositories: %v", err)
	}
	if len(repos) != 1 || repos[0].FullName != "octocat/notes" {
		t.Fatalf("repositories = %+v", repos)
	}

	// With a repository configured the pipeline produces a set.
	rec = s.do(t, http.MethodGet, "/api/cards/today", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("today = %d: %s", rec.Code, rec.Body.String())
	}
	var set store.DaySet
	if err := json.NewDecoder(rec.Body).Decode(&set); err != nil {
		t.Fatalf("decode set: %v", err)
	}
	if len(set.Cards) == 0 {
		t.Fatal("today's set has no cards")
	}
	if set.Cards[0].Question == "" || set.Cards[0].ID == "" {
		t.Errorf("card = %+v", set.Cards[0])
	}
}

func TestDemoTodayCards(t *testing.T) {
	s := newTestServer(t, github.Repo{FullName: "octocat/demo", Branch: "main"})

	if rec := s.do(t, http.MethodGet, "/api/demo/cards/today", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing deviceId = %d, want 400", rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/demo/cards/today?deviceId=device-123", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("demo today = %d: %s", rec.Code, rec.Body.String())
	}
	var set store.DaySet
	if err := json.NewDecoder(rec.Body).Decode(&set); err != nil {
		t.Fatalf("decode set: %v", err)
	}
	if len(set.Cards) == 0 {
		t.Fatal("demo set has no cards")
	}
}

func TestDemoTodayCardsUnconfigured(t *testing.T) {
	s := newTestServer(t, github.Repo{})
	rec := s.do(t, http.MethodGet, "/api/demo/cards/today?deviceId=device-123", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func regenBody(deviceID string) map[string]string {
	body := map[string]string{
		"rawDiff":          "## fix retry loop\n\n```diff\n-old\n+new\n```",
		"existingQuestion": "What changed?",
		"existingAnswer":   "The backoff.",
	}
	if deviceID != "" {
		body["demoDeviceId"] = deviceID
	}
	return body
}

func TestRegenerateQuestionRequiresIdentity(t *testing.T) {
	s := newTestServer(t, github.Repo{})
	rec := s.do(t, http.MethodPost, "/api/cards/regenerate-question", "", regenBody(""))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRegenerateQuestionValidation(t *testing.T) {
	s := newTestServer(t, github.Repo{})
	body := regenBody("device-123")
	delete(body, "rawDiff")
	rec := s.do(t, http.MethodPost, "/api/cards/regenerate-question", "", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRegenerateQuestionAsUser(t *testing.T) {
	s := newTestServer(t, github.Repo{})
	token := s.signupAndLogin(t, "dev@example.com")

	rec := s.do(t, http.MethodPost, "/api/cards/regenerate-question", token, regenBody(""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp core.RegeneratedQuestion
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Question != "What changed, rephrased?" {
		t.Errorf("question = %q", resp.Question)
	}
}

func TestRegenerateQuestionDemoLimit(t *testing.T) {
	s := newTestServer(t, github.Repo{})

	for i := 0; i < core.DemoDailyRegenLimit; i++ {
		rec := s.do(t, http.MethodPost, "/api/cards/regenerate-question", "", regenBody("device-123"))
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d = %d: %s", i+1, rec.Code, rec.Body.String())
		}
	}

	rec := s.do(t, http.MethodPost, "/api/cards/regenerate-question", "", regenBody("device-123"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	resp := decodeErrorResponse(t, rec)
	if resp.Code != "LIMIT_EXCEEDED" || resp.Limit != core.DemoDailyRegenLimit {
		t.Errorf("error = %+v, want LIMIT_EXCEEDED with limit %d", resp, core.DemoDailyRegenLimit)
	}

	// A different device is unaffected.
	if rec := s.do(t, http.MethodPost, "/api/cards/regenerate-question", "", regenBody("device-456")); rec.Code != http.StatusOK {
		t.Errorf("other device = %d, want 200", rec.Code)
	}
}

func TestRegenerateTodayRequiresPro(t *testing.T) {
	s := newTestServer(t, github.Repo{})
	token := s.signupAndLogin(t, "dev@example.com")

	rec := s.do(t, http.MethodPost, "/api/cards/regenerate-today", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != "PRO_REQUIRED" {
		t.Errorf("code = %q, want PRO_REQUIRED", resp.Code)
	}
}

func TestUpdateRepositoriesInvalidatesToday(t *testing.T) {
	s := newTestServer(t, github.Repo{})
	token := s.signupAndLogin(t, "dev@example.com")

	one := map[string]any{"repositories": []github.Repo{{FullName: "octocat/notes", Branch: "main"}}}
	if rec := s.do(t, http.MethodPut, "/api/repositories", token, one); rec.Code != http.StatusOK {
		t.Fatalf("update = %d", rec.Code)
	}
	first := s.do(t, http.MethodGet, "/api/cards/today", token, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("today = %d", first.Code)
	}
	var firstSet store.DaySet
	json.NewDecoder(first.Body).Decode(&firstSet)

	other := map[string]any{"repositories": []github.Repo{{FullName: "octocat/other", Branch: "main"}}}
	if rec := s.do(t, http.MethodPut, "/api/repositories", token, other); rec.Code != http.StatusOK {
		t.Fatalf("second update = %d", rec.Code)
	}

	second := s.do(t, http.MethodGet, "/api/cards/today", token, nil)
	if second.Code != http.StatusOK {
		t.Fatalf("today after update = %d", second.Code)
	}
	var secondSet store.DaySet
	json.NewDecoder(second.Body).Decode(&secondSet)

	// Card ids are freshly generated, so a rebuilt set never repeats them.
	if len(firstSet.Cards) > 0 && len(secondSet.Cards) > 0 && firstSet.Cards[0].ID == secondSet.Cards[0].ID {
		t.Error("set was not rebuilt after the repository change")
	}
	if secondSet.Cards[0].Metadata.RepositoryFullName != "octocat/other" {
		t.Errorf("rebuilt set points at %q", secondSet.Cards[0].Metadata.RepositoryFullName)
	}
}
