package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/engine"
	"planline/internal/migrate"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("org-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitOrg(context.Background(), "org-1", "Test Portfolio", "tester"); err != nil {
		t.Fatalf("init org: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testJWTSecret, AllowLegacyHeaders: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func legacyHeaders() map[string]string {
	return map[string]string{"X-Actor-Id": "tester", "X-Org-Id": "org-1"}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
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
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type createProjectResponse struct {
	Project  ProjectResponse   `json:"project"`
	Tasks    []TaskResponse    `json:"tasks"`
	Gateways []GatewayResponse `json:"gateways"`
}

func createProject(t *testing.T, srv *testServer, name string) createProjectResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name":       name,
		"type":       "Website",
		"scale":      "Small",
		"start_date": "2026-03-02",
		"end_date":   "2026-03-29",
	}, legacyHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var created createProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return created
}

func TestCreateProjectAndRescheduleCascade(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createProject(t, srv, "Relaunch")
	if len(created.Tasks) != 4 {
		t.Fatalf("expected 4 template tasks, got %d", len(created.Tasks))
	}

	first := created.Tasks[0]
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+first.ID+"/reschedule", map[string]any{
		"start_date": first.StartDate,
		"end_date":   created.Tasks[1].EndDate,
	}, legacyHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reschedule status %d: %s", res.StatusCode, string(data))
	}
	var moved RescheduleResponse
	if err := json.Unmarshal(data, &moved); err != nil {
		t.Fatalf("unmarshal moved: %v", err)
	}
	if len(moved.Moved) < 2 {
		t.Fatalf("expected the cascade to push successors, moved %d", len(moved.Moved))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %q", envelope.Error.Code)
	}
}

func TestJWTBearerAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	claims := jwt.MapClaims{
		"sub":    "jwt-user",
		"org_id": "org-1",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
}

func TestTemplateNotFoundMapsTo422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name":       "Mystery",
		"type":       "Mobile App",
		"scale":      "Small",
		"start_date": "2026-03-02",
		"end_date":   "2026-03-29",
	}, legacyHeaders())
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "template_not_found" {
		t.Fatalf("expected template_not_found code, got %q", envelope.Error.Code)
	}
}

func TestGatewayUpdateOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createProject(t, srv, "Gated")

	res, data := doJSON(t, srv.Client(), http.MethodPost,
		srv.URL+"/v1/projects/"+created.Project.ID+"/gateways/Global/"+url.PathEscape("Design Sign-off"), map[string]any{
			"status": "Late",
			"date":   "2026-03-20",
		}, legacyHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("gateway update status %d: %s", res.StatusCode, string(data))
	}
	var update GatewayUpdateResponse
	if err := json.Unmarshal(data, &update); err != nil {
		t.Fatalf("unmarshal update: %v", err)
	}
	if update.Gateway.Status != "Late" {
		t.Fatalf("gateway status %s", update.Gateway.Status)
	}
	if len(update.ReworkTasks) != 1 {
		t.Fatalf("expected 1 rework task, got %d", len(update.ReworkTasks))
	}
}

func TestAutoAssignOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/resources", map[string]any{
		"name":     "Anna",
		"team":     "Website",
		"capacity": 200,
	}, legacyHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create resource status %d: %s", res.StatusCode, string(data))
	}
	createProject(t, srv, "Assigned")

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/assignments/auto", nil, legacyHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("auto assign status %d: %s", res.StatusCode, string(data))
	}
	var result struct {
		Summary struct {
			Assigned   int `json:"assigned"`
			Unassigned int `json:"unassigned"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Summary.Assigned != 4 || result.Summary.Unassigned != 0 {
		t.Fatalf("summary %+v", result.Summary)
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}
