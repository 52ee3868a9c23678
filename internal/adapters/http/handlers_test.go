package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	handler "github.com/ShaoKhan/finder-sub000/internal/adapters/http"
	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
	"github.com/ShaoKhan/finder-sub000/internal/core/usecases"
)

// ---- Mock repositories ----

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]domain.Session)}
}

func (m *memSessionRepo) FindActiveByOwner(ctx context.Context, ownerID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.OwnerID == ownerID && s.Active() {
			s.Track = s.Samples()
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSessionRepo) FindByOwner(ctx context.Context, ownerID string) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Session
	for _, s := range m.sessions {
		if s.OwnerID == ownerID {
			s.Track = s.Samples()
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memSessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s.Track = s.Samples()
	return &s, nil
}

func (m *memSessionRepo) Persist(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Track = s.Samples()
	if existing, ok := m.sessions[s.ID]; ok {
		if !existing.Active() {
			return domain.ErrSessionClosed
		}
		cp.Track = existing.Track
	}
	m.sessions[s.ID] = cp
	return nil
}

func (m *memSessionRepo) AppendSample(ctx context.Context, sessionID string, sample domain.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || !s.Active() {
		return domain.ErrSessionClosed
	}
	s.Track = append(s.Samples(), sample)
	m.sessions[sessionID] = s
	return nil
}

func (m *memSessionRepo) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

type mockFindRepo struct {
	listFn   func(ctx context.Context, sessionID string) ([]domain.Find, error)
	detachFn func(ctx context.Context, sessionID string) ([]string, error)
}

func (m *mockFindRepo) ListBySession(ctx context.Context, sessionID string) ([]domain.Find, error) {
	if m.listFn != nil {
		return m.listFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockFindRepo) DetachSession(ctx context.Context, sessionID string) ([]string, error) {
	if m.detachFn != nil {
		return m.detachFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockFindRepo) Reattach(ctx context.Context, ids []string, sessionID string) error {
	return nil
}

type mockPurger struct {
	owner string
}

func (m *mockPurger) SchedulePurge(ctx context.Context, ownerID string) (string, error) {
	m.owner = ownerID
	return "purge-" + ownerID, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	seq := 0
	d := &handler.Dependencies{
		Sessions: usecases.NewSessionService(newMemSessionRepo(), &mockFindRepo{}, nil, nil, nil,
			usecases.WithIDGenerator(func() string {
				seq++
				return fmt.Sprintf("s-%d", seq)
			})),
		DocsPath: "testdata/missing.yaml",
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func do(t *testing.T, app *fiber.App, method, path, owner, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set(handler.OwnerHeader, owner)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, b
}

func decodeError(t *testing.T, body []byte) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error: %v (%s)", err, body)
	}
	return apiErr
}

// ---- Session handler tests ----

func TestSessions_RequireOwner(t *testing.T) {
	app := setupApp(makeDeps())

	status, body := do(t, app, "GET", "/v1/sessions/status", "", "")
	if status != 401 {
		t.Fatalf("expected 401, got %d", status)
	}
	if code := decodeError(t, body).Code; code != "unauthorized" {
		t.Errorf("expected unauthorized, got %s", code)
	}
}

func TestStartSession_CreatedThenConflict(t *testing.T) {
	app := setupApp(makeDeps())

	status, body := do(t, app, "POST", "/v1/sessions/start", "owner-a", `{"latitude":48.1,"longitude":11.5}`)
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	var session domain.Session
	if err := json.Unmarshal(body, &session); err != nil {
		t.Fatal(err)
	}
	if session.State != domain.SessionActive || session.OwnerID != "owner-a" {
		t.Errorf("unexpected session %+v", session)
	}

	status, body = do(t, app, "POST", "/v1/sessions/start", "owner-a", `{"latitude":48.2,"longitude":11.6}`)
	if status != 409 {
		t.Fatalf("expected 409, got %d", status)
	}
	if code := decodeError(t, body).Code; code != "conflict" {
		t.Errorf("expected conflict, got %s", code)
	}

	// Other owners are independent.
	if status, _ := do(t, app, "POST", "/v1/sessions/start", "owner-b", `{"latitude":0,"longitude":0}`); status != 201 {
		t.Errorf("expected 201 for owner-b, got %d", status)
	}
}

func TestStartSession_Validation(t *testing.T) {
	app := setupApp(makeDeps())

	tests := []struct {
		name string
		body string
		code string
	}{
		{"missing latitude", `{"longitude":11.5}`, "bad_request"},
		{"malformed json", `{"latitude":`, "bad_request"},
		{"latitude out of range", `{"latitude":91,"longitude":11.5}`, "invalid_coordinate"},
		{"longitude out of range", `{"latitude":48,"longitude":-181}`, "invalid_coordinate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, "POST", "/v1/sessions/start", "owner-a", tt.body)
			if status != 400 {
				t.Fatalf("expected 400, got %d", status)
			}
			if code := decodeError(t, body).Code; code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, code)
			}
		})
	}
}

func TestStartSession_ZeroCoordinatesAreValid(t *testing.T) {
	app := setupApp(makeDeps())
	if status, body := do(t, app, "POST", "/v1/sessions/start", "owner-a", `{"latitude":0,"longitude":0}`); status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
}

func TestStopSession_WithoutActiveSession(t *testing.T) {
	app := setupApp(makeDeps())

	status, body := do(t, app, "POST", "/v1/sessions/stop", "owner-a", `{"latitude":48.1,"longitude":11.5}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var resp handler.StopResponse
	json.Unmarshal(body, &resp)
	if resp.Stopped || resp.Session != nil {
		t.Errorf("expected nothing stopped, got %+v", resp)
	}
}

func TestSessionLifecycle(t *testing.T) {
	app := setupApp(makeDeps())
	owner := "owner-a"

	do(t, app, "POST", "/v1/sessions/start", owner, `{"latitude":48.0,"longitude":11.0}`)
	for _, p := range []string{
		`{"latitude":48.0,"longitude":11.0}`,
		`{"latitude":48.0,"longitude":11.001,"timestamp":"2024-04-20T08:00:05Z"}`,
		`{"latitude":48.001,"longitude":11.001}`,
	} {
		status, body := do(t, app, "POST", "/v1/sessions/points", owner, p)
		if status != 200 || !strings.Contains(string(body), `"recorded":true`) {
			t.Fatalf("add point: %d %s", status, body)
		}
	}

	status, body := do(t, app, "GET", "/v1/sessions/status", owner, "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var st handler.StatusResponse
	json.Unmarshal(body, &st)
	if !st.Active || st.Session == nil || len(st.Session.Track) != 3 {
		t.Fatalf("unexpected status %+v", st)
	}
	id := st.Session.ID

	status, body = do(t, app, "POST", "/v1/sessions/stop", owner, `{"latitude":48.001,"longitude":11.001}`)
	var stopped handler.StopResponse
	json.Unmarshal(body, &stopped)
	if status != 200 || !stopped.Stopped || stopped.Session.State != domain.SessionCompleted {
		t.Fatalf("unexpected stop response %d %+v", status, stopped)
	}

	// Points after stop are not recorded.
	_, body = do(t, app, "POST", "/v1/sessions/points", owner, `{"latitude":48.002,"longitude":11.0}`)
	if !strings.Contains(string(body), `"recorded":false`) {
		t.Errorf("expected recorded false after stop, got %s", body)
	}

	status, body = do(t, app, "GET", "/v1/sessions/history", owner, "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var history struct {
		Data       []domain.SessionSummary `json:"data"`
		Pagination handler.Pagination      `json:"pagination"`
	}
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatal(err)
	}
	if history.Pagination.Total != 1 || len(history.Data) != 1 {
		t.Fatalf("unexpected history %+v", history)
	}
	if h := history.Data[0]; h.ID != id || h.PointCount != 3 || h.Area <= 0 || h.Distance <= 0 {
		t.Errorf("unexpected summary %+v", h)
	}

	status, body = do(t, app, "GET", "/v1/sessions/"+id+"/geojson", owner, "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var view struct {
		Track   map[string]any      `json:"track"`
		Polygon map[string]any      `json:"polygon"`
		Stats   domain.SessionStats `json:"stats"`
	}
	json.Unmarshal(body, &view)
	if view.Track == nil || view.Polygon == nil {
		t.Fatalf("expected track and polygon, got %s", body)
	}
	props, _ := view.Polygon["properties"].(map[string]any)
	if props["name"] != "Survey Area (Convex Hull)" {
		t.Errorf("unexpected polygon properties %v", props)
	}

	if status, _ := do(t, app, "DELETE", "/v1/sessions/"+id, owner, ""); status != 204 {
		t.Fatalf("expected 204, got %d", status)
	}
	if status, _ := do(t, app, "GET", "/v1/sessions/"+id+"/geojson", owner, ""); status != 404 {
		t.Errorf("expected 404 after delete, got %d", status)
	}
}

func TestSessionGeoJSON_OtherOwnerNotFound(t *testing.T) {
	app := setupApp(makeDeps())
	_, body := do(t, app, "POST", "/v1/sessions/start", "owner-a", `{"latitude":1,"longitude":1}`)
	var session domain.Session
	json.Unmarshal(body, &session)

	status, body := do(t, app, "GET", "/v1/sessions/"+session.ID+"/geojson", "owner-b", "")
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
	if code := decodeError(t, body).Code; code != "not_found" {
		t.Errorf("expected not_found, got %s", code)
	}
	if status, _ := do(t, app, "DELETE", "/v1/sessions/"+session.ID, "owner-b", ""); status != 404 {
		t.Errorf("expected 404 on foreign delete, got %d", status)
	}
}

func TestSessionGeoJSON_FeatureCollection(t *testing.T) {
	app := setupApp(makeDeps())
	_, body := do(t, app, "POST", "/v1/sessions/start", "owner-a", `{"latitude":1,"longitude":1}`)
	var session domain.Session
	json.Unmarshal(body, &session)
	do(t, app, "POST", "/v1/sessions/points", "owner-a", `{"latitude":1,"longitude":1}`)

	req := httptest.NewRequest("GET", "/v1/sessions/"+session.ID+"/geojson?format=collection", nil)
	req.Header.Set(handler.OwnerHeader, "owner-a")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected application/geo+json, got %s", ct)
	}
	var fc struct {
		Type     string `json:"type"`
		Features []any  `json:"features"`
	}
	json.NewDecoder(resp.Body).Decode(&fc)
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Errorf("expected a collection with only the track, got %+v", fc)
	}
}

func TestSessionFinds(t *testing.T) {
	deps := makeDeps()
	deps.Sessions = usecases.NewSessionService(newMemSessionRepo(), &mockFindRepo{
		listFn: func(ctx context.Context, sessionID string) ([]domain.Find, error) {
			return []domain.Find{{ID: "find-1", SessionID: &sessionID, Name: "Coin"}}, nil
		},
	}, nil, nil, nil)
	app := setupApp(deps)

	_, body := do(t, app, "POST", "/v1/sessions/start", "owner-a", `{"latitude":1,"longitude":1}`)
	var session domain.Session
	json.Unmarshal(body, &session)

	status, body := do(t, app, "GET", "/v1/sessions/"+session.ID+"/finds", "owner-a", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var finds []domain.Find
	json.Unmarshal(body, &finds)
	if len(finds) != 1 || finds[0].Name != "Coin" {
		t.Errorf("unexpected finds %s", body)
	}
}

func TestDeleteSession_StoreFailure(t *testing.T) {
	deps := makeDeps()
	deps.Sessions = usecases.NewSessionService(newMemSessionRepo(), &mockFindRepo{
		detachFn: func(ctx context.Context, sessionID string) ([]string, error) {
			return nil, errors.New("connection refused")
		},
	}, nil, nil, nil)
	app := setupApp(deps)

	_, body := do(t, app, "POST", "/v1/sessions/start", "owner-a", `{"latitude":1,"longitude":1}`)
	var session domain.Session
	json.Unmarshal(body, &session)

	status, body := do(t, app, "DELETE", "/v1/sessions/"+session.ID, "owner-a", "")
	if status != 500 {
		t.Fatalf("expected 500, got %d", status)
	}
	apiErr := decodeError(t, body)
	if apiErr.Code != "internal_error" || strings.Contains(apiErr.Message, "connection refused") {
		t.Errorf("internal details must not leak: %+v", apiErr)
	}
}

func TestHistory_Pagination(t *testing.T) {
	app := setupApp(makeDeps())
	for i := 0; i < 3; i++ {
		do(t, app, "POST", "/v1/sessions/start", "owner-a", `{"latitude":1,"longitude":1}`)
		do(t, app, "POST", "/v1/sessions/stop", "owner-a", `{"latitude":1,"longitude":1}`)
	}

	req := httptest.NewRequest("GET", "/v1/sessions/history?offset=1&limit=1", nil)
	req.Header.Set(handler.OwnerHeader, "owner-a")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result struct {
		Data       []domain.SessionSummary `json:"data"`
		Pagination handler.Pagination      `json:"pagination"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Pagination.Total != 3 || len(result.Data) != 1 || result.Pagination.Offset != 1 {
		t.Errorf("unexpected page %+v", result)
	}
	link := resp.Header.Get("Link")
	if !strings.Contains(link, `rel="next"`) || !strings.Contains(link, `rel="prev"`) {
		t.Errorf("expected prev and next links, got %s", link)
	}
}

func TestHistory_ETagNotModified(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/sessions/history", nil)
	req.Header.Set(handler.OwnerHeader, "owner-a")
	resp, _ := app.Test(req, -1)
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "private, no-cache" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}

	req = httptest.NewRequest("GET", "/v1/sessions/history", nil)
	req.Header.Set(handler.OwnerHeader, "owner-a")
	req.Header.Set("If-None-Match", etag)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 304 {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}
}

func TestPurge(t *testing.T) {
	app := setupApp(makeDeps())
	status, body := do(t, app, "POST", "/v1/sessions/purge", "owner-a", "")
	if status != 503 {
		t.Fatalf("expected 503 without scheduler, got %d", status)
	}
	if code := decodeError(t, body).Code; code != "purge_unavailable" {
		t.Errorf("expected purge_unavailable, got %s", code)
	}

	purger := &mockPurger{}
	deps := makeDeps()
	deps.Sessions = usecases.NewSessionService(newMemSessionRepo(), &mockFindRepo{}, nil, nil, nil,
		usecases.WithPurgeScheduler(purger))
	app = setupApp(deps)

	status, body = do(t, app, "POST", "/v1/sessions/purge", "owner-a", "")
	if status != 202 {
		t.Fatalf("expected 202, got %d", status)
	}
	if !strings.Contains(string(body), `"workflow_id":"purge-owner-a"`) || purger.owner != "owner-a" {
		t.Errorf("unexpected purge response %s", body)
	}
}

// ---- GraphQL ----

func TestGraphQL_StartAndQuery(t *testing.T) {
	app := setupApp(makeDeps())

	status, body := do(t, app, "POST", "/graphql", "owner-a",
		`{"query":"mutation { startSession(latitude: 48.1, longitude: 11.5) { id state start_location { lat lon } } }"}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var started struct {
		Data struct {
			StartSession struct {
				ID    string `json:"id"`
				State string `json:"state"`
			} `json:"startSession"`
		} `json:"data"`
		Errors []any `json:"errors"`
	}
	json.Unmarshal(body, &started)
	if len(started.Errors) > 0 || started.Data.StartSession.State != "active" {
		t.Fatalf("unexpected mutation result %s", body)
	}

	_, body = do(t, app, "POST", "/graphql", "owner-a",
		`{"query":"mutation { addPoint(latitude: 48.1, longitude: 11.5) }"}`)
	if !strings.Contains(string(body), `"addPoint":true`) {
		t.Errorf("expected addPoint true, got %s", body)
	}

	_, body = do(t, app, "POST", "/graphql", "owner-a",
		`{"query":"{ activeSession { id track { latitude longitude } } }"}`)
	var active struct {
		Data struct {
			ActiveSession struct {
				ID    string           `json:"id"`
				Track []map[string]any `json:"track"`
			} `json:"activeSession"`
		} `json:"data"`
	}
	json.Unmarshal(body, &active)
	if active.Data.ActiveSession.ID != started.Data.StartSession.ID || len(active.Data.ActiveSession.Track) != 1 {
		t.Errorf("unexpected active session %s", body)
	}

	_, body = do(t, app, "POST", "/graphql", "owner-b", `{"query":"{ activeSession { id } }"}`)
	if !strings.Contains(string(body), `"activeSession":null`) {
		t.Errorf("expected no active session for owner-b, got %s", body)
	}
}

func TestGraphQL_InvalidCoordinateIsAnError(t *testing.T) {
	app := setupApp(makeDeps())
	_, body := do(t, app, "POST", "/graphql", "owner-a",
		`{"query":"mutation { startSession(latitude: 95, longitude: 0) { id } }"}`)
	if !strings.Contains(string(body), "invalid latitude") {
		t.Errorf("expected coordinate error, got %s", body)
	}
}

// ---- Health ----

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps())
	status, body := do(t, app, "GET", "/v1/health", "", "")
	if status != 200 || !strings.Contains(string(body), `"status":"healthy"`) {
		t.Errorf("unexpected health response %d %s", status, body)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name   string
		db     handler.Pinger
		cache  handler.Pinger
		status int
	}{
		{"no store", nil, nil, 503},
		{"store ok", &mockPinger{}, nil, 200},
		{"store down", &mockPinger{err: errors.New("down")}, nil, 503},
		{"cache down", &mockPinger{}, &mockPinger{err: errors.New("down")}, 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupApp(makeDeps(func(d *handler.Dependencies) {
				d.DB = tt.db
				d.Cache = tt.cache
			}))
			if status, body := do(t, app, "GET", "/v1/ready", "", ""); status != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, status, body)
			}
		})
	}
}
