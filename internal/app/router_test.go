package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/userdesk/internal/observability"
	"github.com/odyssey-erp/userdesk/internal/shared"
	"github.com/odyssey-erp/userdesk/internal/users"
	"github.com/odyssey-erp/userdesk/internal/view"
)

// usersAPI is an in-memory stand-in for the remote users service.
type usersAPI struct {
	mu     sync.Mutex
	users  []map[string]any
	nextID int
}

func (a *usersAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(a.users)
	})
	mux.HandleFunc("POST /api/users", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
			return
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		a.nextID++
		in["id"] = a.nextID
		a.users = append(a.users, in)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(in)
	})
	mux.HandleFunc("DELETE /api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, u := range a.users {
			if strconv.Itoa(u["id"].(int)) == r.PathValue("id") {
				a.users = append(a.users[:i], a.users[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		http.Error(w, `{"error":"User not found"}`, http.StatusNotFound)
	})
	return mux
}

type stack struct {
	server *httptest.Server
	client *http.Client
}

func newStack(t *testing.T) *stack {
	t.Helper()
	upstream := httptest.NewServer((&usersAPI{}).handler())
	t.Cleanup(upstream.Close)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	engine, err := view.NewEngine()
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second}
	sessions := shared.NewSessionManager(redisClient, "userdesk_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	metrics := observability.NewMetrics()

	apiClient := users.NewClient(upstream.URL+"/api", time.Second, users.WithCallMetrics(metrics.Calls()))
	registry := users.NewRegistry(func() *users.Controller {
		return users.NewController(apiClient, users.NewNotifier(nil, 0), logger)
	}, time.Hour, nil)
	t.Cleanup(registry.Close)

	router := NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessions,
		CSRFManager:    csrf,
		UsersHandler:   users.NewHandler(logger, registry, engine, csrf),
		Metrics:        metrics,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &stack{server: server, client: &http.Client{Jar: jar}}
}

func (s *stack) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	res, err := s.client.Get(s.server.URL + path)
	require.NoError(t, err)
	return res, readBody(t, res)
}

func (s *stack) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	res, err := s.client.PostForm(s.server.URL+path, form)
	require.NoError(t, err)
	return res, readBody(t, res)
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(raw)
}

var csrfField = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func csrfToken(t *testing.T, body string) string {
	t.Helper()
	m := csrfField.FindStringSubmatch(body)
	require.Len(t, m, 2, "csrf field missing")
	return m[1]
}

func TestRouterHealthz(t *testing.T) {
	s := newStack(t)

	res, body := s.get(t, "/healthz")

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestRouterRootRedirectsToUsers(t *testing.T) {
	s := newStack(t)

	res, body := s.get(t, "/")

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "/users", res.Request.URL.Path)
	assert.Contains(t, body, "No Users Yet")
}

func TestRouterSecurityHeaders(t *testing.T) {
	s := newStack(t)

	res, _ := s.get(t, "/users")

	assert.Equal(t, "DENY", res.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", res.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, res.Header.Get("Content-Security-Policy"))
}

func TestRouterStaticAssets(t *testing.T) {
	s := newStack(t)

	res, body := s.get(t, "/static/js/notification.js")

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "public, max-age=3600", res.Header.Get("Cache-Control"))
	assert.Contains(t, body, "data-expires-in")
}

func TestRouterRejectsPostWithoutCSRFToken(t *testing.T) {
	s := newStack(t)
	s.get(t, "/users")

	res, _ := s.post(t, "/users", url.Values{"name": {"Ann"}, "email": {"a@x.com"}})

	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestRouterCreateAndDeleteUser(t *testing.T) {
	s := newStack(t)
	_, body := s.get(t, "/users")
	token := csrfToken(t, body)

	res, body := s.post(t, "/users", url.Values{
		"csrf_token": {token},
		"name":       {"Ann"},
		"email":      {"a@x.com"},
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "/users", res.Request.URL.Path)
	assert.Contains(t, body, "User added successfully!")
	assert.Contains(t, body, "a@x.com")

	res, body = s.get(t, "/users/1/delete")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "Are you sure")

	res, body = s.post(t, "/users/1/delete", url.Values{"csrf_token": {token}, "confirm": {"yes"}})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "User deleted successfully!")
	assert.Contains(t, body, "No Users Yet")

	_, metrics := s.get(t, "/metrics")
	assert.Contains(t, metrics, `userdesk_users_api_calls_total{operation="create_user",status="success"} 1`)
	assert.Contains(t, metrics, `userdesk_users_api_calls_total{operation="delete_user",status="success"} 1`)
	assert.Contains(t, metrics, "userdesk_http_requests_total")
}

func TestRouterSearchJSON(t *testing.T) {
	s := newStack(t)
	_, body := s.get(t, "/users")
	token := csrfToken(t, body)
	for _, name := range []string{"Ann", "Bob", "Joanna"} {
		s.post(t, "/users", url.Values{"csrf_token": {token}, "name": {name}, "email": {name + "@x.com"}})
	}

	res, body := s.get(t, "/users/search?q=an&format=json")

	require.Equal(t, http.StatusOK, res.StatusCode)
	var got struct {
		Count int `json:"count"`
		Users []struct {
			Name string `json:"name"`
		} `json:"users"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, "Ann", got.Users[0].Name)
	assert.Equal(t, "Joanna", got.Users[1].Name)
}
