package pvzstub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, s *Service, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

const listQuery = "/pvz?startDate=2025-01-01T00:00:00Z&endDate=2026-01-01T00:00:00Z&page=1&limit=10"

func TestService_ReceptionLifecycle(t *testing.T) {
	s := New()

	rec := do(t, s, http.MethodPost, "/dummyLogin", "", `{"role":"moderator"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	moderator := rec.Body.String()
	employee := do(t, s, http.MethodPost, "/dummyLogin", "", `{"role":"employee"}`).Body.String()

	assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodPost, "/pvz", employee, `{"id":"p1","city":"Москва"}`).Code)
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/pvz", moderator, `{"id":"p1","city":"Москва"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/pvz", moderator, `{"id":"p1","city":"Москва"}`).Code)

	steps := []struct {
		path, body string
		want       int
	}{
		{"/products", `{"pvzId":"p1","type":"одежда"}`, http.StatusBadRequest},
		{"/receptions", `{"pvzId":"p1"}`, http.StatusCreated},
		{"/receptions", `{"pvzId":"p1"}`, http.StatusBadRequest},
		{"/pvz/p1/delete_last_product", "", http.StatusBadRequest},
		{"/products", `{"pvzId":"p1","type":"одежда"}`, http.StatusCreated},
		{"/pvz/p1/delete_last_product", "", http.StatusOK},
		{"/pvz/p1/close_last_reception", "", http.StatusOK},
		{"/pvz/p1/close_last_reception", "", http.StatusBadRequest},
	}
	for _, st := range steps {
		assert.Equal(t, st.want, do(t, s, http.MethodPost, st.path, employee, st.body).Code, "%s %s", st.path, st.body)
	}

	assert.Equal(t, 1, s.PVZCount())
	assert.Equal(t, 2, s.Count("POST /receptions"))
}

func TestService_List(t *testing.T) {
	s := New()
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, listQuery, "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/pvz?page=1&limit=10", "token-employee", "").Code)

	rec := do(t, s, http.MethodGet, listQuery, "token-employee", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for _, id := range []string{"a", "b"} {
		require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/pvz", "token-moderator", `{"id":"`+id+`","city":"Казань"}`).Code)
	}
	rec = do(t, s, http.MethodGet, listQuery, "token-employee", "")
	assert.Contains(t, rec.Body.String(), `"id":"a"`)
	assert.Contains(t, rec.Body.String(), `"id":"b"`)
}

func TestService_Authorization(t *testing.T) {
	s := New()
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/pvz", "token-moderator", `{"id":"p1","city":"Москва"}`).Code)

	tests := []struct {
		name, method, path, token string
		want                      int
	}{
		{"no token", http.MethodPost, "/receptions", "", http.StatusUnauthorized},
		{"not a stub token", http.MethodPost, "/receptions", "jwt", http.StatusUnauthorized},
		{"moderator opens reception", http.MethodPost, "/receptions", "token-moderator", http.StatusForbidden},
		{"moderator adds product", http.MethodPost, "/products", "token-moderator", http.StatusForbidden},
		{"moderator closes reception", http.MethodPost, "/pvz/p1/close_last_reception", "token-moderator", http.StatusForbidden},
		{"unknown role lists", http.MethodGet, listQuery, "token-client", http.StatusForbidden},
		{"moderator lists", http.MethodGet, listQuery, "token-moderator", http.StatusOK},
		{"wrong method", http.MethodDelete, "/pvz", "token-moderator", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(t, s, tt.method, tt.path, tt.token, `{"pvzId":"p1","type":"одежда"}`).Code)
		})
	}
}

func TestService_RegisterAndLogin(t *testing.T) {
	s := New()
	creds := `{"email":"a@test.com","password":"secret","role":"employee"}`

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/login", "", creds).Code)
	assert.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/register", "", creds).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/register", "", creds).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/register", "", `{"email":"nope","password":"x"}`).Code)

	rec := do(t, s, http.MethodPost, "/login", "", creds)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "token-employee", rec.Body.String())
}

func TestService_Latency(t *testing.T) {
	s := New(WithLatency(20 * time.Millisecond))
	start := time.Now()
	rec := do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
