// Package pvzstub is an in-memory PVZ service with the routes, roles and
// status codes of the real one. It backs local smoke runs and tests.
package pvzstub

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	roleEmployee  = "employee"
	roleModerator = "moderator"
	tokenPrefix   = "token-"
	pageLimit     = 10
)

type roleKey struct{}

type pvz struct {
	ID               string `json:"id"`
	City             string `json:"city"`
	RegistrationDate string `json:"registrationDate"`
}

type reception struct {
	open     bool
	products int
}

// Service implements http.Handler. The zero value is not usable; call New.
type Service struct {
	router  chi.Router
	latency time.Duration

	mu         sync.Mutex
	users      map[string]string // email -> password
	pvzs       []pvz
	pvzByID    map[string]bool
	receptions map[string]*reception // pvz id -> last reception
	requests   map[string]int        // "METHOD /path" -> count
}

// Option configures a Service.
type Option func(*Service)

// WithLatency delays every response by d.
func WithLatency(d time.Duration) Option {
	return func(s *Service) {
		s.latency = d
	}
}

// New creates an empty service.
func New(opts ...Option) *Service {
	s := &Service{
		router:     chi.NewRouter(),
		users:      make(map[string]string),
		pvzByID:    make(map[string]bool),
		receptions: make(map[string]*reception),
		requests:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.authRoutes(s.router)
	s.pvzRoutes(s.router)
	s.receptionRoutes(s.router)
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "healthy")
	})
	return s
}

func (s *Service) authRoutes(r chi.Router) {
	r.Post("/dummyLogin", s.dummyLogin)
	r.Post("/register", s.register)
	r.Post("/login", s.login)
}

func (s *Service) pvzRoutes(r chi.Router) {
	r.Route("/pvz", func(b chi.Router) {
		b.Use(authenticate)

		b.With(requireRoles(roleEmployee, roleModerator)).Get("/", s.listPVZ)
		b.With(requireRoles(roleModerator)).Post("/", s.createPVZ)

		b.With(requireRoles(roleEmployee)).Post("/{pvzID}/close_last_reception", s.closeLastReception)
		b.With(requireRoles(roleEmployee)).Post("/{pvzID}/delete_last_product", s.deleteLastProduct)
	})
}

func (s *Service) receptionRoutes(r chi.Router) {
	r.Group(func(b chi.Router) {
		b.Use(authenticate, requireRoles(roleEmployee))

		b.Post("/receptions", s.createReception)
		b.Post("/products", s.addProduct)
	})
}

// authenticate rejects requests without a "Bearer token-<role>" header and
// stores the role in the request context.
func authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "authorization required")
			return
		}
		role, ok := strings.CutPrefix(header, "Bearer "+tokenPrefix)
		if !ok || role == "" {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
	})
}

func requireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := r.Context().Value(roleKey{}).(string)
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "permission denied")
		})
	}
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.Method+" "+r.URL.Path]++
	s.mu.Unlock()

	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	s.router.ServeHTTP(w, r)
}

// Count returns how many requests hit route, written as "METHOD /path".
func (s *Service) Count(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[route]
}

// PVZCount returns how many pickup points exist.
func (s *Service) PVZCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pvzs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func (s *Service) dummyLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.Role != roleEmployee && req.Role != roleModerator) {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}
	writeText(w, http.StatusOK, tokenPrefix+req.Role)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Service) register(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || !strings.Contains(c.Email, "@") || len(c.Password) < 6 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[c.Email]; exists {
		writeError(w, http.StatusBadRequest, "user exists")
		return
	}
	s.users[c.Email] = c.Password
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":    "u" + strconv.Itoa(len(s.users)),
		"email": c.Email,
		"role":  c.Role,
	})
}

func (s *Service) login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	password, ok := s.users[c.Email]
	s.mu.Unlock()
	if !ok || password != c.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeText(w, http.StatusOK, tokenPrefix+roleEmployee)
}

func (s *Service) createPVZ(w http.ResponseWriter, r *http.Request) {
	var p pvz
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.ID == "" || p.City == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pvzByID[p.ID] {
		writeError(w, http.StatusBadRequest, "pvz exists")
		return
	}
	s.pvzs = append(s.pvzs, p)
	s.pvzByID[p.ID] = true
	writeJSON(w, http.StatusCreated, p)
}

func (s *Service) listPVZ(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 || q.Get("startDate") == "" || q.Get("limit") != strconv.Itoa(pageLimit) {
		writeError(w, http.StatusBadRequest, "invalid query")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, pageLimit)
	for i := (page - 1) * pageLimit; i < len(s.pvzs) && len(out) < pageLimit; i++ {
		out = append(out, map[string]any{"pvz": s.pvzs[i], "receptions": []any{}})
	}
	writeJSON(w, http.StatusOK, out)
}

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Service) createReception(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PvzID string `json:"pvzId"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pvzByID[req.PvzID] {
		writeError(w, http.StatusBadRequest, "pvz not found")
		return
	}
	if rec := s.receptions[req.PvzID]; rec != nil && rec.open {
		writeError(w, http.StatusBadRequest, "reception already open")
		return
	}
	s.receptions[req.PvzID] = &reception{open: true}
	writeJSON(w, http.StatusCreated, map[string]string{"pvzId": req.PvzID, "status": "in_progress"})
}

func (s *Service) addProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PvzID string `json:"pvzId"`
		Type  string `json:"type"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.receptions[req.PvzID]
	if rec == nil || !rec.open || req.Type == "" {
		writeError(w, http.StatusBadRequest, "no open reception")
		return
	}
	rec.products++
	writeJSON(w, http.StatusCreated, map[string]string{"pvzId": req.PvzID, "type": req.Type})
}

func (s *Service) deleteLastProduct(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.receptions[chi.URLParam(r, "pvzID")]
	if rec == nil || !rec.open || rec.products == 0 {
		writeError(w, http.StatusBadRequest, "no product to delete")
		return
	}
	rec.products--
	w.WriteHeader(http.StatusOK)
}

func (s *Service) closeLastReception(w http.ResponseWriter, r *http.Request) {
	pvzID := chi.URLParam(r, "pvzID")

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.receptions[pvzID]
	if rec == nil || !rec.open {
		writeError(w, http.StatusBadRequest, "no open reception")
		return
	}
	rec.open = false
	writeJSON(w, http.StatusOK, map[string]string{"pvzId": pvzID, "status": "close"})
}
