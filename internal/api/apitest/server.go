// Package apitest levanta una API remota falsa (chi + httptest) para tests de
// paquetes que hablan con la API real.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/go-chi/chi/v5"
)

// Server es la API falsa. Los tokens son opacos: "tok1", "tok2", ...
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	users     map[int64]*types.AuthUser
	passwords map[string]string // email -> password
	tokens    map[string]token
	plans     []types.Plan
	calls     map[string]int
	forced    map[string]int // endpoint -> status forzado
	nextTok   int
	nextPlan  int64
	TokenTTL  time.Duration
}

type token struct {
	userID  int64
	expires time.Time
}

// New arranca el servidor. Cerrar con Close (t.Cleanup).
func New() *Server {
	s := &Server{
		users:     map[int64]*types.AuthUser{},
		passwords: map[string]string{},
		tokens:    map[string]token{},
		calls:     map[string]int{},
		forced:    map[string]int{},
		TokenTTL:  time.Hour,
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.track("login", s.login))
		r.Post("/register", s.track("register", s.register))
		r.Post("/logout", s.track("logout", s.authed(s.logout)))
		r.Post("/refresh", s.track("refresh", s.authed(s.refresh)))
		r.Get("/me", s.track("me", s.authed(s.me)))
		r.Patch("/profile", s.track("update_profile", s.authed(s.updateProfile)))
		r.Get("/token", s.track("token_status", s.authed(s.tokenStatus)))
		r.Post("/password/forgot", s.track("password_forgot", func(w http.ResponseWriter, _ *http.Request, _ int64) {
			w.WriteHeader(http.StatusNoContent)
		}))
		r.Post("/password/reset", s.track("password_reset", func(w http.ResponseWriter, _ *http.Request, _ int64) {
			w.WriteHeader(http.StatusNoContent)
		}))
	})
	r.Get("/plans", s.track("plans_list", s.authed(s.listPlans)))
	r.Post("/plans", s.track("plans_create", s.authed(s.createPlan)))
	r.Put("/plans/{id}", s.track("plans_update", s.authed(s.updatePlan)))
	r.Delete("/plans/{id}", s.track("plans_delete", s.authed(s.deletePlan)))
	return r
}

// AddUser registra un usuario con password.
func (s *Server) AddUser(u types.AuthUser, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u.Clone()
	s.passwords[strings.ToLower(u.Email)] = password
}

// UpdateUser reemplaza el usuario del lado servidor (simula cambios de permisos).
func (s *Server) UpdateUser(u types.AuthUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u.Clone()
}

// Issue emite un token válido para userID.
func (s *Server) Issue(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(userID)
}

// Expire ajusta el vencimiento de un token.
func (s *Server) Expire(tok string, in time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[tok]; ok {
		t.expires = time.Now().Add(in)
		s.tokens[tok] = t
	}
}

// Revoke invalida un token (las llamadas siguientes dan 401).
func (s *Server) Revoke(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tok)
}

// Valid dice si el token sigue vigente del lado servidor.
func (s *Server) Valid(tok string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tok]
	return ok && time.Now().Before(t.expires)
}

// Fail fuerza status en endpoint; status 0 limpia el forzado.
func (s *Server) Fail(endpoint string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.forced, endpoint)
		return
	}
	s.forced[endpoint] = status
}

// Calls cuenta las llamadas recibidas por endpoint.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// SeedPlans reemplaza los planes.
func (s *Server) SeedPlans(plans ...types.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = append([]types.Plan(nil), plans...)
	for _, p := range plans {
		if p.ID > s.nextPlan {
			s.nextPlan = p.ID
		}
	}
}

func (s *Server) issueLocked(userID int64) string {
	s.nextTok++
	tok := "tok" + strconv.Itoa(s.nextTok)
	s.tokens[tok] = token{userID: userID, expires: time.Now().Add(s.TokenTTL)}
	return tok
}

type handler func(w http.ResponseWriter, r *http.Request, userID int64)

func (s *Server) track(endpoint string, next handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[endpoint]++
		status, forced := s.forced[endpoint]
		s.mu.Unlock()
		if forced {
			writeJSON(w, status, map[string]any{"message": fmt.Sprintf("forced %d", status)})
			return
		}
		next(w, r, 0)
	}
}

func (s *Server) authed(next handler) handler {
	return func(w http.ResponseWriter, r *http.Request, _ int64) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		t, ok := s.tokens[tok]
		s.mu.Unlock()
		if !ok || time.Now().After(t.expires) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
			return
		}
		next(w, r, t.userID)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, _ int64) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad json"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pw, ok := s.passwords[strings.ToLower(in.Email)]
	if !ok || pw != in.Password {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "These credentials do not match our records.",
			"errors":  map[string][]string{"email": {"These credentials do not match our records."}},
		})
		return
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, in.Email) {
			writeJSON(w, http.StatusOK, map[string]any{"access_token": s.issueLocked(u.ID), "user": u})
			return
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "unknown user"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request, _ int64) {
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad json"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.passwords[strings.ToLower(in.Email)]; exists {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The email has already been taken.",
			"errors":  map[string][]string{"email": {"The email has already been taken."}},
		})
		return
	}
	id := int64(len(s.users) + 1)
	u := &types.AuthUser{ID: id, Username: in.Username, Email: in.Email}
	s.users[id] = u
	s.passwords[strings.ToLower(in.Email)] = in.Password
	writeJSON(w, http.StatusCreated, map[string]any{"access_token": s.issueLocked(id), "user": u})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request, _ int64) {
	s.mu.Lock()
	delete(s.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	writeJSON(w, http.StatusOK, map[string]any{"access_token": s.issueLocked(userID), "user": s.users[userID]})
}

func (s *Server) me(w http.ResponseWriter, _ *http.Request, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"user": s.users[userID]})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request, userID int64) {
	var patch types.UserPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad json"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := patch.Apply(s.users[userID])
	s.users[userID] = u
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) tokenStatus(w http.ResponseWriter, r *http.Request, _ int64) {
	s.mu.Lock()
	t := s.tokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"expires_in": int64(time.Until(t.expires).Seconds())})
}

func (s *Server) listPlans(w http.ResponseWriter, _ *http.Request, _ int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]types.Plan{}, s.plans...)
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) createPlan(w http.ResponseWriter, r *http.Request, _ int64) {
	var in types.PlanInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The name field is required.",
			"errors":  map[string][]string{"name": {"The name field is required."}},
		})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPlan++
	p := planFrom(s.nextPlan, in)
	s.plans = append(s.plans, p)
	writeJSON(w, http.StatusCreated, map[string]any{"data": p})
}

func (s *Server) updatePlan(w http.ResponseWriter, r *http.Request, _ int64) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var in types.PlanInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad json"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.plans {
		if s.plans[i].ID == id {
			s.plans[i] = planFrom(id, in)
			writeJSON(w, http.StatusOK, map[string]any{"data": s.plans[i]})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"message": "Plan not found."})
}

func (s *Server) deletePlan(w http.ResponseWriter, r *http.Request, _ int64) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.plans {
		if s.plans[i].ID == id {
			s.plans = append(s.plans[:i], s.plans[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"message": "Plan not found."})
}

func planFrom(id int64, in types.PlanInput) types.Plan {
	return types.Plan{
		ID: id, Name: in.Name, Description: in.Description, PriceCents: in.PriceCents,
		Currency: in.Currency, Interval: in.Interval, Active: in.Active,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
