package http

import (
	"net/http"
	"strconv"

	"github.com/dropDatabas3/portal/internal/api"
	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/dropDatabas3/portal/internal/guard"
	"github.com/dropDatabas3/portal/internal/http/middlewares"
	"github.com/dropDatabas3/portal/internal/notify"
	"github.com/dropDatabas3/portal/internal/observability/logger"
	"github.com/dropDatabas3/portal/internal/util"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type handlers struct {
	cfg Config
}

type sessionView struct {
	Authenticated bool            `json:"authenticated"`
	Hydrated      bool            `json:"hydrated"`
	Loading       bool            `json:"loading"`
	Token         string          `json:"token,omitempty"` // enmascarado
	User          *types.AuthUser `json:"user,omitempty"`
	Error         string          `json:"error,omitempty"`
	CSRFToken     string          `json:"csrf_token,omitempty"`
}

func (h *handlers) issueCSRF(w http.ResponseWriter) string {
	tok := uuid.NewString()
	http.SetCookie(w, middlewares.CSRFCookie(h.cfg.CSRF, tok))
	return tok
}

// returnTarget es el destino post-login: el parámetro de retorno si es un
// path local, o el dashboard.
func (h *handlers) returnTarget(r *http.Request) string {
	opts := h.cfg.Guard
	param, dash := opts.ReturnParam, opts.DashboardPath
	if param == "" {
		param = "redirect"
	}
	if dash == "" {
		dash = "/dashboard"
	}
	if p := r.URL.Query().Get(param); guard.SafeReturnPath(p) {
		return p
	}
	return dash
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	st := h.cfg.Session.Snapshot()
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"hydrated":      st.Hydrated,
		"authenticated": st.Authenticated(),
	})
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	st := h.cfg.Session.Snapshot()
	v := sessionView{
		Authenticated: st.Authenticated(),
		Hydrated:      st.Hydrated,
		Loading:       st.IsLoading,
		Token:         util.MaskToken(st.Token),
		User:          st.User,
		CSRFToken:     h.issueCSRF(w),
	}
	if st.Err != nil {
		v.Error = api.Message(st.Err)
	}
	WriteJSON(w, http.StatusOK, v)
}

func (h *handlers) loginPage(w http.ResponseWriter, r *http.Request) {
	target := h.returnTarget(r)
	if st := h.cfg.Session.Snapshot(); st.Resolved() && st.User != nil {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": false,
		"redirect":      target,
		"csrf_token":    h.issueCSRF(w),
	})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var cr api.Credentials
	if !ReadJSON(w, r, &cr) {
		return
	}
	res, err := h.cfg.Session.Login(r.Context(), cr)
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	if res.User != nil {
		logger.From(r.Context()).Info("dashboard login", logger.UserID(res.User.ID))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"user":               res.User,
		"needs_verification": res.NeedsVerification,
		"redirect":           h.returnTarget(r),
	})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"ok": true}
	if err := h.cfg.Session.Logout(r.Context()); err != nil {
		// la sesión local ya se limpió; el error remoto sólo se informa
		body["remote_error"] = api.Message(err)
	}
	WriteJSON(w, http.StatusOK, body)
}

// current relee el usuario; entre el guard y el handler pudo haber un logout.
func (h *handlers) current(w http.ResponseWriter, r *http.Request) (*types.AuthUser, bool) {
	u := h.cfg.Session.Snapshot().User
	if u == nil {
		http.Redirect(w, r, guard.LoginURL(r.URL.RequestURI(), h.cfg.Guard), http.StatusFound)
		return nil, false
	}
	return u, true
}

func (h *handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	u, ok := h.current(w, r)
	if !ok {
		return
	}
	notices := []notify.Notification{}
	if h.cfg.Notices != nil {
		notices = append(notices, h.cfg.Notices.All()...)
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"display_name":       u.DisplayName(),
		"needs_verification": u.NeedsVerification(),
		"capabilities":       u.Permissions.Granted(),
		"can_access_admin":   u.AdminAccess.CanAccessAdmin,
		"notifications":      notices,
	})
}

func (h *handlers) admin(w http.ResponseWriter, r *http.Request) {
	u, ok := h.current(w, r)
	if !ok {
		return
	}
	menu := u.AdminAccess.Menu
	if menu == nil {
		menu = []types.MenuItem{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"menu": menu})
}

func (h *handlers) donations(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"widget": "donations", "locked": false})
}

func (h *handlers) donationsLocked(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"widget":  "donations",
		"locked":  true,
		"message": "Ask an administrator for access to donations.",
	})
}

func (h *handlers) plansForbidden(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusForbidden, "forbidden", "sin permiso para gestionar planes")
}

func (h *handlers) listPlans(w http.ResponseWriter, r *http.Request) {
	ps, err := h.cfg.Plans.List(r.Context())
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	if ps == nil {
		ps = []types.Plan{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"plans": ps})
}

func (h *handlers) createPlan(w http.ResponseWriter, r *http.Request) {
	var in types.PlanInput
	if !ReadJSON(w, r, &in) {
		return
	}
	p, err := h.cfg.Plans.Create(r.Context(), in)
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, p)
}

func (h *handlers) updatePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	var in types.PlanInput
	if !ReadJSON(w, r, &in) {
		return
	}
	p, err := h.cfg.Plans.Update(r.Context(), id, in)
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (h *handlers) deletePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	if err := h.cfg.Plans.Delete(r.Context(), id); err != nil {
		WriteAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func planID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, "invalid_id", "id de plan inválido")
		return 0, false
	}
	return id, true
}
