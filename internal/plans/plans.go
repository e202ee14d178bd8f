// Package plans es el recurso de planes de membresía sobre la query cache:
// las lecturas pasan por la familia "plans" y cada mutación exitosa la invalida.
package plans

import (
	"context"
	"errors"
	"strings"

	"github.com/dropDatabas3/portal/internal/api"
	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/dropDatabas3/portal/internal/query"
	"github.com/dropDatabas3/portal/internal/session"
)

// Remote es la parte de la API de planes. *api.Client la implementa.
type Remote interface {
	ListPlans(ctx context.Context, token string) ([]types.Plan, error)
	CreatePlan(ctx context.Context, token string, in types.PlanInput) (types.Plan, error)
	UpdatePlan(ctx context.Context, token string, id int64, in types.PlanInput) (types.Plan, error)
	DeletePlan(ctx context.Context, token string, id int64) error
}

// Session provee el token y recibe el logout ante un 401.
type Session interface {
	Snapshot() session.State
	ForceLogoutIf(token, reason string) bool
}

var ErrInvalidID = errors.New("plans: invalid id")

type Service struct {
	remote  Remote
	session Session
	cache   *query.Cache
}

func NewService(remote Remote, sess Session, cache *query.Cache) *Service {
	if cache == nil {
		cache = query.New(nil)
	}
	return &Service{remote: remote, session: sess, cache: cache}
}

func (s *Service) token() (string, error) {
	t := s.session.Snapshot().Token
	if t == "" {
		return "", session.ErrNotAuthenticated
	}
	return t, nil
}

// authFailed fuerza logout si err es un 401 para tok y lo devuelve sin
// cambios. Si la sesión ya rotó de token, el 401 no la toca.
func (s *Service) authFailed(tok string, err error) error {
	if api.IsAuth(err) {
		s.session.ForceLogoutIf(tok, session.ReasonUnauthorized)
	}
	return err
}

// List devuelve los planes (tier estable, 1h).
func (s *Service) List(ctx context.Context) ([]types.Plan, error) {
	tok, err := s.token()
	if err != nil {
		return nil, err
	}
	out, err := query.Fetch(ctx, s.cache, query.NewKey(query.FamilyPlans), func(ctx context.Context) ([]types.Plan, error) {
		return s.remote.ListPlans(ctx, tok)
	}, query.WithRetry(1, api.IsTransient))
	if err != nil {
		return nil, s.authFailed(tok, err)
	}
	return append([]types.Plan(nil), out...), nil
}

func (s *Service) Create(ctx context.Context, in types.PlanInput) (types.Plan, error) {
	tok, err := s.token()
	if err != nil {
		return types.Plan{}, err
	}
	if err := validate(in); err != nil {
		return types.Plan{}, err
	}
	p, err := query.Mutate(ctx, s.cache, func(ctx context.Context) (types.Plan, error) {
		return s.remote.CreatePlan(ctx, tok, in)
	}, query.FamilyPlans, query.FamilyDashboardStats)
	return p, s.authFailed(tok, err)
}

func (s *Service) Update(ctx context.Context, id int64, in types.PlanInput) (types.Plan, error) {
	if id <= 0 {
		return types.Plan{}, ErrInvalidID
	}
	tok, err := s.token()
	if err != nil {
		return types.Plan{}, err
	}
	if err := validate(in); err != nil {
		return types.Plan{}, err
	}
	p, err := query.Mutate(ctx, s.cache, func(ctx context.Context) (types.Plan, error) {
		return s.remote.UpdatePlan(ctx, tok, id, in)
	}, query.FamilyPlans, query.FamilyDashboardStats)
	return p, s.authFailed(tok, err)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	tok, err := s.token()
	if err != nil {
		return err
	}
	_, err = query.Mutate(ctx, s.cache, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.remote.DeletePlan(ctx, tok, id)
	}, query.FamilyPlans, query.FamilyDashboardStats)
	return s.authFailed(tok, err)
}

func validate(in types.PlanInput) error {
	f := map[string][]string{}
	if strings.TrimSpace(in.Name) == "" {
		f["name"] = append(f["name"], "The name field is required.")
	}
	if in.PriceCents < 0 {
		f["price_cents"] = append(f["price_cents"], "The price must be zero or more.")
	}
	switch in.Interval {
	case "", "month", "year":
	default:
		f["interval"] = append(f["interval"], "The interval must be month or year.")
	}
	if len(f) > 0 {
		return api.Validation(f)
	}
	return nil
}
