package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/portal/internal/domain/types"
)

type plansResponse struct {
	Data []types.Plan `json:"data"`
}

type planResponse struct {
	Data types.Plan `json:"data"`
}

// ListPlans lista los planes de membresía.
func (c *Client) ListPlans(ctx context.Context, token string) ([]types.Plan, error) {
	var out plansResponse
	if err := c.do(ctx, request{endpoint: "plans_list", method: http.MethodGet, path: "plans", token: token, out: &out}); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) CreatePlan(ctx context.Context, token string, in types.PlanInput) (types.Plan, error) {
	var out planResponse
	err := c.do(ctx, request{endpoint: "plans_create", method: http.MethodPost, path: "plans", token: token, body: in, out: &out})
	return out.Data, err
}

func (c *Client) UpdatePlan(ctx context.Context, token string, id int64, in types.PlanInput) (types.Plan, error) {
	var out planResponse
	err := c.do(ctx, request{endpoint: "plans_update", method: http.MethodPut, path: "plans/" + strconv.FormatInt(id, 10), token: token, body: in, out: &out})
	return out.Data, err
}

func (c *Client) DeletePlan(ctx context.Context, token string, id int64) error {
	return c.do(ctx, request{endpoint: "plans_delete", method: http.MethodDelete, path: "plans/" + strconv.FormatInt(id, 10), token: token})
}
