package types

// Plan es un plan de membresía (familia "plans" de la query cache).
type Plan struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval"` // month | year
	Active      bool   `json:"active"`
}

// PlanInput es el payload de alta/edición de un plan.
type PlanInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval"`
	Active      bool   `json:"active"`
}
