package types

import "sort"

// Capability nombra un flag de UiPermissions (el nombre JSON del flag).
type Capability string

// User management.
const (
	CapViewUsers     Capability = "can_view_users"
	CapCreateUsers   Capability = "can_create_users"
	CapEditUsers     Capability = "can_edit_users"
	CapDeleteUsers   Capability = "can_delete_users"
	CapManageRoles   Capability = "can_manage_roles"
	CapManageMembers Capability = "can_manage_members"
)

// Events.
const (
	CapViewEvents               Capability = "can_view_events"
	CapCreateEvents             Capability = "can_create_events"
	CapEditEvents               Capability = "can_edit_events"
	CapDeleteEvents             Capability = "can_delete_events"
	CapManageEventRegistrations Capability = "can_manage_event_registrations"
)

// Content.
const (
	CapViewPosts    Capability = "can_view_posts"
	CapCreatePosts  Capability = "can_create_posts"
	CapEditPosts    Capability = "can_edit_posts"
	CapDeletePosts  Capability = "can_delete_posts"
	CapPublishPosts Capability = "can_publish_posts"
	CapManageMedia  Capability = "can_manage_media"
	CapManagePages  Capability = "can_manage_pages"
)

// Financial.
const (
	CapViewDonations        Capability = "can_view_donations"
	CapManageDonations      Capability = "can_manage_donations"
	CapManagePlans          Capability = "can_manage_plans"
	CapViewFinancialReports Capability = "can_view_financial_reports"
	CapManageSubscriptions  Capability = "can_manage_subscriptions"
)

// Lab-space.
const (
	CapViewLabBookings   Capability = "can_view_lab_bookings"
	CapManageLabBookings Capability = "can_manage_lab_bookings"
	CapManageEquipment   Capability = "can_manage_equipment"
)

// System.
const (
	CapAccessAdmin        Capability = "can_access_admin"
	CapManageSettings     Capability = "can_manage_settings"
	CapViewAuditLog       Capability = "can_view_audit_log"
	CapManageIntegrations Capability = "can_manage_integrations"
)

// UiPermissions es el set fijo de flags que decide qué se renderiza.
type UiPermissions struct {
	CanViewUsers     bool `json:"can_view_users"`
	CanCreateUsers   bool `json:"can_create_users"`
	CanEditUsers     bool `json:"can_edit_users"`
	CanDeleteUsers   bool `json:"can_delete_users"`
	CanManageRoles   bool `json:"can_manage_roles"`
	CanManageMembers bool `json:"can_manage_members"`

	CanViewEvents               bool `json:"can_view_events"`
	CanCreateEvents             bool `json:"can_create_events"`
	CanEditEvents               bool `json:"can_edit_events"`
	CanDeleteEvents             bool `json:"can_delete_events"`
	CanManageEventRegistrations bool `json:"can_manage_event_registrations"`

	CanViewPosts    bool `json:"can_view_posts"`
	CanCreatePosts  bool `json:"can_create_posts"`
	CanEditPosts    bool `json:"can_edit_posts"`
	CanDeletePosts  bool `json:"can_delete_posts"`
	CanPublishPosts bool `json:"can_publish_posts"`
	CanManageMedia  bool `json:"can_manage_media"`
	CanManagePages  bool `json:"can_manage_pages"`

	CanViewDonations        bool `json:"can_view_donations"`
	CanManageDonations      bool `json:"can_manage_donations"`
	CanManagePlans          bool `json:"can_manage_plans"`
	CanViewFinancialReports bool `json:"can_view_financial_reports"`
	CanManageSubscriptions  bool `json:"can_manage_subscriptions"`

	CanViewLabBookings   bool `json:"can_view_lab_bookings"`
	CanManageLabBookings bool `json:"can_manage_lab_bookings"`
	CanManageEquipment   bool `json:"can_manage_equipment"`

	CanAccessAdmin        bool `json:"can_access_admin"`
	CanManageSettings     bool `json:"can_manage_settings"`
	CanViewAuditLog       bool `json:"can_view_audit_log"`
	CanManageIntegrations bool `json:"can_manage_integrations"`
}

var capabilityFlags = map[Capability]func(p *UiPermissions) *bool{
	CapViewUsers:     func(p *UiPermissions) *bool { return &p.CanViewUsers },
	CapCreateUsers:   func(p *UiPermissions) *bool { return &p.CanCreateUsers },
	CapEditUsers:     func(p *UiPermissions) *bool { return &p.CanEditUsers },
	CapDeleteUsers:   func(p *UiPermissions) *bool { return &p.CanDeleteUsers },
	CapManageRoles:   func(p *UiPermissions) *bool { return &p.CanManageRoles },
	CapManageMembers: func(p *UiPermissions) *bool { return &p.CanManageMembers },

	CapViewEvents:               func(p *UiPermissions) *bool { return &p.CanViewEvents },
	CapCreateEvents:             func(p *UiPermissions) *bool { return &p.CanCreateEvents },
	CapEditEvents:               func(p *UiPermissions) *bool { return &p.CanEditEvents },
	CapDeleteEvents:             func(p *UiPermissions) *bool { return &p.CanDeleteEvents },
	CapManageEventRegistrations: func(p *UiPermissions) *bool { return &p.CanManageEventRegistrations },

	CapViewPosts:    func(p *UiPermissions) *bool { return &p.CanViewPosts },
	CapCreatePosts:  func(p *UiPermissions) *bool { return &p.CanCreatePosts },
	CapEditPosts:    func(p *UiPermissions) *bool { return &p.CanEditPosts },
	CapDeletePosts:  func(p *UiPermissions) *bool { return &p.CanDeletePosts },
	CapPublishPosts: func(p *UiPermissions) *bool { return &p.CanPublishPosts },
	CapManageMedia:  func(p *UiPermissions) *bool { return &p.CanManageMedia },
	CapManagePages:  func(p *UiPermissions) *bool { return &p.CanManagePages },

	CapViewDonations:        func(p *UiPermissions) *bool { return &p.CanViewDonations },
	CapManageDonations:      func(p *UiPermissions) *bool { return &p.CanManageDonations },
	CapManagePlans:          func(p *UiPermissions) *bool { return &p.CanManagePlans },
	CapViewFinancialReports: func(p *UiPermissions) *bool { return &p.CanViewFinancialReports },
	CapManageSubscriptions:  func(p *UiPermissions) *bool { return &p.CanManageSubscriptions },

	CapViewLabBookings:   func(p *UiPermissions) *bool { return &p.CanViewLabBookings },
	CapManageLabBookings: func(p *UiPermissions) *bool { return &p.CanManageLabBookings },
	CapManageEquipment:   func(p *UiPermissions) *bool { return &p.CanManageEquipment },

	CapAccessAdmin:        func(p *UiPermissions) *bool { return &p.CanAccessAdmin },
	CapManageSettings:     func(p *UiPermissions) *bool { return &p.CanManageSettings },
	CapViewAuditLog:       func(p *UiPermissions) *bool { return &p.CanViewAuditLog },
	CapManageIntegrations: func(p *UiPermissions) *bool { return &p.CanManageIntegrations },
}

// Has resuelve un flag por nombre. Capabilities desconocidas dan false.
func (p UiPermissions) Has(c Capability) bool {
	f, ok := capabilityFlags[c]
	if !ok {
		return false
	}
	return *f(&p)
}

// Set prende o apaga un flag por nombre; devuelve false si no existe.
func (p *UiPermissions) Set(c Capability, v bool) bool {
	f, ok := capabilityFlags[c]
	if !ok {
		return false
	}
	*f(p) = v
	return true
}

// Granted lista las capabilities activas, ordenadas.
func (p UiPermissions) Granted() []Capability {
	out := make([]Capability, 0, len(capabilityFlags))
	for c := range capabilityFlags {
		if p.Has(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Capabilities lista todas las capabilities conocidas, ordenadas.
func Capabilities() []Capability {
	out := make([]Capability, 0, len(capabilityFlags))
	for c := range capabilityFlags {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsKnown es true si c nombra un flag de UiPermissions.
func (c Capability) IsKnown() bool {
	_, ok := capabilityFlags[c]
	return ok
}
