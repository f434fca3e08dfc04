// Package access maps roles to capabilities and checks them for an explicit caller.
package access

import (
	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/pkg/models"
)

// Capability is an operation class a role may be granted.
type Capability string

const (
	ViewPublicListings Capability = "viewPublicListings"
	CreateListing      Capability = "createListing"
	ManageOwnListing   Capability = "manageOwnListing"
	ApproveListing     Capability = "approveListing"
	SendInquiry        Capability = "sendInquiry"
	RespondToInquiry   Capability = "respondToInquiry"
	ViewAdminAnalytics Capability = "viewAdminAnalytics"
	Moderate           Capability = "moderate"
)

var grants = map[models.Role]map[Capability]bool{
	models.RoleBuyer: {ViewPublicListings: true, SendInquiry: true},
	models.RoleOwner: {ViewPublicListings: true, CreateListing: true, ManageOwnListing: true, RespondToInquiry: true},
	models.RoleAgent: {ViewPublicListings: true, CreateListing: true, ManageOwnListing: true, RespondToInquiry: true},
	models.RoleAdmin: {ViewPublicListings: true, ApproveListing: true, ViewAdminAnalytics: true, Moderate: true},
}

// Can reports whether role holds capability c.
func Can(role models.Role, c Capability) bool {
	return grants[role][c]
}

// Caller is the authenticated identity performing an operation. It is
// rebuilt from the user store for every request.
type Caller struct {
	ID    string
	Role  models.Role
	Name  string
	Email string
	Phone string
}

// FromUser builds a Caller from a stored user.
func FromUser(u *models.User) *Caller {
	return &Caller{ID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email, Phone: u.Phone}
}

// Can reports whether the caller holds capability want. A nil caller holds none.
func (c *Caller) Can(want Capability) bool {
	return c != nil && Can(c.Role, want)
}

// IsAdmin reports whether the caller may override ownership checks.
func (c *Caller) IsAdmin() bool {
	return c.Can(Moderate)
}

// Owns reports whether the caller is the given resource owner.
func (c *Caller) Owns(ownerID string) bool {
	return c != nil && c.ID != "" && c.ID == ownerID
}

// Authenticated returns an unauthenticated error for a nil caller.
func Authenticated(c *Caller) error {
	if c == nil || c.ID == "" {
		return apperr.Unauthenticated("authentication required")
	}
	return nil
}

// Require checks that c is present and holds want.
func Require(c *Caller, want Capability) error {
	if err := Authenticated(c); err != nil {
		return err
	}
	if !c.Can(want) {
		return apperr.Forbidden("role " + string(c.Role) + " may not " + string(want))
	}
	return nil
}

// RequireAny checks that c is present and holds at least one of caps.
func RequireAny(c *Caller, caps ...Capability) error {
	if err := Authenticated(c); err != nil {
		return err
	}
	for _, want := range caps {
		if c.Can(want) {
			return nil
		}
	}
	return apperr.Forbidden("role " + string(c.Role) + " is not permitted")
}
