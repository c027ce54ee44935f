// Package auth carries the caller's identity through the service layer and
// provides the service-account token used for outbound calls. Identity is
// always passed explicitly as a parameter; there is no ambient security
// context.
package auth

import "github.com/gofrs/uuid"

// Roles that grant administrative access to order operations.
var privilegedRoles = []string{
	"portfolio_admin",
	"admin",
	"orders-admin",
	"catalog_admin",
}

// Identity describes the authenticated caller of an order operation.
// A zero UserID means the caller is anonymous.
type Identity struct {
	UserID uuid.UUID
	Roles  []string
}

func (i Identity) IsAnonymous() bool {
	return i.UserID == uuid.Nil
}

// IsPrivileged reports whether the caller holds any administrative role.
func (i Identity) IsPrivileged() bool {
	return i.HasAnyRole(privilegedRoles...)
}

func (i Identity) HasAnyRole(roles ...string) bool {
	for _, granted := range i.Roles {
		for _, wanted := range roles {
			if granted == wanted {
				return true
			}
		}
	}
	return false
}
