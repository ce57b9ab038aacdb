package authroles

import (
	"slices"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/ports"
)

// StaticRoleMapper maps IdP groups onto roles by membership. Admin membership wins
// over user membership; anyone else is a guest.
type StaticRoleMapper struct {
	AdminGroups []string
	UserGroups  []string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	if containsAny(groups, m.AdminGroups) {
		return domainauth.RoleAdmin
	}
	if containsAny(groups, m.UserGroups) {
		return domainauth.RoleUser
	}
	return domainauth.RoleGuest
}

func containsAny(groups, wanted []string) bool {
	for _, w := range wanted {
		if w != "" && slices.Contains(groups, w) {
			return true
		}
	}
	return false
}

var _ ports.RoleMapper = StaticRoleMapper{}
