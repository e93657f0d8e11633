package identity

import "slices"

// AdminAuthority grants access to every identity's roles.
var AdminAuthority = RoleAdmin.Authority()

// CanViewRoles reports whether the requester may read target's roles:
// admins may read anyone's, everybody else only their own.
func CanViewRoles(requesterLogin string, requesterAuthorities []string, targetLogin string) bool {
	if slices.Contains(requesterAuthorities, AdminAuthority) {
		return true
	}
	return requesterLogin != "" && requesterLogin == targetLogin
}

// AuthorizeViewRoles returns ErrAccessDenied when CanViewRoles rejects requester.
func AuthorizeViewRoles(requester Principal, targetLogin string) error {
	if CanViewRoles(requester.Login, requester.Authorities, targetLogin) {
		return nil
	}
	return raise(ErrAccessDenied, nil, map[string]any{
		"requester": requester.Login,
		"target":    targetLogin,
	})
}

// AuthorizeAuthority returns ErrAccessDenied unless requester holds authority.
func AuthorizeAuthority(requester Principal, authority string) error {
	if requester.HasAuthority(authority) {
		return nil
	}
	return raise(ErrAccessDenied, nil, map[string]any{
		"requester": requester.Login,
		"required":  authority,
	})
}
