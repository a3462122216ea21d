package access

import "github.com/trezcool/shule/core/user"

// writeRules maps each resource kind to the roles that may ever create or
// update it. Absence means nobody writes it through the engine.
var writeRules = map[Kind][]string{
	KindTenant:            {user.RoleSystemAdmin},
	KindUser:              {user.RoleSystemAdmin, user.RoleSchoolAdmin},
	KindClassGroup:        {user.RoleSystemAdmin, user.RoleSchoolAdmin, user.RoleTeacher},
	KindSubject:           {user.RoleSystemAdmin, user.RoleSchoolAdmin, user.RoleTeacher},
	KindStudent:           {user.RoleSystemAdmin, user.RoleSchoolAdmin},
	KindTeacherAssignment: {user.RoleSystemAdmin, user.RoleSchoolAdmin},
	KindGuardianLink:      {user.RoleSystemAdmin, user.RoleSchoolAdmin},
	KindDailyLog:          {user.RoleSystemAdmin, user.RoleSchoolAdmin, user.RoleTeacher},
	KindPost:              {user.RoleSystemAdmin, user.RoleTeacher},
	KindNotice:            {user.RoleSystemAdmin, user.RoleSchoolAdmin, user.RoleTeacher},
}

// CanWrite is the role gate of the write guard, checked before any tenant
// derivation or relationship check.
func CanWrite(usr user.User, kind Kind) bool {
	for _, role := range writeRules[kind] {
		if usr.Role == role {
			return true
		}
	}
	return false
}

// DeriveTenant resolves the tenant a write lands in. Explicit tenants are
// only honored for platform admins; everyone else writes into their own
// tenant, and a conflicting explicit tenant is a mismatch.
func DeriveTenant(usr user.User, explicit string) (tenantID string, ok bool) {
	if usr.IsSystemAdmin() {
		return explicit, explicit != ""
	}
	if usr.TenantID == "" {
		return "", false
	}
	if explicit != "" && explicit != usr.TenantID {
		return "", false
	}
	return usr.TenantID, true
}
