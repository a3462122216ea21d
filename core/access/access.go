// Package access resolves what a user may see and write across tenants.
//
// Every read path goes through Resolver.Resolve to obtain a Predicate that
// repositories translate into a WHERE clause, and every write path goes
// through CanWrite before touching the store. Rules fail closed: a user with
// no tenant and a non platform-admin role, or a role/kind pair with no rule,
// resolves to the empty set.
package access

// Kind identifies a scoped resource family.
type Kind string

const (
	KindTenant            Kind = "tenant"
	KindUser              Kind = "user"
	KindClassGroup        Kind = "classgroup"
	KindSubject           Kind = "subject"
	KindStudent           Kind = "student"
	KindTeacherAssignment Kind = "teacherassignment"
	KindGuardianLink      Kind = "guardianlink"
	KindDailyLog          Kind = "dailylog"
	KindPost              Kind = "post"
	KindNotice            Kind = "notice"
)

// Predicate is the visible-row filter for one user and one resource kind.
// Exactly one of the following holds:
//   - All is true: no restriction.
//   - TenantID is set with empty ClassIDs and StudentIDs: whole tenant.
//   - TenantID is set with ClassIDs and/or StudentIDs: rows of the tenant
//     related to those classes or students. IncludeTenantWide additionally
//     admits rows of the tenant with no class scope (tenant-wide posts and
//     notices).
//   - none of the above: the empty set.
type Predicate struct {
	All               bool
	TenantID          string
	ClassIDs          []string
	StudentIDs        []string
	IncludeTenantWide bool
}

// None reports whether the predicate matches nothing.
func (p Predicate) None() bool {
	return !p.All && p.TenantID == ""
}

// TenantOnly reports whether the predicate is a plain tenant filter.
func (p Predicate) TenantOnly() bool {
	return !p.All && p.TenantID != "" && p.ClassIDs == nil && p.StudentIDs == nil
}

// Allows evaluates the predicate against one row's scoping columns.
// classID and studentID are empty when the row has no such reference;
// an empty classID on a row counts as tenant-wide.
func (p Predicate) Allows(tenantID, classID, studentID string) bool {
	if p.All {
		return true
	}
	if p.TenantID == "" || p.TenantID != tenantID {
		return false
	}
	if p.ClassIDs == nil && p.StudentIDs == nil {
		return true
	}
	if p.IncludeTenantWide && classID == "" {
		return true
	}
	for _, id := range p.ClassIDs {
		if id != "" && id == classID {
			return true
		}
	}
	for _, id := range p.StudentIDs {
		if id != "" && id == studentID {
			return true
		}
	}
	return false
}
