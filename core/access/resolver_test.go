package access

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/trezcool/shule/core/user"
)

// fakeGraph serves canned relationship sets.
type fakeGraph struct {
	assignedClasses map[string][]string // teacherID -> classIDs
	linkedStudents  map[string][]string // guardianID -> studentIDs
	classStudents   map[string][]string // classID -> studentIDs
	studentClasses  map[string]string   // studentID -> classID
}

func (g *fakeGraph) AssignedClassIDs(_ context.Context, teacherID string) ([]string, error) {
	return g.assignedClasses[teacherID], nil
}

func (g *fakeGraph) LinkedStudentIDs(_ context.Context, guardianID string) ([]string, error) {
	return g.linkedStudents[guardianID], nil
}

func (g *fakeGraph) StudentIDsOfClasses(_ context.Context, classIDs []string) ([]string, error) {
	var out []string
	for _, id := range classIDs {
		out = append(out, g.classStudents[id]...)
	}
	return out, nil
}

func (g *fakeGraph) ClassIDsOfStudents(_ context.Context, studentIDs []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, id := range studentIDs {
		if cls := g.studentClasses[id]; cls != "" && !seen[cls] {
			seen[cls] = true
			out = append(out, cls)
		}
	}
	return out, nil
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		assignedClasses: map[string][]string{"teach1": {"c1", "c2"}},
		linkedStudents:  map[string][]string{"guard1": {"s1", "s2"}},
		classStudents:   map[string][]string{"c1": {"s1", "s3"}, "c2": {"s4"}, "c3": {"s2"}},
		studentClasses:  map[string]string{"s1": "c1", "s2": "c3", "s3": "c1", "s4": "c2"},
	}
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func predEqual(a, b Predicate) bool {
	a.ClassIDs, b.ClassIDs = sorted(a.ClassIDs), sorted(b.ClassIDs)
	a.StudentIDs, b.StudentIDs = sorted(a.StudentIDs), sorted(b.StudentIDs)
	return reflect.DeepEqual(a, b)
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(newFakeGraph())
	ctx := context.Background()

	sysadmin := user.User{ID: "root", Role: user.RoleSystemAdmin}
	admin := user.User{ID: "adm1", Role: user.RoleSchoolAdmin, TenantID: "t1"}
	teacher := user.User{ID: "teach1", Role: user.RoleTeacher, TenantID: "t1"}
	idleTeacher := user.User{ID: "teach2", Role: user.RoleTeacher, TenantID: "t1"}
	guardian := user.User{ID: "guard1", Role: user.RoleGuardian, TenantID: "t1"}
	orphan := user.User{ID: "lost", Role: user.RoleTeacher} // no tenant

	tests := []struct {
		name string
		usr  user.User
		kind Kind
		want Predicate
	}{
		{name: "sysadmin sees all", usr: sysadmin, kind: KindStudent, want: Predicate{All: true}},
		{name: "no tenant fails closed", usr: orphan, kind: KindStudent, want: Predicate{}},
		{name: "school admin sees tenant", usr: admin, kind: KindDailyLog, want: Predicate{TenantID: "t1"}},
		{name: "teacher subjects are tenant-wide", usr: teacher, kind: KindSubject, want: Predicate{TenantID: "t1"}},
		{name: "teacher notices are tenant-wide", usr: teacher, kind: KindNotice, want: Predicate{TenantID: "t1"}},
		{name: "teacher classes", usr: teacher, kind: KindClassGroup, want: Predicate{TenantID: "t1", ClassIDs: []string{"c1", "c2"}}},
		{name: "teacher assignments", usr: teacher, kind: KindTeacherAssignment, want: Predicate{TenantID: "t1", ClassIDs: []string{"c1", "c2"}}},
		{name: "teacher students of assigned classes", usr: teacher, kind: KindStudent, want: Predicate{TenantID: "t1", StudentIDs: []string{"s1", "s3", "s4"}}},
		{name: "teacher daily logs", usr: teacher, kind: KindDailyLog, want: Predicate{TenantID: "t1", StudentIDs: []string{"s1", "s3", "s4"}}},
		{name: "teacher posts include tenant-wide", usr: teacher, kind: KindPost, want: Predicate{TenantID: "t1", ClassIDs: []string{"c1", "c2"}, IncludeTenantWide: true}},
		{name: "unassigned teacher stays scoped", usr: idleTeacher, kind: KindClassGroup, want: Predicate{TenantID: "t1", ClassIDs: []string{}}},
		{name: "unassigned teacher sees no students", usr: idleTeacher, kind: KindStudent, want: Predicate{TenantID: "t1", StudentIDs: []string{}}},
		{name: "teacher unknown kind fails closed", usr: teacher, kind: KindTenant, want: Predicate{}},
		{name: "guardian students", usr: guardian, kind: KindStudent, want: Predicate{TenantID: "t1", StudentIDs: []string{"s1", "s2"}}},
		{name: "guardian daily logs", usr: guardian, kind: KindDailyLog, want: Predicate{TenantID: "t1", StudentIDs: []string{"s1", "s2"}}},
		{name: "guardian links", usr: guardian, kind: KindGuardianLink, want: Predicate{TenantID: "t1", StudentIDs: []string{"s1", "s2"}}},
		{name: "guardian posts via children's classes", usr: guardian, kind: KindPost, want: Predicate{TenantID: "t1", ClassIDs: []string{"c1", "c3"}, IncludeTenantWide: true}},
		{name: "guardian notices via children's classes", usr: guardian, kind: KindNotice, want: Predicate{TenantID: "t1", ClassIDs: []string{"c1", "c3"}, IncludeTenantWide: true}},
		{name: "guardian unknown kind fails closed", usr: guardian, kind: KindClassGroup, want: Predicate{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.usr, tt.kind)
			if err != nil {
				t.Fatalf("Resolve() failed, %v", err)
			}
			if !predEqual(got, tt.want) {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// Values resolved for one user never admit a row of another tenant, whatever
// the kind.
func TestResolver_tenantIsolation(t *testing.T) {
	r := NewResolver(newFakeGraph())
	ctx := context.Background()

	kinds := []Kind{
		KindUser, KindClassGroup, KindSubject, KindStudent,
		KindTeacherAssignment, KindGuardianLink, KindDailyLog, KindPost, KindNotice,
	}
	users := []user.User{
		{ID: "adm1", Role: user.RoleSchoolAdmin, TenantID: "t1"},
		{ID: "teach1", Role: user.RoleTeacher, TenantID: "t1"},
		{ID: "guard1", Role: user.RoleGuardian, TenantID: "t1"},
	}
	for _, usr := range users {
		for _, kind := range kinds {
			pred, err := r.Resolve(ctx, usr, kind)
			if err != nil {
				t.Fatalf("Resolve(%s, %s) failed, %v", usr.Role, kind, err)
			}
			if pred.Allows("t2", "c1", "s1") {
				t.Errorf("%s/%s admits a row of another tenant", usr.Role, kind)
			}
			if pred.Allows("t2", "", "") {
				t.Errorf("%s/%s admits a tenant-wide row of another tenant", usr.Role, kind)
			}
		}
	}
}

func TestResolver_TeacherReachesClass(t *testing.T) {
	r := NewResolver(newFakeGraph())
	ctx := context.Background()

	tests := []struct {
		name      string
		teacherID string
		classID   string
		want      bool
	}{
		{name: "assigned class", teacherID: "teach1", classID: "c1", want: true},
		{name: "other class", teacherID: "teach1", classID: "c3", want: false},
		{name: "unassigned teacher", teacherID: "teach2", classID: "c1", want: false},
		{name: "empty class never matches", teacherID: "teach1", classID: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.TeacherReachesClass(ctx, tt.teacherID, tt.classID)
			if err != nil {
				t.Fatalf("TeacherReachesClass() failed, %v", err)
			}
			if got != tt.want {
				t.Errorf("TeacherReachesClass() = %v, want %v", got, tt.want)
			}
		})
	}
}
