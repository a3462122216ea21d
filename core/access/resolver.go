package access

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/user"
)

// Graph answers the relationship queries scoping depends on. Each method
// must be a single set-valued query, never a per-row loop.
type Graph interface {
	// AssignedClassIDs returns the classes where the teacher is lead or has
	// any assignment, deduplicated.
	AssignedClassIDs(ctx context.Context, teacherID string) ([]string, error)
	// LinkedStudentIDs returns the students linked to the guardian.
	LinkedStudentIDs(ctx context.Context, guardianID string) ([]string, error)
	// StudentIDsOfClasses returns the students whose class is in classIDs.
	StudentIDsOfClasses(ctx context.Context, classIDs []string) ([]string, error)
	// ClassIDsOfStudents returns the distinct non-null classes of studentIDs.
	ClassIDsOfStudents(ctx context.Context, studentIDs []string) ([]string, error)
}

type Resolver struct {
	graph Graph
}

func NewResolver(graph Graph) *Resolver {
	return &Resolver{graph: graph}
}

// Resolve computes the visible-row predicate for usr over kind. It is
// deterministic and has no side effects beyond graph reads; unknown
// role/kind pairs yield the empty predicate.
func (r *Resolver) Resolve(ctx context.Context, usr user.User, kind Kind) (Predicate, error) {
	if usr.IsSystemAdmin() {
		return Predicate{All: true}, nil
	}
	if usr.TenantID == "" {
		return Predicate{}, nil
	}

	switch usr.Role {
	case user.RoleSchoolAdmin:
		return Predicate{TenantID: usr.TenantID}, nil
	case user.RoleTeacher:
		return r.resolveTeacher(ctx, usr, kind)
	case user.RoleGuardian:
		return r.resolveGuardian(ctx, usr, kind)
	}
	return Predicate{}, nil
}

func (r *Resolver) resolveTeacher(ctx context.Context, usr user.User, kind Kind) (Predicate, error) {
	switch kind {
	case KindSubject, KindNotice:
		// subjects are tenant-shared; teachers additionally see every notice
		// of their school, class-scoped or not.
		return Predicate{TenantID: usr.TenantID}, nil
	}

	classIDs, err := r.graph.AssignedClassIDs(ctx, usr.ID)
	if err != nil {
		return Predicate{}, errors.Wrap(err, "resolving assigned classes")
	}
	classIDs = notNil(classIDs)

	switch kind {
	case KindClassGroup, KindTeacherAssignment:
		return Predicate{TenantID: usr.TenantID, ClassIDs: classIDs}, nil
	case KindStudent, KindGuardianLink, KindDailyLog:
		studentIDs, err := r.graph.StudentIDsOfClasses(ctx, classIDs)
		if err != nil {
			return Predicate{}, errors.Wrap(err, "resolving students of classes")
		}
		return Predicate{TenantID: usr.TenantID, StudentIDs: notNil(studentIDs)}, nil
	case KindPost:
		return Predicate{TenantID: usr.TenantID, ClassIDs: classIDs, IncludeTenantWide: true}, nil
	}
	return Predicate{}, nil
}

func (r *Resolver) resolveGuardian(ctx context.Context, usr user.User, kind Kind) (Predicate, error) {
	studentIDs, err := r.graph.LinkedStudentIDs(ctx, usr.ID)
	if err != nil {
		return Predicate{}, errors.Wrap(err, "resolving linked students")
	}
	studentIDs = notNil(studentIDs)

	switch kind {
	case KindStudent, KindDailyLog, KindGuardianLink:
		return Predicate{TenantID: usr.TenantID, StudentIDs: studentIDs}, nil
	case KindPost, KindNotice:
		classIDs, err := r.graph.ClassIDsOfStudents(ctx, studentIDs)
		if err != nil {
			return Predicate{}, errors.Wrap(err, "resolving classes of students")
		}
		return Predicate{TenantID: usr.TenantID, ClassIDs: notNil(classIDs), IncludeTenantWide: true}, nil
	}
	return Predicate{}, nil
}

// notNil keeps scoped predicates scoped: a nil set from the graph would read
// as "no restriction" in Predicate, so empty results must stay non-nil.
func notNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// TeacherReachesClass reports whether the teacher's assignment set contains
// classID. An empty classID never matches; unassigned rows are out of a
// teacher's write reach.
func (r *Resolver) TeacherReachesClass(ctx context.Context, teacherID, classID string) (bool, error) {
	if classID == "" {
		return false, nil
	}
	classIDs, err := r.graph.AssignedClassIDs(ctx, teacherID)
	if err != nil {
		return false, errors.Wrap(err, "resolving assigned classes")
	}
	for _, id := range classIDs {
		if id == classID {
			return true, nil
		}
	}
	return false, nil
}
