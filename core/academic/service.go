package academic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/user"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrClassExists        = errors.New("a class with this name already exists for this year")
	ErrSubjectExists      = errors.New("a subject with this name already exists")
	ErrEnrollmentNoExists = errors.New("a student with this enrollment number already exists")
	ErrAssignmentExists   = errors.New("this teacher is already assigned to this class and subject")
	ErrLinkExists         = errors.New("this guardian is already linked to this student")
)

type (
	// Repository persists the academic entities and answers the relationship
	// graph queries of access.Graph.
	Repository interface {
		access.Graph

		// GuardianIDsOfStudents returns the distinct guardians linked to any
		// of studentIDs.
		GuardianIDsOfStudents(ctx context.Context, studentIDs []string) ([]string, error)

		CheckClassUniqueness(ctx context.Context, tenantID, name string, year int, exclClasses ...ClassGroup) error
		CreateClassGroup(ctx context.Context, cg ClassGroup, exec ...core.DBExecutor) error
		GetClassGroup(ctx context.Context, id string, exec ...core.DBExecutor) (ClassGroup, error)
		QueryClassGroups(ctx context.Context, pred access.Predicate, filter ClassGroupQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]ClassGroup, error)
		UpdateClassGroup(ctx context.Context, cg ClassGroup, exec ...core.DBExecutor) error

		CheckSubjectUniqueness(ctx context.Context, tenantID, name string) error
		CreateSubject(ctx context.Context, s Subject, exec ...core.DBExecutor) error
		QuerySubjects(ctx context.Context, pred access.Predicate, exec ...core.DBExecutor) ([]Subject, error)

		CheckEnrollmentNoUniqueness(ctx context.Context, enrollmentNo string, exclStudents ...Student) error
		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) error
		GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, pred access.Predicate, filter StudentQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)
		UpdateStudent(ctx context.Context, s Student, isActive *bool, exec ...core.DBExecutor) error

		CreateTeacherAssignment(ctx context.Context, ta TeacherAssignment, exec ...core.DBExecutor) error
		GetTeacherAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (TeacherAssignment, error)
		QueryTeacherAssignments(ctx context.Context, pred access.Predicate, exec ...core.DBExecutor) ([]TeacherAssignment, error)
		DeleteTeacherAssignment(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateGuardianLink(ctx context.Context, gl GuardianLink, exec ...core.DBExecutor) error
		GetGuardianLink(ctx context.Context, id string, exec ...core.DBExecutor) (GuardianLink, error)
		QueryGuardianLinks(ctx context.Context, pred access.Predicate, exec ...core.DBExecutor) ([]GuardianLink, error)
		DeleteGuardianLink(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service struct {
		repo     Repository
		userRepo user.Repository
		resolver *access.Resolver
	}
)

func NewService(repo Repository, userRepo user.Repository, resolver *access.Resolver) *Service {
	return &Service{repo: repo, userRepo: userRepo, resolver: resolver}
}

// Graph exposes the relationship queries backing scope resolution.
func (svc *Service) Graph() access.Graph { return svc.repo }

func fieldErr(field string, err error) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

// userInTenant checks that id refers to an active user of the given role in
// tenantID. Cross-tenant references surface as plain field errors so they
// reveal nothing about other tenants.
func (svc *Service) userInTenant(ctx context.Context, id, role, tenantID, field string) error {
	usr, err := svc.userRepo.GetUser(ctx, user.GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return fieldErr(field, errors.New("unknown user"))
		}
		return err
	}
	if usr.Role != role || usr.TenantID != tenantID {
		return fieldErr(field, errors.New("unknown user"))
	}
	return nil
}

// --- ClassGroup ---

func (svc *Service) CreateClassGroup(ctx context.Context, actor user.User, nc NewClassGroup) (ClassGroup, error) {
	if !access.CanWrite(actor, access.KindClassGroup) {
		return ClassGroup{}, core.ErrForbidden
	}
	if err := nc.Validate(ctx); err != nil {
		return ClassGroup{}, err
	}
	tenantID, ok := access.DeriveTenant(actor, nc.TenantID)
	if !ok {
		return ClassGroup{}, fieldErr("tenant_id", errors.New("school does not match yours"))
	}
	if nc.LeadTeacherID != "" {
		if err := svc.userInTenant(ctx, nc.LeadTeacherID, user.RoleTeacher, tenantID, "lead_teacher_id"); err != nil {
			return ClassGroup{}, err
		}
	}
	if err := svc.repo.CheckClassUniqueness(ctx, tenantID, nc.Name, nc.Year); err != nil {
		if errors.Cause(err) == ErrClassExists {
			return ClassGroup{}, fieldErr("name", ErrClassExists)
		}
		return ClassGroup{}, err
	}

	now := time.Now().UTC()
	cg := ClassGroup{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Name:          nc.Name,
		Year:          nc.Year,
		LeadTeacherID: null.NewString(nc.LeadTeacherID, nc.LeadTeacherID != ""),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := svc.repo.CreateClassGroup(ctx, cg); err != nil {
		return ClassGroup{}, errors.Wrap(err, "creating class")
	}
	return cg, nil
}

func (svc *Service) QueryClassGroups(ctx context.Context, actor user.User, filter ClassGroupQueryFilter, ordering ...core.DBOrdering) ([]ClassGroup, error) {
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindClassGroup)
	if err != nil {
		return nil, err
	}
	if pred.None() {
		return []ClassGroup{}, nil
	}
	return svc.repo.QueryClassGroups(ctx, pred, filter, ordering)
}

func (svc *Service) GetClassGroup(ctx context.Context, actor user.User, id string) (ClassGroup, error) {
	cg, err := svc.repo.GetClassGroup(ctx, id)
	if err != nil {
		return ClassGroup{}, err
	}
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindClassGroup)
	if err != nil {
		return ClassGroup{}, err
	}
	if !pred.Allows(cg.TenantID, cg.ID, "") {
		return ClassGroup{}, ErrNotFound
	}
	return cg, nil
}

func (svc *Service) UpdateClassGroup(ctx context.Context, actor user.User, id string, uc UpdateClassGroup) (ClassGroup, error) {
	if !access.CanWrite(actor, access.KindClassGroup) {
		return ClassGroup{}, core.ErrForbidden
	}
	cg, err := svc.GetClassGroup(ctx, actor, id)
	if err != nil {
		return ClassGroup{}, err
	}
	// teachers may only touch classes they already reach
	if actor.IsTeacher() {
		ok, err := svc.resolver.TeacherReachesClass(ctx, actor.ID, cg.ID)
		if err != nil {
			return ClassGroup{}, err
		}
		if !ok {
			return ClassGroup{}, core.ErrForbidden
		}
	}
	if err = uc.Validate(ctx); err != nil {
		return ClassGroup{}, err
	}

	name, year := cg.Name, cg.Year
	if uc.Name != "" {
		name = uc.Name
	}
	if uc.Year != 0 {
		year = uc.Year
	}
	if name != cg.Name || year != cg.Year {
		if err = svc.repo.CheckClassUniqueness(ctx, cg.TenantID, name, year, cg); err != nil {
			if errors.Cause(err) == ErrClassExists {
				return ClassGroup{}, fieldErr("name", ErrClassExists)
			}
			return ClassGroup{}, err
		}
	}
	if uc.LeadTeacherID != nil {
		if *uc.LeadTeacherID == "" {
			cg.LeadTeacherID = null.String{}
		} else {
			if err = svc.userInTenant(ctx, *uc.LeadTeacherID, user.RoleTeacher, cg.TenantID, "lead_teacher_id"); err != nil {
				return ClassGroup{}, err
			}
			cg.LeadTeacherID = null.StringFrom(*uc.LeadTeacherID)
		}
	}
	cg.Name, cg.Year = name, year
	cg.UpdatedAt = time.Now().UTC()
	if err = svc.repo.UpdateClassGroup(ctx, cg); err != nil {
		return ClassGroup{}, errors.Wrap(err, "updating class")
	}
	return cg, nil
}

// --- Subject ---

func (svc *Service) CreateSubject(ctx context.Context, actor user.User, ns NewSubject) (Subject, error) {
	if !access.CanWrite(actor, access.KindSubject) {
		return Subject{}, core.ErrForbidden
	}
	if err := ns.Validate(ctx); err != nil {
		return Subject{}, err
	}
	tenantID, ok := access.DeriveTenant(actor, ns.TenantID)
	if !ok {
		return Subject{}, fieldErr("tenant_id", errors.New("school does not match yours"))
	}
	if err := svc.repo.CheckSubjectUniqueness(ctx, tenantID, ns.Name); err != nil {
		if errors.Cause(err) == ErrSubjectExists {
			return Subject{}, fieldErr("name", ErrSubjectExists)
		}
		return Subject{}, err
	}

	s := Subject{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      ns.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := svc.repo.CreateSubject(ctx, s); err != nil {
		return Subject{}, errors.Wrap(err, "creating subject")
	}
	return s, nil
}

func (svc *Service) QuerySubjects(ctx context.Context, actor user.User) ([]Subject, error) {
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindSubject)
	if err != nil {
		return nil, err
	}
	if pred.None() {
		return []Subject{}, nil
	}
	return svc.repo.QuerySubjects(ctx, pred)
}

// --- Student ---

func (svc *Service) CreateStudent(ctx context.Context, actor user.User, ns NewStudent) (Student, error) {
	if !access.CanWrite(actor, access.KindStudent) {
		return Student{}, core.ErrForbidden
	}
	if err := ns.Validate(ctx); err != nil {
		return Student{}, err
	}
	tenantID, ok := access.DeriveTenant(actor, ns.TenantID)
	if !ok {
		return Student{}, fieldErr("tenant_id", errors.New("school does not match yours"))
	}
	if ns.ClassID != "" {
		if err := svc.classInTenant(ctx, ns.ClassID, tenantID); err != nil {
			return Student{}, err
		}
	}
	if err := svc.repo.CheckEnrollmentNoUniqueness(ctx, ns.EnrollmentNo); err != nil {
		if errors.Cause(err) == ErrEnrollmentNoExists {
			return Student{}, fieldErr("enrollment_no", ErrEnrollmentNoExists)
		}
		return Student{}, err
	}

	now := time.Now().UTC()
	s := Student{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		FullName:     ns.FullName,
		EnrollmentNo: ns.EnrollmentNo,
		BirthDate:    ns.BirthDate,
		ClassID:      null.NewString(ns.ClassID, ns.ClassID != ""),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := svc.repo.CreateStudent(ctx, s); err != nil {
		return Student{}, errors.Wrap(err, "creating student")
	}
	return s, nil
}

func (svc *Service) classInTenant(ctx context.Context, classID, tenantID string) error {
	cg, err := svc.repo.GetClassGroup(ctx, classID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return fieldErr("class_id", errors.New("unknown class"))
		}
		return err
	}
	if cg.TenantID != tenantID {
		return fieldErr("class_id", errors.New("unknown class"))
	}
	return nil
}

func (svc *Service) QueryStudents(ctx context.Context, actor user.User, filter StudentQueryFilter, ordering ...core.DBOrdering) ([]Student, error) {
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindStudent)
	if err != nil {
		return nil, err
	}
	if pred.None() {
		return []Student{}, nil
	}
	return svc.repo.QueryStudents(ctx, pred, filter, ordering)
}

func (svc *Service) GetStudent(ctx context.Context, actor user.User, id string) (Student, error) {
	s, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindStudent)
	if err != nil {
		return Student{}, err
	}
	if !pred.Allows(s.TenantID, s.ClassID.String, s.ID) {
		return Student{}, ErrNotFound
	}
	return s, nil
}

func (svc *Service) UpdateStudent(ctx context.Context, actor user.User, id string, us UpdateStudent) (Student, error) {
	if !access.CanWrite(actor, access.KindStudent) {
		return Student{}, core.ErrForbidden
	}
	s, err := svc.GetStudent(ctx, actor, id)
	if err != nil {
		return Student{}, err
	}
	if err = us.Validate(ctx); err != nil {
		return Student{}, err
	}

	if us.FullName != "" {
		s.FullName = us.FullName
	}
	if us.BirthDate.Valid {
		s.BirthDate = us.BirthDate
	}
	if us.ClassID != nil {
		if *us.ClassID == "" {
			s.ClassID = null.String{}
		} else {
			if err = svc.classInTenant(ctx, *us.ClassID, s.TenantID); err != nil {
				return Student{}, err
			}
			s.ClassID = null.StringFrom(*us.ClassID)
		}
	}
	s.UpdatedAt = time.Now().UTC()
	if err = svc.repo.UpdateStudent(ctx, s, us.IsActive); err != nil {
		return Student{}, errors.Wrap(err, "updating student")
	}
	if us.IsActive != nil {
		s.IsActive = *us.IsActive
	}
	return s, nil
}

// --- TeacherAssignment ---

func (svc *Service) AssignTeacher(ctx context.Context, actor user.User, na NewTeacherAssignment) (TeacherAssignment, error) {
	if !access.CanWrite(actor, access.KindTeacherAssignment) {
		return TeacherAssignment{}, core.ErrForbidden
	}
	if err := na.Validate(ctx); err != nil {
		return TeacherAssignment{}, err
	}
	tenantID, ok := access.DeriveTenant(actor, na.TenantID)
	if !ok {
		return TeacherAssignment{}, fieldErr("tenant_id", errors.New("school does not match yours"))
	}
	if err := svc.userInTenant(ctx, na.TeacherID, user.RoleTeacher, tenantID, "teacher_id"); err != nil {
		return TeacherAssignment{}, err
	}
	if err := svc.classInTenant(ctx, na.ClassID, tenantID); err != nil {
		return TeacherAssignment{}, err
	}

	ta := TeacherAssignment{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		TeacherID: na.TeacherID,
		ClassID:   na.ClassID,
		SubjectID: null.NewString(na.SubjectID, na.SubjectID != ""),
		CreatedAt: time.Now().UTC(),
	}
	if err := svc.repo.CreateTeacherAssignment(ctx, ta); err != nil {
		if errors.Cause(err) == ErrAssignmentExists {
			return TeacherAssignment{}, fieldErr("class_id", ErrAssignmentExists)
		}
		return TeacherAssignment{}, errors.Wrap(err, "creating assignment")
	}
	return ta, nil
}

func (svc *Service) QueryTeacherAssignments(ctx context.Context, actor user.User) ([]TeacherAssignment, error) {
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindTeacherAssignment)
	if err != nil {
		return nil, err
	}
	if pred.None() {
		return []TeacherAssignment{}, nil
	}
	return svc.repo.QueryTeacherAssignments(ctx, pred)
}

func (svc *Service) UnassignTeacher(ctx context.Context, actor user.User, id string) error {
	if !access.CanWrite(actor, access.KindTeacherAssignment) {
		return core.ErrForbidden
	}
	ta, err := svc.repo.GetTeacherAssignment(ctx, id)
	if err != nil {
		return err
	}
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindTeacherAssignment)
	if err != nil {
		return err
	}
	if !pred.Allows(ta.TenantID, ta.ClassID, "") {
		return ErrNotFound
	}
	return svc.repo.DeleteTeacherAssignment(ctx, id)
}

// --- GuardianLink ---

func (svc *Service) LinkGuardian(ctx context.Context, actor user.User, ng NewGuardianLink) (GuardianLink, error) {
	if !access.CanWrite(actor, access.KindGuardianLink) {
		return GuardianLink{}, core.ErrForbidden
	}
	if err := ng.Validate(ctx); err != nil {
		return GuardianLink{}, err
	}
	tenantID, ok := access.DeriveTenant(actor, ng.TenantID)
	if !ok {
		return GuardianLink{}, fieldErr("tenant_id", errors.New("school does not match yours"))
	}
	if err := svc.userInTenant(ctx, ng.GuardianID, user.RoleGuardian, tenantID, "guardian_id"); err != nil {
		return GuardianLink{}, err
	}
	s, err := svc.repo.GetStudent(ctx, ng.StudentID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return GuardianLink{}, fieldErr("student_id", errors.New("unknown student"))
		}
		return GuardianLink{}, err
	}
	if s.TenantID != tenantID {
		return GuardianLink{}, fieldErr("student_id", errors.New("unknown student"))
	}

	gl := GuardianLink{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		GuardianID: ng.GuardianID,
		StudentID:  ng.StudentID,
		Relation:   ng.Relation,
		IsPrimary:  ng.IsPrimary,
		CreatedAt:  time.Now().UTC(),
	}
	if err = svc.repo.CreateGuardianLink(ctx, gl); err != nil {
		if errors.Cause(err) == ErrLinkExists {
			return GuardianLink{}, fieldErr("student_id", ErrLinkExists)
		}
		return GuardianLink{}, errors.Wrap(err, "creating guardian link")
	}
	return gl, nil
}

func (svc *Service) QueryGuardianLinks(ctx context.Context, actor user.User) ([]GuardianLink, error) {
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindGuardianLink)
	if err != nil {
		return nil, err
	}
	if pred.None() {
		return []GuardianLink{}, nil
	}
	return svc.repo.QueryGuardianLinks(ctx, pred)
}

func (svc *Service) UnlinkGuardian(ctx context.Context, actor user.User, id string) error {
	if !access.CanWrite(actor, access.KindGuardianLink) {
		return core.ErrForbidden
	}
	gl, err := svc.repo.GetGuardianLink(ctx, id)
	if err != nil {
		return err
	}
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindGuardianLink)
	if err != nil {
		return err
	}
	if !pred.Allows(gl.TenantID, "", gl.StudentID) {
		return ErrNotFound
	}
	return svc.repo.DeleteGuardianLink(ctx, id)
}
