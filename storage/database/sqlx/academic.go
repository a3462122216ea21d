package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/access"
)

type AcademicRepository struct {
	db *sqlx.DB
}

func NewAcademicRepository(db *sqlx.DB) *AcademicRepository {
	return &AcademicRepository{db: db}
}

var _ academic.Repository = (*AcademicRepository)(nil)

// --- relationship graph ---

func (repo *AcademicRepository) AssignedClassIDs(ctx context.Context, teacherID string) ([]string, error) {
	q := repo.db.Rebind(`
		SELECT id FROM class_group WHERE lead_teacher_id = ?
		UNION
		SELECT class_id FROM teacher_assignment WHERE teacher_id = ?`)
	var ids []string
	if err := sqlx.SelectContext(ctx, repo.db, &ids, q, teacherID, teacherID); err != nil {
		return nil, errors.Wrap(err, "querying assigned classes")
	}
	return ids, nil
}

func (repo *AcademicRepository) LinkedStudentIDs(ctx context.Context, guardianID string) ([]string, error) {
	q := repo.db.Rebind("SELECT student_id FROM guardian_link WHERE guardian_id = ?")
	var ids []string
	if err := sqlx.SelectContext(ctx, repo.db, &ids, q, guardianID); err != nil {
		return nil, errors.Wrap(err, "querying linked students")
	}
	return ids, nil
}

func (repo *AcademicRepository) StudentIDsOfClasses(ctx context.Context, classIDs []string) ([]string, error) {
	if len(classIDs) == 0 {
		return []string{}, nil
	}
	in, args := inClause("class_id", classIDs)
	q := repo.db.Rebind("SELECT id FROM student WHERE " + in)
	var ids []string
	if err := sqlx.SelectContext(ctx, repo.db, &ids, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying students of classes")
	}
	return ids, nil
}

func (repo *AcademicRepository) ClassIDsOfStudents(ctx context.Context, studentIDs []string) ([]string, error) {
	if len(studentIDs) == 0 {
		return []string{}, nil
	}
	in, args := inClause("id", studentIDs)
	q := repo.db.Rebind("SELECT DISTINCT class_id FROM student WHERE " + in + " AND class_id IS NOT NULL")
	var ids []string
	if err := sqlx.SelectContext(ctx, repo.db, &ids, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying classes of students")
	}
	return ids, nil
}

func (repo *AcademicRepository) GuardianIDsOfStudents(ctx context.Context, studentIDs []string) ([]string, error) {
	if len(studentIDs) == 0 {
		return []string{}, nil
	}
	in, args := inClause("student_id", studentIDs)
	q := repo.db.Rebind("SELECT DISTINCT guardian_id FROM guardian_link WHERE " + in)
	var ids []string
	if err := sqlx.SelectContext(ctx, repo.db, &ids, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying guardians of students")
	}
	return ids, nil
}

// --- ClassGroup ---

func (repo *AcademicRepository) CheckClassUniqueness(ctx context.Context, tenantID, name string, year int, exclClasses ...academic.ClassGroup) error {
	q := "SELECT EXISTS (SELECT 1 FROM class_group WHERE tenant_id = ? AND lower(name) = lower(?) AND year = ?"
	args := []interface{}{tenantID, name, year}
	if len(exclClasses) > 0 {
		ids := make([]string, len(exclClasses))
		for i, cg := range exclClasses {
			ids[i] = cg.ID
		}
		in, inArgs := inClause("id", ids)
		q += " AND NOT (" + in + ")"
		args = append(args, inArgs...)
	}
	q += ")"

	var exists bool
	if err := sqlx.GetContext(ctx, repo.db, &exists, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking class uniqueness")
	}
	if exists {
		return academic.ErrClassExists
	}
	return nil
}

func (repo *AcademicRepository) CreateClassGroup(ctx context.Context, cg academic.ClassGroup, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := e.Rebind(`
		INSERT INTO class_group (id, tenant_id, name, year, lead_teacher_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := e.ExecContext(ctx, q, cg.ID, cg.TenantID, cg.Name, cg.Year, cg.LeadTeacherID, cg.CreatedAt, cg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return academic.ErrClassExists
		}
		return errors.Wrap(err, "inserting class")
	}
	return nil
}

func (repo *AcademicRepository) GetClassGroup(ctx context.Context, id string, exec ...core.DBExecutor) (academic.ClassGroup, error) {
	e := ext(repo.db, exec)
	var cg academic.ClassGroup
	q := e.Rebind("SELECT * FROM class_group WHERE id = ?")
	if err := sqlx.GetContext(ctx, e, &cg, q, id); err != nil {
		if err == sql.ErrNoRows {
			return academic.ClassGroup{}, academic.ErrNotFound
		}
		return academic.ClassGroup{}, errors.Wrap(err, "getting class")
	}
	return cg, nil
}

func (repo *AcademicRepository) QueryClassGroups(ctx context.Context, pred access.Predicate, filter academic.ClassGroupQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]academic.ClassGroup, error) {
	e := ext(repo.db, exec)
	where, args := predicateWhere(pred, "tenant_id", "id", "")
	q := "SELECT * FROM class_group WHERE " + where
	if filter.Search != "" {
		q += " AND name ILIKE ?"
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Year != 0 {
		q += " AND year = ?"
		args = append(args, filter.Year)
	}
	q += orderBy(ordering, "year DESC, name ASC")

	var cgs []academic.ClassGroup
	if err := sqlx.SelectContext(ctx, e, &cgs, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	return cgs, nil
}

func (repo *AcademicRepository) UpdateClassGroup(ctx context.Context, cg academic.ClassGroup, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := e.Rebind(`
		UPDATE class_group SET name = ?, year = ?, lead_teacher_id = ?, updated_at = ?
		WHERE id = ?`)
	res, err := e.ExecContext(ctx, q, cg.Name, cg.Year, cg.LeadTeacherID, cg.UpdatedAt, cg.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return academic.ErrClassExists
		}
		return errors.Wrap(err, "updating class")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academic.ErrNotFound
	}
	return nil
}

// --- Subject ---

func (repo *AcademicRepository) CheckSubjectUniqueness(ctx context.Context, tenantID, name string) error {
	var exists bool
	q := repo.db.Rebind("SELECT EXISTS (SELECT 1 FROM subject WHERE tenant_id = ? AND lower(name) = lower(?))")
	if err := sqlx.GetContext(ctx, repo.db, &exists, q, tenantID, name); err != nil {
		return errors.Wrap(err, "checking subject uniqueness")
	}
	if exists {
		return academic.ErrSubjectExists
	}
	return nil
}

func (repo *AcademicRepository) CreateSubject(ctx context.Context, s academic.Subject, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := e.Rebind("INSERT INTO subject (id, tenant_id, name, created_at) VALUES (?, ?, ?, ?)")
	if _, err := e.ExecContext(ctx, q, s.ID, s.TenantID, s.Name, s.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return academic.ErrSubjectExists
		}
		return errors.Wrap(err, "inserting subject")
	}
	return nil
}

func (repo *AcademicRepository) QuerySubjects(ctx context.Context, pred access.Predicate, exec ...core.DBExecutor) ([]academic.Subject, error) {
	e := ext(repo.db, exec)
	where, args := predicateWhere(pred, "tenant_id", "", "")
	q := "SELECT * FROM subject WHERE " + where + " ORDER BY name ASC"

	var subjects []academic.Subject
	if err := sqlx.SelectContext(ctx, e, &subjects, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	return subjects, nil
}

// --- Student ---

func (repo *AcademicRepository) CheckEnrollmentNoUniqueness(ctx context.Context, enrollmentNo string, exclStudents ...academic.Student) error {
	q := "SELECT EXISTS (SELECT 1 FROM student WHERE enrollment_no = ?"
	args := []interface{}{enrollmentNo}
	if len(exclStudents) > 0 {
		ids := make([]string, len(exclStudents))
		for i, s := range exclStudents {
			ids[i] = s.ID
		}
		in, inArgs := inClause("id", ids)
		q += " AND NOT (" + in + ")"
		args = append(args, inArgs...)
	}
	q += ")"

	var exists bool
	if err := sqlx.GetContext(ctx, repo.db, &exists, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking enrollment number uniqueness")
	}
	if exists {
		return academic.ErrEnrollmentNoExists
	}
	return nil
}

func (repo *AcademicRepository) CreateStudent(ctx context.Context, s academic.Student, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := e.Rebind(`
		INSERT INTO student (id, tenant_id, full_name, enrollment_no, birth_date, class_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := e.ExecContext(ctx, q,
		s.ID, s.TenantID, s.FullName, s.EnrollmentNo, s.BirthDate, s.ClassID, s.IsActive, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return academic.ErrEnrollmentNoExists
		}
		return errors.Wrap(err, "inserting student")
	}
	return nil
}

func (repo *AcademicRepository) GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (academic.Student, error) {
	e := ext(repo.db, exec)
	var s academic.Student
	q := e.Rebind("SELECT * FROM student WHERE id = ?")
	if err := sqlx.GetContext(ctx, e, &s, q, id); err != nil {
		if err == sql.ErrNoRows {
			return academic.Student{}, academic.ErrNotFound
		}
		return academic.Student{}, errors.Wrap(err, "getting student")
	}
	return s, nil
}

func (repo *AcademicRepository) QueryStudents(ctx context.Context, pred access.Predicate, filter academic.StudentQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]academic.Student, error) {
	e := ext(repo.db, exec)
	where, args := predicateWhere(pred, "tenant_id", "class_id", "id")
	q := "SELECT * FROM student WHERE " + where
	if filter.Search != "" {
		q += " AND (full_name ILIKE ? OR enrollment_no ILIKE ?)"
		search := "%" + filter.Search + "%"
		args = append(args, search, search)
	}
	if filter.ClassID != "" {
		q += " AND class_id = ?"
		args = append(args, filter.ClassID)
	}
	if filter.IsActive != nil {
		q += " AND is_active = ?"
		args = append(args, *filter.IsActive)
	}
	q += orderBy(ordering, "full_name ASC")

	var students []academic.Student
	if err := sqlx.SelectContext(ctx, e, &students, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo *AcademicRepository) UpdateStudent(ctx context.Context, s academic.Student, isActive *bool, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := "UPDATE student SET full_name = ?, birth_date = ?, class_id = ?, updated_at = ?"
	args := []interface{}{s.FullName, s.BirthDate, s.ClassID, s.UpdatedAt}
	if isActive != nil {
		q += ", is_active = ?"
		args = append(args, *isActive)
	}
	q += " WHERE id = ?"
	args = append(args, s.ID)

	res, err := e.ExecContext(ctx, e.Rebind(q), args...)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academic.ErrNotFound
	}
	return nil
}

// --- TeacherAssignment ---

func (repo *AcademicRepository) CreateTeacherAssignment(ctx context.Context, ta academic.TeacherAssignment, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := e.Rebind(`
		INSERT INTO teacher_assignment (id, tenant_id, teacher_id, class_id, subject_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := e.ExecContext(ctx, q, ta.ID, ta.TenantID, ta.TeacherID, ta.ClassID, ta.SubjectID, ta.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return academic.ErrAssignmentExists
		}
		return errors.Wrap(err, "inserting assignment")
	}
	return nil
}

func (repo *AcademicRepository) GetTeacherAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (academic.TeacherAssignment, error) {
	e := ext(repo.db, exec)
	var ta academic.TeacherAssignment
	q := e.Rebind("SELECT * FROM teacher_assignment WHERE id = ?")
	if err := sqlx.GetContext(ctx, e, &ta, q, id); err != nil {
		if err == sql.ErrNoRows {
			return academic.TeacherAssignment{}, academic.ErrNotFound
		}
		return academic.TeacherAssignment{}, errors.Wrap(err, "getting assignment")
	}
	return ta, nil
}

func (repo *AcademicRepository) QueryTeacherAssignments(ctx context.Context, pred access.Predicate, exec ...core.DBExecutor) ([]academic.TeacherAssignment, error) {
	e := ext(repo.db, exec)
	where, args := predicateWhere(pred, "tenant_id", "class_id", "")
	q := "SELECT * FROM teacher_assignment WHERE " + where + " ORDER BY created_at DESC"

	var tas []academic.TeacherAssignment
	if err := sqlx.SelectContext(ctx, e, &tas, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	return tas, nil
}

func (repo *AcademicRepository) DeleteTeacherAssignment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := e.Rebind("DELETE FROM teacher_assignment WHERE id = ?")
	res, err := e.ExecContext(ctx, q, id)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academic.ErrNotFound
	}
	return nil
}

// --- GuardianLink ---

func (repo *AcademicRepository) CreateGuardianLink(ctx context.Context, gl academic.GuardianLink, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := e.Rebind(`
		INSERT INTO guardian_link (id, tenant_id, guardian_id, student_id, relation, is_primary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := e.ExecContext(ctx, q, gl.ID, gl.TenantID, gl.GuardianID, gl.StudentID, gl.Relation, gl.IsPrimary, gl.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return academic.ErrLinkExists
		}
		return errors.Wrap(err, "inserting guardian link")
	}
	return nil
}

func (repo *AcademicRepository) GetGuardianLink(ctx context.Context, id string, exec ...core.DBExecutor) (academic.GuardianLink, error) {
	e := ext(repo.db, exec)
	var gl academic.GuardianLink
	q := e.Rebind("SELECT * FROM guardian_link WHERE id = ?")
	if err := sqlx.GetContext(ctx, e, &gl, q, id); err != nil {
		if err == sql.ErrNoRows {
			return academic.GuardianLink{}, academic.ErrNotFound
		}
		return academic.GuardianLink{}, errors.Wrap(err, "getting guardian link")
	}
	return gl, nil
}

func (repo *AcademicRepository) QueryGuardianLinks(ctx context.Context, pred access.Predicate, exec ...core.DBExecutor) ([]academic.GuardianLink, error) {
	e := ext(repo.db, exec)
	where, args := predicateWhere(pred, "tenant_id", "", "student_id")
	q := "SELECT * FROM guardian_link WHERE " + where + " ORDER BY created_at DESC"

	var gls []academic.GuardianLink
	if err := sqlx.SelectContext(ctx, e, &gls, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying guardian links")
	}
	return gls, nil
}

func (repo *AcademicRepository) DeleteGuardianLink(ctx context.Context, id string, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := e.Rebind("DELETE FROM guardian_link WHERE id = ?")
	res, err := e.ExecContext(ctx, q, id)
	if err != nil {
		return errors.Wrap(err, "deleting guardian link")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academic.ErrNotFound
	}
	return nil
}
