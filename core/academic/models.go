package academic

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

const (
	RelationParent      = "parent"
	RelationGrandparent = "grandparent"
	RelationOther       = "other"
)

var AllRelations = []string{RelationParent, RelationGrandparent, RelationOther}

type (
	// ClassGroup is a class of students for one academic year.
	// Unique per (tenant, name, year).
	ClassGroup struct {
		ID            string      `json:"id" db:"id"`
		TenantID      string      `json:"tenant_id" db:"tenant_id"`
		Name          string      `json:"name" db:"name"`
		Year          int         `json:"year" db:"year"`
		LeadTeacherID null.String `json:"lead_teacher_id" db:"lead_teacher_id"`
		CreatedAt     time.Time   `json:"created_at" db:"created_at"`
		UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
	}

	// Subject is unique per (tenant, name).
	Subject struct {
		ID        string    `json:"id" db:"id"`
		TenantID  string    `json:"tenant_id" db:"tenant_id"`
		Name      string    `json:"name" db:"name"`
		CreatedAt time.Time `json:"created_at" db:"created_at"`
	}

	// Student may be unassigned (null class). EnrollmentNo is globally unique.
	Student struct {
		ID           string      `json:"id" db:"id"`
		TenantID     string      `json:"tenant_id" db:"tenant_id"`
		FullName     string      `json:"full_name" db:"full_name"`
		EnrollmentNo string      `json:"enrollment_no" db:"enrollment_no"`
		BirthDate    null.Time   `json:"birth_date" db:"birth_date"`
		ClassID      null.String `json:"class_id" db:"class_id"`
		IsActive     bool        `json:"is_active" db:"is_active"`
		CreatedAt    time.Time   `json:"created_at" db:"created_at"`
		UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
	}

	// TeacherAssignment links a teacher to a class, optionally for one
	// subject. Unique per (teacher, class, subject).
	TeacherAssignment struct {
		ID        string      `json:"id" db:"id"`
		TenantID  string      `json:"tenant_id" db:"tenant_id"`
		TeacherID string      `json:"teacher_id" db:"teacher_id"`
		ClassID   string      `json:"class_id" db:"class_id"`
		SubjectID null.String `json:"subject_id" db:"subject_id"`
		CreatedAt time.Time   `json:"created_at" db:"created_at"`
	}

	// GuardianLink links a guardian to a student. Unique per pair.
	GuardianLink struct {
		ID         string    `json:"id" db:"id"`
		TenantID   string    `json:"tenant_id" db:"tenant_id"`
		GuardianID string    `json:"guardian_id" db:"guardian_id"`
		StudentID  string    `json:"student_id" db:"student_id"`
		Relation   string    `json:"relation" db:"relation"`
		IsPrimary  bool      `json:"is_primary" db:"is_primary"`
		CreatedAt  time.Time `json:"created_at" db:"created_at"`
	}
)

type NewClassGroup struct {
	Name          string `json:"name" validate:"required,max=50"`
	Year          int    `json:"year" validate:"required,min=2000,max=2100"`
	LeadTeacherID string `json:"lead_teacher_id"`
	TenantID      string `json:"tenant_id"` // platform admins only
}

func (nc *NewClassGroup) Validate(ctx context.Context) error {
	nc.Name = core.CleanString(nc.Name)
	if err := core.Validate.StructCtx(ctx, nc); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return nil
}

type UpdateClassGroup struct {
	Name          string  `json:"name" validate:"omitempty,max=50"`
	Year          int     `json:"year" validate:"omitempty,min=2000,max=2100"`
	LeadTeacherID *string `json:"lead_teacher_id"`
}

func (uc *UpdateClassGroup) Validate(ctx context.Context) error {
	uc.Name = core.CleanString(uc.Name)
	if err := core.Validate.StructCtx(ctx, uc); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return nil
}

type NewSubject struct {
	Name     string `json:"name" validate:"required,max=50"`
	TenantID string `json:"tenant_id"`
}

func (ns *NewSubject) Validate(ctx context.Context) error {
	ns.Name = core.CleanString(ns.Name)
	if err := core.Validate.StructCtx(ctx, ns); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return nil
}

type NewStudent struct {
	FullName     string    `json:"full_name" validate:"required,max=100"`
	EnrollmentNo string    `json:"enrollment_no" validate:"required,max=30,alphanum_"`
	BirthDate    null.Time `json:"birth_date"`
	ClassID      string    `json:"class_id"`
	TenantID     string    `json:"tenant_id"`
}

func (ns *NewStudent) Validate(ctx context.Context) error {
	ns.FullName = core.CleanString(ns.FullName)
	ns.EnrollmentNo = core.CleanString(ns.EnrollmentNo, true)
	if err := core.Validate.StructCtx(ctx, ns); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return nil
}

type UpdateStudent struct {
	FullName  string    `json:"full_name" validate:"omitempty,max=100"`
	BirthDate null.Time `json:"birth_date"`
	ClassID   *string   `json:"class_id"` // empty string unassigns
	IsActive  *bool     `json:"is_active"`
}

func (us *UpdateStudent) Validate(ctx context.Context) error {
	us.FullName = core.CleanString(us.FullName)
	if err := core.Validate.StructCtx(ctx, us); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return nil
}

type NewTeacherAssignment struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
	SubjectID string `json:"subject_id"`
	TenantID  string `json:"tenant_id"`
}

func (na *NewTeacherAssignment) Validate(ctx context.Context) error {
	if err := core.Validate.StructCtx(ctx, na); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return nil
}

type NewGuardianLink struct {
	GuardianID string `json:"guardian_id" validate:"required"`
	StudentID  string `json:"student_id" validate:"required"`
	Relation   string `json:"relation" validate:"required,relation"`
	IsPrimary  bool   `json:"is_primary"`
	TenantID   string `json:"tenant_id"`
}

func (ng *NewGuardianLink) Validate(ctx context.Context) error {
	ng.Relation = core.CleanString(ng.Relation, true)
	if err := core.Validate.StructCtx(ctx, ng); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return nil
}

type StudentQueryFilter struct {
	Search   string `query:"search"` // matches full_name or enrollment_no
	ClassID  string `query:"class_id"`
	IsActive *bool  `query:"is_active"`
}

type ClassGroupQueryFilter struct {
	Search string `query:"search"`
	Year   int    `query:"year"`
}
