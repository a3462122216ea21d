// Package testutil provides shared fixtures for service tests, backed by the
// in-memory repositories.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/agenda"
	"github.com/trezcool/shule/core/feed"
	"github.com/trezcool/shule/core/tenant"
	"github.com/trezcool/shule/core/user"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

// Repos bundles the in-memory repositories over one shared DB.
type Repos struct {
	User     user.Repository
	Tenant   tenant.Repository
	Academic academic.Repository
	Agenda   agenda.Repository
	Feed     feed.Repository
	Resolver *access.Resolver
}

func NewRepos() *Repos {
	db := inmemdb.NewDB()
	academicRepo := inmemdb.NewAcademicRepository(db)
	return &Repos{
		User:     inmemdb.NewUserRepository(db),
		Tenant:   inmemdb.NewTenantRepository(db),
		Academic: academicRepo,
		Agenda:   inmemdb.NewAgendaRepository(db),
		Feed:     inmemdb.NewFeedRepository(db),
		Resolver: access.NewResolver(academicRepo),
	}
}

func (r *Repos) CreateTenant(t *testing.T, name, taxID string) tenant.Tenant {
	t.Helper()
	now := time.Now().UTC()
	tn := tenant.Tenant{
		ID:        uuid.New().String(),
		Name:      name,
		TaxID:     taxID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Tenant.CreateTenant(context.Background(), tn); err != nil {
		t.Fatalf("CreateTenant() failed, %v", err)
	}
	return tn
}

func (r *Repos) CreateUser(t *testing.T, name, email, role, tenantID string) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Role:      role,
		TenantID:  tenantID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr, err := r.User.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed, %v", err)
	}
	return usr
}

func (r *Repos) CreateClass(t *testing.T, tenantID, name string, year int, leadTeacherID string) academic.ClassGroup {
	t.Helper()
	now := time.Now().UTC()
	cg := academic.ClassGroup{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Name:          name,
		Year:          year,
		LeadTeacherID: null.NewString(leadTeacherID, leadTeacherID != ""),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.Academic.CreateClassGroup(context.Background(), cg); err != nil {
		t.Fatalf("CreateClassGroup() failed, %v", err)
	}
	return cg
}

func (r *Repos) CreateSubject(t *testing.T, tenantID, name string) academic.Subject {
	t.Helper()
	s := academic.Subject{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.Academic.CreateSubject(context.Background(), s); err != nil {
		t.Fatalf("CreateSubject() failed, %v", err)
	}
	return s
}

func (r *Repos) CreateStudent(t *testing.T, tenantID, classID, fullName, enrollmentNo string) academic.Student {
	t.Helper()
	now := time.Now().UTC()
	s := academic.Student{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		FullName:     fullName,
		EnrollmentNo: enrollmentNo,
		ClassID:      null.NewString(classID, classID != ""),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.Academic.CreateStudent(context.Background(), s); err != nil {
		t.Fatalf("CreateStudent() failed, %v", err)
	}
	return s
}

func (r *Repos) AssignTeacher(t *testing.T, tenantID, teacherID, classID, subjectID string) academic.TeacherAssignment {
	t.Helper()
	ta := academic.TeacherAssignment{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		TeacherID: teacherID,
		ClassID:   classID,
		SubjectID: null.NewString(subjectID, subjectID != ""),
		CreatedAt: time.Now().UTC(),
	}
	if err := r.Academic.CreateTeacherAssignment(context.Background(), ta); err != nil {
		t.Fatalf("CreateTeacherAssignment() failed, %v", err)
	}
	return ta
}

func (r *Repos) LinkGuardian(t *testing.T, tenantID, guardianID, studentID string) academic.GuardianLink {
	t.Helper()
	gl := academic.GuardianLink{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		GuardianID: guardianID,
		StudentID:  studentID,
		Relation:   academic.RelationParent,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.Academic.CreateGuardianLink(context.Background(), gl); err != nil {
		t.Fatalf("CreateGuardianLink() failed, %v", err)
	}
	return gl
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Enable(bool)                       {}
func (NopLogger) Debug(string, ...interface{})      {}
func (NopLogger) Info(string, ...interface{})       {}
func (NopLogger) Warn(string, ...interface{})       {}
func (NopLogger) Error(string, ...interface{})      {}
func (NopLogger) Fatal(string, ...interface{})      {}
