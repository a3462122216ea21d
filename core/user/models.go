package user

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/shule/core"
)

// Roles
const (
	RoleSystemAdmin = "SYSTEM_ADMIN" // platform operator; not bound to a school
	RoleSchoolAdmin = "SCHOOL_ADMIN"
	RoleTeacher     = "TEACHER"
	RoleGuardian    = "GUARDIAN"
)

var AllRoles = []string{RoleSystemAdmin, RoleSchoolAdmin, RoleTeacher, RoleGuardian}

// Device platforms
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	TenantID     string    `json:"tenant_id,omitempty"` // empty only for SYSTEM_ADMIN
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsSystemAdmin() bool { return u.Role == RoleSystemAdmin }
func (u *User) IsSchoolAdmin() bool { return u.Role == RoleSchoolAdmin }
func (u *User) IsTeacher() bool     { return u.Role == RoleTeacher }
func (u *User) IsGuardian() bool    { return u.Role == RoleGuardian }

// IsAdmin reports whether the user manages either the platform or a school.
func (u *User) IsAdmin() bool { return u.IsSystemAdmin() || u.IsSchoolAdmin() }

// TeacherProfile extends a TEACHER user. It exists exactly for the
// lifetime of the user; class/subject links hang off it.
type TeacherProfile struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GuardianProfile extends a GUARDIAN user; student links hang off it.
type GuardianProfile struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// DeviceToken is a push notification endpoint, unique per token string.
type DeviceToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Platform  string    `json:"platform"`
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"required,role"`
	TenantID        string `json:"tenant_id"` // derived from the actor when omitted
}

func (nu *NewUser) Validate(ctx context.Context, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.TenantID = core.CleanString(nu.TenantID)

	if err := core.Validate.Struct(nu); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return svc.checkEmailUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Role and tenant are fixed at creation and deliberately absent.
type UpdateUser struct {
	Name            string `json:"name"`
	Email           string `json:"email" validate:"omitempty,email"`
	IsActive        *bool  `json:"is_active"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, svc *Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := core.Validate.Struct(uu); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return svc.checkEmailUniqueness(ctx, uu.Email, origUsr)
}

// RegisterDeviceToken upserts a push endpoint for the calling user.
type RegisterDeviceToken struct {
	Platform string `json:"platform" validate:"required,oneof=android ios"`
	Token    string `json:"token" validate:"required"`
}

func (rt *RegisterDeviceToken) Validate() error {
	rt.Token = core.CleanString(rt.Token)
	rt.Platform = core.CleanString(rt.Platform, true /* lower */)
	if err := core.Validate.Struct(rt); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return nil
}

type QueryFilter struct {
	Search      string    `query:"search"` // case-insensitive match on Name or Email
	Role        string    `query:"role"`
	TenantID    string    `query:"tenant_id"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter fetches a single user by one of its unique attributes.
type GetFilter struct {
	ID    string
	Email string
}
