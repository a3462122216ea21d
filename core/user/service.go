package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []User, exec ...core.DBExecutor) error
		// CreateUser inserts the user and, for TEACHER / GUARDIAN roles,
		// its profile row in the same transaction.
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool, exec ...core.DBExecutor) (User, error)
		UpsertDeviceToken(ctx context.Context, dt DeviceToken, exec ...core.DBExecutor) (DeviceToken, error)
		DeviceTokensByUserIDs(ctx context.Context, userIDs []string, exec ...core.DBExecutor) ([]DeviceToken, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
	}
)

func NewService(repo Repository, mailSvc core.EmailService) *Service {
	return &Service{repo: repo, mailSvc: mailSvc}
}

func (svc *Service) checkEmailUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// deriveTenant fills in and cross-checks the tenant of a user to be created.
// System admins carry no tenant; everyone else gets exactly one, fixed here.
func deriveTenant(actor User, nu NewUser) (string, error) {
	if nu.Role == RoleSystemAdmin {
		if nu.TenantID != "" {
			return "", core.NewValidationError(nil,
				core.FieldError{Field: "tenant_id", Error: "system admins do not belong to a school"})
		}
		return "", nil
	}
	if actor.IsSystemAdmin() {
		if nu.TenantID == "" {
			return "", core.NewValidationError(nil,
				core.FieldError{Field: "tenant_id", Error: "this field is required"})
		}
		return nu.TenantID, nil
	}
	if nu.TenantID != "" && nu.TenantID != actor.TenantID {
		return "", core.NewValidationError(nil,
			core.FieldError{Field: "tenant_id", Error: "school does not match yours"})
	}
	return actor.TenantID, nil
}

// Create registers a new account. Only admins may create accounts, and only
// a system admin may create other system admins.
func (svc *Service) Create(ctx context.Context, actor User, nu NewUser) (User, error) {
	if !actor.IsAdmin() {
		return User{}, core.ErrForbidden
	}
	if nu.Role == RoleSystemAdmin && !actor.IsSystemAdmin() {
		return User{}, core.ErrForbidden
	}

	tenantID, err := deriveTenant(actor, nu)
	if err != nil {
		return User{}, err
	}

	if err := nu.Validate(ctx, svc); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		ID:        uuid.New().String(),
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      nu.Role,
		TenantID:  tenantID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	usr, err = svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	svc.sendWelcomeMail(usr)
	return usr, nil
}

// Query lists the accounts visible to the actor: all of them for a system
// admin, the actor's school for a school admin, nothing for anyone else.
func (svc *Service) Query(ctx context.Context, actor User, filter *QueryFilter) ([]User, error) {
	switch {
	case actor.IsSystemAdmin():
	case actor.IsSchoolAdmin():
		if filter == nil {
			filter = &QueryFilter{}
		}
		filter.TenantID = actor.TenantID
	default:
		return []User{}, nil
	}
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryUsers(ctx, filter, []core.DBOrdering{{Field: "created_at"}})
}

// Get fetches a single visible account. An id existing in another school
// reports ErrNotFound, never a permission error.
func (svc *Service) Get(ctx context.Context, actor User, id string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	switch {
	case actor.ID == usr.ID:
	case actor.IsSystemAdmin():
	case actor.IsSchoolAdmin() && actor.TenantID == usr.TenantID:
	default:
		return User{}, ErrNotFound
	}
	return usr, nil
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// Update modifies an account: the account owner may edit their own details,
// an admin of the same school may also (de)activate it. Role and tenant
// never change.
func (svc *Service) Update(ctx context.Context, actor User, id string, uu UpdateUser) (User, error) {
	orig, err := svc.Get(ctx, actor, id)
	if err != nil {
		return User{}, err
	}
	if actor.ID != orig.ID && !actor.IsAdmin() {
		return User{}, ErrNotFound
	}
	if uu.IsActive != nil && !actor.IsAdmin() {
		return User{}, core.ErrForbidden
	}

	if err := uu.Validate(ctx, orig, svc); err != nil {
		return User{}, err
	}

	usr := orig
	usr.Name = uu.Name
	usr.Email = uu.Email
	usr.UpdatedAt = time.Now().UTC()
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

// SetLastLogin stamps the login time. usr must be the full stored record,
// the repository writes it back as is.
func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr, nil)
}

// RegisterDevice upserts a push endpoint for the calling user. Re-registering
// an existing token string moves it to the caller.
func (svc *Service) RegisterDevice(ctx context.Context, actor User, rt RegisterDeviceToken) (DeviceToken, error) {
	if err := rt.Validate(); err != nil {
		return DeviceToken{}, err
	}
	dt := DeviceToken{
		ID:        uuid.New().String(),
		UserID:    actor.ID,
		TenantID:  actor.TenantID,
		Platform:  rt.Platform,
		Token:     rt.Token,
		UpdatedAt: time.Now().UTC(),
	}
	return svc.repo.UpsertDeviceToken(ctx, dt)
}

// DeviceTokens returns the registered push endpoints of the given users.
func (svc *Service) DeviceTokens(ctx context.Context, userIDs []string) ([]DeviceToken, error) {
	if len(userIDs) == 0 {
		return []DeviceToken{}, nil
	}
	return svc.repo.DeviceTokensByUserIDs(ctx, userIDs)
}

func (svc *Service) sendWelcomeMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Welcome to " + core.Conf.AppName,
		TemplateName: "welcome",
		TemplateData: struct{ Name string }{usr.Name},
	})
}
