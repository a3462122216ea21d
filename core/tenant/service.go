package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	ErrNotFound    = errors.New("tenant not found")
	ErrTaxIDExists = errors.New("a school with this tax ID already exists")
)

type Repository interface {
	CheckTaxIDUniqueness(ctx context.Context, taxID string, exec ...core.DBExecutor) error
	CreateTenant(ctx context.Context, t Tenant, exec ...core.DBExecutor) error
	GetTenant(ctx context.Context, id string, exec ...core.DBExecutor) (Tenant, error)
	QueryTenants(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Tenant, error)
	UpdateTenant(ctx context.Context, t Tenant, isActive *bool, exec ...core.DBExecutor) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) checkTaxIDUniqueness(ctx context.Context, taxID string) error {
	if err := svc.repo.CheckTaxIDUniqueness(ctx, taxID); err != nil {
		if errors.Cause(err) == ErrTaxIDExists {
			return core.NewValidationError(nil, core.FieldError{Field: "tax_id", Error: ErrTaxIDExists.Error()})
		}
		return err
	}
	return nil
}

// Create registers a new school. Only platform admins may do this.
func (svc *Service) Create(ctx context.Context, actor user.User, nt NewTenant) (Tenant, error) {
	if !actor.IsSystemAdmin() {
		return Tenant{}, core.ErrForbidden
	}
	if err := nt.Validate(ctx, svc); err != nil {
		return Tenant{}, err
	}

	now := time.Now().UTC()
	t := Tenant{
		ID:         uuid.New().String(),
		Name:       nt.Name,
		LegalName:  nt.LegalName,
		TaxID:      nt.TaxID,
		Email:      nt.Email,
		Phone:      nt.Phone,
		Address:    nt.Address,
		City:       nt.City,
		State:      nt.State,
		PostalCode: nt.PostalCode,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := svc.repo.CreateTenant(ctx, t); err != nil {
		return Tenant{}, errors.Wrap(err, "creating tenant")
	}
	return t, nil
}

// Query lists schools. Platform admins see all; everyone else only their own.
func (svc *Service) Query(ctx context.Context, actor user.User, filter QueryFilter, ordering ...core.DBOrdering) ([]Tenant, error) {
	if actor.IsSystemAdmin() {
		return svc.repo.QueryTenants(ctx, filter, ordering)
	}
	if actor.TenantID == "" {
		return []Tenant{}, nil
	}
	t, err := svc.repo.GetTenant(ctx, actor.TenantID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return []Tenant{}, nil
		}
		return nil, err
	}
	return []Tenant{t}, nil
}

func (svc *Service) Get(ctx context.Context, actor user.User, id string) (Tenant, error) {
	if !actor.IsSystemAdmin() && actor.TenantID != id {
		return Tenant{}, ErrNotFound
	}
	t, err := svc.repo.GetTenant(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	return t, nil
}

func (svc *Service) Update(ctx context.Context, actor user.User, id string, ut UpdateTenant) (Tenant, error) {
	if !actor.IsSystemAdmin() {
		return Tenant{}, core.ErrForbidden
	}
	t, err := svc.repo.GetTenant(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if err = ut.Validate(ctx); err != nil {
		return Tenant{}, err
	}

	if ut.Name != "" {
		t.Name = ut.Name
	}
	if ut.Email != "" {
		t.Email = ut.Email
	}
	if ut.Phone != "" {
		t.Phone = ut.Phone
	}
	if ut.Address != "" {
		t.Address = ut.Address
	}
	if ut.City != "" {
		t.City = ut.City
	}
	if ut.LegalName != "" {
		t.LegalName = ut.LegalName
	}
	if ut.State != "" {
		t.State = ut.State
	}
	if ut.PostalCode != "" {
		t.PostalCode = ut.PostalCode
	}
	t.UpdatedAt = time.Now().UTC()
	if err = svc.repo.UpdateTenant(ctx, t, ut.IsActive); err != nil {
		return Tenant{}, errors.Wrap(err, "updating tenant")
	}
	if ut.IsActive != nil {
		t.IsActive = *ut.IsActive
	}
	return t, nil
}
