package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/tenant"
)

type TenantRepository struct {
	db *sqlx.DB
}

func NewTenantRepository(db *sqlx.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

var _ tenant.Repository = (*TenantRepository)(nil)

func (repo *TenantRepository) CheckTaxIDUniqueness(ctx context.Context, taxID string, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	var exists bool
	q := e.Rebind("SELECT EXISTS (SELECT 1 FROM tenant WHERE tax_id = ?)")
	if err := sqlx.GetContext(ctx, e, &exists, q, taxID); err != nil {
		return errors.Wrap(err, "checking tax ID uniqueness")
	}
	if exists {
		return tenant.ErrTaxIDExists
	}
	return nil
}

func (repo *TenantRepository) CreateTenant(ctx context.Context, t tenant.Tenant, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := e.Rebind(`
		INSERT INTO tenant (id, name, legal_name, tax_id, email, phone, address, city, state, postal_code,
			is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := e.ExecContext(ctx, q,
		t.ID, t.Name, t.LegalName, t.TaxID, t.Email, t.Phone, t.Address, t.City, t.State, t.PostalCode,
		t.IsActive, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return tenant.ErrTaxIDExists
		}
		return errors.Wrap(err, "inserting tenant")
	}
	return nil
}

func (repo *TenantRepository) GetTenant(ctx context.Context, id string, exec ...core.DBExecutor) (tenant.Tenant, error) {
	e := ext(repo.db, exec)
	var t tenant.Tenant
	q := e.Rebind("SELECT * FROM tenant WHERE id = ?")
	if err := sqlx.GetContext(ctx, e, &t, q, id); err != nil {
		if err == sql.ErrNoRows {
			return tenant.Tenant{}, tenant.ErrNotFound
		}
		return tenant.Tenant{}, errors.Wrap(err, "getting tenant")
	}
	return t, nil
}

func (repo *TenantRepository) QueryTenants(ctx context.Context, filter tenant.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]tenant.Tenant, error) {
	e := ext(repo.db, exec)
	q := "SELECT * FROM tenant WHERE TRUE"
	var args []interface{}
	if filter.Search != "" {
		q += " AND (name ILIKE ? OR tax_id ILIKE ? OR city ILIKE ?)"
		search := "%" + filter.Search + "%"
		args = append(args, search, search, search)
	}
	if filter.IsActive != nil {
		q += " AND is_active = ?"
		args = append(args, *filter.IsActive)
	}
	q += orderBy(ordering, "name ASC")

	var tenants []tenant.Tenant
	if err := sqlx.SelectContext(ctx, e, &tenants, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying tenants")
	}
	return tenants, nil
}

func (repo *TenantRepository) UpdateTenant(ctx context.Context, t tenant.Tenant, isActive *bool, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := "UPDATE tenant SET name = ?, legal_name = ?, email = ?, phone = ?, address = ?, city = ?, state = ?, postal_code = ?, updated_at = ?"
	args := []interface{}{t.Name, t.LegalName, t.Email, t.Phone, t.Address, t.City, t.State, t.PostalCode, t.UpdatedAt}
	if isActive != nil {
		q += ", is_active = ?"
		args = append(args, *isActive)
	}
	q += " WHERE id = ?"
	args = append(args, t.ID)

	res, err := e.ExecContext(ctx, e.Rebind(q), args...)
	if err != nil {
		return errors.Wrap(err, "updating tenant")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tenant.ErrNotFound
	}
	return nil
}
