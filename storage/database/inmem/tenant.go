package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/tenant"
)

type tenantRepository struct {
	db *DB
}

func NewTenantRepository(db *DB) tenant.Repository {
	return &tenantRepository{db: db}
}

func (repo *tenantRepository) CheckTaxIDUniqueness(_ context.Context, taxID string, _ ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, t := range repo.db.tenants {
		if t.TaxID == taxID {
			return tenant.ErrTaxIDExists
		}
	}
	return nil
}

func (repo *tenantRepository) CreateTenant(_ context.Context, t tenant.Tenant, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.tenants {
		if existing.TaxID == t.TaxID {
			return tenant.ErrTaxIDExists
		}
	}
	repo.db.tenants[t.ID] = &t
	return nil
}

func (repo *tenantRepository) GetTenant(_ context.Context, id string, _ ...core.DBExecutor) (tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.tenants[id]; ok {
		return *t, nil
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) QueryTenants(_ context.Context, filter tenant.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tenants := make([]tenant.Tenant, 0, len(repo.db.tenants))
	for _, t := range repo.db.tenants {
		if filter.Search != "" {
			search := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(t.Name), search) &&
				!strings.Contains(strings.ToLower(t.TaxID), search) &&
				!strings.Contains(strings.ToLower(t.City), search) {
				continue
			}
		}
		if filter.IsActive != nil && t.IsActive != *filter.IsActive {
			continue
		}
		tenants = append(tenants, *t)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
	return tenants, nil
}

func (repo *tenantRepository) UpdateTenant(_ context.Context, t tenant.Tenant, isActive *bool, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	existing, ok := repo.db.tenants[t.ID]
	if !ok {
		return tenant.ErrNotFound
	}
	if isActive != nil {
		t.IsActive = *isActive
	} else {
		t.IsActive = existing.IsActive
	}
	repo.db.tenants[t.ID] = &t
	return nil
}
