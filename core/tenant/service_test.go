package tenant_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/tenant"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/tests"
)

func TestService_Create(t *testing.T) {
	repos := testutil.NewRepos()
	svc := tenant.NewService(repos.Tenant)
	ctx := context.Background()

	existing := repos.CreateTenant(t, "Mwanga Primary", "tax001")
	sysAdmin := repos.CreateUser(t, "Root", "root@test.test", user.RoleSystemAdmin, "")
	schoolAdmin := repos.CreateUser(t, "Admin", "admin@test.test", user.RoleSchoolAdmin, existing.ID)
	teacher := repos.CreateUser(t, "Teach", "teach@test.test", user.RoleTeacher, existing.ID)

	tests := []struct {
		name       string
		actor      user.User
		nt         tenant.NewTenant
		wantErr    error
		wantFields []string
	}{
		{
			name:    "school admin cannot create",
			actor:   schoolAdmin,
			nt:      tenant.NewTenant{Name: "Other", TaxID: "TAX002"},
			wantErr: core.ErrForbidden,
		},
		{
			name:    "teacher cannot create",
			actor:   teacher,
			nt:      tenant.NewTenant{Name: "Other", TaxID: "TAX002"},
			wantErr: core.ErrForbidden,
		},
		{
			name:       "missing required fields",
			actor:      sysAdmin,
			nt:         tenant.NewTenant{},
			wantFields: []string{"name", "tax_id"},
		},
		{
			name:       "duplicate tax id",
			actor:      sysAdmin,
			nt:         tenant.NewTenant{Name: "Copycat", TaxID: "TAX001"},
			wantFields: []string{"tax_id"},
		},
		{
			name:  "ok",
			actor: sysAdmin,
			nt:    tenant.NewTenant{Name: "Tumaini Secondary", TaxID: "TAX002", City: "Lubumbashi"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tn, err := svc.Create(ctx, tt.actor, tt.nt)
			if tt.wantErr != nil {
				if errors.Cause(err) != tt.wantErr {
					t.Fatalf("Create() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if len(tt.wantFields) > 0 {
				assertFieldErrors(t, err, tt.wantFields)
				return
			}
			if err != nil {
				t.Fatalf("Create() failed, %v", err)
			}
			if tn.ID == "" {
				t.Error("Create() did not assign an ID")
			}
			if !tn.IsActive {
				t.Error("Create() tenant should start active")
			}
			got, err := svc.Get(ctx, tt.actor, tn.ID)
			if err != nil {
				t.Fatalf("Get() failed, %v", err)
			}
			if got.Name != tt.nt.Name {
				t.Errorf("Get() name = %q, want %q", got.Name, tt.nt.Name)
			}
		})
	}
}

func TestService_Get(t *testing.T) {
	repos := testutil.NewRepos()
	svc := tenant.NewService(repos.Tenant)
	ctx := context.Background()

	t1 := repos.CreateTenant(t, "School One", "GETTAX1")
	t2 := repos.CreateTenant(t, "School Two", "GETTAX2")
	sysAdmin := repos.CreateUser(t, "Root", "root@get.test", user.RoleSystemAdmin, "")
	admin1 := repos.CreateUser(t, "Admin1", "admin1@get.test", user.RoleSchoolAdmin, t1.ID)
	guardian1 := repos.CreateUser(t, "Guard1", "guard1@get.test", user.RoleGuardian, t1.ID)

	tests := []struct {
		name    string
		actor   user.User
		id      string
		wantErr error
	}{
		{name: "system admin reaches any school", actor: sysAdmin, id: t2.ID},
		{name: "school admin reaches own school", actor: admin1, id: t1.ID},
		{name: "guardian reaches own school", actor: guardian1, id: t1.ID},
		{name: "school admin cannot see other school", actor: admin1, id: t2.ID, wantErr: tenant.ErrNotFound},
		{name: "guardian cannot see other school", actor: guardian1, id: t2.ID, wantErr: tenant.ErrNotFound},
		{name: "system admin unknown id", actor: sysAdmin, id: "nope", wantErr: tenant.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Get(ctx, tt.actor, tt.id)
			if errors.Cause(err) != tt.wantErr {
				t.Fatalf("Get() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got.ID != tt.id {
				t.Errorf("Get() id = %q, want %q", got.ID, tt.id)
			}
		})
	}
}

func TestService_Query(t *testing.T) {
	repos := testutil.NewRepos()
	svc := tenant.NewService(repos.Tenant)
	ctx := context.Background()

	t1 := repos.CreateTenant(t, "Amani Academy", "QTAX1")
	t2 := repos.CreateTenant(t, "Baraka School", "QTAX2")
	sysAdmin := repos.CreateUser(t, "Root", "root@q.test", user.RoleSystemAdmin, "")
	admin2 := repos.CreateUser(t, "Admin2", "admin2@q.test", user.RoleSchoolAdmin, t2.ID)
	orphan := user.User{ID: "orphan", Role: user.RoleTeacher} // no tenant

	tests := []struct {
		name    string
		actor   user.User
		filter  tenant.QueryFilter
		wantIDs []string
	}{
		{name: "system admin sees all", actor: sysAdmin, wantIDs: []string{t1.ID, t2.ID}},
		{name: "system admin search", actor: sysAdmin, filter: tenant.QueryFilter{Search: "amani"}, wantIDs: []string{t1.ID}},
		{name: "school admin sees only own", actor: admin2, wantIDs: []string{t2.ID}},
		{name: "tenantless non-admin sees nothing", actor: orphan, wantIDs: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Query(ctx, tt.actor, tt.filter)
			if err != nil {
				t.Fatalf("Query() failed, %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Query() returned %d tenants, want %d", len(got), len(tt.wantIDs))
			}
			for _, id := range tt.wantIDs {
				if !containsTenant(got, id) {
					t.Errorf("Query() missing tenant %q", id)
				}
			}
		})
	}
}

func TestService_Update(t *testing.T) {
	repos := testutil.NewRepos()
	svc := tenant.NewService(repos.Tenant)
	ctx := context.Background()

	t1 := repos.CreateTenant(t, "Upendo School", "UTAX1")
	sysAdmin := repos.CreateUser(t, "Root", "root@u.test", user.RoleSystemAdmin, "")
	admin1 := repos.CreateUser(t, "Admin1", "admin1@u.test", user.RoleSchoolAdmin, t1.ID)

	t.Run("school admin cannot update", func(t *testing.T) {
		_, err := svc.Update(ctx, admin1, t1.ID, tenant.UpdateTenant{Name: "Hijack"})
		if errors.Cause(err) != core.ErrForbidden {
			t.Fatalf("Update() error = %v, wantErr %v", err, core.ErrForbidden)
		}
	})

	t.Run("unknown tenant", func(t *testing.T) {
		_, err := svc.Update(ctx, sysAdmin, "nope", tenant.UpdateTenant{Name: "Ghost"})
		if errors.Cause(err) != tenant.ErrNotFound {
			t.Fatalf("Update() error = %v, wantErr %v", err, tenant.ErrNotFound)
		}
	})

	t.Run("partial update and deactivation", func(t *testing.T) {
		inactive := false
		got, err := svc.Update(ctx, sysAdmin, t1.ID, tenant.UpdateTenant{City: "Goma", IsActive: &inactive})
		if err != nil {
			t.Fatalf("Update() failed, %v", err)
		}
		if got.Name != "Upendo School" {
			t.Errorf("Update() name = %q, want unchanged", got.Name)
		}
		if got.City != "Goma" {
			t.Errorf("Update() city = %q, want %q", got.City, "Goma")
		}
		if got.IsActive {
			t.Error("Update() tenant should be deactivated")
		}
		stored, err := svc.Get(ctx, sysAdmin, t1.ID)
		if err != nil {
			t.Fatalf("Get() failed, %v", err)
		}
		if stored.IsActive {
			t.Error("deactivation was not persisted")
		}
	})
}

func containsTenant(ts []tenant.Tenant, id string) bool {
	for _, tn := range ts {
		if tn.ID == id {
			return true
		}
	}
	return false
}

func assertFieldErrors(t *testing.T, err error, fields []string) {
	t.Helper()
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	if !ok {
		t.Fatalf("error = %v, want *core.ValidationError", err)
	}
	for _, field := range fields {
		found := false
		for _, fe := range vErr.Fields {
			if fe.Field == field {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing field error for %q in %v", field, vErr.Fields)
		}
	}
}
