package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/tests"
)

func newUserService(repos *testutil.Repos) *user.Service {
	return user.NewService(repos.User, emailsvc.NewConsoleServiceMock())
}

func TestService_Create(t *testing.T) {
	repos := testutil.NewRepos()
	svc := newUserService(repos)
	ctx := context.Background()

	t1 := repos.CreateTenant(t, "School One", "ctax1")
	t2 := repos.CreateTenant(t, "School Two", "ctax2")
	sysAdmin := repos.CreateUser(t, "Root", "root@c.test", user.RoleSystemAdmin, "")
	admin1 := repos.CreateUser(t, "Admin1", "admin1@c.test", user.RoleSchoolAdmin, t1.ID)
	teacher1 := repos.CreateUser(t, "Teach1", "teach1@c.test", user.RoleTeacher, t1.ID)

	newUser := func(role, email, tenantID string) user.NewUser {
		return user.NewUser{
			Name:            "New Person",
			Email:           email,
			Password:        "V4l1d+pass",
			PasswordConfirm: "V4l1d+pass",
			Role:            role,
			TenantID:        tenantID,
		}
	}

	tests := []struct {
		name       string
		actor      user.User
		nu         user.NewUser
		wantTenant string
		wantErr    error
		wantFields []string
	}{
		{
			name:    "teacher cannot create accounts",
			actor:   teacher1,
			nu:      newUser(user.RoleGuardian, "g1@c.test", ""),
			wantErr: core.ErrForbidden,
		},
		{
			name:    "school admin cannot create system admins",
			actor:   admin1,
			nu:      newUser(user.RoleSystemAdmin, "root2@c.test", ""),
			wantErr: core.ErrForbidden,
		},
		{
			name:       "system admin must carry no school",
			actor:      sysAdmin,
			nu:         newUser(user.RoleSystemAdmin, "root2@c.test", t1.ID),
			wantFields: []string{"tenant_id"},
		},
		{
			name:       "system admin creating staff needs a school",
			actor:      sysAdmin,
			nu:         newUser(user.RoleTeacher, "t2@c.test", ""),
			wantFields: []string{"tenant_id"},
		},
		{
			name:       "school admin cannot target another school",
			actor:      admin1,
			nu:         newUser(user.RoleTeacher, "t2@c.test", t2.ID),
			wantFields: []string{"tenant_id"},
		},
		{
			name:       "duplicate email",
			actor:      admin1,
			nu:         newUser(user.RoleTeacher, "Teach1@c.test", ""),
			wantFields: []string{"email"},
		},
		{
			name:       "password confirmation mismatch",
			actor:      admin1,
			nu:         user.NewUser{Name: "P", Email: "p@c.test", Password: "V4l1d+pass", PasswordConfirm: "other", Role: user.RoleTeacher},
			wantFields: []string{"password_confirm"},
		},
		{
			name:       "weak password rejected",
			actor:      admin1,
			nu:         user.NewUser{Name: "P", Email: "p2@c.test", Password: "password", PasswordConfirm: "password", Role: user.RoleTeacher},
			wantFields: []string{"password"},
		},
		{
			name:       "unknown role",
			actor:      sysAdmin,
			nu:         newUser("JANITOR", "j@c.test", t1.ID),
			wantFields: []string{"role"},
		},
		{
			name:       "school admin tenant is derived",
			actor:      admin1,
			nu:         newUser(user.RoleGuardian, "g1@c.test", ""),
			wantTenant: t1.ID,
		},
		{
			name:       "system admin picks the school explicitly",
			actor:      sysAdmin,
			nu:         newUser(user.RoleTeacher, "t2@c.test", t2.ID),
			wantTenant: t2.ID,
		},
		{
			name:  "system admin creates a peer",
			actor: sysAdmin,
			nu:    newUser(user.RoleSystemAdmin, "root2@c.test", ""),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := svc.Create(ctx, tt.actor, tt.nu)
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
			if usr.ID == "" {
				t.Error("Create() did not assign an ID")
			}
			if usr.TenantID != tt.wantTenant {
				t.Errorf("Create() tenant = %q, want %q", usr.TenantID, tt.wantTenant)
			}
			if !usr.IsActive {
				t.Error("Create() user should start active")
			}
			if err := usr.CheckPassword(tt.nu.Password); err != nil {
				t.Errorf("CheckPassword() failed, %v", err)
			}
		})
	}
}

func TestService_Get(t *testing.T) {
	repos := testutil.NewRepos()
	svc := newUserService(repos)
	ctx := context.Background()

	t1 := repos.CreateTenant(t, "School One", "gtax1")
	t2 := repos.CreateTenant(t, "School Two", "gtax2")
	sysAdmin := repos.CreateUser(t, "Root", "root@g.test", user.RoleSystemAdmin, "")
	admin1 := repos.CreateUser(t, "Admin1", "admin1@g.test", user.RoleSchoolAdmin, t1.ID)
	teacher1 := repos.CreateUser(t, "Teach1", "teach1@g.test", user.RoleTeacher, t1.ID)
	teacher2 := repos.CreateUser(t, "Teach2", "teach2@g.test", user.RoleTeacher, t2.ID)

	tests := []struct {
		name    string
		actor   user.User
		id      string
		wantErr error
	}{
		{name: "self", actor: teacher1, id: teacher1.ID},
		{name: "system admin reaches anyone", actor: sysAdmin, id: teacher2.ID},
		{name: "school admin reaches own staff", actor: admin1, id: teacher1.ID},
		{name: "school admin gets not found across schools", actor: admin1, id: teacher2.ID, wantErr: user.ErrNotFound},
		{name: "teacher cannot read a colleague", actor: teacher1, id: admin1.ID, wantErr: user.ErrNotFound},
		{name: "unknown id", actor: sysAdmin, id: "nope", wantErr: user.ErrNotFound},
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
	svc := newUserService(repos)
	ctx := context.Background()

	t1 := repos.CreateTenant(t, "School One", "qtax1")
	t2 := repos.CreateTenant(t, "School Two", "qtax2")
	sysAdmin := repos.CreateUser(t, "Root", "root@q.test", user.RoleSystemAdmin, "")
	admin1 := repos.CreateUser(t, "Admin1", "admin1@q.test", user.RoleSchoolAdmin, t1.ID)
	teacher1 := repos.CreateUser(t, "Teach1", "teach1@q.test", user.RoleTeacher, t1.ID)
	teacher2 := repos.CreateUser(t, "Teach2", "teach2@q.test", user.RoleTeacher, t2.ID)

	t.Run("system admin sees everyone", func(t *testing.T) {
		got, err := svc.Query(ctx, sysAdmin, nil)
		if err != nil {
			t.Fatalf("Query() failed, %v", err)
		}
		if len(got) != 4 {
			t.Errorf("Query() returned %d users, want 4", len(got))
		}
	})

	t.Run("school admin is pinned to own school", func(t *testing.T) {
		// even an explicit cross-school filter is overridden
		got, err := svc.Query(ctx, admin1, &user.QueryFilter{TenantID: t2.ID})
		if err != nil {
			t.Fatalf("Query() failed, %v", err)
		}
		for _, usr := range got {
			if usr.TenantID != t1.ID {
				t.Errorf("Query() leaked user %q of school %q", usr.Email, usr.TenantID)
			}
		}
		if !containsUser(got, teacher1.ID) {
			t.Error("Query() missing own school's teacher")
		}
		if containsUser(got, teacher2.ID) {
			t.Error("Query() leaked another school's teacher")
		}
	})

	t.Run("teacher sees nothing", func(t *testing.T) {
		got, err := svc.Query(ctx, teacher1, nil)
		if err != nil {
			t.Fatalf("Query() failed, %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Query() returned %d users, want 0", len(got))
		}
	})

	t.Run("role filter", func(t *testing.T) {
		got, err := svc.Query(ctx, sysAdmin, &user.QueryFilter{Role: user.RoleTeacher})
		if err != nil {
			t.Fatalf("Query() failed, %v", err)
		}
		if len(got) != 2 {
			t.Errorf("Query() returned %d teachers, want 2", len(got))
		}
	})
}

func TestService_Update(t *testing.T) {
	repos := testutil.NewRepos()
	svc := newUserService(repos)
	ctx := context.Background()

	t1 := repos.CreateTenant(t, "School One", "utax1")
	admin1 := repos.CreateUser(t, "Admin1", "admin1@u.test", user.RoleSchoolAdmin, t1.ID)
	teacher1 := repos.CreateUser(t, "Teach1", "teach1@u.test", user.RoleTeacher, t1.ID)
	guardian1 := repos.CreateUser(t, "Guard1", "guard1@u.test", user.RoleGuardian, t1.ID)

	t.Run("owner edits own name", func(t *testing.T) {
		got, err := svc.Update(ctx, teacher1, teacher1.ID, user.UpdateUser{Name: "Renamed"})
		if err != nil {
			t.Fatalf("Update() failed, %v", err)
		}
		if got.Name != "Renamed" {
			t.Errorf("Update() name = %q, want %q", got.Name, "Renamed")
		}
		if got.Role != user.RoleTeacher || got.TenantID != t1.ID {
			t.Error("Update() must not change role or school")
		}
	})

	t.Run("owner cannot deactivate self", func(t *testing.T) {
		inactive := false
		_, err := svc.Update(ctx, teacher1, teacher1.ID, user.UpdateUser{IsActive: &inactive})
		if errors.Cause(err) != core.ErrForbidden {
			t.Fatalf("Update() error = %v, wantErr %v", err, core.ErrForbidden)
		}
	})

	t.Run("non-admin cannot edit others", func(t *testing.T) {
		_, err := svc.Update(ctx, guardian1, teacher1.ID, user.UpdateUser{Name: "Hijack"})
		if errors.Cause(err) != user.ErrNotFound {
			t.Fatalf("Update() error = %v, wantErr %v", err, user.ErrNotFound)
		}
	})

	t.Run("admin deactivates a member", func(t *testing.T) {
		inactive := false
		got, err := svc.Update(ctx, admin1, guardian1.ID, user.UpdateUser{IsActive: &inactive})
		if err != nil {
			t.Fatalf("Update() failed, %v", err)
		}
		if got.IsActive {
			t.Error("Update() user should be deactivated")
		}
	})

	t.Run("email collision rejected", func(t *testing.T) {
		_, err := svc.Update(ctx, teacher1, teacher1.ID, user.UpdateUser{Email: "admin1@u.test"})
		assertFieldErrors(t, err, []string{"email"})
	})

	t.Run("password change", func(t *testing.T) {
		got, err := svc.Update(ctx, teacher1, teacher1.ID, user.UpdateUser{Password: "N3w+secret", PasswordConfirm: "N3w+secret"})
		if err != nil {
			t.Fatalf("Update() failed, %v", err)
		}
		if err := got.CheckPassword("N3w+secret"); err != nil {
			t.Errorf("CheckPassword() failed after update, %v", err)
		}
	})
}

func TestService_RegisterDevice(t *testing.T) {
	repos := testutil.NewRepos()
	svc := newUserService(repos)
	ctx := context.Background()

	t1 := repos.CreateTenant(t, "School One", "dtax1")
	guardian1 := repos.CreateUser(t, "Guard1", "guard1@d.test", user.RoleGuardian, t1.ID)
	guardian2 := repos.CreateUser(t, "Guard2", "guard2@d.test", user.RoleGuardian, t1.ID)

	t.Run("platform is validated", func(t *testing.T) {
		_, err := svc.RegisterDevice(ctx, guardian1, user.RegisterDeviceToken{Platform: "windows", Token: "tok"})
		assertFieldErrors(t, err, []string{"platform"})
	})

	t.Run("register and list", func(t *testing.T) {
		dt, err := svc.RegisterDevice(ctx, guardian1, user.RegisterDeviceToken{Platform: "ANDROID", Token: "tok-1"})
		if err != nil {
			t.Fatalf("RegisterDevice() failed, %v", err)
		}
		if dt.ID == "" {
			t.Error("RegisterDevice() did not assign an ID")
		}
		if dt.Platform != user.PlatformAndroid {
			t.Errorf("RegisterDevice() platform = %q, want %q", dt.Platform, user.PlatformAndroid)
		}
		tokens, err := svc.DeviceTokens(ctx, []string{guardian1.ID})
		if err != nil {
			t.Fatalf("DeviceTokens() failed, %v", err)
		}
		if len(tokens) != 1 || tokens[0].Token != "tok-1" {
			t.Errorf("DeviceTokens() = %+v, want one token tok-1", tokens)
		}
	})

	t.Run("re-registering a token moves it", func(t *testing.T) {
		if _, err := svc.RegisterDevice(ctx, guardian2, user.RegisterDeviceToken{Platform: "ios", Token: "tok-1"}); err != nil {
			t.Fatalf("RegisterDevice() failed, %v", err)
		}
		tokens, err := svc.DeviceTokens(ctx, []string{guardian1.ID})
		if err != nil {
			t.Fatalf("DeviceTokens() failed, %v", err)
		}
		if len(tokens) != 0 {
			t.Errorf("DeviceTokens() former owner still holds %d tokens", len(tokens))
		}
		tokens, err = svc.DeviceTokens(ctx, []string{guardian2.ID})
		if err != nil {
			t.Fatalf("DeviceTokens() failed, %v", err)
		}
		if len(tokens) != 1 || tokens[0].Platform != user.PlatformIOS {
			t.Errorf("DeviceTokens() = %+v, want one ios token", tokens)
		}
	})
}

func containsUser(usrs []user.User, id string) bool {
	for _, usr := range usrs {
		if usr.ID == id {
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
