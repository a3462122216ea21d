package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core/tenant"
	"github.com/trezcool/shule/core/user"
)

func Test_tenantApi_tenants(t *testing.T) {
	setup(t)

	school1 := repos.CreateTenant(t, "Sunrise Academy", "tax100")
	school2 := repos.CreateTenant(t, "Hilltop Primary", "tax200")

	sysAdmin := repos.CreateUser(t, "Root", "root@shule.test", user.RoleSystemAdmin, "")
	admin1 := repos.CreateUser(t, "Amani A", "admin@sunrise.test", user.RoleSchoolAdmin, school1.ID)

	sysToken := getToken(t, sysAdmin)
	admin1Token := getToken(t, admin1)

	tests := []httpTest{
		{name: "Auth required", method: http.MethodGet, path: "/v1/tenants", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Only platform admins onboard schools", method: http.MethodPost, path: "/v1/tenants", token: admin1Token,
			body:     marchallObj(t, tenant.NewTenant{Name: "Valley View", TaxID: "tax300"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied),
		},
		{
			name: "Duplicate tax ID rejected", method: http.MethodPost, path: "/v1/tenants", token: sysToken,
			body:     marchallObj(t, tenant.NewTenant{Name: "Copy Cat", TaxID: "TAX100"}),
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "a school with this tax ID already exists"}),
		},
		{
			name: "Platform admin gets all", method: http.MethodGet, path: "/v1/tenants", token: sysToken,
			wantCode: http.StatusOK, wantData: marchallList(t, school1, school2),
		},
		{
			name: "search=sunrise", method: http.MethodGet, path: "/v1/tenants?search=sunrise", token: sysToken,
			wantCode: http.StatusOK, wantData: marchallList(t, school1),
		},
		{
			name: "School admin only sees their school", method: http.MethodGet, path: "/v1/tenants", token: admin1Token,
			wantCode: http.StatusOK, wantData: marchallList(t, school1),
		},
		{
			name: "School admin cannot read other schools", method: http.MethodGet, path: "/v1/tenants/" + school2.ID, token: admin1Token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "tenant not found"}),
		},
		{
			name: "Only platform admins update schools", method: http.MethodPut, path: "/v1/tenants/" + school1.ID, token: admin1Token,
			body:     marchallObj(t, tenant.UpdateTenant{Name: "Renamed"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Platform admin onboards a school", func(t *testing.T) {
		body := marchallObj(t, tenant.NewTenant{Name: "Valley View", TaxID: "TAX300", City: "Goma"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/tenants", sysToken, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var tn tenant.Tenant
		if err := json.Unmarshal(rec.Body.Bytes(), &tn); err != nil {
			t.Fatalf("json.Unmarshal() failed: %v", err)
		}
		assert.NotEmpty(t, tn.ID)
		assert.Equal(t, "tax300", tn.TaxID)
		assert.True(t, tn.IsActive)
	})
}
