package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/agenda"
	"github.com/trezcool/shule/core/feed"
	"github.com/trezcool/shule/core/tenant"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	filestoresvc "github.com/trezcool/shule/services/filestore"
	pushsvc "github.com/trezcool/shule/services/push"
	testutil "github.com/trezcool/shule/tests"
)

var (
	app   Server
	repos *testutil.Repos

	errMissingToken  = httpErr{Error: "missing or malformed jwt"}
	errPermDenied    = httpErr{Error: "permission denied"}
	errUserNotFound  = httpErr{Error: "user not found"}
	errAcadNotFound  = httpErr{Error: "not found"}
	errPostNotFound  = httpErr{Error: "post not found"}
	errNotcNotFound  = httpErr{Error: "notice not found"}
	errAuthFailed    = httpErr{Error: "authentication failed"}
	errDeactivated   = httpErr{Error: "account deactivated"}
	errAllLogsExist  = httpErr{Error: "all students already have a log for this date"}
	errLogForDate    = httpErr{Error: "a log already exists for this student and date"}
)

// setup rebuilds the in-memory repositories and the Server so every test
// starts from a blank state.
func setup(t *testing.T) {
	t.Helper()
	repos = testutil.NewRepos()

	usrSvc := user.NewService(repos.User, emailsvc.NewConsoleServiceMock())
	tenantSvc := tenant.NewService(repos.Tenant)
	academicSvc := academic.NewService(repos.Academic, repos.User, repos.Resolver)
	agendaSvc := agenda.NewService(repos.Agenda, repos.Academic, repos.User, repos.Resolver, pushsvc.NewConsoleServiceMock(), testutil.NopLogger{})
	feedSvc := feed.NewService(repos.Feed, repos.Academic, repos.User, repos.Resolver, filestoresvc.NewMemoryStorage(), pushsvc.NewConsoleServiceMock(), testutil.NopLogger{})

	app = NewServer(
		&Options{
			DisableReqLogs: true,
			Logger:         testutil.NopLogger{},
			UserSvc:        usrSvc,
			TenantSvc:      tenantSvc,
			AcademicSvc:    academicSvc,
			AgendaSvc:      agendaSvc,
			FeedSvc:        feedSvc,
		},
	)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// createUserWithPassword seeds a user ready to go through the login endpoint.
func createUserWithPassword(t *testing.T, name, email, pwd, role, tenantID string) user.User {
	t.Helper()
	usr := repos.CreateUser(t, name, email, role, tenantID)
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	usr, err := repos.User.UpdateUser(context.Background(), usr, nil)
	if err != nil {
		t.Fatalf("UpdateUser() failed: %v", err)
	}
	return usr
}

func deactivateUser(t *testing.T, usr user.User) user.User {
	t.Helper()
	f := false
	usr, err := repos.User.UpdateUser(context.Background(), usr, &f)
	if err != nil {
		t.Fatalf("UpdateUser() failed: %v", err)
	}
	return usr
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
