package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core/feed"
	"github.com/trezcool/shule/core/user"
)

type feedFixture struct {
	admin1   user.User
	teacher1 user.User
	guard1   user.User
	guard2   user.User
	admin2   user.User
	class1ID string
}

// newFeedFixture seeds one school with two classes. guard1's child is in
// teacher1's class, guard2's child is in the other one.
func newFeedFixture(t *testing.T) feedFixture {
	t.Helper()
	setup(t)

	year := time.Now().Year()

	school1 := repos.CreateTenant(t, "Sunrise Academy", "tax100")
	school2 := repos.CreateTenant(t, "Hilltop Primary", "tax200")

	f := feedFixture{
		admin1:   repos.CreateUser(t, "Amani A", "admin@sunrise.test", user.RoleSchoolAdmin, school1.ID),
		teacher1: repos.CreateUser(t, "Teacher One", "teach1@sunrise.test", user.RoleTeacher, school1.ID),
		guard1:   repos.CreateUser(t, "Guardian One", "guard1@sunrise.test", user.RoleGuardian, school1.ID),
		guard2:   repos.CreateUser(t, "Guardian Two", "guard2@sunrise.test", user.RoleGuardian, school1.ID),
		admin2:   repos.CreateUser(t, "Benga B", "admin@hilltop.test", user.RoleSchoolAdmin, school2.ID),
	}

	class1 := repos.CreateClass(t, school1.ID, "P1 Blue", year, f.teacher1.ID)
	class1b := repos.CreateClass(t, school1.ID, "P1 Red", year, "")
	f.class1ID = class1.ID

	s1 := repos.CreateStudent(t, school1.ID, class1.ID, "Student One", "eno1")
	s3 := repos.CreateStudent(t, school1.ID, class1b.ID, "Student Three", "eno3")

	repos.AssignTeacher(t, school1.ID, f.teacher1.ID, class1.ID, "")
	repos.LinkGuardian(t, school1.ID, f.guard1.ID, s1.ID)
	repos.LinkGuardian(t, school1.ID, f.guard2.ID, s3.ID)
	return f
}

// createPost goes through the API so the post carries server-assigned fields.
func createPost(t *testing.T, token, text, classID string) feed.Post {
	t.Helper()
	body := marchallObj(t, feed.NewPost{Text: text, ClassID: classID})
	req, rec := newAuthRequest(http.MethodPost, "/v1/posts", token, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("createPost() failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
	var post feed.Post
	if err := json.Unmarshal(rec.Body.Bytes(), &post); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}
	return post
}

func Test_feedApi_posts(t *testing.T) {
	f := newFeedFixture(t)
	teacherToken := getToken(t, f.teacher1)

	classPost := createPost(t, teacherToken, "Science fair photos coming up", f.class1ID)
	widePost := createPost(t, teacherToken, "School closes early on Friday", "")

	tests := []httpTest{
		{name: "Auth required", method: http.MethodGet, path: "/v1/posts", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "School admins do not post", method: http.MethodPost, path: "/v1/posts", token: getToken(t, f.admin1),
			body:     marchallObj(t, feed.NewPost{Text: "hi"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied),
		},
		{
			name: "Guardians do not post", method: http.MethodPost, path: "/v1/posts", token: getToken(t, f.guard1),
			body:     marchallObj(t, feed.NewPost{Text: "hi"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied),
		},
		{
			name: "Admin feed has everything", method: http.MethodGet, path: "/v1/posts", token: getToken(t, f.admin1),
			wantCode: http.StatusOK, wantData: marchallList(t, classPost, widePost),
		},
		{
			name: "Linked guardian gets class and school posts", method: http.MethodGet, path: "/v1/posts", token: getToken(t, f.guard1),
			wantCode: http.StatusOK, wantData: marchallList(t, classPost, widePost),
		},
		{
			name: "Unlinked guardian only gets school posts", method: http.MethodGet, path: "/v1/posts", token: getToken(t, f.guard2),
			wantCode: http.StatusOK, wantData: marchallList(t, widePost),
		},
		{
			name: "Other schools see nothing", method: http.MethodGet, path: "/v1/posts", token: getToken(t, f.admin2),
			wantCode: http.StatusOK, wantData: marchallList(t, []interface{}{}...),
		},
		{
			name: "Class post hidden outside the class", method: http.MethodGet, path: "/v1/posts/" + classPost.ID, token: getToken(t, f.guard2),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errPostNotFound),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Photo upload", func(t *testing.T) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		_ = w.WriteField("text", "Look at these")
		_ = w.WriteField("class_id", f.class1ID)
		_ = w.WriteField("media_kind", feed.MediaKindPhoto)
		fw, err := w.CreateFormFile("media", "pic.png")
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		_, _ = fw.Write([]byte("not-really-a-png"))
		_ = w.Close()

		req := httptest.NewRequest(http.MethodPost, "/v1/posts", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+teacherToken)
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var post feed.Post
		if err := json.Unmarshal(rec.Body.Bytes(), &post); err != nil {
			t.Fatalf("json.Unmarshal() failed: %v", err)
		}
		assert.Equal(t, feed.MediaKindPhoto, post.MediaKind)
		assert.NotEmpty(t, post.MediaKey)
	})
}

func Test_feedApi_reactionsAndComments(t *testing.T) {
	f := newFeedFixture(t)

	classPost := createPost(t, getToken(t, f.teacher1), "Class photos are up", f.class1ID)
	post := createPost(t, getToken(t, f.teacher1), "First day back", "")
	guard1Token := getToken(t, f.guard1)

	t.Run("Reaction toggles", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/posts/"+post.ID+"/react", guard1Token)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, map[string]bool{"added": true})}, rec)

		req, rec = newAuthRequest(http.MethodPost, "/v1/posts/"+post.ID+"/react", guard1Token)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, map[string]bool{"added": false})}, rec)
	})

	t.Run("Invisible posts cannot be reacted to", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, errPostNotFound)}
		req, rec := newAuthRequest(http.MethodPost, "/v1/posts/"+classPost.ID+"/react", getToken(t, f.guard2))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("Comment thread", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/posts/"+post.ID+"/comments", guard1Token, marchallObj(t, feed.NewComment{Text: "So excited!"}))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var cmt feed.Comment
		if err := json.Unmarshal(rec.Body.Bytes(), &cmt); err != nil {
			t.Fatalf("json.Unmarshal() failed: %v", err)
		}

		req, rec = newAuthRequest(http.MethodPost, "/v1/posts/"+post.ID+"/comments", getToken(t, f.teacher1), marchallObj(t, feed.NewComment{Text: "See you Monday", ParentID: cmt.ID}))
		app.ServeHTTP(rec, req)
		var reply feed.Comment
		if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
			t.Fatalf("json.Unmarshal() failed: %v", err)
		}

		tt := httpTest{wantCode: http.StatusOK, wantData: marchallList(t, cmt, reply)}
		req, rec = newAuthRequest(http.MethodGet, "/v1/posts/"+post.ID+"/comments", guard1Token)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)

		// only the author, an admin or the post author may delete
		tt = httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied)}
		req, rec = newAuthRequest(http.MethodDelete, "/v1/comments/"+cmt.ID, getToken(t, f.guard2))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)

		req, rec = newAuthRequest(http.MethodDelete, "/v1/comments/"+cmt.ID, guard1Token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func Test_feedApi_notices(t *testing.T) {
	f := newFeedFixture(t)
	adminToken := getToken(t, f.admin1)

	createNotice := func(t *testing.T, token string, nn feed.NewNotice) feed.Notice {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPost, "/v1/notices", token, marchallObj(t, nn))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("createNotice() failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
		var n feed.Notice
		if err := json.Unmarshal(rec.Body.Bytes(), &n); err != nil {
			t.Fatalf("json.Unmarshal() failed: %v", err)
		}
		return n
	}

	wideNotice := createNotice(t, adminToken, feed.NewNotice{Title: "Fee reminder", Text: "Term fees are due", Priority: feed.NoticePriorityUrgent})
	classNotice := createNotice(t, getToken(t, f.teacher1), feed.NewNotice{Title: "Class trip", Text: "Permission slips needed", ClassID: f.class1ID})

	assert.Equal(t, feed.NoticePriorityNormal, classNotice.Priority)

	tests := []httpTest{
		{
			name: "Guardians do not publish notices", method: http.MethodPost, path: "/v1/notices", token: getToken(t, f.guard1),
			body:     marchallObj(t, feed.NewNotice{Title: "hi", Text: "hi"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied),
		},
		{
			name: "Admin board has everything", method: http.MethodGet, path: "/v1/notices", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, wideNotice, classNotice),
		},
		{
			name: "Unlinked guardian only gets school notices", method: http.MethodGet, path: "/v1/notices", token: getToken(t, f.guard2),
			wantCode: http.StatusOK, wantData: marchallList(t, wideNotice),
		},
		{
			name: "priority filter", method: http.MethodGet, path: "/v1/notices?priority=" + feed.NoticePriorityUrgent, token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, wideNotice),
		},
		{
			name: "Class notice hidden outside the class", method: http.MethodGet, path: "/v1/notices/" + classNotice.ID, token: getToken(t, f.guard2),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotcNotFound),
		},
		{
			name: "Other schools see nothing", method: http.MethodGet, path: "/v1/notices", token: getToken(t, f.admin2),
			wantCode: http.StatusOK, wantData: marchallList(t, []interface{}{}...),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
