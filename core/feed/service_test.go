package feed_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/feed"
	"github.com/trezcool/shule/core/user"
	filestoresvc "github.com/trezcool/shule/services/filestore"
	pushsvc "github.com/trezcool/shule/services/push"
	"github.com/trezcool/shule/tests"
)

type fixture struct {
	repos *testutil.Repos
	svc   *feed.Service

	t1ID     string
	admin1   user.User
	teacher1 user.User // assigned to class1
	guard1   user.User // linked to a class1 student
	guard2   user.User // linked to a class1b student
	class1   academic.ClassGroup
	class1b  academic.ClassGroup

	t2ID   string
	admin2 user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := testutil.NewRepos()
	f := &fixture{
		repos: repos,
		svc: feed.NewService(
			repos.Feed, repos.Academic, repos.User, repos.Resolver,
			filestoresvc.NewMemoryStorage(), pushsvc.NewConsoleServiceMock(), testutil.NopLogger{},
		),
	}

	t1 := repos.CreateTenant(t, "School One", "fdtax1")
	t2 := repos.CreateTenant(t, "School Two", "fdtax2")
	f.t1ID, f.t2ID = t1.ID, t2.ID

	f.admin1 = repos.CreateUser(t, "Admin1", "admin1@fd.test", user.RoleSchoolAdmin, t1.ID)
	f.teacher1 = repos.CreateUser(t, "Teach1", "teach1@fd.test", user.RoleTeacher, t1.ID)
	f.guard1 = repos.CreateUser(t, "Guard1", "guard1@fd.test", user.RoleGuardian, t1.ID)
	f.guard2 = repos.CreateUser(t, "Guard2", "guard2@fd.test", user.RoleGuardian, t1.ID)
	f.admin2 = repos.CreateUser(t, "Admin2", "admin2@fd.test", user.RoleSchoolAdmin, t2.ID)

	f.class1 = repos.CreateClass(t, t1.ID, "P1 Blue", 2026, "")
	f.class1b = repos.CreateClass(t, t1.ID, "P2 Red", 2026, "")

	s1 := repos.CreateStudent(t, t1.ID, f.class1.ID, "Asha M", "fdno1")
	s2 := repos.CreateStudent(t, t1.ID, f.class1b.ID, "Ben K", "fdno2")

	repos.AssignTeacher(t, t1.ID, f.teacher1.ID, f.class1.ID, "")
	repos.LinkGuardian(t, t1.ID, f.guard1.ID, s1.ID)
	repos.LinkGuardian(t, t1.ID, f.guard2.ID, s2.ID)
	return f
}

func TestService_CreatePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("guardians cannot post", func(t *testing.T) {
		_, err := f.svc.CreatePost(ctx, f.guard1, feed.NewPost{Text: "hi"}, nil)
		if errors.Cause(err) != core.ErrForbidden {
			t.Fatalf("CreatePost() error = %v, wantErr %v", err, core.ErrForbidden)
		}
	})

	t.Run("school admins cannot post", func(t *testing.T) {
		_, err := f.svc.CreatePost(ctx, f.admin1, feed.NewPost{Text: "hi"}, nil)
		if errors.Cause(err) != core.ErrForbidden {
			t.Fatalf("CreatePost() error = %v, wantErr %v", err, core.ErrForbidden)
		}
	})

	t.Run("teacher cannot post into an unassigned class", func(t *testing.T) {
		_, err := f.svc.CreatePost(ctx, f.teacher1, feed.NewPost{Text: "hi", ClassID: f.class1b.ID}, nil)
		if errors.Cause(err) != core.ErrForbidden {
			t.Fatalf("CreatePost() error = %v, wantErr %v", err, core.ErrForbidden)
		}
	})

	t.Run("text is required", func(t *testing.T) {
		_, err := f.svc.CreatePost(ctx, f.teacher1, feed.NewPost{}, nil)
		assertFieldErrors(t, err, []string{"text"})
	})

	t.Run("media extension is checked", func(t *testing.T) {
		np := feed.NewPost{Text: "look", MediaKind: feed.MediaKindPhoto, MediaFilename: "notes.pdf", MediaSize: 10}
		_, err := f.svc.CreatePost(ctx, f.teacher1, np, strings.NewReader("%PDF"))
		assertFieldErrors(t, err, []string{"media"})
	})

	t.Run("oversized media rejected", func(t *testing.T) {
		np := feed.NewPost{Text: "look", MediaKind: feed.MediaKindPhoto, MediaFilename: "pic.png", MediaSize: core.Conf.MaxUploadSize + 1}
		_, err := f.svc.CreatePost(ctx, f.teacher1, np, strings.NewReader("fake"))
		assertFieldErrors(t, err, []string{"media"})
	})

	t.Run("class post with a photo", func(t *testing.T) {
		np := feed.NewPost{Text: "field trip", ClassID: f.class1.ID, MediaKind: feed.MediaKindPhoto, MediaFilename: "pic.png", MediaSize: 4}
		p, err := f.svc.CreatePost(ctx, f.teacher1, np, strings.NewReader("fake"))
		if err != nil {
			t.Fatalf("CreatePost() failed, %v", err)
		}
		if p.TenantID != f.t1ID || p.AuthorID != f.teacher1.ID {
			t.Errorf("CreatePost() post %+v has wrong tenant or author", p)
		}
		if p.ClassID.String != f.class1.ID {
			t.Errorf("CreatePost() class = %q, want %q", p.ClassID.String, f.class1.ID)
		}
		if p.MediaKey == "" {
			t.Error("CreatePost() did not store the media")
		}
	})

	t.Run("tenant-wide text post", func(t *testing.T) {
		p, err := f.svc.CreatePost(ctx, f.teacher1, feed.NewPost{Text: "school fair saturday"}, nil)
		if err != nil {
			t.Fatalf("CreatePost() failed, %v", err)
		}
		if p.ClassID.Valid {
			t.Error("CreatePost() post should be tenant-wide")
		}
		if p.MediaKey != "" {
			t.Errorf("CreatePost() media key = %q, want none", p.MediaKey)
		}
	})
}

func TestService_QueryPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	classPost, err := f.svc.CreatePost(ctx, f.teacher1, feed.NewPost{Text: "class only", ClassID: f.class1.ID}, nil)
	if err != nil {
		t.Fatalf("CreatePost() failed, %v", err)
	}
	widePost, err := f.svc.CreatePost(ctx, f.teacher1, feed.NewPost{Text: "school wide"}, nil)
	if err != nil {
		t.Fatalf("CreatePost() failed, %v", err)
	}

	tests := []struct {
		name    string
		actor   user.User
		wantIDs []string
	}{
		{name: "school admin sees all of the school", actor: f.admin1, wantIDs: []string{classPost.ID, widePost.ID}},
		{name: "guardian of the class sees both", actor: f.guard1, wantIDs: []string{classPost.ID, widePost.ID}},
		{name: "guardian of another class sees only tenant-wide", actor: f.guard2, wantIDs: []string{widePost.ID}},
		{name: "another school sees nothing", actor: f.admin2, wantIDs: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.QueryPosts(ctx, tt.actor, feed.PostQueryFilter{})
			if err != nil {
				t.Fatalf("QueryPosts() failed, %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("QueryPosts() returned %d posts, want %d", len(got), len(tt.wantIDs))
			}
			for _, id := range tt.wantIDs {
				found := false
				for _, p := range got {
					if p.ID == id {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("QueryPosts() missing post %q", id)
				}
			}
		})
	}

	t.Run("class-scoped post is invisible across classes", func(t *testing.T) {
		_, err := f.svc.GetPost(ctx, f.guard2, classPost.ID)
		if errors.Cause(err) != feed.ErrPostNotFound {
			t.Fatalf("GetPost() error = %v, wantErr %v", err, feed.ErrPostNotFound)
		}
	})
}

func TestService_Notices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("guardians cannot publish notices", func(t *testing.T) {
		_, err := f.svc.CreateNotice(ctx, f.guard1, feed.NewNotice{Title: "T", Text: "B"})
		if errors.Cause(err) != core.ErrForbidden {
			t.Fatalf("CreateNotice() error = %v, wantErr %v", err, core.ErrForbidden)
		}
	})

	t.Run("priority is validated", func(t *testing.T) {
		_, err := f.svc.CreateNotice(ctx, f.admin1, feed.NewNotice{Title: "T", Text: "B", Priority: "emergency"})
		assertFieldErrors(t, err, []string{"priority"})
	})

	t.Run("expiry must be in the future", func(t *testing.T) {
		past := null.TimeFrom(time.Now().UTC().Add(-time.Hour))
		_, err := f.svc.CreateNotice(ctx, f.admin1, feed.NewNotice{Title: "T", Text: "B", ExpiresAt: past})
		assertFieldErrors(t, err, []string{"expires_at"})
	})

	t.Run("priority defaults to normal", func(t *testing.T) {
		n, err := f.svc.CreateNotice(ctx, f.admin1, feed.NewNotice{Title: "Bake sale", Text: "Friday"})
		if err != nil {
			t.Fatalf("CreateNotice() failed, %v", err)
		}
		if n.Priority != feed.NoticePriorityNormal {
			t.Errorf("CreateNotice() priority = %q, want %q", n.Priority, feed.NoticePriorityNormal)
		}
	})

	t.Run("scoping and expiry on query", func(t *testing.T) {
		classNotice, err := f.svc.CreateNotice(ctx, f.admin1, feed.NewNotice{
			Title: "Class outing", Text: "Pack lunch", ClassID: f.class1.ID, Priority: feed.NoticePriorityUrgent,
		})
		if err != nil {
			t.Fatalf("CreateNotice() failed, %v", err)
		}
		// an already expired notice, planted directly in the store
		expired := feed.Notice{
			ID:        uuid.New().String(),
			TenantID:  f.t1ID,
			AuthorID:  f.admin1.ID,
			Title:     "Old news",
			Text:      "done",
			Priority:  feed.NoticePriorityLow,
			ExpiresAt: null.TimeFrom(time.Now().UTC().Add(-time.Hour)),
			CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
		}
		if err = f.repos.Feed.CreateNotice(ctx, expired); err != nil {
			t.Fatalf("CreateNotice() failed, %v", err)
		}

		// teachers see every notice of the school, even for classes they
		// do not teach
		got, err := f.svc.QueryNotices(ctx, f.teacher1, feed.NoticeQueryFilter{})
		if err != nil {
			t.Fatalf("QueryNotices() failed, %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("QueryNotices() returned %d notices, want 2", len(got))
		}
		for _, n := range got {
			if n.ID == expired.ID {
				t.Error("QueryNotices() returned an expired notice")
			}
		}

		got, err = f.svc.QueryNotices(ctx, f.teacher1, feed.NoticeQueryFilter{IncludeExpired: true})
		if err != nil {
			t.Fatalf("QueryNotices() failed, %v", err)
		}
		if len(got) != 3 {
			t.Errorf("QueryNotices(IncludeExpired) returned %d notices, want 3", len(got))
		}

		// guardians only see notices of their linked students' classes
		got, err = f.svc.QueryNotices(ctx, f.guard2, feed.NoticeQueryFilter{})
		if err != nil {
			t.Fatalf("QueryNotices() failed, %v", err)
		}
		for _, n := range got {
			if n.ID == classNotice.ID {
				t.Error("QueryNotices() leaked a notice of an unlinked class")
			}
		}

		if _, err = f.svc.GetNotice(ctx, f.guard1, classNotice.ID); err != nil {
			t.Errorf("GetNotice() failed for the linked class, %v", err)
		}
		if _, err = f.svc.GetNotice(ctx, f.admin2, classNotice.ID); errors.Cause(err) != feed.ErrNoticeNotFound {
			t.Errorf("GetNotice() error = %v, wantErr %v", err, feed.ErrNoticeNotFound)
		}
	})
}

func TestService_React(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post, err := f.svc.CreatePost(ctx, f.teacher1, feed.NewPost{Text: "react to me"}, nil)
	if err != nil {
		t.Fatalf("CreatePost() failed, %v", err)
	}
	target := feed.Target{Kind: feed.TargetPost, ID: post.ID}

	t.Run("invalid target", func(t *testing.T) {
		_, err := f.svc.React(ctx, f.guard1, feed.Target{Kind: "banner", ID: post.ID})
		assertFieldErrors(t, err, []string{"target"})
	})

	t.Run("invisible target reports not found", func(t *testing.T) {
		_, err := f.svc.React(ctx, f.admin2, target)
		if errors.Cause(err) != feed.ErrPostNotFound {
			t.Fatalf("React() error = %v, wantErr %v", err, feed.ErrPostNotFound)
		}
	})

	t.Run("toggling keeps the count exact", func(t *testing.T) {
		reactionCount := func() int {
			t.Helper()
			p, err := f.svc.GetPost(ctx, f.admin1, post.ID)
			if err != nil {
				t.Fatalf("GetPost() failed, %v", err)
			}
			return p.ReactionCount
		}

		added, err := f.svc.React(ctx, f.guard1, target)
		if err != nil || !added {
			t.Fatalf("React() = (%v, %v), want added", added, err)
		}
		if n := reactionCount(); n != 1 {
			t.Fatalf("reaction count = %d, want 1", n)
		}

		added, err = f.svc.React(ctx, f.teacher1, target)
		if err != nil || !added {
			t.Fatalf("React() = (%v, %v), want added", added, err)
		}
		if n := reactionCount(); n != 2 {
			t.Fatalf("reaction count = %d, want 2", n)
		}

		// same user toggles off, count never drifts
		added, err = f.svc.React(ctx, f.guard1, target)
		if err != nil || added {
			t.Fatalf("React() = (%v, %v), want removed", added, err)
		}
		if n := reactionCount(); n != 1 {
			t.Fatalf("reaction count = %d, want 1", n)
		}

		added, err = f.svc.React(ctx, f.guard1, target)
		if err != nil || !added {
			t.Fatalf("React() = (%v, %v), want added back", added, err)
		}
		if n := reactionCount(); n != 2 {
			t.Fatalf("reaction count = %d, want 2", n)
		}
	})
}

func TestService_Comments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post, err := f.svc.CreatePost(ctx, f.teacher1, feed.NewPost{Text: "discuss"}, nil)
	if err != nil {
		t.Fatalf("CreatePost() failed, %v", err)
	}
	notice, err := f.svc.CreateNotice(ctx, f.admin1, feed.NewNotice{Title: "N", Text: "B"})
	if err != nil {
		t.Fatalf("CreateNotice() failed, %v", err)
	}
	target := feed.Target{Kind: feed.TargetPost, ID: post.ID}

	commentCount := func() int {
		t.Helper()
		p, err := f.svc.GetPost(ctx, f.admin1, post.ID)
		if err != nil {
			t.Fatalf("GetPost() failed, %v", err)
		}
		return p.CommentCount
	}

	t.Run("comment and reply", func(t *testing.T) {
		parent, err := f.svc.CommentOn(ctx, f.guard1, target, feed.NewComment{Text: "lovely"})
		if err != nil {
			t.Fatalf("CommentOn() failed, %v", err)
		}
		reply, err := f.svc.CommentOn(ctx, f.teacher1, target, feed.NewComment{Text: "thanks", ParentID: parent.ID})
		if err != nil {
			t.Fatalf("CommentOn() failed, %v", err)
		}
		if reply.ParentID.String != parent.ID {
			t.Errorf("CommentOn() parent = %q, want %q", reply.ParentID.String, parent.ID)
		}
		if n := commentCount(); n != 2 {
			t.Errorf("comment count = %d, want 2", n)
		}

		comments, err := f.svc.QueryComments(ctx, f.guard1, target)
		if err != nil {
			t.Fatalf("QueryComments() failed, %v", err)
		}
		if len(comments) != 2 {
			t.Errorf("QueryComments() returned %d comments, want 2", len(comments))
		}
	})

	t.Run("parent must belong to the same target", func(t *testing.T) {
		other, err := f.svc.CommentOn(ctx, f.guard1, feed.Target{Kind: feed.TargetNotice, ID: notice.ID}, feed.NewComment{Text: "noted"})
		if err != nil {
			t.Fatalf("CommentOn() failed, %v", err)
		}
		_, err = f.svc.CommentOn(ctx, f.guard1, target, feed.NewComment{Text: "reply", ParentID: other.ID})
		assertFieldErrors(t, err, []string{"parent_id"})
	})

	t.Run("invisible target reports not found", func(t *testing.T) {
		_, err := f.svc.CommentOn(ctx, f.admin2, target, feed.NewComment{Text: "spy"})
		if errors.Cause(err) != feed.ErrPostNotFound {
			t.Fatalf("CommentOn() error = %v, wantErr %v", err, feed.ErrPostNotFound)
		}
	})

	t.Run("only authors and admins delete", func(t *testing.T) {
		c, err := f.svc.CommentOn(ctx, f.guard1, target, feed.NewComment{Text: "delete me"})
		if err != nil {
			t.Fatalf("CommentOn() failed, %v", err)
		}
		if err = f.svc.DeleteComment(ctx, f.guard2, c.ID); errors.Cause(err) != core.ErrForbidden {
			t.Fatalf("DeleteComment() error = %v, wantErr %v", err, core.ErrForbidden)
		}
		if err = f.svc.DeleteComment(ctx, f.guard1, c.ID); err != nil {
			t.Fatalf("DeleteComment() by author failed, %v", err)
		}
	})

	t.Run("deleting a thread removes replies and recounts", func(t *testing.T) {
		before := commentCount()
		parent, err := f.svc.CommentOn(ctx, f.guard1, target, feed.NewComment{Text: "thread"})
		if err != nil {
			t.Fatalf("CommentOn() failed, %v", err)
		}
		if _, err = f.svc.CommentOn(ctx, f.teacher1, target, feed.NewComment{Text: "reply", ParentID: parent.ID}); err != nil {
			t.Fatalf("CommentOn() failed, %v", err)
		}
		if n := commentCount(); n != before+2 {
			t.Fatalf("comment count = %d, want %d", n, before+2)
		}

		// a school admin may moderate any comment of the school
		if err = f.svc.DeleteComment(ctx, f.admin1, parent.ID); err != nil {
			t.Fatalf("DeleteComment() by admin failed, %v", err)
		}
		if n := commentCount(); n != before {
			t.Errorf("comment count = %d, want %d after cascade", n, before)
		}
		comments, err := f.svc.QueryComments(ctx, f.admin1, target)
		if err != nil {
			t.Fatalf("QueryComments() failed, %v", err)
		}
		for _, c := range comments {
			if c.ParentID.String == parent.ID || c.ID == parent.ID {
				t.Errorf("QueryComments() still returns deleted thread comment %q", c.ID)
			}
		}
	})
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
