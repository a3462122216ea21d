package feed

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/user"
)

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrNoticeNotFound  = errors.New("notice not found")
	ErrCommentNotFound = errors.New("comment not found")
)

type (
	Repository interface {
		CreatePost(ctx context.Context, p Post, exec ...core.DBExecutor) error
		GetPost(ctx context.Context, id string, exec ...core.DBExecutor) (Post, error)
		QueryPosts(ctx context.Context, pred access.Predicate, filter PostQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Post, error)

		CreateNotice(ctx context.Context, n Notice, exec ...core.DBExecutor) error
		GetNotice(ctx context.Context, id string, exec ...core.DBExecutor) (Notice, error)
		// QueryNotices excludes expired notices unless the filter says
		// otherwise.
		QueryNotices(ctx context.Context, pred access.Predicate, filter NoticeQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Notice, error)

		// ToggleReaction inserts or deletes the (user, target) reaction and
		// recomputes the target's reaction count from a fresh count query,
		// all in one transaction. It reports whether the reaction exists
		// after the call.
		ToggleReaction(ctx context.Context, r Reaction) (added bool, err error)

		// CreateComment inserts the comment and recomputes the target's
		// comment count in one transaction.
		CreateComment(ctx context.Context, c Comment) error
		GetComment(ctx context.Context, id string, exec ...core.DBExecutor) (Comment, error)
		QueryComments(ctx context.Context, target Target, exec ...core.DBExecutor) ([]Comment, error)
		// DeleteComment removes the comment and its replies and recomputes
		// the target's comment count in one transaction.
		DeleteComment(ctx context.Context, id string) error
	}

	Service struct {
		repo         Repository
		academicRepo academic.Repository
		userRepo     user.Repository
		resolver     *access.Resolver
		fileStore    core.FileStorage
		pushSvc      core.PushService
		logger       core.Logger
	}
)

func NewService(
	repo Repository,
	academicRepo academic.Repository,
	userRepo user.Repository,
	resolver *access.Resolver,
	fileStore core.FileStorage,
	pushSvc core.PushService,
	logger core.Logger,
) *Service {
	return &Service{
		repo:         repo,
		academicRepo: academicRepo,
		userRepo:     userRepo,
		resolver:     resolver,
		fileStore:    fileStore,
		pushSvc:      pushSvc,
		logger:       logger,
	}
}

func fieldErr(field string, err error) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

// --- Post ---

// CreatePost publishes a post as actor. media may be nil when the payload
// declares no attachment; it is validated and stored before the row is
// written so a failed upload never leaves a dangling key.
func (svc *Service) CreatePost(ctx context.Context, actor user.User, np NewPost, media io.Reader) (Post, error) {
	if !access.CanWrite(actor, access.KindPost) {
		return Post{}, core.ErrForbidden
	}
	if err := np.Validate(ctx); err != nil {
		return Post{}, err
	}
	tenantID, ok := access.DeriveTenant(actor, "")
	if !ok {
		return Post{}, core.ErrForbidden
	}
	if np.ClassID != "" && actor.IsTeacher() {
		reached, err := svc.resolver.TeacherReachesClass(ctx, actor.ID, np.ClassID)
		if err != nil {
			return Post{}, err
		}
		if !reached {
			return Post{}, core.ErrForbidden
		}
	}

	var mediaKey string
	if np.MediaKind != MediaKindNone && media != nil {
		key, err := svc.fileStore.Save(ctx, np.MediaFilename, media)
		if err != nil {
			return Post{}, errors.Wrap(err, "storing post media")
		}
		mediaKey = key
	}

	now := time.Now().UTC()
	p := Post{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		AuthorID:  actor.ID,
		ClassID:   null.NewString(np.ClassID, np.ClassID != ""),
		Text:      np.Text,
		MediaKind: np.MediaKind,
		MediaKey:  mediaKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := svc.repo.CreatePost(ctx, p); err != nil {
		return Post{}, errors.Wrap(err, "creating post")
	}

	go svc.notifyGuardians(p.TenantID, p.ClassID.String, "New post", p.Text, map[string]string{"kind": "post", "id": p.ID})
	return p, nil
}

func (svc *Service) QueryPosts(ctx context.Context, actor user.User, filter PostQueryFilter, ordering ...core.DBOrdering) ([]Post, error) {
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindPost)
	if err != nil {
		return nil, err
	}
	if pred.None() {
		return []Post{}, nil
	}
	return svc.repo.QueryPosts(ctx, pred, filter, ordering)
}

func (svc *Service) GetPost(ctx context.Context, actor user.User, id string) (Post, error) {
	p, err := svc.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindPost)
	if err != nil {
		return Post{}, err
	}
	if !pred.Allows(p.TenantID, p.ClassID.String, "") {
		return Post{}, ErrPostNotFound
	}
	return p, nil
}

// --- Notice ---

func (svc *Service) CreateNotice(ctx context.Context, actor user.User, nn NewNotice) (Notice, error) {
	if !access.CanWrite(actor, access.KindNotice) {
		return Notice{}, core.ErrForbidden
	}
	if err := nn.Validate(ctx); err != nil {
		return Notice{}, err
	}
	tenantID, ok := access.DeriveTenant(actor, "")
	if !ok {
		return Notice{}, core.ErrForbidden
	}
	if nn.ClassID != "" && actor.IsTeacher() {
		reached, err := svc.resolver.TeacherReachesClass(ctx, actor.ID, nn.ClassID)
		if err != nil {
			return Notice{}, err
		}
		if !reached {
			return Notice{}, core.ErrForbidden
		}
	}

	n := Notice{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		AuthorID:  actor.ID,
		ClassID:   null.NewString(nn.ClassID, nn.ClassID != ""),
		Title:     nn.Title,
		Text:      nn.Text,
		Priority:  nn.Priority,
		ExpiresAt: nn.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := svc.repo.CreateNotice(ctx, n); err != nil {
		return Notice{}, errors.Wrap(err, "creating notice")
	}

	go svc.notifyGuardians(n.TenantID, n.ClassID.String, "New notice: "+n.Title, n.Text, map[string]string{"kind": "notice", "id": n.ID})
	return n, nil
}

func (svc *Service) QueryNotices(ctx context.Context, actor user.User, filter NoticeQueryFilter, ordering ...core.DBOrdering) ([]Notice, error) {
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindNotice)
	if err != nil {
		return nil, err
	}
	if pred.None() {
		return []Notice{}, nil
	}
	return svc.repo.QueryNotices(ctx, pred, filter, ordering)
}

func (svc *Service) GetNotice(ctx context.Context, actor user.User, id string) (Notice, error) {
	n, err := svc.repo.GetNotice(ctx, id)
	if err != nil {
		return Notice{}, err
	}
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindNotice)
	if err != nil {
		return Notice{}, err
	}
	if !pred.Allows(n.TenantID, n.ClassID.String, "") {
		return Notice{}, ErrNoticeNotFound
	}
	return n, nil
}

// --- Reaction ---

// React toggles actor's reaction on the target and returns whether the
// reaction now exists. The counter is recomputed inside the repository's
// transaction so it never drifts.
func (svc *Service) React(ctx context.Context, actor user.User, target Target) (added bool, err error) {
	tenantID, err := svc.visibleTarget(ctx, actor, target)
	if err != nil {
		return false, err
	}
	r := Reaction{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		UserID:     actor.ID,
		TargetKind: target.Kind,
		TargetID:   target.ID,
		CreatedAt:  time.Now().UTC(),
	}
	added, err = svc.repo.ToggleReaction(ctx, r)
	if err != nil {
		return false, errors.Wrap(err, "toggling reaction")
	}
	return added, nil
}

// --- Comment ---

func (svc *Service) CommentOn(ctx context.Context, actor user.User, target Target, nc NewComment) (Comment, error) {
	tenantID, err := svc.visibleTarget(ctx, actor, target)
	if err != nil {
		return Comment{}, err
	}
	if err = nc.Validate(ctx); err != nil {
		return Comment{}, err
	}
	if nc.ParentID != "" {
		parent, err := svc.repo.GetComment(ctx, nc.ParentID)
		if err != nil {
			if errors.Cause(err) == ErrCommentNotFound {
				return Comment{}, fieldErr("parent_id", errors.New("unknown comment"))
			}
			return Comment{}, err
		}
		if parent.TargetKind != target.Kind || parent.TargetID != target.ID {
			return Comment{}, fieldErr("parent_id", errors.New("parent comment belongs to another target"))
		}
	}

	now := time.Now().UTC()
	c := Comment{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		UserID:     actor.ID,
		TargetKind: target.Kind,
		TargetID:   target.ID,
		ParentID:   null.NewString(nc.ParentID, nc.ParentID != ""),
		Text:       nc.Text,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err = svc.repo.CreateComment(ctx, c); err != nil {
		return Comment{}, errors.Wrap(err, "creating comment")
	}
	return c, nil
}

func (svc *Service) QueryComments(ctx context.Context, actor user.User, target Target) ([]Comment, error) {
	if _, err := svc.visibleTarget(ctx, actor, target); err != nil {
		return nil, err
	}
	return svc.repo.QueryComments(ctx, target)
}

// DeleteComment hard-deletes a comment. Authors may delete their own;
// admins may delete any comment of their school.
func (svc *Service) DeleteComment(ctx context.Context, actor user.User, id string) error {
	c, err := svc.repo.GetComment(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case c.UserID == actor.ID:
	case actor.IsSystemAdmin():
	case actor.IsSchoolAdmin() && actor.TenantID == c.TenantID:
	default:
		if _, err = svc.visibleTarget(ctx, actor, Target{Kind: c.TargetKind, ID: c.TargetID}); err != nil {
			return err
		}
		return core.ErrForbidden
	}
	return svc.repo.DeleteComment(ctx, id)
}

// visibleTarget checks the target exists within actor's scope and returns
// its tenant. Invisible targets report not-found, never forbidden.
func (svc *Service) visibleTarget(ctx context.Context, actor user.User, target Target) (tenantID string, err error) {
	if !target.valid() {
		return "", fieldErr("target", errors.New("invalid target"))
	}
	switch target.Kind {
	case TargetPost:
		p, err := svc.GetPost(ctx, actor, target.ID)
		if err != nil {
			return "", err
		}
		return p.TenantID, nil
	default:
		n, err := svc.GetNotice(ctx, actor, target.ID)
		if err != nil {
			return "", err
		}
		return n.TenantID, nil
	}
}

// notifyGuardians pushes a best-effort notification after a post or notice
// committed. Class-scoped content goes to the guardians of that class's
// students; tenant-wide content goes to every guardian of the school.
func (svc *Service) notifyGuardians(tenantID, classID, title, body string, data map[string]string) {
	if svc.pushSvc == nil {
		return
	}
	ctx := context.Background()

	var guardianIDs []string
	var err error
	if classID != "" {
		var studentIDs []string
		if studentIDs, err = svc.academicRepo.StudentIDsOfClasses(ctx, []string{classID}); err == nil {
			guardianIDs, err = svc.academicRepo.GuardianIDsOfStudents(ctx, studentIDs)
		}
	} else {
		var guardians []user.User
		guardians, err = svc.userRepo.QueryUsers(ctx, &user.QueryFilter{Role: user.RoleGuardian, TenantID: tenantID}, nil)
		for _, g := range guardians {
			guardianIDs = append(guardianIDs, g.ID)
		}
	}
	if err != nil {
		svc.logger.Error("resolving guardians for push", err)
		return
	}

	tokens, err := svc.userRepo.DeviceTokensByUserIDs(ctx, guardianIDs)
	if err != nil {
		svc.logger.Error("fetching device tokens for push", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	msgs := make([]*core.PushMessage, 0, len(tokens))
	for _, tok := range tokens {
		msgs = append(msgs, &core.PushMessage{Token: tok.Token, Title: title, Body: body, Data: data})
	}
	svc.pushSvc.SendMessages(msgs...)
}
