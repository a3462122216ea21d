package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/feed"
)

type feedRepository struct {
	db *DB
}

func NewFeedRepository(db *DB) feed.Repository {
	return &feedRepository{db: db}
}

func (repo *feedRepository) CreatePost(_ context.Context, p feed.Post, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.posts[p.ID] = &p
	return nil
}

func (repo *feedRepository) GetPost(_ context.Context, id string, _ ...core.DBExecutor) (feed.Post, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.posts[id]; ok {
		return *p, nil
	}
	return feed.Post{}, feed.ErrPostNotFound
}

func (repo *feedRepository) QueryPosts(_ context.Context, pred access.Predicate, filter feed.PostQueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]feed.Post, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	posts := make([]feed.Post, 0)
	for _, p := range repo.db.posts {
		if !pred.Allows(p.TenantID, p.ClassID.String, "") {
			continue
		}
		if filter.ClassID != "" && p.ClassID.String != filter.ClassID {
			continue
		}
		if filter.AuthorID != "" && p.AuthorID != filter.AuthorID {
			continue
		}
		if !filter.CreatedFrom.IsZero() && p.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && p.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		posts = append(posts, *p)
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	return posts, nil
}

func (repo *feedRepository) CreateNotice(_ context.Context, n feed.Notice, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.notices[n.ID] = &n
	return nil
}

func (repo *feedRepository) GetNotice(_ context.Context, id string, _ ...core.DBExecutor) (feed.Notice, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if n, ok := repo.db.notices[id]; ok {
		return *n, nil
	}
	return feed.Notice{}, feed.ErrNoticeNotFound
}

func (repo *feedRepository) QueryNotices(_ context.Context, pred access.Predicate, filter feed.NoticeQueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]feed.Notice, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	now := time.Now().UTC()
	notices := make([]feed.Notice, 0)
	for _, n := range repo.db.notices {
		if !pred.Allows(n.TenantID, n.ClassID.String, "") {
			continue
		}
		if !filter.IncludeExpired && n.ExpiresAt.Valid && !n.ExpiresAt.Time.After(now) {
			continue
		}
		if filter.ClassID != "" && n.ClassID.String != filter.ClassID {
			continue
		}
		if filter.Priority != "" && n.Priority != filter.Priority {
			continue
		}
		notices = append(notices, *n)
	}
	sort.Slice(notices, func(i, j int) bool { return notices[i].CreatedAt.After(notices[j].CreatedAt) })
	return notices, nil
}

func (repo *feedRepository) ToggleReaction(_ context.Context, r feed.Reaction) (added bool, err error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, existing := range repo.db.reactions {
		if existing.UserID == r.UserID && existing.TargetKind == r.TargetKind && existing.TargetID == r.TargetID {
			delete(repo.db.reactions, id)
			repo.recountReactions(r.TargetKind, r.TargetID)
			return false, nil
		}
	}
	repo.db.reactions[r.ID] = &r
	repo.recountReactions(r.TargetKind, r.TargetID)
	return true, nil
}

// recountReactions mirrors the SQL recompute-from-count. Caller holds the
// write lock.
func (repo *feedRepository) recountReactions(kind feed.TargetKind, targetID string) {
	count := 0
	for _, r := range repo.db.reactions {
		if r.TargetKind == kind && r.TargetID == targetID {
			count++
		}
	}
	repo.setCounts(kind, targetID, &count, nil)
}

func (repo *feedRepository) recountComments(kind feed.TargetKind, targetID string) {
	count := 0
	for _, c := range repo.db.comments {
		if c.TargetKind == kind && c.TargetID == targetID {
			count++
		}
	}
	repo.setCounts(kind, targetID, nil, &count)
}

func (repo *feedRepository) setCounts(kind feed.TargetKind, targetID string, reactions, comments *int) {
	switch kind {
	case feed.TargetPost:
		if p, ok := repo.db.posts[targetID]; ok {
			if reactions != nil {
				p.ReactionCount = *reactions
			}
			if comments != nil {
				p.CommentCount = *comments
			}
		}
	case feed.TargetNotice:
		if n, ok := repo.db.notices[targetID]; ok {
			if reactions != nil {
				n.ReactionCount = *reactions
			}
			if comments != nil {
				n.CommentCount = *comments
			}
		}
	}
}

func (repo *feedRepository) CreateComment(_ context.Context, c feed.Comment) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.comments[c.ID] = &c
	repo.recountComments(c.TargetKind, c.TargetID)
	return nil
}

func (repo *feedRepository) GetComment(_ context.Context, id string, _ ...core.DBExecutor) (feed.Comment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.comments[id]; ok {
		return *c, nil
	}
	return feed.Comment{}, feed.ErrCommentNotFound
}

func (repo *feedRepository) QueryComments(_ context.Context, target feed.Target, _ ...core.DBExecutor) ([]feed.Comment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	comments := make([]feed.Comment, 0)
	for _, c := range repo.db.comments {
		if c.TargetKind == target.Kind && c.TargetID == target.ID {
			comments = append(comments, *c)
		}
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].CreatedAt.Before(comments[j].CreatedAt) })
	return comments, nil
}

func (repo *feedRepository) DeleteComment(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c, ok := repo.db.comments[id]
	if !ok {
		return feed.ErrCommentNotFound
	}
	repo.deleteCommentTree(id)
	repo.recountComments(c.TargetKind, c.TargetID)
	return nil
}

// deleteCommentTree removes the comment and its replies, matching the SQL
// cascade.
func (repo *feedRepository) deleteCommentTree(id string) {
	delete(repo.db.comments, id)
	for childID, c := range repo.db.comments {
		if c.ParentID.String == id {
			repo.deleteCommentTree(childID)
		}
	}
}
