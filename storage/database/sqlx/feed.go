package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/feed"
)

type FeedRepository struct {
	db *sqlx.DB
}

func NewFeedRepository(db *sqlx.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

var _ feed.Repository = (*FeedRepository)(nil)

func targetTable(kind feed.TargetKind) string {
	if kind == feed.TargetNotice {
		return "notice"
	}
	return "post"
}

// --- Post ---

func (repo *FeedRepository) CreatePost(ctx context.Context, p feed.Post, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := e.Rebind(`
		INSERT INTO post (id, tenant_id, author_id, class_id, text, media_kind, media_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := e.ExecContext(ctx, q,
		p.ID, p.TenantID, p.AuthorID, p.ClassID, p.Text, p.MediaKind, p.MediaKey, p.CreatedAt, p.UpdatedAt)
	return errors.Wrap(err, "inserting post")
}

func (repo *FeedRepository) GetPost(ctx context.Context, id string, exec ...core.DBExecutor) (feed.Post, error) {
	e := ext(repo.db, exec)
	var p feed.Post
	q := e.Rebind("SELECT * FROM post WHERE id = ?")
	if err := sqlx.GetContext(ctx, e, &p, q, id); err != nil {
		if err == sql.ErrNoRows {
			return feed.Post{}, feed.ErrPostNotFound
		}
		return feed.Post{}, errors.Wrap(err, "getting post")
	}
	return p, nil
}

func (repo *FeedRepository) QueryPosts(ctx context.Context, pred access.Predicate, filter feed.PostQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]feed.Post, error) {
	e := ext(repo.db, exec)
	where, args := predicateWhere(pred, "tenant_id", "class_id", "")
	q := "SELECT * FROM post WHERE " + where
	if filter.ClassID != "" {
		q += " AND class_id = ?"
		args = append(args, filter.ClassID)
	}
	if filter.AuthorID != "" {
		q += " AND author_id = ?"
		args = append(args, filter.AuthorID)
	}
	if !filter.CreatedFrom.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		q += " AND created_at <= ?"
		args = append(args, filter.CreatedTo)
	}
	q += orderBy(ordering, "created_at DESC")

	var posts []feed.Post
	if err := sqlx.SelectContext(ctx, e, &posts, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying posts")
	}
	return posts, nil
}

// --- Notice ---

func (repo *FeedRepository) CreateNotice(ctx context.Context, n feed.Notice, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := e.Rebind(`
		INSERT INTO notice (id, tenant_id, author_id, class_id, title, text, priority, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := e.ExecContext(ctx, q,
		n.ID, n.TenantID, n.AuthorID, n.ClassID, n.Title, n.Text, n.Priority, n.ExpiresAt, n.CreatedAt)
	return errors.Wrap(err, "inserting notice")
}

func (repo *FeedRepository) GetNotice(ctx context.Context, id string, exec ...core.DBExecutor) (feed.Notice, error) {
	e := ext(repo.db, exec)
	var n feed.Notice
	q := e.Rebind("SELECT * FROM notice WHERE id = ?")
	if err := sqlx.GetContext(ctx, e, &n, q, id); err != nil {
		if err == sql.ErrNoRows {
			return feed.Notice{}, feed.ErrNoticeNotFound
		}
		return feed.Notice{}, errors.Wrap(err, "getting notice")
	}
	return n, nil
}

func (repo *FeedRepository) QueryNotices(ctx context.Context, pred access.Predicate, filter feed.NoticeQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]feed.Notice, error) {
	e := ext(repo.db, exec)
	where, args := predicateWhere(pred, "tenant_id", "class_id", "")
	q := "SELECT * FROM notice WHERE " + where
	if !filter.IncludeExpired {
		q += " AND (expires_at IS NULL OR expires_at > ?)"
		args = append(args, time.Now().UTC())
	}
	if filter.ClassID != "" {
		q += " AND class_id = ?"
		args = append(args, filter.ClassID)
	}
	if filter.Priority != "" {
		q += " AND priority = ?"
		args = append(args, filter.Priority)
	}
	q += orderBy(ordering, "created_at DESC")

	var notices []feed.Notice
	if err := sqlx.SelectContext(ctx, e, &notices, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying notices")
	}
	return notices, nil
}

// --- Reaction ---

// ToggleReaction flips the (user, target) reaction and recomputes the
// target's counter from a fresh COUNT in the same transaction. Recomputing
// rather than incrementing self-heals any drift and stays correct under
// concurrent toggles on the same target.
func (repo *FeedRepository) ToggleReaction(ctx context.Context, r feed.Reaction) (added bool, err error) {
	err = atomic(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := repo.db.Rebind("DELETE FROM reaction WHERE user_id = ? AND target_kind = ? AND target_id = ?")
		res, err := tx.ExecContext(ctx, q, r.UserID, r.TargetKind, r.TargetID)
		if err != nil {
			return errors.Wrap(err, "deleting reaction")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			q = repo.db.Rebind(`
				INSERT INTO reaction (id, tenant_id, user_id, target_kind, target_id, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`)
			if _, err = tx.ExecContext(ctx, q, r.ID, r.TenantID, r.UserID, r.TargetKind, r.TargetID, r.CreatedAt); err != nil {
				if isUniqueViolation(err) {
					// concurrent toggle won; counter still gets recomputed
					return nil
				}
				return errors.Wrap(err, "inserting reaction")
			}
			added = true
		}
		return repo.recountReactions(ctx, tx, r.TargetKind, r.TargetID)
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

func (repo *FeedRepository) recountReactions(ctx context.Context, tx *sqlx.Tx, kind feed.TargetKind, targetID string) error {
	q := repo.db.Rebind(`
		UPDATE ` + targetTable(kind) + ` SET reaction_count =
			(SELECT COUNT(*) FROM reaction WHERE target_kind = ? AND target_id = ?)
		WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, q, kind, targetID, targetID); err != nil {
		return errors.Wrap(err, "recounting reactions")
	}
	return nil
}

func (repo *FeedRepository) recountComments(ctx context.Context, tx *sqlx.Tx, kind feed.TargetKind, targetID string) error {
	q := repo.db.Rebind(`
		UPDATE ` + targetTable(kind) + ` SET comment_count =
			(SELECT COUNT(*) FROM comment WHERE target_kind = ? AND target_id = ?)
		WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, q, kind, targetID, targetID); err != nil {
		return errors.Wrap(err, "recounting comments")
	}
	return nil
}

// --- Comment ---

func (repo *FeedRepository) CreateComment(ctx context.Context, c feed.Comment) error {
	return atomic(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := repo.db.Rebind(`
			INSERT INTO comment (id, tenant_id, user_id, target_kind, target_id, parent_id, text, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(ctx, q,
			c.ID, c.TenantID, c.UserID, c.TargetKind, c.TargetID, c.ParentID, c.Text, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, "inserting comment")
		}
		return repo.recountComments(ctx, tx, c.TargetKind, c.TargetID)
	})
}

func (repo *FeedRepository) GetComment(ctx context.Context, id string, exec ...core.DBExecutor) (feed.Comment, error) {
	e := ext(repo.db, exec)
	var c feed.Comment
	q := e.Rebind("SELECT * FROM comment WHERE id = ?")
	if err := sqlx.GetContext(ctx, e, &c, q, id); err != nil {
		if err == sql.ErrNoRows {
			return feed.Comment{}, feed.ErrCommentNotFound
		}
		return feed.Comment{}, errors.Wrap(err, "getting comment")
	}
	return c, nil
}

func (repo *FeedRepository) QueryComments(ctx context.Context, target feed.Target, exec ...core.DBExecutor) ([]feed.Comment, error) {
	e := ext(repo.db, exec)
	q := e.Rebind("SELECT * FROM comment WHERE target_kind = ? AND target_id = ? ORDER BY created_at ASC")

	var comments []feed.Comment
	if err := sqlx.SelectContext(ctx, e, &comments, q, target.Kind, target.ID); err != nil {
		return nil, errors.Wrap(err, "querying comments")
	}
	return comments, nil
}

func (repo *FeedRepository) DeleteComment(ctx context.Context, id string) error {
	return atomic(ctx, repo.db, func(tx *sqlx.Tx) error {
		c, err := repo.GetComment(ctx, id, tx)
		if err != nil {
			return err
		}
		// replies cascade at the store level
		q := repo.db.Rebind("DELETE FROM comment WHERE id = ?")
		if _, err = tx.ExecContext(ctx, q, id); err != nil {
			return errors.Wrap(err, "deleting comment")
		}
		return repo.recountComments(ctx, tx, c.TargetKind, c.TargetID)
	})
}
