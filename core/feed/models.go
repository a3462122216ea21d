package feed

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

const (
	MediaKindNone  = ""
	MediaKindPhoto = "photo"
	MediaKindVideo = "video"

	NoticePriorityLow    = "low"
	NoticePriorityNormal = "normal"
	NoticePriorityUrgent = "urgent"
)

var (
	AllNoticePriorities = []string{NoticePriorityLow, NoticePriorityNormal, NoticePriorityUrgent}

	photoExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}
	videoExtensions = []string{".mp4", ".mov", ".avi"}
)

type (
	// Post is a class or tenant-wide announcement with optional media.
	// ClassID null means tenant-wide. ReactionCount and CommentCount are
	// denormalized and recomputed on every reaction/comment write.
	Post struct {
		ID            string      `json:"id" db:"id"`
		TenantID      string      `json:"tenant_id" db:"tenant_id"`
		AuthorID      string      `json:"author_id" db:"author_id"`
		ClassID       null.String `json:"class_id" db:"class_id"`
		Text          string      `json:"text" db:"text"`
		MediaKind     string      `json:"media_kind" db:"media_kind"`
		MediaKey      string      `json:"media_key" db:"media_key"`
		ReactionCount int         `json:"reaction_count" db:"reaction_count"`
		CommentCount  int         `json:"comment_count" db:"comment_count"`
		CreatedAt     time.Time   `json:"created_at" db:"created_at"`
		UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
	}

	// Notice is a text-only announcement with a priority and optional expiry.
	Notice struct {
		ID            string      `json:"id" db:"id"`
		TenantID      string      `json:"tenant_id" db:"tenant_id"`
		AuthorID      string      `json:"author_id" db:"author_id"`
		ClassID       null.String `json:"class_id" db:"class_id"`
		Title         string      `json:"title" db:"title"`
		Text          string      `json:"text" db:"text"`
		Priority      string      `json:"priority" db:"priority"`
		ExpiresAt     null.Time   `json:"expires_at" db:"expires_at"`
		ReactionCount int         `json:"reaction_count" db:"reaction_count"`
		CommentCount  int         `json:"comment_count" db:"comment_count"`
		CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	}
)

// TargetKind discriminates what a reaction or comment attaches to.
type TargetKind string

const (
	TargetPost   TargetKind = "post"
	TargetNotice TargetKind = "notice"
)

// Target points at exactly one post or notice; the tagged kind makes the
// "exactly one of two references" rule structural.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

func (t Target) valid() bool {
	return (t.Kind == TargetPost || t.Kind == TargetNotice) && t.ID != ""
}

type (
	// Reaction is unique per (user, target).
	Reaction struct {
		ID         string     `json:"id" db:"id"`
		TenantID   string     `json:"tenant_id" db:"tenant_id"`
		UserID     string     `json:"user_id" db:"user_id"`
		TargetKind TargetKind `json:"target_kind" db:"target_kind"`
		TargetID   string     `json:"target_id" db:"target_id"`
		CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	}

	Comment struct {
		ID         string      `json:"id" db:"id"`
		TenantID   string      `json:"tenant_id" db:"tenant_id"`
		UserID     string      `json:"user_id" db:"user_id"`
		TargetKind TargetKind  `json:"target_kind" db:"target_kind"`
		TargetID   string      `json:"target_id" db:"target_id"`
		ParentID   null.String `json:"parent_id" db:"parent_id"`
		Text       string      `json:"text" db:"text"`
		CreatedAt  time.Time   `json:"created_at" db:"created_at"`
		UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
	}
)

type NewPost struct {
	Text    string `json:"text" form:"text" validate:"required,max=2000"`
	ClassID string `json:"class_id" form:"class_id"` // empty = tenant-wide

	// media, optional; filename and size come from the upload itself
	MediaKind     string `json:"media_kind" form:"media_kind" validate:"omitempty,oneof=photo video"`
	MediaFilename string `json:"-" form:"-"`
	MediaSize     int64  `json:"-" form:"-"`
}

func (np *NewPost) Validate(ctx context.Context) error {
	np.Text = core.CleanString(np.Text)
	if err := core.Validate.StructCtx(ctx, np); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	if np.MediaKind != MediaKindNone {
		if err := validateMedia(np.MediaKind, np.MediaFilename, np.MediaSize); err != nil {
			return err
		}
	}
	return nil
}

// validateMedia size- and extension-checks an attachment before it is handed
// to object storage.
func validateMedia(kind, filename string, size int64) error {
	if size > core.Conf.MaxUploadSize {
		return core.NewValidationError(nil, core.FieldError{Field: "media", Error: "file too large"})
	}
	ext := strings.ToLower(filepath.Ext(filename))
	allowed := photoExtensions
	if kind == MediaKindVideo {
		allowed = videoExtensions
	}
	for _, e := range allowed {
		if ext == e {
			return nil
		}
	}
	return core.NewValidationError(nil, core.FieldError{Field: "media", Error: "unsupported file type"})
}

type NewNotice struct {
	Title     string    `json:"title" validate:"required,max=150"`
	Text      string    `json:"text" validate:"required,max=5000"`
	Priority  string    `json:"priority" validate:"omitempty,priority"`
	ClassID   string    `json:"class_id"`
	ExpiresAt null.Time `json:"expires_at"`
}

func (nn *NewNotice) Validate(ctx context.Context) error {
	nn.Title = core.CleanString(nn.Title)
	nn.Text = core.CleanString(nn.Text)
	nn.Priority = core.CleanString(nn.Priority, true)
	if nn.Priority == "" {
		nn.Priority = NoticePriorityNormal
	}
	if err := core.Validate.StructCtx(ctx, nn); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	if nn.ExpiresAt.Valid && nn.ExpiresAt.Time.Before(time.Now().UTC()) {
		return core.NewValidationError(nil, core.FieldError{Field: "expires_at", Error: "expiry must be in the future"})
	}
	return nil
}

type NewComment struct {
	Text     string `json:"text" validate:"required,max=1000"`
	ParentID string `json:"parent_id"`
}

func (nc *NewComment) Validate(ctx context.Context) error {
	nc.Text = core.CleanString(nc.Text)
	if err := core.Validate.StructCtx(ctx, nc); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return nil
}

type PostQueryFilter struct {
	ClassID     string    `query:"class_id"`
	AuthorID    string    `query:"author_id"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

type NoticeQueryFilter struct {
	ClassID        string `query:"class_id"`
	Priority       string `query:"priority"`
	IncludeExpired bool   `query:"include_expired"`
}
