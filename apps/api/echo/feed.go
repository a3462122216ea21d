package echoapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/feed"
	"github.com/trezcool/shule/core/user"
)

type feedApi struct {
	usrSvc *user.Service
	svc    *feed.Service
}

func registerFeedAPI(g *echo.Group, jwt echo.MiddlewareFunc, usrSvc *user.Service, svc *feed.Service) {
	api := feedApi{usrSvc: usrSvc, svc: svc}

	pg := g.Group("/posts", jwt)
	pg.POST("", api.createPost)
	pg.GET("", api.queryPosts)
	pg.GET("/:id", api.retrievePost)
	pg.POST("/:id/react", api.reactToPost)
	pg.POST("/:id/comments", api.commentOnPost)
	pg.GET("/:id/comments", api.queryPostComments)

	ng := g.Group("/notices", jwt)
	ng.POST("", api.createNotice)
	ng.GET("", api.queryNotices)
	ng.GET("/:id", api.retrieveNotice)
	ng.POST("/:id/react", api.reactToNotice)
	ng.POST("/:id/comments", api.commentOnNotice)
	ng.GET("/:id/comments", api.queryNoticeComments)

	cg := g.Group("/comments", jwt)
	cg.DELETE("/:id", api.deleteComment)
}

// Posts

// createPost accepts either plain JSON or, when a media blob is attached,
// a multipart form with the payload fields alongside a "media" file part.
func (api *feedApi) createPost(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data feed.NewPost
	var media io.Reader

	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		ctx.Request().Body = http.MaxBytesReader(ctx.Response(), ctx.Request().Body, core.Conf.MaxUploadSize)
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NewPost")
		}
		fh, err := ctx.FormFile("media")
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "media", Error: "this file is required"})
		}
		f, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening media upload")
		}
		defer f.Close()
		media = f
		data.MediaFilename = fh.Filename
		data.MediaSize = fh.Size
	} else {
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NewPost")
		}
	}

	post, err := api.svc.CreatePost(ctx.Request().Context(), actor, data, media)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, post)
}

func (api *feedApi) queryPosts(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var filter feed.PostQueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []feed.Post{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	posts, err := api.svc.QueryPosts(ctx.Request().Context(), actor, filter, ordering.Orderings...)
	if err != nil {
		return err
	}
	if posts == nil {
		posts = []feed.Post{}
	}
	return ctx.JSON(http.StatusOK, posts)
}

func (api *feedApi) retrievePost(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	post, err := api.svc.GetPost(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, post)
}

// Notices

func (api *feedApi) createNotice(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data feed.NewNotice
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNotice")
	}

	notice, err := api.svc.CreateNotice(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, notice)
}

func (api *feedApi) queryNotices(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var filter feed.NoticeQueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []feed.Notice{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	notices, err := api.svc.QueryNotices(ctx.Request().Context(), actor, filter, ordering.Orderings...)
	if err != nil {
		return err
	}
	if notices == nil {
		notices = []feed.Notice{}
	}
	return ctx.JSON(http.StatusOK, notices)
}

func (api *feedApi) retrieveNotice(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	notice, err := api.svc.GetNotice(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, notice)
}

// Reactions & comments

func (api *feedApi) reactToPost(ctx echo.Context) error {
	return api.react(ctx, feed.Target{Kind: feed.TargetPost, ID: ctx.Param("id")})
}

func (api *feedApi) reactToNotice(ctx echo.Context) error {
	return api.react(ctx, feed.Target{Kind: feed.TargetNotice, ID: ctx.Param("id")})
}

func (api *feedApi) react(ctx echo.Context, target feed.Target) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	added, err := api.svc.React(ctx.Request().Context(), actor, target)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ReactionResponse{Added: added})
}

func (api *feedApi) commentOnPost(ctx echo.Context) error {
	return api.comment(ctx, feed.Target{Kind: feed.TargetPost, ID: ctx.Param("id")})
}

func (api *feedApi) commentOnNotice(ctx echo.Context) error {
	return api.comment(ctx, feed.Target{Kind: feed.TargetNotice, ID: ctx.Param("id")})
}

func (api *feedApi) comment(ctx echo.Context, target feed.Target) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data feed.NewComment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComment")
	}

	cmt, err := api.svc.CommentOn(ctx.Request().Context(), actor, target, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, cmt)
}

func (api *feedApi) queryPostComments(ctx echo.Context) error {
	return api.queryComments(ctx, feed.Target{Kind: feed.TargetPost, ID: ctx.Param("id")})
}

func (api *feedApi) queryNoticeComments(ctx echo.Context) error {
	return api.queryComments(ctx, feed.Target{Kind: feed.TargetNotice, ID: ctx.Param("id")})
}

func (api *feedApi) queryComments(ctx echo.Context, target feed.Target) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	comments, err := api.svc.QueryComments(ctx.Request().Context(), actor, target)
	if err != nil {
		return err
	}
	if comments == nil {
		comments = []feed.Comment{}
	}
	return ctx.JSON(http.StatusOK, comments)
}

func (api *feedApi) deleteComment(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.DeleteComment(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

type ReactionResponse struct {
	Added bool `json:"added"`
}
