package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/agenda"
	"github.com/trezcool/shule/core/user"
)

type agendaApi struct {
	usrSvc *user.Service
	svc    *agenda.Service
}

func registerAgendaAPI(g *echo.Group, jwt echo.MiddlewareFunc, usrSvc *user.Service, svc *agenda.Service) {
	api := agendaApi{usrSvc: usrSvc, svc: svc}

	lg := g.Group("/daily-logs", jwt)
	lg.POST("", api.create)
	lg.POST("/fan-out", api.fanOut, roleMiddleware(user.RoleTeacher))
	lg.GET("", api.query)
	lg.GET("/:id", api.retrieve)
	lg.PUT("/:id", api.update)
}

func (api *agendaApi) create(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data agenda.NewDailyLog
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDailyLog")
	}

	dl, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, dl)
}

func (api *agendaApi) fanOut(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data agenda.FanOutDailyLog
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FanOutDailyLog")
	}

	res, err := api.svc.FanOut(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *agendaApi) query(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var filter agenda.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []agenda.DailyLog{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	logs, err := api.svc.Query(ctx.Request().Context(), actor, filter, ordering.Orderings...)
	if err != nil {
		return err
	}
	if logs == nil {
		logs = []agenda.DailyLog{}
	}
	return ctx.JSON(http.StatusOK, logs)
}

func (api *agendaApi) retrieve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	dl, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, dl)
}

func (api *agendaApi) update(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data agenda.UpdateDailyLog
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDailyLog")
	}

	dl, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, dl)
}
