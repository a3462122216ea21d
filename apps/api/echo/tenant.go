package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/tenant"
	"github.com/trezcool/shule/core/user"
)

type tenantApi struct {
	svc *tenant.Service
}

func registerTenantAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *tenant.Service) {
	api := tenantApi{svc: svc}

	tg := g.Group("/tenants", jwt)
	tg.POST("", api.create, roleMiddleware(user.RoleSystemAdmin))
	tg.GET("", api.query)
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update, roleMiddleware(user.RoleSystemAdmin))
}

func (api *tenantApi) create(ctx echo.Context) error {
	actor := actorFromClaims(ctx)

	var data tenant.NewTenant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTenant")
	}

	t, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *tenantApi) query(ctx echo.Context) error {
	actor := actorFromClaims(ctx)

	var filter tenant.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []tenant.Tenant{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tenants, err := api.svc.Query(ctx.Request().Context(), actor, filter, ordering.Orderings...)
	if err != nil {
		return err
	}
	if tenants == nil {
		tenants = []tenant.Tenant{}
	}
	return ctx.JSON(http.StatusOK, tenants)
}

func (api *tenantApi) retrieve(ctx echo.Context) error {
	actor := actorFromClaims(ctx)

	t, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tenantApi) update(ctx echo.Context) error {
	actor := actorFromClaims(ctx)

	var data tenant.UpdateTenant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTenant")
	}

	t, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

// actorFromClaims builds a user.User from the verified token claims alone,
// for endpoints whose services only need the actor's ID, role and tenant.
func actorFromClaims(ctx echo.Context) user.User {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}
	}
	return user.User{
		ID:       claims.Subject,
		Name:     claims.Name,
		Email:    claims.Email,
		Role:     claims.Role,
		TenantID: claims.TenantID,
		IsActive: true,
	}
}
