package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/user"
)

type academicApi struct {
	usrSvc *user.Service
	svc    *academic.Service
}

func registerAcademicAPI(g *echo.Group, jwt echo.MiddlewareFunc, usrSvc *user.Service, svc *academic.Service) {
	api := academicApi{usrSvc: usrSvc, svc: svc}

	cg := g.Group("/classes", jwt)
	cg.POST("", api.createClass)
	cg.GET("", api.queryClasses)
	cg.GET("/:id", api.retrieveClass)
	cg.PUT("/:id", api.updateClass)

	sg := g.Group("/subjects", jwt)
	sg.POST("", api.createSubject)
	sg.GET("", api.querySubjects)

	stg := g.Group("/students", jwt)
	stg.POST("", api.createStudent, adminMiddleware())
	stg.GET("", api.queryStudents)
	stg.GET("/:id", api.retrieveStudent)
	stg.PUT("/:id", api.updateStudent, adminMiddleware())

	tag := g.Group("/assignments", jwt)
	tag.POST("", api.assignTeacher, adminMiddleware())
	tag.GET("", api.queryAssignments)
	tag.DELETE("/:id", api.unassignTeacher, adminMiddleware())

	glg := g.Group("/guardian-links", jwt)
	glg.POST("", api.linkGuardian, adminMiddleware())
	glg.GET("", api.queryGuardianLinks)
	glg.DELETE("/:id", api.unlinkGuardian, adminMiddleware())
}

// Classes

func (api *academicApi) createClass(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data academic.NewClassGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClassGroup")
	}

	cls, err := api.svc.CreateClassGroup(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *academicApi) queryClasses(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var filter academic.ClassGroupQueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.ClassGroup{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	classes, err := api.svc.QueryClassGroups(ctx.Request().Context(), actor, filter, ordering.Orderings...)
	if err != nil {
		return err
	}
	if classes == nil {
		classes = []academic.ClassGroup{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *academicApi) retrieveClass(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cls, err := api.svc.GetClassGroup(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *academicApi) updateClass(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data academic.UpdateClassGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClassGroup")
	}

	cls, err := api.svc.UpdateClassGroup(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cls)
}

// Subjects

func (api *academicApi) createSubject(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data academic.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}

	subj, err := api.svc.CreateSubject(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, subj)
}

func (api *academicApi) querySubjects(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	subjects, err := api.svc.QuerySubjects(ctx.Request().Context(), actor)
	if err != nil {
		return err
	}
	if subjects == nil {
		subjects = []academic.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

// Students

func (api *academicApi) createStudent(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data academic.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}

	std, err := api.svc.CreateStudent(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *academicApi) queryStudents(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var filter academic.StudentQueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.Student{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.QueryStudents(ctx.Request().Context(), actor, filter, ordering.Orderings...)
	if err != nil {
		return err
	}
	if students == nil {
		students = []academic.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *academicApi) retrieveStudent(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	std, err := api.svc.GetStudent(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *academicApi) updateStudent(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data academic.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}

	std, err := api.svc.UpdateStudent(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

// Teacher assignments

func (api *academicApi) assignTeacher(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data academic.NewTeacherAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacherAssignment")
	}

	ta, err := api.svc.AssignTeacher(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, ta)
}

func (api *academicApi) queryAssignments(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	assignments, err := api.svc.QueryTeacherAssignments(ctx.Request().Context(), actor)
	if err != nil {
		return err
	}
	if assignments == nil {
		assignments = []academic.TeacherAssignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *academicApi) unassignTeacher(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.UnassignTeacher(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Guardian links

func (api *academicApi) linkGuardian(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data academic.NewGuardianLink
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGuardianLink")
	}

	gl, err := api.svc.LinkGuardian(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, gl)
}

func (api *academicApi) queryGuardianLinks(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	links, err := api.svc.QueryGuardianLinks(ctx.Request().Context(), actor)
	if err != nil {
		return err
	}
	if links == nil {
		links = []academic.GuardianLink{}
	}
	return ctx.JSON(http.StatusOK, links)
}

func (api *academicApi) unlinkGuardian(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.UnlinkGuardian(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
