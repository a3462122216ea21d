package agenda

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/user"
)

var (
	ErrNotFound = errors.New("daily log not found")
	// ErrLogExists surfaces as a Conflict: the (student, date) pair already
	// has a log.
	ErrLogExists = errors.New("a log already exists for this student and date")
	// ErrNothingToDo means a fan-out found no student left to log.
	ErrNothingToDo = errors.New("all students already have a log for this date")
)

type (
	Repository interface {
		CreateDailyLog(ctx context.Context, dl DailyLog, exec ...core.DBExecutor) error
		// CreateDailyLogs inserts the batch in one transaction, skipping rows
		// that lose a (student, date) uniqueness race, and returns the rows
		// actually created.
		CreateDailyLogs(ctx context.Context, dls []DailyLog) ([]DailyLog, error)
		GetDailyLog(ctx context.Context, id string, exec ...core.DBExecutor) (DailyLog, error)
		// GetDailyLogForDay looks up the unique (student, date) row.
		GetDailyLogForDay(ctx context.Context, studentID string, date time.Time, exec ...core.DBExecutor) (DailyLog, error)
		QueryDailyLogs(ctx context.Context, pred access.Predicate, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]DailyLog, error)
		// StudentIDsWithLogOnDate returns the subset of studentIDs that
		// already have a log for date, in one query.
		StudentIDsWithLogOnDate(ctx context.Context, studentIDs []string, date time.Time, exec ...core.DBExecutor) ([]string, error)
		UpdateDailyLog(ctx context.Context, dl DailyLog, exec ...core.DBExecutor) error
	}

	Service struct {
		repo         Repository
		academicRepo academic.Repository
		userRepo     user.Repository
		resolver     *access.Resolver
		pushSvc      core.PushService
		logger       core.Logger
	}
)

func NewService(
	repo Repository,
	academicRepo academic.Repository,
	userRepo user.Repository,
	resolver *access.Resolver,
	pushSvc core.PushService,
	logger core.Logger,
) *Service {
	return &Service{
		repo:         repo,
		academicRepo: academicRepo,
		userRepo:     userRepo,
		resolver:     resolver,
		pushSvc:      pushSvc,
		logger:       logger,
	}
}

// Create writes a new log for one student.
// Guard order: role, tenant derivation from the student, teacher-reaches-class,
// (student, date) uniqueness, then payload shape via NewDailyLog.Validate.
func (svc *Service) Create(ctx context.Context, actor user.User, nl NewDailyLog) (DailyLog, error) {
	if !access.CanWrite(actor, access.KindDailyLog) {
		return DailyLog{}, core.ErrForbidden
	}

	s, err := svc.visibleStudent(ctx, actor, nl.StudentID, "student_id")
	if err != nil {
		return DailyLog{}, err
	}
	if nl.TenantID != "" && nl.TenantID != s.TenantID {
		return DailyLog{}, fieldErr("tenant_id", errors.New("school does not match the student's"))
	}
	if actor.IsTeacher() {
		ok, err := svc.resolver.TeacherReachesClass(ctx, actor.ID, s.ClassID.String)
		if err != nil {
			return DailyLog{}, err
		}
		if !ok {
			return DailyLog{}, core.ErrForbidden
		}
	}

	if err = nl.Validate(ctx); err != nil {
		return DailyLog{}, err
	}
	if _, err = svc.repo.GetDailyLogForDay(ctx, s.ID, nl.Date); err == nil {
		return DailyLog{}, ErrLogExists
	} else if errors.Cause(err) != ErrNotFound {
		return DailyLog{}, err
	}

	now := time.Now().UTC()
	dl := DailyLog{
		ID:          uuid.New().String(),
		TenantID:    s.TenantID,
		StudentID:   s.ID,
		Date:        nl.Date,
		Activities:  nl.Activities,
		TeacherNote: nl.TeacherNote,
		CreatedByID: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = svc.repo.CreateDailyLog(ctx, dl); err != nil {
		return DailyLog{}, errors.Wrap(err, "creating daily log")
	}

	go svc.notifyGuardians([]DailyLog{dl})
	return dl, nil
}

// Update edits an existing log. The relationship check uses the stored row's
// student so access cannot be moved by relinking the payload.
func (svc *Service) Update(ctx context.Context, actor user.User, id string, ul UpdateDailyLog) (DailyLog, error) {
	if !access.CanWrite(actor, access.KindDailyLog) {
		return DailyLog{}, core.ErrForbidden
	}
	dl, err := svc.Get(ctx, actor, id)
	if err != nil {
		return DailyLog{}, err
	}
	if actor.IsTeacher() {
		s, err := svc.academicRepo.GetStudent(ctx, dl.StudentID)
		if err != nil {
			return DailyLog{}, err
		}
		ok, err := svc.resolver.TeacherReachesClass(ctx, actor.ID, s.ClassID.String)
		if err != nil {
			return DailyLog{}, err
		}
		if !ok {
			return DailyLog{}, core.ErrForbidden
		}
	}
	if err = ul.Validate(ctx); err != nil {
		return DailyLog{}, err
	}

	if ul.Activities != nil {
		dl.Activities = ul.Activities
	}
	if ul.TeacherNote != nil {
		dl.TeacherNote = *ul.TeacherNote
	}
	dl.UpdatedAt = time.Now().UTC()
	if err = svc.repo.UpdateDailyLog(ctx, dl); err != nil {
		return DailyLog{}, errors.Wrap(err, "updating daily log")
	}
	return dl, nil
}

// FanOut creates one log per student the teacher reaches, sharing the same
// payload. Students that already have a log for the date are skipped and
// reported; when nobody is left it fails with ErrNothingToDo rather than
// silently doing nothing. A student created concurrently by another writer
// loses the uniqueness race in the batch insert and joins the skipped set,
// never failing the whole batch.
func (svc *Service) FanOut(ctx context.Context, actor user.User, fl FanOutDailyLog) (FanOutResult, error) {
	if !actor.IsTeacher() {
		return FanOutResult{}, core.ErrForbidden
	}
	if err := fl.Validate(ctx); err != nil {
		return FanOutResult{}, err
	}

	classIDs, err := svc.academicRepo.AssignedClassIDs(ctx, actor.ID)
	if err != nil {
		return FanOutResult{}, errors.Wrap(err, "resolving assigned classes")
	}
	studentIDs, err := svc.academicRepo.StudentIDsOfClasses(ctx, classIDs)
	if err != nil {
		return FanOutResult{}, errors.Wrap(err, "resolving students of classes")
	}
	if len(studentIDs) == 0 {
		return FanOutResult{}, ErrNothingToDo
	}

	logged, err := svc.repo.StudentIDsWithLogOnDate(ctx, studentIDs, fl.Date)
	if err != nil {
		return FanOutResult{}, err
	}
	loggedSet := make(map[string]bool, len(logged))
	for _, id := range logged {
		loggedSet[id] = true
	}

	now := time.Now().UTC()
	var dls []DailyLog
	for _, sid := range studentIDs {
		if loggedSet[sid] {
			continue
		}
		dls = append(dls, DailyLog{
			ID:          uuid.New().String(),
			TenantID:    actor.TenantID,
			StudentID:   sid,
			Date:        fl.Date,
			Activities:  fl.Activities,
			TeacherNote: fl.TeacherNote,
			CreatedByID: actor.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if len(dls) == 0 {
		return FanOutResult{}, ErrNothingToDo
	}

	created, err := svc.repo.CreateDailyLogs(ctx, dls)
	if err != nil {
		return FanOutResult{}, errors.Wrap(err, "creating daily logs")
	}
	createdSet := make(map[string]bool, len(created))
	for _, dl := range created {
		createdSet[dl.StudentID] = true
	}
	skipped := make([]string, 0, len(studentIDs)-len(created))
	for _, sid := range studentIDs {
		if !createdSet[sid] {
			skipped = append(skipped, sid)
		}
	}

	go svc.notifyGuardians(created)
	return FanOutResult{Created: created, SkippedStudentIDs: skipped}, nil
}

func (svc *Service) Query(ctx context.Context, actor user.User, filter QueryFilter, ordering ...core.DBOrdering) ([]DailyLog, error) {
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindDailyLog)
	if err != nil {
		return nil, err
	}
	if pred.None() {
		return []DailyLog{}, nil
	}
	if !filter.DateFrom.IsZero() {
		filter.DateFrom = Day(filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		filter.DateTo = Day(filter.DateTo)
	}
	return svc.repo.QueryDailyLogs(ctx, pred, filter, ordering)
}

func (svc *Service) Get(ctx context.Context, actor user.User, id string) (DailyLog, error) {
	dl, err := svc.repo.GetDailyLog(ctx, id)
	if err != nil {
		return DailyLog{}, err
	}
	pred, err := svc.resolver.Resolve(ctx, actor, access.KindDailyLog)
	if err != nil {
		return DailyLog{}, err
	}
	if !pred.Allows(dl.TenantID, "", dl.StudentID) {
		return DailyLog{}, ErrNotFound
	}
	return dl, nil
}

// visibleStudent fetches the student through the actor's scope; ids of other
// tenants surface as a plain field error so existence never leaks.
func (svc *Service) visibleStudent(ctx context.Context, actor user.User, id, field string) (academic.Student, error) {
	s, err := svc.academicRepo.GetStudent(ctx, id)
	if err != nil {
		if errors.Cause(err) == academic.ErrNotFound {
			return academic.Student{}, fieldErr(field, errors.New("unknown student"))
		}
		return academic.Student{}, err
	}
	tenantID, ok := access.DeriveTenant(actor, s.TenantID)
	if !ok || tenantID != s.TenantID {
		return academic.Student{}, fieldErr(field, errors.New("unknown student"))
	}
	return s, nil
}

// notifyGuardians pushes a best-effort notification to the guardians of the
// students involved, strictly after the write committed. Failures are logged
// and never propagate.
func (svc *Service) notifyGuardians(dls []DailyLog) {
	if len(dls) == 0 || svc.pushSvc == nil {
		return
	}
	ctx := context.Background()

	studentIDs := make([]string, 0, len(dls))
	for _, dl := range dls {
		studentIDs = append(studentIDs, dl.StudentID)
	}
	guardianIDs, err := svc.academicRepo.GuardianIDsOfStudents(ctx, studentIDs)
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

	date := dls[0].Date.Format("2006-01-02")
	msgs := make([]*core.PushMessage, 0, len(tokens))
	for _, tok := range tokens {
		msgs = append(msgs, &core.PushMessage{
			Token: tok.Token,
			Title: "New daily log",
			Body:  "A new daily log was added for " + date + ".",
			Data:  map[string]string{"kind": "dailylog", "date": date},
		})
	}
	svc.pushSvc.SendMessages(msgs...)
}

func fieldErr(field string, err error) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}
