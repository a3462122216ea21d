package agenda

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

const (
	CategoryMeal     = "meal"
	CategoryNap      = "nap"
	CategoryHygiene  = "hygiene"
	CategoryActivity = "activity"
	CategoryMood     = "mood"
	CategoryOther    = "other"
)

// Activity is one entry of a day log. Time is a wall-clock "HH:MM".
type Activity struct {
	Category string `json:"category" validate:"required,max=30"`
	Time     string `json:"time" validate:"required,timehhmm"`
	Note     string `json:"note" validate:"max=500"`
}

// Activities is stored as a single JSON column.
type Activities []Activity

func (a Activities) Value() (driver.Value, error) {
	if a == nil {
		a = Activities{}
	}
	return json.Marshal(a)
}

func (a *Activities) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.Errorf("unsupported activities column type %T", src)
	}
	return json.Unmarshal(b, a)
}

// DailyLog is one student's record for one calendar day. Unique per
// (student, date); the tenant is derived from the student at write time.
type DailyLog struct {
	ID          string     `json:"id" db:"id"`
	TenantID    string     `json:"tenant_id" db:"tenant_id"`
	StudentID   string     `json:"student_id" db:"student_id"`
	Date        time.Time  `json:"date" db:"date"`
	Activities  Activities `json:"activities" db:"activities"`
	TeacherNote string     `json:"teacher_note" db:"teacher_note"`
	CreatedByID string     `json:"created_by_id" db:"created_by_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Day truncates t to UTC midnight. All log dates are stored this way so the
// (student, date) uniqueness check never splits on time-of-day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type NewDailyLog struct {
	StudentID   string     `json:"student_id" validate:"required"`
	Date        time.Time  `json:"date" validate:"required"`
	Activities  []Activity `json:"activities" validate:"required,min=1,dive"`
	TeacherNote string     `json:"teacher_note" validate:"max=1000"`
	TenantID    string     `json:"tenant_id"` // platform admins only
}

func (nl *NewDailyLog) Validate(ctx context.Context) error {
	nl.TeacherNote = core.CleanString(nl.TeacherNote)
	if err := core.Validate.StructCtx(ctx, nl); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	nl.Date = Day(nl.Date)
	if nl.Date.After(Day(time.Now())) {
		return core.NewValidationError(nil, core.FieldError{Field: "date", Error: "date must not be in the future"})
	}
	return nil
}

type UpdateDailyLog struct {
	Activities  []Activity `json:"activities" validate:"omitempty,min=1,dive"`
	TeacherNote *string    `json:"teacher_note" validate:"omitempty,max=1000"`
}

func (ul *UpdateDailyLog) Validate(ctx context.Context) error {
	if ul.TeacherNote != nil {
		clean := core.CleanString(*ul.TeacherNote)
		ul.TeacherNote = &clean
	}
	if err := core.Validate.StructCtx(ctx, ul); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return nil
}

// FanOutDailyLog is the shared payload applied to every student of the
// teacher during a bulk create.
type FanOutDailyLog struct {
	Date        time.Time  `json:"date" validate:"required"`
	Activities  []Activity `json:"activities" validate:"required,min=1,dive"`
	TeacherNote string     `json:"teacher_note" validate:"max=1000"`
}

func (fl *FanOutDailyLog) Validate(ctx context.Context) error {
	fl.TeacherNote = core.CleanString(fl.TeacherNote)
	if err := core.Validate.StructCtx(ctx, fl); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	fl.Date = Day(fl.Date)
	if fl.Date.After(Day(time.Now())) {
		return core.NewValidationError(nil, core.FieldError{Field: "date", Error: "date must not be in the future"})
	}
	return nil
}

// FanOutResult reports the full outcome of a bulk create. Skipped students
// already had a log for the date.
type FanOutResult struct {
	Created           []DailyLog `json:"created"`
	SkippedStudentIDs []string   `json:"skipped_student_ids"`
}

type QueryFilter struct {
	StudentID string    `query:"student_id"`
	DateFrom  time.Time `query:"date_from"`
	DateTo    time.Time `query:"date_to"`
}
