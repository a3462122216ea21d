package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/agenda"
)

type AgendaRepository struct {
	db *sqlx.DB
}

func NewAgendaRepository(db *sqlx.DB) *AgendaRepository {
	return &AgendaRepository{db: db}
}

var _ agenda.Repository = (*AgendaRepository)(nil)

const dailyLogInsert = `
	INSERT INTO daily_log (id, tenant_id, student_id, date, activities, teacher_note, created_by_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (repo *AgendaRepository) CreateDailyLog(ctx context.Context, dl agenda.DailyLog, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	_, err := e.ExecContext(ctx, e.Rebind(dailyLogInsert),
		dl.ID, dl.TenantID, dl.StudentID, dl.Date, dl.Activities, dl.TeacherNote, dl.CreatedByID, dl.CreatedAt, dl.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return agenda.ErrLogExists
		}
		return errors.Wrap(err, "inserting daily log")
	}
	return nil
}

// CreateDailyLogs batch-inserts in one transaction. ON CONFLICT DO NOTHING
// turns uniqueness races into skips; RETURNING id identifies the winners.
func (repo *AgendaRepository) CreateDailyLogs(ctx context.Context, dls []agenda.DailyLog) ([]agenda.DailyLog, error) {
	created := make([]agenda.DailyLog, 0, len(dls))
	err := atomic(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := repo.db.Rebind(dailyLogInsert + " ON CONFLICT (student_id, date) DO NOTHING RETURNING id")
		for _, dl := range dls {
			var id string
			err := tx.QueryRowContext(ctx, q,
				dl.ID, dl.TenantID, dl.StudentID, dl.Date, dl.Activities, dl.TeacherNote,
				dl.CreatedByID, dl.CreatedAt, dl.UpdatedAt).Scan(&id)
			if err == sql.ErrNoRows {
				continue // lost the (student, date) race
			}
			if err != nil {
				return errors.Wrap(err, "inserting daily log")
			}
			created = append(created, dl)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (repo *AgendaRepository) GetDailyLog(ctx context.Context, id string, exec ...core.DBExecutor) (agenda.DailyLog, error) {
	e := ext(repo.db, exec)
	var dl agenda.DailyLog
	q := e.Rebind("SELECT * FROM daily_log WHERE id = ?")
	if err := sqlx.GetContext(ctx, e, &dl, q, id); err != nil {
		if err == sql.ErrNoRows {
			return agenda.DailyLog{}, agenda.ErrNotFound
		}
		return agenda.DailyLog{}, errors.Wrap(err, "getting daily log")
	}
	return dl, nil
}

func (repo *AgendaRepository) GetDailyLogForDay(ctx context.Context, studentID string, date time.Time, exec ...core.DBExecutor) (agenda.DailyLog, error) {
	e := ext(repo.db, exec)
	var dl agenda.DailyLog
	q := e.Rebind("SELECT * FROM daily_log WHERE student_id = ? AND date = ?")
	if err := sqlx.GetContext(ctx, e, &dl, q, studentID, date); err != nil {
		if err == sql.ErrNoRows {
			return agenda.DailyLog{}, agenda.ErrNotFound
		}
		return agenda.DailyLog{}, errors.Wrap(err, "getting daily log")
	}
	return dl, nil
}

func (repo *AgendaRepository) QueryDailyLogs(ctx context.Context, pred access.Predicate, filter agenda.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]agenda.DailyLog, error) {
	e := ext(repo.db, exec)
	where, args := predicateWhere(pred, "tenant_id", "", "student_id")
	q := "SELECT * FROM daily_log WHERE " + where
	if filter.StudentID != "" {
		q += " AND student_id = ?"
		args = append(args, filter.StudentID)
	}
	if !filter.DateFrom.IsZero() {
		q += " AND date >= ?"
		args = append(args, filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		q += " AND date <= ?"
		args = append(args, filter.DateTo)
	}
	q += orderBy(ordering, "date DESC")

	var dls []agenda.DailyLog
	if err := sqlx.SelectContext(ctx, e, &dls, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying daily logs")
	}
	return dls, nil
}

func (repo *AgendaRepository) StudentIDsWithLogOnDate(ctx context.Context, studentIDs []string, date time.Time, exec ...core.DBExecutor) ([]string, error) {
	if len(studentIDs) == 0 {
		return []string{}, nil
	}
	e := ext(repo.db, exec)
	in, args := inClause("student_id", studentIDs)
	q := "SELECT student_id FROM daily_log WHERE " + in + " AND date = ?"
	args = append(args, date)

	var ids []string
	if err := sqlx.SelectContext(ctx, e, &ids, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying logged students")
	}
	return ids, nil
}

func (repo *AgendaRepository) UpdateDailyLog(ctx context.Context, dl agenda.DailyLog, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := e.Rebind("UPDATE daily_log SET activities = ?, teacher_note = ?, updated_at = ? WHERE id = ?")
	res, err := e.ExecContext(ctx, q, dl.Activities, dl.TeacherNote, dl.UpdatedAt, dl.ID)
	if err != nil {
		return errors.Wrap(err, "updating daily log")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return agenda.ErrNotFound
	}
	return nil
}
