package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/agenda"
)

type agendaRepository struct {
	db *DB
}

func NewAgendaRepository(db *DB) agenda.Repository {
	return &agendaRepository{db: db}
}

func (repo *agendaRepository) CreateDailyLog(_ context.Context, dl agenda.DailyLog, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.dailyLogs {
		if existing.StudentID == dl.StudentID && existing.Date.Equal(dl.Date) {
			return agenda.ErrLogExists
		}
	}
	repo.db.dailyLogs[dl.ID] = &dl
	return nil
}

func (repo *agendaRepository) CreateDailyLogs(_ context.Context, dls []agenda.DailyLog) ([]agenda.DailyLog, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	created := make([]agenda.DailyLog, 0, len(dls))
	for _, dl := range dls {
		exists := false
		for _, existing := range repo.db.dailyLogs {
			if existing.StudentID == dl.StudentID && existing.Date.Equal(dl.Date) {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		dl := dl
		repo.db.dailyLogs[dl.ID] = &dl
		created = append(created, dl)
	}
	return created, nil
}

func (repo *agendaRepository) GetDailyLog(_ context.Context, id string, _ ...core.DBExecutor) (agenda.DailyLog, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if dl, ok := repo.db.dailyLogs[id]; ok {
		return *dl, nil
	}
	return agenda.DailyLog{}, agenda.ErrNotFound
}

func (repo *agendaRepository) GetDailyLogForDay(_ context.Context, studentID string, date time.Time, _ ...core.DBExecutor) (agenda.DailyLog, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, dl := range repo.db.dailyLogs {
		if dl.StudentID == studentID && dl.Date.Equal(date) {
			return *dl, nil
		}
	}
	return agenda.DailyLog{}, agenda.ErrNotFound
}

func (repo *agendaRepository) QueryDailyLogs(_ context.Context, pred access.Predicate, filter agenda.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]agenda.DailyLog, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	dls := make([]agenda.DailyLog, 0)
	for _, dl := range repo.db.dailyLogs {
		if !pred.Allows(dl.TenantID, "", dl.StudentID) {
			continue
		}
		if filter.StudentID != "" && dl.StudentID != filter.StudentID {
			continue
		}
		if !filter.DateFrom.IsZero() && dl.Date.Before(filter.DateFrom) {
			continue
		}
		if !filter.DateTo.IsZero() && dl.Date.After(filter.DateTo) {
			continue
		}
		dls = append(dls, *dl)
	}
	sort.Slice(dls, func(i, j int) bool { return dls[i].Date.After(dls[j].Date) })
	return dls, nil
}

func (repo *agendaRepository) StudentIDsWithLogOnDate(_ context.Context, studentIDs []string, date time.Time, _ ...core.DBExecutor) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		students[id] = true
	}
	ids := make([]string, 0)
	for _, dl := range repo.db.dailyLogs {
		if students[dl.StudentID] && dl.Date.Equal(date) {
			ids = append(ids, dl.StudentID)
		}
	}
	return ids, nil
}

func (repo *agendaRepository) UpdateDailyLog(_ context.Context, dl agenda.DailyLog, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.dailyLogs[dl.ID]; !ok {
		return agenda.ErrNotFound
	}
	repo.db.dailyLogs[dl.ID] = &dl
	return nil
}
