package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/access"
)

type academicRepository struct {
	db *DB
}

func NewAcademicRepository(db *DB) academic.Repository {
	return &academicRepository{db: db}
}

// --- relationship graph ---

func (repo *academicRepository) AssignedClassIDs(_ context.Context, teacherID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, cg := range repo.db.classes {
		if cg.LeadTeacherID.String == teacherID && !seen[cg.ID] {
			seen[cg.ID] = true
			ids = append(ids, cg.ID)
		}
	}
	for _, ta := range repo.db.assignments {
		if ta.TeacherID == teacherID && !seen[ta.ClassID] {
			seen[ta.ClassID] = true
			ids = append(ids, ta.ClassID)
		}
	}
	return ids, nil
}

func (repo *academicRepository) LinkedStudentIDs(_ context.Context, guardianID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]string, 0)
	for _, gl := range repo.db.links {
		if gl.GuardianID == guardianID {
			ids = append(ids, gl.StudentID)
		}
	}
	return ids, nil
}

func (repo *academicRepository) StudentIDsOfClasses(_ context.Context, classIDs []string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	classes := make(map[string]bool, len(classIDs))
	for _, id := range classIDs {
		classes[id] = true
	}
	ids := make([]string, 0)
	for _, s := range repo.db.students {
		if s.ClassID.Valid && classes[s.ClassID.String] {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func (repo *academicRepository) ClassIDsOfStudents(_ context.Context, studentIDs []string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		students[id] = true
	}
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, s := range repo.db.students {
		if students[s.ID] && s.ClassID.Valid && !seen[s.ClassID.String] {
			seen[s.ClassID.String] = true
			ids = append(ids, s.ClassID.String)
		}
	}
	return ids, nil
}

func (repo *academicRepository) GuardianIDsOfStudents(_ context.Context, studentIDs []string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		students[id] = true
	}
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, gl := range repo.db.links {
		if students[gl.StudentID] && !seen[gl.GuardianID] {
			seen[gl.GuardianID] = true
			ids = append(ids, gl.GuardianID)
		}
	}
	return ids, nil
}

// --- ClassGroup ---

func (repo *academicRepository) CheckClassUniqueness(_ context.Context, tenantID, name string, year int, exclClasses ...academic.ClassGroup) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, cg := range repo.db.classes {
		if cg.TenantID != tenantID || !strings.EqualFold(cg.Name, name) || cg.Year != year {
			continue
		}
		excluded := false
		for _, excl := range exclClasses {
			if excl.ID == cg.ID {
				excluded = true
				break
			}
		}
		if !excluded {
			return academic.ErrClassExists
		}
	}
	return nil
}

func (repo *academicRepository) CreateClassGroup(_ context.Context, cg academic.ClassGroup, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.classes[cg.ID] = &cg
	return nil
}

func (repo *academicRepository) GetClassGroup(_ context.Context, id string, _ ...core.DBExecutor) (academic.ClassGroup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cg, ok := repo.db.classes[id]; ok {
		return *cg, nil
	}
	return academic.ClassGroup{}, academic.ErrNotFound
}

func (repo *academicRepository) QueryClassGroups(_ context.Context, pred access.Predicate, filter academic.ClassGroupQueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]academic.ClassGroup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	cgs := make([]academic.ClassGroup, 0)
	for _, cg := range repo.db.classes {
		if !pred.Allows(cg.TenantID, cg.ID, "") {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(cg.Name), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.Year != 0 && cg.Year != filter.Year {
			continue
		}
		cgs = append(cgs, *cg)
	}
	sort.Slice(cgs, func(i, j int) bool {
		if cgs[i].Year != cgs[j].Year {
			return cgs[i].Year > cgs[j].Year
		}
		return cgs[i].Name < cgs[j].Name
	})
	return cgs, nil
}

func (repo *academicRepository) UpdateClassGroup(_ context.Context, cg academic.ClassGroup, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[cg.ID]; !ok {
		return academic.ErrNotFound
	}
	repo.db.classes[cg.ID] = &cg
	return nil
}

// --- Subject ---

func (repo *academicRepository) CheckSubjectUniqueness(_ context.Context, tenantID, name string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, s := range repo.db.subjects {
		if s.TenantID == tenantID && strings.EqualFold(s.Name, name) {
			return academic.ErrSubjectExists
		}
	}
	return nil
}

func (repo *academicRepository) CreateSubject(_ context.Context, s academic.Subject, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.subjects[s.ID] = &s
	return nil
}

func (repo *academicRepository) QuerySubjects(_ context.Context, pred access.Predicate, _ ...core.DBExecutor) ([]academic.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subjects := make([]academic.Subject, 0)
	for _, s := range repo.db.subjects {
		if pred.Allows(s.TenantID, "", "") {
			subjects = append(subjects, *s)
		}
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

// --- Student ---

func (repo *academicRepository) CheckEnrollmentNoUniqueness(_ context.Context, enrollmentNo string, exclStudents ...academic.Student) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, s := range repo.db.students {
		if s.EnrollmentNo != enrollmentNo {
			continue
		}
		excluded := false
		for _, excl := range exclStudents {
			if excl.ID == s.ID {
				excluded = true
				break
			}
		}
		if !excluded {
			return academic.ErrEnrollmentNoExists
		}
	}
	return nil
}

func (repo *academicRepository) CreateStudent(_ context.Context, s academic.Student, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.students[s.ID] = &s
	return nil
}

func (repo *academicRepository) GetStudent(_ context.Context, id string, _ ...core.DBExecutor) (academic.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.students[id]; ok {
		return *s, nil
	}
	return academic.Student{}, academic.ErrNotFound
}

func (repo *academicRepository) QueryStudents(_ context.Context, pred access.Predicate, filter academic.StudentQueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]academic.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]academic.Student, 0)
	for _, s := range repo.db.students {
		if !pred.Allows(s.TenantID, s.ClassID.String, s.ID) {
			continue
		}
		if filter.Search != "" {
			search := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(s.FullName), search) &&
				!strings.Contains(strings.ToLower(s.EnrollmentNo), search) {
				continue
			}
		}
		if filter.ClassID != "" && s.ClassID.String != filter.ClassID {
			continue
		}
		if filter.IsActive != nil && s.IsActive != *filter.IsActive {
			continue
		}
		students = append(students, *s)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].FullName < students[j].FullName })
	return students, nil
}

func (repo *academicRepository) UpdateStudent(_ context.Context, s academic.Student, isActive *bool, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	existing, ok := repo.db.students[s.ID]
	if !ok {
		return academic.ErrNotFound
	}
	if isActive != nil {
		s.IsActive = *isActive
	} else {
		s.IsActive = existing.IsActive
	}
	repo.db.students[s.ID] = &s
	return nil
}

// --- TeacherAssignment ---

func (repo *academicRepository) CreateTeacherAssignment(_ context.Context, ta academic.TeacherAssignment, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.assignments {
		if existing.TeacherID == ta.TeacherID && existing.ClassID == ta.ClassID &&
			existing.SubjectID.String == ta.SubjectID.String {
			return academic.ErrAssignmentExists
		}
	}
	repo.db.assignments[ta.ID] = &ta
	return nil
}

func (repo *academicRepository) GetTeacherAssignment(_ context.Context, id string, _ ...core.DBExecutor) (academic.TeacherAssignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ta, ok := repo.db.assignments[id]; ok {
		return *ta, nil
	}
	return academic.TeacherAssignment{}, academic.ErrNotFound
}

func (repo *academicRepository) QueryTeacherAssignments(_ context.Context, pred access.Predicate, _ ...core.DBExecutor) ([]academic.TeacherAssignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tas := make([]academic.TeacherAssignment, 0)
	for _, ta := range repo.db.assignments {
		if pred.Allows(ta.TenantID, ta.ClassID, "") {
			tas = append(tas, *ta)
		}
	}
	sort.Slice(tas, func(i, j int) bool { return tas[i].CreatedAt.After(tas[j].CreatedAt) })
	return tas, nil
}

func (repo *academicRepository) DeleteTeacherAssignment(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.assignments[id]; !ok {
		return academic.ErrNotFound
	}
	delete(repo.db.assignments, id)
	return nil
}

// --- GuardianLink ---

func (repo *academicRepository) CreateGuardianLink(_ context.Context, gl academic.GuardianLink, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.links {
		if existing.GuardianID == gl.GuardianID && existing.StudentID == gl.StudentID {
			return academic.ErrLinkExists
		}
	}
	repo.db.links[gl.ID] = &gl
	return nil
}

func (repo *academicRepository) GetGuardianLink(_ context.Context, id string, _ ...core.DBExecutor) (academic.GuardianLink, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if gl, ok := repo.db.links[id]; ok {
		return *gl, nil
	}
	return academic.GuardianLink{}, academic.ErrNotFound
}

func (repo *academicRepository) QueryGuardianLinks(_ context.Context, pred access.Predicate, _ ...core.DBExecutor) ([]academic.GuardianLink, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	gls := make([]academic.GuardianLink, 0)
	for _, gl := range repo.db.links {
		if pred.Allows(gl.TenantID, "", gl.StudentID) {
			gls = append(gls, *gl)
		}
	}
	sort.Slice(gls, func(i, j int) bool { return gls[i].CreatedAt.After(gls[j].CreatedAt) })
	return gls, nil
}

func (repo *academicRepository) DeleteGuardianLink(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.links[id]; !ok {
		return academic.ErrNotFound
	}
	delete(repo.db.links, id)
	return nil
}
