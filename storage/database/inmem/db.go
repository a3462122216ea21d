// Package inmemdb backs the repositories with mutex-guarded maps. It exists
// for tests and local tinkering; semantics mirror the SQL implementations,
// including uniqueness backstops and counter recomputes.
package inmemdb

import (
	"sync"

	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/agenda"
	"github.com/trezcool/shule/core/feed"
	"github.com/trezcool/shule/core/tenant"
	"github.com/trezcool/shule/core/user"
)

type DB struct {
	mutex sync.RWMutex

	tenants      map[string]*tenant.Tenant
	users        map[string]*user.User
	deviceTokens map[string]*user.DeviceToken // by token string

	classes     map[string]*academic.ClassGroup
	subjects    map[string]*academic.Subject
	students    map[string]*academic.Student
	assignments map[string]*academic.TeacherAssignment
	links       map[string]*academic.GuardianLink

	dailyLogs map[string]*agenda.DailyLog

	posts     map[string]*feed.Post
	notices   map[string]*feed.Notice
	reactions map[string]*feed.Reaction
	comments  map[string]*feed.Comment
}

func NewDB() *DB {
	return &DB{
		tenants:      make(map[string]*tenant.Tenant),
		users:        make(map[string]*user.User),
		deviceTokens: make(map[string]*user.DeviceToken),
		classes:      make(map[string]*academic.ClassGroup),
		subjects:     make(map[string]*academic.Subject),
		students:     make(map[string]*academic.Student),
		assignments:  make(map[string]*academic.TeacherAssignment),
		links:        make(map[string]*academic.GuardianLink),
		dailyLogs:    make(map[string]*agenda.DailyLog),
		posts:        make(map[string]*feed.Post),
		notices:      make(map[string]*feed.Notice),
		reactions:    make(map[string]*feed.Reaction),
		comments:     make(map[string]*feed.Comment),
	}
}
