package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Email        string      `db:"email"`
	Role         string      `db:"role"`
	TenantID     null.String `db:"tenant_id"`
	IsActive     bool        `db:"is_active"`
	PasswordHash []byte      `db:"password_hash"`
	LastLogin    null.Time   `db:"last_login"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		Role:         r.Role,
		TenantID:     r.TenantID.String,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash,
		LastLogin:    r.LastLogin.Time,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

var _ user.Repository = (*UserRepository)(nil)

func (repo *UserRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	e := ext(repo.db, exec)
	q := "SELECT EXISTS (SELECT 1 FROM app_user WHERE lower(email) = lower(?)"
	args := []interface{}{email}
	if len(excludedUsers) > 0 {
		ids := make([]string, len(excludedUsers))
		for i, u := range excludedUsers {
			ids[i] = u.ID
		}
		in, inArgs := inClause("id", ids)
		q += " AND NOT (" + in + ")"
		args = append(args, inArgs...)
	}
	q += ")"

	var exists bool
	if err := sqlx.GetContext(ctx, e, &exists, e.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *UserRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	err := atomic(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := repo.db.Rebind(`
			INSERT INTO app_user (id, name, email, role, tenant_id, is_active, password_hash, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(ctx, q,
			usr.ID, usr.Name, usr.Email, usr.Role, null.NewString(usr.TenantID, usr.TenantID != ""),
			usr.IsActive, usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return user.ErrEmailExists
			}
			return errors.Wrap(err, "inserting user")
		}

		var profileTable string
		switch usr.Role {
		case user.RoleTeacher:
			profileTable = "teacher_profile"
		case user.RoleGuardian:
			profileTable = "guardian_profile"
		default:
			return nil
		}
		q = repo.db.Rebind("INSERT INTO " + profileTable + " (user_id, created_at) VALUES (?, ?)")
		if _, err = tx.ExecContext(ctx, q, usr.ID, usr.CreatedAt); err != nil {
			return errors.Wrap(err, "inserting profile")
		}
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *UserRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	e := ext(repo.db, exec)
	q := "SELECT * FROM app_user WHERE "
	var arg interface{}
	switch {
	case filter.ID != "":
		q += "id = ?"
		arg = filter.ID
	case filter.Email != "":
		q += "lower(email) = lower(?)"
		arg = filter.Email
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := sqlx.GetContext(ctx, e, &row, e.Rebind(q), arg); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.toUser(), nil
}

func (repo *UserRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	e := ext(repo.db, exec)
	q := "SELECT * FROM app_user WHERE TRUE"
	var args []interface{}
	if filter != nil {
		if filter.Search != "" {
			q += " AND (name ILIKE ? OR email ILIKE ?)"
			search := "%" + filter.Search + "%"
			args = append(args, search, search)
		}
		if filter.Role != "" {
			q += " AND role = ?"
			args = append(args, filter.Role)
		}
		if filter.TenantID != "" {
			q += " AND tenant_id = ?"
			args = append(args, filter.TenantID)
		}
		if filter.IsActive != nil {
			q += " AND is_active = ?"
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			q += " AND created_at >= ?"
			args = append(args, filter.CreatedFrom)
		}
		if !filter.CreatedTo.IsZero() {
			q += " AND created_at <= ?"
			args = append(args, filter.CreatedTo)
		}
	}
	q += orderBy(ordering, "created_at DESC")

	var rows []userRow
	if err := sqlx.SelectContext(ctx, e, &rows, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, len(rows))
	for i, row := range rows {
		users[i] = row.toUser()
	}
	return users, nil
}

func (repo *UserRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool, exec ...core.DBExecutor) (user.User, error) {
	e := ext(repo.db, exec)
	q := "UPDATE app_user SET name = ?, email = ?, password_hash = ?, last_login = ?, updated_at = ?"
	args := []interface{}{
		usr.Name, usr.Email, usr.PasswordHash,
		null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()), usr.UpdatedAt,
	}
	if isActive != nil {
		q += ", is_active = ?"
		args = append(args, *isActive)
		usr.IsActive = *isActive
	}
	q += " WHERE id = ?"
	args = append(args, usr.ID)

	res, err := e.ExecContext(ctx, e.Rebind(q), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *UserRepository) UpsertDeviceToken(ctx context.Context, dt user.DeviceToken, exec ...core.DBExecutor) (user.DeviceToken, error) {
	e := ext(repo.db, exec)
	q := e.Rebind(`
		INSERT INTO device_token (id, user_id, tenant_id, platform, token, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id, tenant_id = EXCLUDED.tenant_id,
		    platform = EXCLUDED.platform, updated_at = EXCLUDED.updated_at`)
	_, err := e.ExecContext(ctx, q,
		dt.ID, dt.UserID, null.NewString(dt.TenantID, dt.TenantID != ""), dt.Platform, dt.Token, dt.UpdatedAt)
	if err != nil {
		return user.DeviceToken{}, errors.Wrap(err, "upserting device token")
	}
	return dt, nil
}

func (repo *UserRepository) DeviceTokensByUserIDs(ctx context.Context, userIDs []string, exec ...core.DBExecutor) ([]user.DeviceToken, error) {
	if len(userIDs) == 0 {
		return []user.DeviceToken{}, nil
	}
	e := ext(repo.db, exec)
	in, args := inClause("user_id", userIDs)

	var rows []struct {
		ID        string      `db:"id"`
		UserID    string      `db:"user_id"`
		TenantID  null.String `db:"tenant_id"`
		Platform  string      `db:"platform"`
		Token     string      `db:"token"`
		UpdatedAt time.Time   `db:"updated_at"`
	}
	q := "SELECT * FROM device_token WHERE " + in
	if err := sqlx.SelectContext(ctx, e, &rows, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying device tokens")
	}
	dts := make([]user.DeviceToken, len(rows))
	for i, row := range rows {
		dts[i] = user.DeviceToken{
			ID:        row.ID,
			UserID:    row.UserID,
			TenantID:  row.TenantID.String,
			Platform:  row.Platform,
			Token:     row.Token,
			UpdatedAt: row.UpdatedAt,
		}
	}
	return dts, nil
}
