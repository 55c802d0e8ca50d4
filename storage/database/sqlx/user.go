package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/user"
)

type (
	userRow struct {
		ID           string      `db:"id"`
		Email        string      `db:"email"`
		PasswordHash null.Bytes  `db:"password_hash"`
		GoogleID     null.String `db:"google_id"`
		BannedUntil  null.Time   `db:"banned_until"`
		CreatedAt    time.Time   `db:"created_at"`
		LastSignInAt null.Time   `db:"last_sign_in_at"`
	}

	profileRow struct {
		UserID    string      `db:"user_id"`
		FullName  null.String `db:"full_name"`
		AvatarURL null.String `db:"avatar_url"`
		UpdatedAt time.Time   `db:"updated_at"`
	}

	userRepository struct {
		baseRepository
	}
)

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB, conf *core.Config) user.Repository {
	return &userRepository{baseRepository: newBaseRepository(db, conf)}
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Email:        usr.Email,
		PasswordHash: null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		GoogleID:     null.NewString(usr.GoogleID, usr.GoogleID != ""),
		BannedUntil:  null.TimeFromPtr(usr.BannedUntil),
		CreatedAt:    usr.CreatedAt.UTC(),
		LastSignInAt: null.TimeFromPtr(usr.LastSignInAt),
	}
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash.Bytes,
		GoogleID:     r.GoogleID.String,
		BannedUntil:  r.BannedUntil.Ptr(),
		CreatedAt:    r.CreatedAt.UTC(),
		LastSignInAt: r.LastSignInAt.Ptr(),
	}
}

func (r profileRow) profile() user.Profile {
	return user.Profile{
		UserID:    r.UserID,
		FullName:  r.FullName.String,
		AvatarURL: r.AvatarURL.String,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

const userColumns = "id, email, password_hash, google_id, banned_until, created_at, last_sign_in_at"

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	usr.ID = uuid.New().String()
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :email, :password_hash, :google_id, :banned_until, :created_at, :last_sign_in_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, toUserRow(usr)); err != nil {
		return user.User{}, trapErr(err, nil, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) getUser(ctx context.Context, where string, arg interface{}) (user.User, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row userRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+where+` = $1`, arg); err != nil {
		return user.User{}, trapErr(err, user.ErrNotFound, "selecting user")
	}
	return row.user(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrNotFound
	}
	return repo.getUser(ctx, "id", id)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, "email", email)
}

func (repo *userRepository) GetUserByGoogleID(ctx context.Context, googleID string) (user.User, error) {
	if googleID == "" {
		return user.User{}, user.ErrNotFound
	}
	return repo.getUser(ctx, "google_id", googleID)
}

func (repo *userRepository) ListUsers(ctx context.Context) ([]user.User, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`); err != nil {
		return nil, trapErr(err, nil, "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row userRow
	q := `UPDATE users
		SET password_hash = $2, google_id = $3, banned_until = $4, last_sign_in_at = $5
		WHERE id = $1
		RETURNING ` + userColumns
	r := toUserRow(usr)
	if err := repo.db.GetContext(ctx, &row, q, r.ID, r.PasswordHash, r.GoogleID, r.BannedUntil, r.LastSignInAt); err != nil {
		return user.User{}, trapErr(err, user.ErrNotFound, "updating user")
	}
	return row.user(), nil
}

// DeleteUser relies on ON DELETE CASCADE for sessions, profile, admin marker, downloads, answers and ranking.
func (repo *userRepository) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	res, err := repo.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return trapErr(err, nil, "deleting user")
	}
	return checkAffected(res, user.ErrNotFound)
}

// Sessions

func (repo *userRepository) CreateSession(ctx context.Context, sess user.Session) (user.Session, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	sess.ID = uuid.New().String()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if _, err := repo.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at) VALUES ($1, $2, $3)`,
		sess.ID, sess.UserID, sess.CreatedAt); err != nil {
		return user.Session{}, trapErr(err, nil, "inserting session")
	}
	return sess, nil
}

func (repo *userRepository) GetSession(ctx context.Context, id string) (user.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.Session{}, user.ErrSessionNotFound
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var sess struct {
		ID        string    `db:"id"`
		UserID    string    `db:"user_id"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := repo.db.GetContext(ctx, &sess, `SELECT id, user_id, created_at FROM sessions WHERE id = $1`, id); err != nil {
		return user.Session{}, trapErr(err, user.ErrSessionNotFound, "selecting session")
	}
	return user.Session{ID: sess.ID, UserID: sess.UserID, CreatedAt: sess.CreatedAt.UTC()}, nil
}

func (repo *userRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return user.ErrSessionNotFound
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	res, err := repo.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return trapErr(err, nil, "deleting session")
	}
	return checkAffected(res, user.ErrSessionNotFound)
}

func (repo *userRepository) DeleteUserSessions(ctx context.Context, userID string) error {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	_, err := repo.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return trapErr(err, nil, "deleting sessions")
}

// Admins

func (repo *userRepository) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return false, nil
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM admin_users WHERE user_id = $1)`, userID); err != nil {
		return false, trapErr(err, nil, "checking admin")
	}
	return exists, nil
}

func (repo *userRepository) AddAdmin(ctx context.Context, userID string) error {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO admin_users (id, user_id) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		uuid.New().String(), userID)
	return trapErr(err, nil, "inserting admin")
}

func (repo *userRepository) ListAdminIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var ids []string
	if err := repo.db.SelectContext(ctx, &ids, `SELECT user_id FROM admin_users ORDER BY user_id`); err != nil {
		return nil, trapErr(err, nil, "selecting admins")
	}
	return ids, nil
}

// Profiles

const profileColumns = "user_id, full_name, avatar_url, updated_at"

func (repo *userRepository) GetProfile(ctx context.Context, userID string) (user.Profile, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return user.Profile{}, user.ErrProfileNotFound
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row profileRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID); err != nil {
		return user.Profile{}, trapErr(err, user.ErrProfileNotFound, "selecting profile")
	}
	return row.profile(), nil
}

func (repo *userRepository) ListProfiles(ctx context.Context) ([]user.Profile, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var rows []profileRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+profileColumns+` FROM profiles ORDER BY user_id`); err != nil {
		return nil, trapErr(err, nil, "selecting profiles")
	}
	profs := make([]user.Profile, 0, len(rows))
	for _, r := range rows {
		profs = append(profs, r.profile())
	}
	return profs, nil
}

func (repo *userRepository) UpsertProfile(ctx context.Context, prof user.Profile) (user.Profile, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	if prof.UpdatedAt.IsZero() {
		prof.UpdatedAt = time.Now().UTC()
	}
	var row profileRow
	q := `INSERT INTO profiles (id, user_id, full_name, avatar_url, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
			SET full_name = EXCLUDED.full_name, avatar_url = EXCLUDED.avatar_url, updated_at = EXCLUDED.updated_at
		RETURNING ` + profileColumns
	err := repo.db.GetContext(ctx, &row, q,
		uuid.New().String(),
		prof.UserID,
		null.NewString(prof.FullName, prof.FullName != ""),
		null.NewString(prof.AvatarURL, prof.AvatarURL != ""),
		prof.UpdatedAt.UTC(),
	)
	if err != nil {
		return user.Profile{}, trapErr(err, nil, "upserting profile")
	}
	return row.profile(), nil
}
