package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

// checkUnique must be called with the lock held.
func (repo *userRepository) checkUnique(usr user.User) error {
	for _, u := range repo.db.users {
		if u.ID == usr.ID {
			continue
		}
		if u.Email == usr.Email {
			return errors.Wrap(core.ErrUniqueViolation, "users.email")
		}
		if usr.GoogleID != "" && u.GoogleID == usr.GoogleID {
			return errors.Wrap(core.ErrUniqueViolation, "users.google_id")
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr.ID = newID()
	if err := repo.checkUnique(usr); err != nil {
		return user.User{}, err
	}
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now().UTC()
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) find(match func(u *user.User) bool) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, u := range repo.db.users {
		if match(u) {
			return *u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	return repo.find(func(u *user.User) bool { return u.ID == id })
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	return repo.find(func(u *user.User) bool { return u.Email == email })
}

func (repo *userRepository) GetUserByGoogleID(_ context.Context, googleID string) (user.User, error) {
	if googleID == "" {
		return user.User{}, user.ErrNotFound
	}
	return repo.find(func(u *user.User) bool { return u.GoogleID == googleID })
}

func (repo *userRepository) ListUsers(_ context.Context) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := repo.checkUnique(usr); err != nil {
		return user.User{}, err
	}
	orig.PasswordHash = usr.PasswordHash
	orig.GoogleID = usr.GoogleID
	orig.BannedUntil = usr.BannedUntil
	orig.LastSignInAt = usr.LastSignInAt
	return *orig, nil
}

func (repo *userRepository) DeleteUser(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[id]; !ok {
		return user.ErrNotFound
	}
	repo.db.deleteUser(id)
	return nil
}

// Sessions

func (repo *userRepository) CreateSession(_ context.Context, sess user.Session) (user.Session, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[sess.UserID]; !ok {
		return user.Session{}, errors.Wrap(core.ErrForeignKeyViolation, "sessions.user_id")
	}
	sess.ID = newID()
	repo.db.sessions[sess.ID] = sess
	return sess, nil
}

func (repo *userRepository) GetSession(_ context.Context, id string) (user.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sess, ok := repo.db.sessions[id]; ok {
		return sess, nil
	}
	return user.Session{}, user.ErrSessionNotFound
}

func (repo *userRepository) DeleteSession(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.sessions[id]; !ok {
		return user.ErrSessionNotFound
	}
	delete(repo.db.sessions, id)
	return nil
}

func (repo *userRepository) DeleteUserSessions(_ context.Context, userID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for id, s := range repo.db.sessions {
		if s.UserID == userID {
			delete(repo.db.sessions, id)
		}
	}
	return nil
}

// Admins

func (repo *userRepository) IsAdmin(_ context.Context, userID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	_, ok := repo.db.admins[userID]
	return ok, nil
}

func (repo *userRepository) AddAdmin(_ context.Context, userID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[userID]; !ok {
		return errors.Wrap(core.ErrForeignKeyViolation, "admin_users.user_id")
	}
	if _, ok := repo.db.admins[userID]; !ok {
		repo.db.admins[userID] = time.Now().UTC()
	}
	return nil
}

func (repo *userRepository) ListAdminIDs(_ context.Context) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0, len(repo.db.admins))
	for id := range repo.db.admins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Profiles

func (repo *userRepository) GetProfile(_ context.Context, userID string) (user.Profile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if prof, ok := repo.db.profiles[userID]; ok {
		return prof, nil
	}
	return user.Profile{}, user.ErrProfileNotFound
}

func (repo *userRepository) ListProfiles(_ context.Context) ([]user.Profile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	profs := make([]user.Profile, 0, len(repo.db.profiles))
	for _, p := range repo.db.profiles {
		profs = append(profs, p)
	}
	sort.Slice(profs, func(i, j int) bool { return profs[i].UserID < profs[j].UserID })
	return profs, nil
}

func (repo *userRepository) UpsertProfile(_ context.Context, prof user.Profile) (user.Profile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[prof.UserID]; !ok {
		return user.Profile{}, errors.Wrap(core.ErrForeignKeyViolation, "profiles.user_id")
	}
	if prof.UpdatedAt.IsZero() {
		prof.UpdatedAt = time.Now().UTC()
	}
	repo.db.profiles[prof.UserID] = prof
	return prof, nil
}
