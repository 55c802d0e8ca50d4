package user

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("user")
	ErrProfileNotFound    = core.NewNotFoundError("profile")
	ErrSessionNotFound    = core.NewNotFoundError("session")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCredentials = core.NewValidationError(errors.New("invalid email or password"))
	ErrBanned             = errors.New("account banned")
	ErrNotAdmin           = errors.New("no admin rights")
	ErrSessionRevoked     = errors.New("session expired or revoked")
	ErrForeignAvatar      = errors.New("this file is not one of your pictures")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByGoogleID(ctx context.Context, googleID string) (User, error)
		// ListUsers returns all users, newest first.
		ListUsers(ctx context.Context) ([]User, error)
		// UpdateUser saves the credentials, ban and sign-in fields of usr.
		UpdateUser(ctx context.Context, usr User) (User, error)
		// DeleteUser deletes a user and everything it owns (sessions, profile, answers, ...).
		DeleteUser(ctx context.Context, id string) error

		CreateSession(ctx context.Context, sess Session) (Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		DeleteSession(ctx context.Context, id string) error
		DeleteUserSessions(ctx context.Context, userID string) error

		IsAdmin(ctx context.Context, userID string) (bool, error)
		// AddAdmin marks a user as admin. Adding an existing admin is a no-op.
		AddAdmin(ctx context.Context, userID string) error
		ListAdminIDs(ctx context.Context) ([]string, error)

		GetProfile(ctx context.Context, userID string) (Profile, error)
		ListProfiles(ctx context.Context) ([]Profile, error)
		// UpsertProfile creates or replaces the profile of prof.UserID.
		UpsertProfile(ctx context.Context, prof Profile) (Profile, error)
	}

	// GoogleVerifier checks Google ID tokens issued for this app.
	GoogleVerifier interface {
		Verify(idToken string) (GoogleIdentity, error)
	}

	// AvatarEncoder turns an uploaded picture into the stored avatar format.
	AvatarEncoder interface {
		EncodeAvatar(r io.Reader) ([]byte, error)
		ContentType() string
		Ext() string
	}

	Service interface {
		SignIn(ctx context.Context, creds Credentials) (User, Session, error)
		SignUp(ctx context.Context, creds Credentials) (User, Session, error)
		SignInWithGoogle(ctx context.Context, idToken string) (User, Session, error)
		SignOut(ctx context.Context, sessionID string) error
		ValidateSession(ctx context.Context, sessionID, userID string) (User, error)
		IsAdmin(ctx context.Context, userID string) (bool, error)
		RequireAdmin(ctx context.Context, sessionID, userID string) error
		GrantAdmin(ctx context.Context, userID string) error

		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		ListUsers(ctx context.Context) ([]User, error)

		CreateStudent(ctx context.Context, ns NewStudent) (Student, error)
		ListStudents(ctx context.Context) ([]Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		UpdateStudent(ctx context.Context, id string, us UpdateStudent) (Student, error)
		Ban(ctx context.Context, id string) (Student, error)
		Unban(ctx context.Context, id string) (Student, error)
		DeleteStudent(ctx context.Context, id string) error

		GetProfile(ctx context.Context, userID string) (Profile, error)
		UpdateProfile(ctx context.Context, userID string, up UpdateProfile) (Profile, error)
		SetAvatar(ctx context.Context, userID string, r io.Reader) (Profile, error)
	}

	service struct {
		repo     Repository
		store    core.ObjectStore
		avatars  AvatarEncoder
		google   GoogleVerifier
		mailSvc  core.EmailService
		validate *validator.Validate
		logger   core.Logger
		runAsync func(func())
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	store core.ObjectStore,
	avatars AvatarEncoder,
	google GoogleVerifier,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
) Service {
	return &service{
		repo:     repo,
		store:    store,
		avatars:  avatars,
		google:   google,
		mailSvc:  mailSvc,
		validate: validate,
		logger:   logger,
		runAsync: func(f func()) { go f() },
	}
}

// Authentication

func (svc *service) SignIn(ctx context.Context, creds Credentials) (User, Session, error) {
	creds.Clean()
	if err := svc.validate.Struct(creds); err != nil {
		return User{}, Session{}, err
	}

	usr, err := svc.repo.GetUserByEmail(ctx, creds.Email)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, Session{}, ErrInvalidCredentials
		}
		return User{}, Session{}, errors.Wrap(err, "finding user by email")
	}
	if len(usr.PasswordHash) == 0 || usr.CheckPassword(creds.Password) != nil {
		return User{}, Session{}, ErrInvalidCredentials
	}
	return svc.openSession(ctx, usr)
}

func (svc *service) SignUp(ctx context.Context, creds Credentials) (User, Session, error) {
	creds.Clean()
	if err := svc.validate.Struct(creds); err != nil {
		return User{}, Session{}, err
	}

	usr := User{Email: creds.Email, CreatedAt: core.NowFunc().UTC()}
	if err := usr.SetPassword(creds.Password); err != nil {
		return User{}, Session{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.createUser(ctx, usr)
	if err != nil {
		return User{}, Session{}, err
	}
	return svc.openSession(ctx, usr)
}

func (svc *service) SignInWithGoogle(ctx context.Context, idToken string) (User, Session, error) {
	if idToken == "" {
		return User{}, Session{}, core.NewValidationError(nil, core.FieldError{Field: "id_token", Error: "this field is required"})
	}
	ident, err := svc.google.Verify(idToken)
	if err != nil {
		return User{}, Session{}, core.NewValidationError(errors.Wrap(err, "invalid Google ID token"))
	}

	usr, err := svc.repo.GetUserByGoogleID(ctx, ident.Subject)
	switch {
	case err == nil:
	case core.IsNotFound(err):
		email := core.CleanString(ident.Email, true /* lower */)
		usr, err = svc.repo.GetUserByEmail(ctx, email)
		if err == nil {
			// link the Google account to the existing user
			usr.GoogleID = ident.Subject
			if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
				return User{}, Session{}, errors.Wrap(err, "linking Google account")
			}
			break
		}
		if !core.IsNotFound(err) {
			return User{}, Session{}, errors.Wrap(err, "finding user by email")
		}
		usr, err = svc.createUser(ctx, User{Email: email, GoogleID: ident.Subject, CreatedAt: core.NowFunc().UTC()})
		if err != nil {
			return User{}, Session{}, err
		}
		if ident.Name != "" {
			if _, err = svc.repo.UpsertProfile(ctx, Profile{UserID: usr.ID, FullName: ident.Name, UpdatedAt: usr.CreatedAt}); err != nil {
				return User{}, Session{}, errors.Wrap(err, "creating profile")
			}
		}
	default:
		return User{}, Session{}, errors.Wrap(err, "finding user by Google ID")
	}
	return svc.openSession(ctx, usr)
}

func (svc *service) openSession(ctx context.Context, usr User) (User, Session, error) {
	now := core.NowFunc().UTC()
	if usr.IsBanned(now) {
		return User{}, Session{}, ErrBanned
	}

	usr.LastSignInAt = &now
	usr, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, Session{}, errors.Wrap(err, "setting last sign in")
	}
	sess, err := svc.repo.CreateSession(ctx, Session{UserID: usr.ID, CreatedAt: now})
	if err != nil {
		return User{}, Session{}, errors.Wrap(err, "creating session")
	}
	return usr, sess, nil
}

func (svc *service) SignOut(ctx context.Context, sessionID string) error {
	if err := svc.repo.DeleteSession(ctx, sessionID); err != nil && !core.IsNotFound(err) {
		return errors.Wrap(err, "deleting session")
	}
	return nil
}

// ValidateSession checks that the session is still open and that its user may use the app.
func (svc *service) ValidateSession(ctx context.Context, sessionID, userID string) (User, error) {
	sess, err := svc.repo.GetSession(ctx, sessionID)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrSessionRevoked
		}
		return User{}, errors.Wrap(err, "finding session")
	}
	if sess.UserID != userID {
		return User{}, ErrSessionRevoked
	}

	usr, err := svc.repo.GetUserByID(ctx, userID)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrSessionRevoked
		}
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	if usr.IsBanned(core.NowFunc()) {
		return User{}, ErrBanned
	}
	return usr, nil
}

func (svc *service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return svc.repo.IsAdmin(ctx, userID)
}

// RequireAdmin fails with ErrNotAdmin if the user has no admin marker, signing the session out.
func (svc *service) RequireAdmin(ctx context.Context, sessionID, userID string) error {
	isAdmin, err := svc.repo.IsAdmin(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "checking admin rights")
	}
	if isAdmin {
		return nil
	}
	if err = svc.SignOut(ctx, sessionID); err != nil {
		return err
	}
	return ErrNotAdmin
}

func (svc *service) GrantAdmin(ctx context.Context, userID string) error {
	if _, err := svc.repo.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return svc.repo.AddAdmin(ctx, userID)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) ListUsers(ctx context.Context) ([]User, error) {
	return svc.repo.ListUsers(ctx)
}

func (svc *service) createUser(ctx context.Context, usr User) (User, error) {
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		if errors.Cause(err) == core.ErrUniqueViolation {
			return User{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
		return User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

// Identity administration

func (svc *service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return Student{}, err
	}

	now := core.NowFunc().UTC()
	usr := User{Email: ns.Email, CreatedAt: now}
	if err := usr.SetPassword(ns.Password); err != nil {
		return Student{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.createUser(ctx, usr)
	if err != nil {
		return Student{}, err
	}
	prof, err := svc.repo.UpsertProfile(ctx, Profile{UserID: usr.ID, FullName: ns.FullName, UpdatedAt: now})
	if err != nil {
		return Student{}, errors.Wrap(err, "creating profile")
	}

	svc.runAsync(func() { svc.sendWelcomeMail(usr, prof) })
	return newStudent(usr, prof, now), nil
}

// ListStudents returns every non-admin user joined with its profile, newest first.
func (svc *service) ListStudents(ctx context.Context) ([]Student, error) {
	users, err := svc.repo.ListUsers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing users")
	}
	adminIDs, err := svc.repo.ListAdminIDs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing admins")
	}
	profiles, err := svc.repo.ListProfiles(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing profiles")
	}

	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	profs := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		profs[p.UserID] = p
	}

	now := core.NowFunc()
	students := make([]Student, 0, len(users))
	for _, usr := range users {
		if admins[usr.ID] {
			continue
		}
		students = append(students, newStudent(usr, profs[usr.ID], now))
	}
	sort.SliceStable(students, func(i, j int) bool { return students[i].CreatedAt.After(students[j].CreatedAt) })
	return students, nil
}

// getStudent finds a non-admin user. Admin accounts are not managed as students.
func (svc *service) getStudent(ctx context.Context, id string) (User, Profile, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, Profile{}, err
	}
	isAdmin, err := svc.repo.IsAdmin(ctx, id)
	if err != nil {
		return User{}, Profile{}, errors.Wrap(err, "checking admin rights")
	}
	if isAdmin {
		return User{}, Profile{}, ErrNotFound
	}
	prof, err := svc.repo.GetProfile(ctx, id)
	if err != nil && !core.IsNotFound(err) {
		return User{}, Profile{}, errors.Wrap(err, "finding profile")
	}
	return usr, prof, nil
}

func (svc *service) GetStudent(ctx context.Context, id string) (Student, error) {
	usr, prof, err := svc.getStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	return newStudent(usr, prof, core.NowFunc()), nil
}

func (svc *service) UpdateStudent(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	us.Clean()
	if err := svc.validate.Struct(us); err != nil {
		return Student{}, err
	}
	usr, prof, err := svc.getStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}

	prof.UserID = usr.ID
	prof.FullName = us.FullName
	prof.UpdatedAt = core.NowFunc().UTC()
	if prof, err = svc.repo.UpsertProfile(ctx, prof); err != nil {
		return Student{}, errors.Wrap(err, "updating profile")
	}
	return newStudent(usr, prof, core.NowFunc()), nil
}

func (svc *service) setBannedUntil(ctx context.Context, id string, until *time.Time) (Student, error) {
	usr, prof, err := svc.getStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	usr.BannedUntil = until
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return Student{}, errors.Wrap(err, "updating user")
	}
	return newStudent(usr, prof, core.NowFunc()), nil
}

// Ban blocks the student from signing in and ends all of their sessions.
func (svc *service) Ban(ctx context.Context, id string) (Student, error) {
	until := core.NowFunc().UTC().Add(BanDuration)
	st, err := svc.setBannedUntil(ctx, id, &until)
	if err != nil {
		return Student{}, err
	}
	if err = svc.repo.DeleteUserSessions(ctx, id); err != nil {
		return Student{}, errors.Wrap(err, "deleting sessions")
	}
	return st, nil
}

func (svc *service) Unban(ctx context.Context, id string) (Student, error) {
	return svc.setBannedUntil(ctx, id, nil)
}

func (svc *service) DeleteStudent(ctx context.Context, id string) error {
	if _, _, err := svc.getStudent(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteUser(ctx, id)
}

// Profile

func (svc *service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	prof, err := svc.repo.GetProfile(ctx, userID)
	if err != nil {
		if core.IsNotFound(err) {
			return Profile{UserID: userID}, nil
		}
		return Profile{}, errors.Wrap(err, "finding profile")
	}
	return prof, nil
}

func (svc *service) UpdateProfile(ctx context.Context, userID string, up UpdateProfile) (Profile, error) {
	up.Clean()
	if err := svc.validate.Struct(up); err != nil {
		return Profile{}, err
	}
	prof, err := svc.GetProfile(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	if up.FullName != "" {
		prof.FullName = up.FullName
	}
	if up.AvatarURL != "" {
		// stored objects are only accepted from the user's own avatar folder
		if key := svc.store.KeyFromURL(up.AvatarURL); key != "" && !isOwnAvatar(key, userID) {
			return Profile{}, core.NewValidationError(ErrForeignAvatar, core.FieldError{Field: "avatar_url", Error: ErrForeignAvatar.Error()})
		}
		prof.AvatarURL = up.AvatarURL
	}
	prof.UpdatedAt = core.NowFunc().UTC()
	return svc.repo.UpsertProfile(ctx, prof)
}

func avatarPrefix(userID string) string {
	return "avatars/" + userID + "/"
}

// isOwnAvatar reports whether key is an object of the user's avatar folder.
func isOwnAvatar(key, userID string) bool {
	return strings.HasPrefix(key, avatarPrefix(userID)) && !strings.Contains(key, "..")
}

// SetAvatar stores the uploaded picture as the user's avatar and removes the previous one.
func (svc *service) SetAvatar(ctx context.Context, userID string, r io.Reader) (Profile, error) {
	prof, err := svc.GetProfile(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	data, err := svc.avatars.EncodeAvatar(r)
	if err != nil {
		return Profile{}, core.NewValidationError(nil, core.FieldError{Field: "avatar", Error: "invalid image"})
	}

	now := core.NowFunc().UTC()
	key := avatarPrefix(userID) + strconv.FormatInt(now.UnixNano()/int64(time.Millisecond), 10) + svc.avatars.Ext()
	if err = svc.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), svc.avatars.ContentType()); err != nil {
		return Profile{}, errors.Wrap(err, "storing avatar")
	}

	if oldKey := svc.store.KeyFromURL(prof.AvatarURL); isOwnAvatar(oldKey, userID) && oldKey != key {
		if err = svc.store.Delete(ctx, oldKey); err != nil {
			svc.logger.Warn(fmt.Sprintf("removing old avatar %q: %v", oldKey, err), err)
		}
	}

	prof.AvatarURL = svc.store.PublicURL(key)
	prof.UpdatedAt = now
	return svc.repo.UpsertProfile(ctx, prof)
}

// Mails

func (svc *service) sendWelcomeMail(usr User, prof Profile) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: prof.FullName, Address: usr.Email}},
		Subject:      "Welcome",
		TemplateName: "student_welcome",
		TemplateData: map[string]string{"FullName": prof.FullName, "Email": usr.Email},
	})
}
