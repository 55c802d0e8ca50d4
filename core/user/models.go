package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/maktab/core"
)

// BanDuration is how long a ban lasts. It is meant to outlive any account.
const BanDuration = 876000 * time.Hour

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash []byte     `json:"-"`
	GoogleID     string     `json:"-"`
	BannedUntil  *time.Time `json:"banned_until"`
	CreatedAt    time.Time  `json:"created_at"` // UTC
	LastSignInAt *time.Time `json:"last_sign_in_at"`
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsBanned(now time.Time) bool {
	return u.BannedUntil != nil && u.BannedUntil.After(now)
}

// Session is an authenticated sign-in of a User. Signing out deletes it.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Profile struct {
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Student is the admin view of a non-admin account: identity joined with its profile.
type Student struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	AvatarURL    string     `json:"avatar_url"`
	IsBanned     bool       `json:"is_banned"`
	BannedUntil  *time.Time `json:"banned_until"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSignInAt *time.Time `json:"last_sign_in_at"`
}

func newStudent(usr User, prof Profile, now time.Time) Student {
	return Student{
		ID:           usr.ID,
		Email:        usr.Email,
		FullName:     prof.FullName,
		AvatarURL:    prof.AvatarURL,
		IsBanned:     usr.IsBanned(now),
		BannedUntil:  usr.BannedUntil,
		CreatedAt:    usr.CreatedAt,
		LastSignInAt: usr.LastSignInAt,
	}
}

// GoogleIdentity holds the verified claims of a Google ID token.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
}

// Credentials are used to sign in and to sign up.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func (c *Credentials) Clean() {
	c.Email = core.CleanString(c.Email, true /* lower */)
}

// NewStudent contains information needed to create a new student account.
type NewStudent struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name" validate:"required,min=2,max=100"`
}

func (ns *NewStudent) Clean() {
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.FullName = core.CleanString(ns.FullName)
}

type UpdateStudent struct {
	FullName string `json:"full_name" validate:"required,min=2,max=100"`
}

func (us *UpdateStudent) Clean() {
	us.FullName = core.CleanString(us.FullName)
}

// UpdateProfile defines what a user may change on their own profile.
type UpdateProfile struct {
	FullName  string `json:"full_name" validate:"omitempty,min=2,max=100"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
}

func (up *UpdateProfile) Clean() {
	up.FullName = core.CleanString(up.FullName)
	up.AvatarURL = core.CleanString(up.AvatarURL)
}
