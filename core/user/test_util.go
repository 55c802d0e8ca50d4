package user

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maktab/core"
)

// NewServiceMock returns a Service that sends its mails synchronously.
func NewServiceMock(
	repo Repository,
	store core.ObjectStore,
	avatars AvatarEncoder,
	google GoogleVerifier,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
) Service {
	svc := NewService(repo, store, avatars, google, mailSvc, validate, logger).(*service)
	svc.runAsync = func(f func()) { f() }
	return svc
}

// GoogleVerifierMock accepts every token found in its map.
type GoogleVerifierMock map[string]GoogleIdentity

func (m GoogleVerifierMock) Verify(idToken string) (GoogleIdentity, error) {
	if ident, ok := m[idToken]; ok {
		return ident, nil
	}
	return GoogleIdentity{}, ErrInvalidCredentials
}
