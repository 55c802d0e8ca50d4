package user

import (
	googleAuthIDTokenVerifier "github.com/futurenda/google-auth-id-token-verifier"
	"github.com/pkg/errors"
)

type googleVerifier struct {
	clientID string
	verifier googleAuthIDTokenVerifier.Verifier
}

// NewGoogleVerifier returns a GoogleVerifier accepting ID tokens issued for clientID.
func NewGoogleVerifier(clientID string) GoogleVerifier {
	return &googleVerifier{clientID: clientID}
}

func (v *googleVerifier) Verify(idToken string) (GoogleIdentity, error) {
	if v.clientID == "" {
		return GoogleIdentity{}, errors.New("Google sign-in is not configured")
	}
	if err := v.verifier.VerifyIDToken(idToken, []string{v.clientID}); err != nil {
		return GoogleIdentity{}, errors.Wrap(err, "verifying ID token")
	}
	claimSet, err := googleAuthIDTokenVerifier.Decode(idToken)
	if err != nil {
		return GoogleIdentity{}, errors.Wrap(err, "decoding ID token")
	}
	if claimSet.Sub == "" || claimSet.Email == "" {
		return GoogleIdentity{}, errors.New("ID token has no subject or email")
	}
	return GoogleIdentity{Subject: claimSet.Sub, Email: claimSet.Email, Name: claimSet.Name}, nil
}
