package echoapi

import "github.com/trezcool/maktab/core/user"

type AuthResponse struct {
	Token   string    `json:"token"`
	User    user.User `json:"user"`
	IsAdmin bool      `json:"is_admin"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type GoogleSignInRequest struct {
	IDToken string `json:"id_token"`
}
