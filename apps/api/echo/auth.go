package echoapi

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/user"
)

const (
	tokenContextKey = "userToken"
	contextUserKey  = "user"
	contextRoleKey  = "role"
	tokenAudience   = "Maktab"
)

// Claims represents the authorization claims transmitted via a JWT.
// A token is only honored while its session (sid) exists.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	SessionID    string `json:"sid"`
	Email        string `json:"email,omitempty"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

func GetUserClaims(conf *core.Config, usr user.User, sess user.Session, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		SessionID:    sess.ID,
		Email:        usr.Email,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

// getContextActor describes the signed-in user of the request, from the session when it was
// validated or else from the token.
func getContextActor(ctx echo.Context) core.Actor {
	var actor core.Actor
	if claims, err := getContextClaims(ctx); err == nil {
		actor = core.Actor{UserID: claims.Subject, Email: claims.Email, SessionID: claims.SessionID}
	}
	if usr, err := getContextUser(ctx); err == nil {
		actor.UserID, actor.Email = usr.ID, usr.Email
	}
	if role, ok := ctx.Get(contextRoleKey).(string); ok {
		actor.Role = role
	}
	return actor
}

// sessionMiddleware rejects tokens whose session was signed out (or whose user got banned),
// and stores the user in the context.
func (s *Server) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		usr, err := s.UserSvc.ValidateSession(ctx.Request().Context(), claims.SessionID, claims.Subject)
		if err != nil {
			return errors.Wrap(err, "validating session")
		}
		ctx.Set(contextUserKey, usr)
		ctx.Set(contextRoleKey, core.RoleStudent)
		return next(ctx)
	}
}

// adminMiddleware signs non-admins out before rejecting them.
func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		if err = s.UserSvc.RequireAdmin(ctx.Request().Context(), claims.SessionID, claims.Subject); err != nil {
			return errors.Wrap(err, "checking admin rights")
		}
		ctx.Set(contextRoleKey, core.RoleAdmin)
		return next(ctx)
	}
}

type authAPI struct {
	srv *Server
	svc user.Service
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, srv *Server) {
	api := authAPI{srv: srv, svc: srv.UserSvc}

	// TODO: rate limit `/sign-in` & `/sign-up`
	g.POST("/sign-in", api.signIn)
	g.POST("/sign-up", api.signUp)
	g.POST("/google", api.google)

	// authed endpoints
	g.POST("/sign-out", api.signOut, jwt)
	g.POST("/token-refresh", api.refreshToken, jwt)
}

func (api *authAPI) respond(ctx echo.Context, code int, usr user.User, sess user.Session) error {
	token, err := GenerateToken(api.srv.Conf, GetUserClaims(api.srv.Conf, usr, sess))
	if err != nil {
		return err
	}
	isAdmin, err := api.svc.IsAdmin(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "checking admin rights")
	}
	return ctx.JSON(code, AuthResponse{Token: token, User: usr, IsAdmin: isAdmin})
}

func (api *authAPI) signIn(ctx echo.Context) error {
	var data user.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	usr, sess, err := api.svc.SignIn(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing in")
	}
	return api.respond(ctx, http.StatusOK, usr, sess)
}

func (api *authAPI) signUp(ctx echo.Context) error {
	var data user.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	usr, sess, err := api.svc.SignUp(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up")
	}
	return api.respond(ctx, http.StatusCreated, usr, sess)
}

func (api *authAPI) google(ctx echo.Context) error {
	var data GoogleSignInRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GoogleSignInRequest")
	}
	usr, sess, err := api.svc.SignInWithGoogle(ctx.Request().Context(), data.IDToken)
	if err != nil {
		return errors.Wrap(err, "signing in with Google")
	}
	return api.respond(ctx, http.StatusOK, usr, sess)
}

func (api *authAPI) signOut(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.SignOut(ctx.Request().Context(), claims.SessionID); err != nil {
		return errors.Wrap(err, "signing out")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authAPI) refreshToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(api.srv.Conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return errRefreshExpired
	}

	usr, err := api.svc.ValidateSession(ctx.Request().Context(), claims.SessionID, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "validating session")
	}

	newClaims := GetUserClaims(api.srv.Conf, usr, user.Session{ID: claims.SessionID}, claims.OrigIssuedAt)
	token, err := GenerateToken(api.srv.Conf, newClaims)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}
