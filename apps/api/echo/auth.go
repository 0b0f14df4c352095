package echoapi

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/user"
)

const (
	tokenContextKey = "userToken"
	userContextKey  = "user"
	tokenAudience   = "Shule"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	OrigIssuedAt int64     `json:"oriat,omitempty"`
	Username     string    `json:"username,omitempty"`
	Email        string    `json:"email,omitempty"`
	Role         user.Role `json:"role,omitempty"`
}

type authenticator struct {
	conf  *core.Config
	users *user.Service
}

func (a authenticator) signingKey() []byte { return []byte(a.conf.SecretKey) }

func (a authenticator) jwtMiddleware() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:     tokenContextKey,
		ParseTokenFunc: a.parseToken,
		ErrorHandler: func(ctx echo.Context, err error) error {
			if ctx.Request().Header.Get(echo.HeaderAuthorization) == "" {
				return errMissingToken
			}
			return errInvalidToken
		},
	})
}

func (a authenticator) parseToken(_ echo.Context, auth string) (interface{}, error) {
	token, err := jwt.ParseWithClaims(auth, new(Claims), func(*jwt.Token) (interface{}, error) {
		return a.signingKey(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.conf.AppName),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(core.Now),
	)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// claimsFor builds the claims of a new token; origIat is carried over on refresh.
func (a authenticator) claimsFor(usr user.User, origIat ...int64) *Claims {
	now := core.Now()
	oriat := now.Unix()
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(a.conf.Server.JWTExpirationDelta)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
		Role:         usr.Role,
	}
}

// generateToken generates a signed JWT token string representing the user Claims.
func (a authenticator) generateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(a.signingKey())
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a authenticator) authenticate(ctx echo.Context, uname, pwd string) (string, error) {
	c := ctx.Request().Context()
	usr, err := a.users.GetByUsernameOrEmail(c, uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return "", errAuthenticationFailed
		}
		return "", errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return "", errAuthenticationFailed
	}
	if !usr.IsActive {
		return "", errAccountDeactivated
	}
	if usr, err = a.users.SetLastLogin(c, usr); err != nil {
		return "", errors.Wrap(err, "setting last login")
	}
	return a.generateToken(a.claimsFor(usr))
}

func (a authenticator) refresh(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return "", err
	}

	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if core.Now().After(expTime) {
		return "", errRefreshExpired
	}
	return a.generateToken(a.claimsFor(usr, claims.OrigIssuedAt))
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextUser returns the requester, loaded by the authenticated middleware.
func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(userContextKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

func getSubject(ctx echo.Context) (access.Subject, error) {
	usr, err := getContextUser(ctx)
	if err != nil {
		return access.Subject{}, err
	}
	return access.SubjectOf(usr), nil
}

// authenticated loads the requester from the token subject, then logs the request for analytics.
func (s *Server) authenticated(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		usr, err := s.deps.UserSvc.GetByID(ctx.Request().Context(), claims.Subject)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return errUnauthorized
			}
			return errors.Wrap(err, "finding user by ID")
		}
		if !usr.IsActive {
			return errAccountDeactivated
		}
		ctx.Set(userContextKey, usr)

		err = next(ctx)

		if rErr := s.deps.AnalyticsSvc.RecordRequest(ctx.Request().Context(), usr.ID, ctx.Path(), ctx.Request().Method); rErr != nil {
			s.deps.Logger.Error("recording api request", rErr, usr)
		}
		return err
	}
}
