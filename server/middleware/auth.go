package middleware

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	apperrors "github.com/hrygo/callsight/internal/errors"
	"github.com/hrygo/callsight/server/internal/observability"
)

const (
	// UserIDContextKey is the echo context key holding the authenticated user id.
	UserIDContextKey = "callsight.user_id"

	// TokenIssuer is the iss claim of tokens minted by IssueToken.
	TokenIssuer = "callsight"

	bearerPrefix = "Bearer "
)

// Authenticator verifies HS256 bearer tokens whose sub claim is the user id.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator creates an authenticator for tokens signed with secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// IssueToken mints a token for userID that expires after ttl.
func (a *Authenticator) IssueToken(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// Authenticate returns the user id carried by an Authorization header value.
func (a *Authenticator) Authenticate(header string) (string, error) {
	raw, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || strings.TrimSpace(raw) == "" {
		return "", errors.New("missing bearer token")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", errors.Wrap(err, "invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// RequireAuth rejects requests without a valid bearer token and records the
// caller on the echo context and the request logger.
func RequireAuth(a *Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := a.Authenticate(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				observability.LoggerFromContext(c.Request().Context()).Debug("authentication failed", "error", err)
				return apperrors.Unauthorized("authentication required")
			}

			c.Set(UserIDContextKey, userID)
			if reqCtx, ok := observability.FromContext(c.Request().Context()); ok {
				reqCtx.UserID = userID
			}
			return next(c)
		}
	}
}

// UserID returns the authenticated user id, or "" outside RequireAuth.
func UserID(c echo.Context) string {
	userID, _ := c.Get(UserIDContextKey).(string)
	return userID
}
