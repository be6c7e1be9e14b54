// Package auth issues and validates the bearer tokens identifying players and
// operators.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Role of a token holder
type Role string

const (
	RolePlayer   Role = "player"
	RoleOperator Role = "operator"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("forbidden")
)

// Claims are the token claims
type Claims struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies HS256 tokens
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator creates an authenticator. ttl <= 0 defaults to 24h.
func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue generates a token for userID with role
func (a *Authenticator) Issue(userID int64, role Role) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse validates a token and returns its claims
func (a *Authenticator) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != RolePlayer && claims.Role != RoleOperator {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

const claimsKey = "auth.claims"

// BearerToken extracts the token from the Authorization header or the token
// query parameter
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	return r.URL.Query().Get("token")
}

// Middleware rejects requests without a valid token. With roles given, the
// token must carry one of them.
func (a *Authenticator) Middleware(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := a.Parse(BearerToken(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if len(roles) > 0 && !hasRole(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrForbidden.Error()})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func hasRole(roles []Role, r Role) bool {
	for _, want := range roles {
		if want == r {
			return true
		}
	}
	return false
}

// FromGin returns the claims stored by Middleware
func FromGin(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
