// Package api exposes the engine's control surface over HTTP: start/
// stop, run/stop strategy, status, and account queries. Grounded on
// api/tactics.go's gin handler style (handle* methods
// on a Server, gin.H JSON responses, auth state read off the gin
// context), with JWT bearer auth and a TOTP-gated admin tier adapted
// from the JWT HMAC-parsing middleware and totp.Validate usage visible
// in DimaJoyti-ai-agentic-crypto-browser's auth package, since the
// teacher's own go.mod carries golang-jwt/jwt/v5 and pquerna/otp but
// the retrieved tactics.go file never exercises them directly.
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
)

// Claims is the control API's JWT payload: a subject identifying the
// operator plus the registered claims golang-jwt/jwt/v5 validates
// (expiry, issuer) for free.
type Claims struct {
	Subject string `json:"sub"`
	Admin   bool   `json:"admin"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates HMAC-signed control API tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer constructs an issuer using the given HMAC secret.
func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: secret, issuer: issuer, ttl: ttl}
}

// Issue mints a signed token for subject, optionally granting the admin
// claim that gates TOTP-protected actions.
func (ti *TokenIssuer) Issue(subject string, admin bool) (string, error) {
	now := time.Now()
	claims := Claims{
		Subject: subject,
		Admin:   admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ti.secret)
}

// Parse validates tokenString's signature and expiry and returns its
// claims.
func (ti *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("api: unexpected signing method %v", t.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("api: invalid token")
	}
	return claims, nil
}

// authMiddleware rejects any request without a valid
// "Authorization: Bearer <token>" header and sets user_id/is_admin in
// the gin context for downstream handlers.
func authMiddleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := issuer.Parse(strings.TrimPrefix(header, prefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token: " + err.Error()})
			return
		}
		c.Set("user_id", claims.Subject)
		c.Set("is_admin", claims.Admin)
		c.Next()
	}
}

// adminTOTPMiddleware additionally requires the admin claim and a
// valid X-TOTP-Code header for actions that can halt or force-close
// trading, a second factor beyond the bearer token alone.
func adminTOTPMiddleware(totpSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		isAdmin, _ := c.Get("is_admin")
		if admin, ok := isAdmin.(bool); !ok || !admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin claim required"})
			return
		}
		code := c.GetHeader("X-TOTP-Code")
		if code == "" || !totp.Validate(code, totpSecret) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid or missing TOTP code"})
			return
		}
		c.Next()
	}
}
