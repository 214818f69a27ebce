// Package auth resolves the caller's account from a session token issued by
// the account service. Tokens are only verified here, never issued.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vishesh2305/DAAN/internal/handler/response"
	"github.com/vishesh2305/DAAN/pkg/errno"
)

const accountKey = "daan.account"

// Claims carried by a session token. Account is the caller's ledger address.
type Claims struct {
	Account string `json:"account"`
	jwt.RegisteredClaims
}

type Session struct {
	Account   string
	ExpiresAt time.Time
}

type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("session hmac secret is required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify checks the HS256 signature, expiry and issuer of raw.
func (v *Verifier) Verify(raw string) (Session, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", errno.ErrTokenInvalid, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Session{}, errno.ErrTokenInvalid
	}
	if !common.IsHexAddress(claims.Account) {
		return Session{}, errno.ErrTokenInvalid.WithMessage("account is not an address")
	}

	s := Session{Account: common.HexToAddress(claims.Account).Hex()}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Middleware rejects requests without a valid "Authorization: Bearer" token
// and stores the verified account for handlers.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			response.Error(c, errno.ErrUnauthorized)
			c.Abort()
			return
		}
		s, err := v.Verify(strings.TrimSpace(raw))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(accountKey, s.Account)
		c.Next()
	}
}

// Account returns the verified caller, or "" outside Middleware.
func Account(c *gin.Context) string {
	return c.GetString(accountKey)
}
