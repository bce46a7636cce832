package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const contextIdentity = "identity"

// AuthMiddleware validates a Bearer HS256 token and stores the caller's
// identity in the gin context
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortWithError(c, apperr.Unauthenticated("missing bearer token"))
			return
		}

		identity, err := ParseToken(secret, parts[1])
		if err != nil {
			abortWithError(c, apperr.Unauthenticated("invalid or expired token"))
			return
		}

		c.Set(contextIdentity, identity)
		c.Next()
	}
}

// RequireRole rejects callers whose role differs from role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if identityFrom(c).Role != role {
			abortWithError(c, apperr.Forbidden("%s role required", strings.ToLower(role)))
			return
		}
		c.Next()
	}
}

// ParseToken verifies raw and extracts the identity from its sub and role claims
func ParseToken(secret, raw string) (models.Identity, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return models.Identity{}, err
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return models.Identity{}, errors.New("invalid claims")
	}

	var id int64
	switch sub := claims["sub"].(type) {
	case float64:
		id = int64(sub)
	case string:
		id, err = strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return models.Identity{}, fmt.Errorf("invalid subject: %w", err)
		}
	}
	if id <= 0 {
		return models.Identity{}, errors.New("missing subject")
	}

	role, _ := claims["role"].(string)
	role = strings.ToUpper(role)
	if role != models.RoleAdmin {
		role = models.RoleCustomer
	}

	return models.Identity{CustomerID: id, Role: role}, nil
}

// IssueToken signs a token for identity valid for ttl
func IssueToken(secret string, identity models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatInt(identity.CustomerID, 10),
		"role": identity.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return tok.SignedString([]byte(secret))
}

func identityFrom(c *gin.Context) models.Identity {
	if v, ok := c.Get(contextIdentity); ok {
		if identity, ok := v.(models.Identity); ok {
			return identity
		}
	}
	return models.Identity{}
}
