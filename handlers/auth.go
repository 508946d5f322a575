package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"curation-governance-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const callerKey = "caller"

var errMissingSubject = errors.New("token has no subject")

// IssueToken 签发HS256令牌，sub为调用方地址
func IssueToken(secret []byte, caller models.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   caller.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseCaller(secret []byte, raw string) (models.Address, error) {
	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	caller := models.Address(sub)
	if caller.IsZero() {
		return "", errMissingSubject
	}
	return caller, nil
}

// AuthMiddleware 校验Bearer令牌并把调用方地址放入上下文
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		caller, err := parseCaller(secret, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// callerOf 必须在AuthMiddleware之后调用
func callerOf(c *gin.Context) models.Address {
	v, _ := c.Get(callerKey)
	caller, _ := v.(models.Address)
	return caller
}
