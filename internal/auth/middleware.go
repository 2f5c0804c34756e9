package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "authUserID"

var (
	errMissingSecret = errors.New("missing JWT secret")
	errInvalidToken  = errors.New("invalid token")
	errAudience      = errors.New("invalid audience")
	errSubject       = errors.New("missing subject")
)

// GetUserID retrieves the authenticated subject from context.
func GetUserID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(userIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	secret   string
	audience string
}

// NewVerifier trims and stores the signing secret and expected audience.
func NewVerifier(secret, audience string) *Verifier {
	return &Verifier{secret: strings.TrimSpace(secret), audience: strings.TrimSpace(audience)}
}

// Subject parses tokenString and returns its subject claim.
func (v *Verifier) Subject(tokenString string) (string, error) {
	if v.secret == "" {
		return "", errMissingSecret
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(v.secret), nil
	})
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}

	if v.audience != "" && !containsAudience(claims.Audience, v.audience) {
		return "", errAudience
	}
	if claims.Subject == "" {
		return "", errSubject
	}
	return claims.Subject, nil
}

// JWTMiddleware rejects requests without a valid bearer token and injects the user identity.
func JWTMiddleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractBearerToken(c.Request.Header.Get("Authorization"))
		if err != nil {
			unauthorized(c, err.Error())
			return
		}
		authenticate(c, v, tokenString)
	}
}

// OptionalJWTMiddleware lets anonymous requests through but rejects a bad token.
func OptionalJWTMiddleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Request.Header.Get("Authorization")
		if header == "" {
			c.Next()
			return
		}
		tokenString, err := extractBearerToken(header)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}
		authenticate(c, v, tokenString)
	}
}

func authenticate(c *gin.Context, v *Verifier, tokenString string) {
	subject, err := v.Subject(tokenString)
	if err != nil {
		unauthorized(c, err.Error())
		return
	}

	c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), subject))
	c.Set(string(userIDKey), subject)

	c.Next()
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("token missing")
	}
	return token, nil
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message, "category": "unauthorized"})
}

func containsAudience(claims jwt.ClaimStrings, expected string) bool {
	for _, aud := range claims {
		if aud == expected {
			return true
		}
	}
	return false
}
