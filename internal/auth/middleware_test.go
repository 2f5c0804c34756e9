package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/whoami", mw, func(c *gin.Context) {
		userID, _ := GetUserID(c.Request.Context())
		c.String(http.StatusOK, userID)
	})
	return router
}

func serve(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestJWTMiddlewareInjectsSubject(t *testing.T) {
	router := newRouter(JWTMiddleware(NewVerifier(testSecret, "")))
	token := signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	resp := serve(router, "Bearer "+token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.String() != "user-123" {
		t.Fatalf("unexpected subject: %s", resp.Body.String())
	}
}

func TestJWTMiddlewareRejectsMissingHeader(t *testing.T) {
	resp := serve(newRouter(JWTMiddleware(NewVerifier(testSecret, ""))), "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestJWTMiddlewareRejectsWrongSecret(t *testing.T) {
	token := signToken(t, "other", jwt.RegisteredClaims{Subject: "user"})
	resp := serve(newRouter(JWTMiddleware(NewVerifier(testSecret, ""))), "Bearer "+token)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestJWTMiddlewareChecksAudience(t *testing.T) {
	token := signToken(t, testSecret, jwt.RegisteredClaims{Subject: "user", Audience: jwt.ClaimStrings{"other"}})
	resp := serve(newRouter(JWTMiddleware(NewVerifier(testSecret, "mood-check"))), "Bearer "+token)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestOptionalJWTMiddlewareAllowsAnonymous(t *testing.T) {
	resp := serve(newRouter(OptionalJWTMiddleware(NewVerifier(testSecret, ""))), "")
	if resp.Code != http.StatusOK || resp.Body.String() != "" {
		t.Fatalf("expected anonymous 200, got %d %q", resp.Code, resp.Body.String())
	}
}

func TestOptionalJWTMiddlewareRejectsBadToken(t *testing.T) {
	resp := serve(newRouter(OptionalJWTMiddleware(NewVerifier(testSecret, ""))), "Bearer nonsense")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestVerifierWithoutSecret(t *testing.T) {
	if _, err := NewVerifier(" ", "").Subject("token"); err != errMissingSecret {
		t.Fatalf("expected errMissingSecret, got %v", err)
	}
}
