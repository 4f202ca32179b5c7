package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func ownerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetOwnerID(r.Context())))
	})
}

func TestAuthAcceptsValidToken(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": "owner-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	request := httptest.NewRequest(http.MethodGet, "/analytics/reports/scheduled", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()

	Auth(testSecret)(ownerEcho()).ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK || recorder.Body.String() != "owner-1" {
		t.Fatalf("expected owner in context, got %d %q", recorder.Code, recorder.Body.String())
	}
}

func TestAuthRejectsBadTokens(t *testing.T) {
	cases := map[string]string{
		"missing":      "",
		"wrong secret": "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "owner-1"}),
		"expired":      "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "owner-1", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no subject":   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"scope": "all"}),
		"not bearer":   "Basic abc",
	}
	for name, header := range cases {
		request := httptest.NewRequest(http.MethodGet, "/messages/ai/analyze", nil)
		if header != "" {
			request.Header.Set("Authorization", header)
		}
		recorder := httptest.NewRecorder()
		RequestID(Auth(testSecret)(ownerEcho())).ServeHTTP(recorder, request)

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, recorder.Code)
		}
		var envelope errorEnvelope
		if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("%s: decode envelope: %v", name, err)
		}
		if envelope.Error.Code != "unauthorized" || envelope.RequestID == "" || envelope.RequestID == "unknown" {
			t.Fatalf("%s: unexpected envelope %+v", name, envelope)
		}
	}
}

func TestAuthSkipsPublicPaths(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	Auth(testSecret, "/healthz")(ownerEcho()).ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected public path to pass, got %d", recorder.Code)
	}
}
