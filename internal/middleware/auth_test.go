package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/TheOliver413/taskmanager-back/internal/config"
	"github.com/TheOliver413/taskmanager-back/internal/logger"
	"github.com/TheOliver413/taskmanager-back/internal/middleware"
)

const (
	testSecret = "test-secret-key-for-middleware-0123456789"
	testIssuer = "taskmanager-auth"
)

func enabledAuth() config.Auth {
	return config.Auth{Enabled: true, JWTSecret: testSecret, Issuer: testIssuer}
}

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func validClaims(sub any) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": sub,
		"iss": testIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

// actorEcho responds with the actor id found in the context.
func actorEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		if logger.ActorID(r.Context()) != id {
			t.Errorf("logger actor id = %d, want %d", logger.ActorID(r.Context()), id)
		}
		_ = json.NewEncoder(w).Encode(map[string]int64{"actor": id})
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeActor(t *testing.T, rec *httptest.ResponseRecorder) int64 {
	t.Helper()
	var body map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v (status %d)", err, rec.Code)
	}
	return body["actor"]
}

func TestAuth_Disabled_InjectsDefaultActor(t *testing.T) {
	h := middleware.Auth(nil, config.Auth{Enabled: false, DefaultActorID: 4})(actorEcho(t))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/tasks", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeActor(t, rec); got != 4 {
		t.Errorf("actor = %d, want 4", got)
	}
}

func TestAuth_Enabled(t *testing.T) {
	cfg := enabledAuth()
	h := middleware.Auth(middleware.NewTokenVerifier(cfg.JWTSecret, cfg.Issuer), cfg)(actorEcho(t))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantActor  int64
	}{
		{"no header", "", http.StatusUnauthorized, 0},
		{"not bearer", "Basic abc", http.StatusUnauthorized, 0},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, 0},
		{"string sub", "Bearer " + signToken(t, validClaims("12"), testSecret), http.StatusOK, 12},
		{"numeric sub", "Bearer " + signToken(t, validClaims(7), testSecret), http.StatusOK, 7},
		{"wrong secret", "Bearer " + signToken(t, validClaims("12"), "another-secret-another-secret-xx"), http.StatusUnauthorized, 0},
		{"non numeric sub", "Bearer " + signToken(t, validClaims("abc"), testSecret), http.StatusUnauthorized, 0},
		{"wrong issuer", "Bearer " + signToken(t, jwt.MapClaims{"sub": "1", "iss": "other", "exp": time.Now().Add(time.Hour).Unix()}, testSecret), http.StatusUnauthorized, 0},
		{"expired", "Bearer " + signToken(t, jwt.MapClaims{"sub": "1", "iss": testIssuer, "exp": time.Now().Add(-time.Hour).Unix()}, testSecret), http.StatusUnauthorized, 0},
		{"no expiry", "Bearer " + signToken(t, jwt.MapClaims{"sub": "1", "iss": testIssuer}, testSecret), http.StatusUnauthorized, 0},
		{"user_id fallback", "Bearer " + signToken(t, jwt.MapClaims{"user_id": "9", "iss": testIssuer, "exp": time.Now().Add(time.Hour).Unix()}, testSecret), http.StatusOK, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/tasks", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(h, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantActor != 0 {
				if got := decodeActor(t, rec); got != tt.wantActor {
					t.Errorf("actor = %d, want %d", got, tt.wantActor)
				}
			}
		})
	}
}

func TestAuth_ExpiredTokenMessage(t *testing.T) {
	cfg := enabledAuth()
	h := middleware.Auth(middleware.NewTokenVerifier(cfg.JWTSecret, cfg.Issuer), cfg)(actorEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/tasks", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "1", "iss": testIssuer, "exp": time.Now().Add(-time.Minute).Unix()}, testSecret))
	rec := serve(h, req)

	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["error"] != "token has expired" {
		t.Errorf("error = %q, want token has expired", body["error"])
	}
}

func TestAuth_WebSocketTokenQuery(t *testing.T) {
	cfg := enabledAuth()
	h := middleware.Auth(middleware.NewTokenVerifier(cfg.JWTSecret, cfg.Issuer), cfg)(actorEcho(t))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/ws", http.NoBody))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	tok := signToken(t, validClaims("5"), testSecret)
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/ws?token="+tok, http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", rec.Code)
	}
	if got := decodeActor(t, rec); got != 5 {
		t.Errorf("actor = %d, want 5", got)
	}
}

func TestAuth_PublicPathsSkipAuth(t *testing.T) {
	cfg := enabledAuth()
	h := middleware.Auth(middleware.NewTokenVerifier(cfg.JWTSecret, cfg.Issuer), cfg)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	for _, path := range []string{"/health", "/health/ready"} {
		rec := serve(h, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}
