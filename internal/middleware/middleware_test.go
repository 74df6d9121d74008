package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"patashala-backend/internal/access"
)

func echoCaller(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := GetCaller(r.Context())
		json.NewEncoder(w).Encode(map[string]string{"user_id": c.ID.String(), "role": c.Role})
	})
}

func TestJWTAuth_Middleware(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	userID := uuid.New()
	token, err := auth.GenerateAccessToken(userID, access.RoleFaculty)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	expiredStr, _ := expired.SignedString(auth.Secret)

	noRole := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(time.Minute).Unix(),
	})
	noRoleStr, _ := noRole.SignedString(auth.Secret)

	tests := []struct {
		name   string
		header string
		status int
		code   string
		role   string
	}{
		{"valid", "Bearer " + token, http.StatusOK, "", access.RoleFaculty},
		{"missing role defaults to learner", "Bearer " + noRoleStr, http.StatusOK, "", access.RoleLearner},
		{"missing header", "", http.StatusUnauthorized, "UNAUTHORIZED", ""},
		{"wrong scheme", "Token " + token, http.StatusUnauthorized, "UNAUTHORIZED", ""},
		{"expired", "Bearer " + expiredStr, http.StatusUnauthorized, "TOKEN_EXPIRED", ""},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized, "UNAUTHORIZED", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			auth.Middleware(echoCaller(t)).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if tc.status != http.StatusOK {
				var body map[string]map[string]string
				json.NewDecoder(rr.Body).Decode(&body)
				if body["error"]["code"] != tc.code {
					t.Fatalf("expected code %s, got %q", tc.code, body["error"]["code"])
				}
				return
			}
			var got map[string]string
			json.NewDecoder(rr.Body).Decode(&got)
			if got["user_id"] != userID.String() || got["role"] != tc.role {
				t.Fatalf("unexpected caller %v", got)
			}
		})
	}
}

func TestParseToken_RejectsOtherSecret(t *testing.T) {
	token, _ := NewJWTAuth("one").GenerateAccessToken(uuid.New(), access.RoleLearner)
	if _, err := NewJWTAuth("two").ParseToken(token); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRateLimiter_PerUser(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := rl.Middleware(ok)

	send := func(user uuid.UUID) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/attempt-sessions/x/answers", nil)
		req = req.WithContext(WithCaller(context.Background(), access.Caller{ID: user, Role: access.RoleLearner}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	alice, bob := uuid.New(), uuid.New()
	for i := 0; i < 2; i++ {
		if code := send(alice); code != http.StatusOK {
			t.Fatalf("expected request %d allowed, got %d", i+1, code)
		}
	}
	if code := send(alice); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send(bob); code != http.StatusOK {
		t.Fatalf("expected other user unaffected, got %d", code)
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()
	now := time.Now()
	rl.now = func() time.Time { return now }

	if !rl.Allow("k") || rl.Allow("k") {
		t.Fatal("expected one request allowed then blocked")
	}
	now = now.Add(2 * time.Minute)
	if !rl.Allow("k") {
		t.Fatal("expected window reset")
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if seen == "" || rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("expected generated request id echoed, got %q / %q", seen, rr.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc" {
		t.Fatalf("expected incoming id kept, got %q", seen)
	}
}
