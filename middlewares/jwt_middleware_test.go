package middlewares

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hseproject/models"

	"go.uber.org/zap"
)

const (
	testSecret = "test-secret"
	testIssuer = "hse-api"
)

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) models.MessageResponse {
	t.Helper()
	var msg models.MessageResponse
	if err := json.NewDecoder(rec.Body).Decode(&msg); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return msg
}

func actorEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ActorFromContext(r.Context()))
	})
}

func TestJWTMiddlewareResolvesActor(t *testing.T) {
	want := models.Actor{ID: "u-1", Name: "Alice", Role: models.RoleAdmin}
	token, err := IssueToken(testSecret, testIssuer, want, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/near-miss", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	JWTMiddleware(testSecret, testIssuer)(actorEcho()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var got models.Actor
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("actor = %+v, want %+v", got, want)
	}
}

func TestJWTMiddlewareDefaultsRole(t *testing.T) {
	token, err := IssueToken(testSecret, "", models.Actor{ID: "u-2"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	JWTMiddleware(testSecret, "")(actorEcho()).ServeHTTP(rec, req)

	var got models.Actor
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Role != models.RoleUser {
		t.Errorf("role = %q, want %q", got.Role, models.RoleUser)
	}
}

func TestJWTMiddlewareRejects(t *testing.T) {
	valid, _ := IssueToken(testSecret, testIssuer, models.Actor{ID: "u-1"}, time.Hour)
	forged, _ := IssueToken("other-secret", testIssuer, models.Actor{ID: "u-1"}, time.Hour)
	foreign, _ := IssueToken(testSecret, "someone-else", models.Actor{ID: "u-1"}, time.Hour)
	expired, _ := IssueToken(testSecret, testIssuer, models.Actor{ID: "u-1"}, -time.Minute)
	anonymous, _ := IssueToken(testSecret, testIssuer, models.Actor{}, time.Hour)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", "Authorization header required"},
		{"wrong scheme", "Token " + valid, "Invalid authorization header format"},
		{"bad signature", "Bearer " + forged, "Invalid token"},
		{"wrong issuer", "Bearer " + foreign, "Invalid token"},
		{"expired", "Bearer " + expired, "Invalid token"},
		{"garbage", "Bearer not.a.jwt", "Invalid token"},
		{"no subject", "Bearer " + anonymous, "Invalid token claims"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			called := false
			next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
			JWTMiddleware(testSecret, testIssuer)(next).ServeHTTP(rec, req)

			if called {
				t.Fatal("next handler was called")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if msg := decodeMessage(t, rec); msg.Message != tt.want {
				t.Errorf("message = %q, want %q", msg.Message, tt.want)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Errorf("incoming id not reused: ctx %q header %q", seen, rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != 36 {
		t.Errorf("generated id = %q", seen)
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("header %q != context %q", rec.Header().Get("X-Request-ID"), seen)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if msg := decodeMessage(t, rec); msg.Message != "Internal server error" {
		t.Errorf("message = %q", msg.Message)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("first"), mark("second"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := strings.Join(order, ","); got != "first,second,handler" {
		t.Errorf("order = %s", got)
	}
}

func TestLoggerAndMetricsPassThrough(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}), RequestID, Logger(zap.NewNop()), Metrics)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot || rec.Body.String() != "short and stout" {
		t.Errorf("got %d %q", rec.Code, rec.Body)
	}
}
