package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.data[key], _ = value.(string)
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

const contributionRoute = "/api/v1/wallet/contributions"

func contributionRequest(body, key string) *http.Request {
	req := requestWithPattern(http.MethodPost, contributionRoute, contributionRoute, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"wallet contribution", http.MethodPost, contributionRoute, criticalIdempotencyTTL, true},
		{"withdrawal execute", http.MethodPost, "/api/v1/withdrawals/{requestId}/execute", criticalIdempotencyTTL, true},
		{"withdrawal create", http.MethodPost, "/api/v1/groups/{groupId}/withdrawals", defaultIdempotencyTTL, true},
		{"refund create", http.MethodPost, "/api/v1/groups/{groupId}/refunds", defaultIdempotencyTTL, true},
		{"group create", http.MethodPost, "/api/v1/groups", defaultIdempotencyTTL, true},
		{"recurring create", http.MethodPost, "/api/v1/recurring-contributions", defaultIdempotencyTTL, true},
		{"group list", http.MethodGet, "/api/v1/groups", 0, false},
		{"vote", http.MethodPost, "/api/v1/withdrawals/{requestId}/votes", 0, false},
		{"group sync", http.MethodPost, "/api/v1/groups/{groupId}/sync", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ttl, ok := routeTTL(tt.method, tt.pattern)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, ttl)
		})
	}
}

func TestIdempotencyRequiresUsableKey(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	})

	for _, key := range []string{"", strings.Repeat("k", maxIdempotencyKeyLen+1)} {
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, contributionRequest(`{"amount":"10"}`, key))
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, resp))
	}
	assert.False(t, called)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, contributionRequest(`{"amount":"10"}`, "abc"))
	require.Equal(t, http.StatusAccepted, first.Code)
	assert.Empty(t, first.Header().Get(idempotencyReplayHeader))

	replay := httptest.NewRecorder()
	mw(handler).ServeHTTP(replay, contributionRequest(`{"amount":"10"}`, "abc"))
	assert.Equal(t, http.StatusAccepted, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, "true", replay.Header().Get(idempotencyReplayHeader))
	assert.JSONEq(t, `{"ok":true}`, replay.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotencyRejectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), contributionRequest(`{"amount":"10"}`, "xyz"))

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, contributionRequest(`{"amount":"99"}`, "xyz"))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, resp))
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var nested *httptest.ResponseRecorder
	var calls int
	var handler http.Handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if nested == nil {
			// duplicate arrives while the first request still holds the claim
			nested = httptest.NewRecorder()
			mw(handler).ServeHTTP(nested, contributionRequest(`{"amount":"10"}`, "dup"))
		}
		w.WriteHeader(http.StatusCreated)
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, contributionRequest(`{"amount":"10"}`, "dup"))
	assert.Equal(t, http.StatusCreated, first.Code)
	require.NotNil(t, nested)
	assert.Equal(t, http.StatusConflict, nested.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	status := http.StatusServiceUnavailable
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, contributionRequest(`{"amount":"10"}`, "retry-me"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Empty(t, store.data)

	status = http.StatusCreated
	resp = httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, contributionRequest(`{"amount":"10"}`, "retry-me"))
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, 2, calls)
	assert.Len(t, store.data, 1)
}

func TestIdempotencyMatchesConcretePathUnderWildcardMount(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/withdrawals/7d1c/execute", "/api/v1/*", nil)
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestIdempotencyScopesKeysPerUser(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	for _, user := range []string{"user-a", "user-b"} {
		req := contributionRequest(`{"amount":"10"}`, "same")
		req = req.WithContext(WithUserID(req.Context(), user))
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}
