package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	cfgpkg "github.com/mailroom-sh/mailroom/internal/config"
	"github.com/mailroom-sh/mailroom/internal/publisher"
	"github.com/mailroom-sh/mailroom/internal/runtime"
	pebblestore "github.com/mailroom-sh/mailroom/internal/storage/pebble"
	logpkg "github.com/mailroom-sh/mailroom/pkg/log"
)

func newTestServer(t *testing.T) (*Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Publisher.Username = "editor"
	cfg.Publisher.Password = "secret"
	return newTestServerWithConfig(t, cfg)
}

func newTestServerWithConfig(t *testing.T, cfg cfgpkg.Config) (*Server, *runtime.Runtime) {
	t.Helper()
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfg, Logger: logger})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	proc := publisher.NewProcessor(rt.DB(), rt.Issues(), rt.Idempotency(), rt.Subscribers(), rt.Queue(), logger)
	return New(rt, proc, logger), rt
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(s, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestPublishRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"title":"Issue 1","text_body":"hello"}`

	req := httptest.NewRequest(http.MethodPost, "/v1/issues/publish", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "k1")
	if w := do(s, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("no auth status: %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/issues/publish", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "k1")
	req.SetBasicAuth("editor", "wrong")
	if w := do(s, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status: %d", w.Code)
	}
}

func TestUnconfiguredPublisherRejectsEmptyCredentials(t *testing.T) {
	s, rt := newTestServerWithConfig(t, cfgpkg.Default())

	token, err := rt.Subscribers().Add(context.Background(), "victim@example.com", "V")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := rt.Subscribers().Confirm(context.Background(), token); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// empty Basic credentials must not match empty configured credentials
	req := httptest.NewRequest(http.MethodGet, "/v1/subscribers", nil)
	req.SetBasicAuth("", "")
	if w := do(s, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("list status: %d body %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/issues/publish", strings.NewReader(`{"title":"T","text_body":"b"}`))
	req.Header.Set("Idempotency-Key", "k1")
	req.SetBasicAuth("", "")
	if w := do(s, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("publish status: %d body %s", w.Code, w.Body.String())
	}
}

func TestPublishRequiresIdempotencyKey(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/issues/publish", strings.NewReader(`{"title":"T","text_body":"b"}`))
	req.SetBasicAuth("editor", "secret")
	if w := do(s, req); w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestPublishAndReplay(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"title":"Issue 1","text_body":"hello"}`

	publish := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/issues/publish", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "k1")
		req.SetBasicAuth("editor", "secret")
		return do(s, req)
	}
	first := publish()
	if first.Code != http.StatusCreated {
		t.Fatalf("status: %d body %s", first.Code, first.Body.String())
	}
	second := publish()
	if second.Code != first.Code || second.Body.String() != first.Body.String() {
		t.Fatalf("replay differs: %d %q vs %d %q", second.Code, second.Body.String(), first.Code, first.Body.String())
	}

	var res struct {
		IssueID  string `json:"issue_id"`
		Enqueued int    `json:"enqueued"`
	}
	if err := json.Unmarshal(first.Body.Bytes(), &res); err != nil || res.IssueID == "" {
		t.Fatalf("body %s err %v", first.Body.String(), err)
	}

	// the issue record is fetchable
	w := do(s, httptest.NewRequest(http.MethodGet, "/v1/issues/get?id="+res.IssueID, nil))
	if w.Code != 200 {
		t.Fatalf("get status: %d", w.Code)
	}
}

func TestPublishRejectsInvalidContent(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/issues/publish", strings.NewReader(`{"title":"  "}`))
	req.Header.Set("Idempotency-Key", "k1")
	req.SetBasicAuth("editor", "secret")
	if w := do(s, req); w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestSubscriberSignupAndConfirm(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/subscribers", strings.NewReader(`{"email":"u@example.com","name":"U"}`))
	w := do(s, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status: %d body %s", w.Code, w.Body.String())
	}
	var res struct {
		Status string `json:"status"`
		Token  string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.Token == "" {
		t.Fatalf("body %s err %v", w.Body.String(), err)
	}

	w = do(s, httptest.NewRequest(http.MethodPost, "/v1/subscribers/confirm?token="+res.Token, nil))
	if w.Code != 200 {
		t.Fatalf("confirm status: %d body %s", w.Code, w.Body.String())
	}
	// burned token
	w = do(s, httptest.NewRequest(http.MethodPost, "/v1/subscribers/confirm?token="+res.Token, nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("reused token status: %d", w.Code)
	}
}

func TestSubscriberSignupRejectsInvalid(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/subscribers", strings.NewReader(`{"email":"not-an-email","name":"U"}`))
	if w := do(s, req); w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestSubscriberListRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	if w := do(s, httptest.NewRequest(http.MethodGet, "/v1/subscribers", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("status: %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/subscribers", nil)
	req.SetBasicAuth("editor", "secret")
	if w := do(s, req); w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestTasksStatsAndFailedFilter(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(s, httptest.NewRequest(http.MethodGet, "/v1/tasks/stats", nil))
	if w.Code != 200 {
		t.Fatalf("stats status: %d", w.Code)
	}

	w = do(s, httptest.NewRequest(http.MethodGet, "/v1/tasks/failed?filter=attempts+%3E%3D+3", nil))
	if w.Code != 200 {
		t.Fatalf("failed status: %d body %s", w.Code, w.Body.String())
	}

	// malformed CEL is a client error
	w = do(s, httptest.NewRequest(http.MethodGet, "/v1/tasks/failed?filter=attempts+%3E%3E", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad filter status: %d", w.Code)
	}
}
