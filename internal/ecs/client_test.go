package ecs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestSend_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/login", nil)
	resp, err := newTestClient(t, ts).Send(context.Background(), req, DefaultMaxRetries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
}

func TestSend_ExhaustsBudget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		maxRetries   int
		status       int
		wantAttempts int32
	}{
		{name: "server error", maxRetries: 3, status: http.StatusInternalServerError, wantAttempts: 3},
		{name: "client error is not special", maxRetries: 3, status: http.StatusUnauthorized, wantAttempts: 3},
		{name: "redirect class counts as failure", maxRetries: 2, status: http.StatusNotModified, wantAttempts: 2},
		{name: "non-positive budget uses default", maxRetries: 0, status: http.StatusBadGateway, wantAttempts: 3},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
			}))
			defer ts.Close()

			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/vdc/events", nil)
			_, err := newTestClient(t, ts).Send(context.Background(), req, tc.maxRetries)

			var exhausted *RequestExhaustedError
			if !errors.As(err, &exhausted) {
				t.Fatalf("expected *RequestExhaustedError, got %v", err)
			}
			if exhausted.Attempts != int(tc.wantAttempts) {
				t.Errorf("Attempts: want %d, got %d", tc.wantAttempts, exhausted.Attempts)
			}
			if exhausted.LastStatus != tc.status {
				t.Errorf("LastStatus: want %d, got %d", tc.status, exhausted.LastStatus)
			}
			if exhausted.Method != http.MethodGet || !strings.HasSuffix(exhausted.URL, "/vdc/events") {
				t.Errorf("unexpected request identity %s %s", exhausted.Method, exhausted.URL)
			}
			if got := calls.Load(); got != tc.wantAttempts {
				t.Errorf("server saw %d calls, want %d", got, tc.wantAttempts)
			}
		})
	}
}

func TestSend_TransportErrorsConsumeBudget(t *testing.T) {
	t.Parallel()

	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, ts)
	url := ts.URL + "/login"
	ts.Close()

	req, _ := http.NewRequest(http.MethodGet, url, nil)
	_, err := c.Send(context.Background(), req, 3)

	var exhausted *RequestExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *RequestExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 || exhausted.LastStatus != 0 || exhausted.Err == nil {
		t.Errorf("unexpected exhaustion details: %+v", exhausted)
	}
}

func TestSend_RequestIsResentUnchanged(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var mismatch atomic.Bool
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderAuthToken) != "tok" || r.URL.Query().Get("start_time") != "2024-03-01T00:00:00Z" {
			mismatch.Store(true)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/vdc/events?start_time=2024-03-01T00:00:00Z", nil)
	req.Header.Set(HeaderAuthToken, "tok")
	resp, err := newTestClient(t, ts).Send(context.Background(), req, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if mismatch.Load() {
		t.Error("retried request differs from the original")
	}
}

func TestSend_StopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/login", nil)
	_, err := newTestClient(t, ts).Send(ctx, req, 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("no attempt should reach the server, got %d", calls.Load())
	}
}

func TestWithHTTPClient_ForcesAttemptTimeout(t *testing.T) {
	t.Parallel()

	c, err := NewClient(WithHTTPClient(&http.Client{}))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.http.Timeout != attemptTimeout {
		t.Errorf("timeout: want %v, got %v", attemptTimeout, c.http.Timeout)
	}
	if _, err := NewClient(WithHTTPClient(nil)); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestWithTLSConfig_BadCAFile(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(WithTLSConfig("/does/not/exist.pem", false)); err == nil {
		t.Fatal("expected error for missing CA file")
	}
}

func TestStepName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://h/login":      "login",
		"https://h/vdc/events": "vdc_events",
		"https://h/":           "root",
	}
	for raw, want := range cases {
		req, _ := http.NewRequest(http.MethodGet, raw, nil)
		if got := stepName(req); got != want {
			t.Errorf("stepName(%s) = %q, want %q", raw, got, want)
		}
	}
}
