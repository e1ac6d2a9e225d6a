package delivery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ecs_event_collector/internal/config"
	"ecs_event_collector/internal/models"
)

// fakeS3 answers the two calls the uploader makes: HEAD bucket and PUT object.
type fakeS3 struct {
	mu          sync.Mutex
	bucket      string
	putPath     string
	putBody     []byte
	contentType string
	truncated   string
	putStatus   int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		if strings.Trim(r.URL.Path, "/") != f.bucket {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.putPath = r.URL.Path
		f.putBody = body
		f.contentType = r.Header.Get("Content-Type")
		f.truncated = r.Header.Get("X-Amz-Meta-Truncated")
		if f.putStatus != 0 {
			w.WriteHeader(f.putStatus)
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestUploader(t *testing.T, fake *fakeS3, bucket string) *Uploader {
	t.Helper()
	ts := httptest.NewTLSServer(fake)
	t.Cleanup(ts.Close)

	u, err := NewUploader(config.S3Config{
		Bucket:    bucket,
		Endpoint:  ts.URL,
		AccessKey: "AKIA",
		SecretKey: config.Secret("secret"),
		Prefix:    "ecs/",
		Region:    "us-east-1",
	}, nil, WithTransport(ts.Client().Transport))
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}
	return u
}

func TestUploader_DeliverPutsObject(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{bucket: "audit"}
	u := newTestUploader(t, fake, "audit")

	payload := models.EventPayload{Body: []byte(`{"auditevent":[{"id":1}]}`), Format: models.FormatJSON, Truncated: true}
	if err := u.Deliver(context.Background(), payload, testWindow, models.FormatJSON); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if want := "/audit/ecs/ecs-events-20240301T000000Z-20240302T000000Z.json"; fake.putPath != want {
		t.Errorf("object path: want %q, got %q", want, fake.putPath)
	}
	if !bytes.Contains(fake.putBody, payload.Body) {
		t.Errorf("uploaded body does not contain the payload: %q", fake.putBody)
	}
	if fake.contentType != "application/json" {
		t.Errorf("Content-Type: got %q", fake.contentType)
	}
	if fake.truncated != "true" {
		t.Errorf("truncated metadata: got %q", fake.truncated)
	}
}

func TestUploader_DeliverFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{bucket: "audit", putStatus: http.StatusForbidden}
	u := newTestUploader(t, fake, "audit")

	err := u.Deliver(context.Background(), models.EventPayload{Body: []byte("<a/>"), Format: models.FormatXML}, testWindow, models.FormatXML)
	var derr *Error
	if !errors.As(err, &derr) || derr.Channel != ChannelS3 {
		t.Fatalf("expected s3 *Error, got %v", err)
	}
}

func TestUploader_Check(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{bucket: "audit"}
	if err := newTestUploader(t, fake, "audit").Check(context.Background()); err != nil {
		t.Errorf("existing bucket: %v", err)
	}
	if err := newTestUploader(t, fake, "missing").Check(context.Background()); err == nil {
		t.Error("expected error for missing bucket")
	}
}

func TestSplitEndpoint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in         string
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{in: "s3.example.com:9021", wantHost: "s3.example.com:9021", wantSecure: true},
		{in: "https://s3.example.com", wantHost: "s3.example.com", wantSecure: true},
		{in: "http://127.0.0.1:9020/", wantHost: "127.0.0.1:9020", wantSecure: false},
		{in: "ftp://s3.example.com", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tc := range cases {
		host, secure, err := splitEndpoint(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("splitEndpoint(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || host != tc.wantHost || secure != tc.wantSecure {
			t.Errorf("splitEndpoint(%q) = %q, %v, %v", tc.in, host, secure, err)
		}
	}
}
