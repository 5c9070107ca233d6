package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"xpost/internal/publish"
	"xpost/pkg/logx"
)

func TestCreatePostSendsReplyAndQuoteFields(t *testing.T) {
	t.Parallel()
	var got createPostBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-123" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"777"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, BearerToken: "token-123"}, logx.Nop())
	id, err := c.CreatePost(context.Background(), publish.PostRequest{
		Text:      "hello",
		InReplyTo: "555",
		MediaIDs:  []string{"m1"},
	})
	if err != nil {
		t.Fatalf("CreatePost error: %v", err)
	}
	if id != "777" {
		t.Fatalf("post id = %q, want 777", id)
	}
	if got.Text != "hello" || got.Reply == nil || got.Reply.InReplyToID != "555" {
		t.Fatalf("request body = %+v", got)
	}
	if got.Media == nil || len(got.Media.MediaIDs) != 1 || got.Media.MediaIDs[0] != "m1" {
		t.Fatalf("media ids not sent: %+v", got.Media)
	}
}

func TestCreatePostRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"1"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 2}, logx.Nop())
	id, err := c.CreatePost(context.Background(), publish.PostRequest{Text: "retry me"})
	if err != nil {
		t.Fatalf("CreatePost error: %v", err)
	}
	if id != "1" {
		t.Fatalf("post id = %q", id)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("server called %d times, want 2", n)
	}
}

func TestCreatePostExhaustedRetriesReportsLastStatus(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 1}, logx.Nop())
	_, err := c.CreatePost(context.Background(), publish.PostRequest{Text: "throttled"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("CreatePost = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Body, "rate limit exceeded") {
		t.Fatalf("response body lost: %q", apiErr.Body)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("server called %d times, want 2", n)
	}
}

func TestCreatePostDoesNotRetryClientError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail":"duplicate content"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 3}, logx.Nop())
	_, err := c.CreatePost(context.Background(), publish.PostRequest{Text: "dup"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("CreatePost = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("client error retried (%d calls)", n)
	}
}

func TestUploadMedia(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1.1/media/upload.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("media_data") == "" {
			t.Error("media_data missing")
		}
		_, _ = w.Write([]byte(`{"media_id_string":"m-42"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(path, []byte("not really a png"), 0o644); err != nil {
		t.Fatalf("write media file: %v", err)
	}

	c := New(Config{UploadBaseURL: srv.URL}, logx.Nop())
	id, err := c.UploadMedia(context.Background(), path)
	if err != nil {
		t.Fatalf("UploadMedia error: %v", err)
	}
	if id != "m-42" {
		t.Fatalf("media id = %q", id)
	}
}

func TestUploadMediaMissingFile(t *testing.T) {
	t.Parallel()
	c := New(Config{UploadBaseURL: "http://127.0.0.1:0"}, logx.Nop())
	if _, err := c.UploadMedia(context.Background(), filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatal("expected error for missing media file")
	}
}
