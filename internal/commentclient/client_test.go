package commentclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestForBlog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/comments/b1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"comments":[
			{"_id":"c1","content":"nice","user":{"_id":"u2","username":"bob"}},
			{"_id":"c2","content":"agreed","user":{"_id":"u3"}}
		]}`))
	}))
	defer srv.Close()

	comments, err := NewClient(srv.URL).ForBlog(context.Background(), "b1")
	if err != nil {
		t.Fatalf("for blog: %v", err)
	}
	if len(comments) != 2 || comments[0].User.Username != "bob" {
		t.Fatalf("unexpected comments: %+v", comments)
	}
}

func TestAdd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/comments/add-comment" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["content"] != "hello" || payload["userId"] != "u1" || payload["blogId"] != "b1" {
			t.Errorf("unexpected payload: %v", payload)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"comment":{"_id":"c9","content":"hello","user":{"_id":"u1"}}}`))
	}))
	defer srv.Close()

	comment, err := NewClient(srv.URL).Add(context.Background(), "hello", "u1", "b1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if comment.ID != "c9" || comment.Content != "hello" {
		t.Fatalf("unexpected comment: %+v", comment)
	}
}

func TestAddRejectedUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"message":"content required"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Add(context.Background(), "", "u1", "b1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "content required" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestForBlogNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ForBlog(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
