package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap/zaptest"

	"github.com/facilitydesk/chatsync/internal/wire"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/fetchMaster.php" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		var req historyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Operation != OperationChatHistory || req.UserID != "42" {
			t.Errorf("request body = %+v", req)
		}
		_, _ = w.Write([]byte(`{"status":"success","data":[
			{"chat_id":"1","message":"hi","created_at":"2026-03-01 12:00:00","sender_id":"7","receiver_id":"42","sender_pic":"p.png"}
		]}`))
	}))
	defer srv.Close()

	c := NewHistoryClient(Config{
		BaseURL:   srv.URL + "/api/",
		Token:     "tok",
		Operation: OperationChatHistory,
	}, nil, zaptest.NewLogger(t))

	page, err := c.Fetch(context.Background(), "42")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].SenderPic != "p.png" {
		t.Errorf("page = %+v", page)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !page.Items[0].CreatedAt.Equal(want) {
		t.Errorf("created_at = %v, want %v", page.Items[0].CreatedAt, want)
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		body       string
		wantStatus int
		malformed  bool
	}{
		{"server error", http.StatusInternalServerError, "boom", http.StatusInternalServerError, false},
		{"not found", http.StatusNotFound, "", http.StatusNotFound, false},
		{"backend refused", http.StatusOK, `{"status":false,"message":"bad user"}`, http.StatusOK, true},
		{"not json", http.StatusOK, `<html>`, http.StatusOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewHistoryClient(Config{BaseURL: srv.URL}, nil, nil)
			_, err := c.Fetch(context.Background(), "42")

			var ferr *HistoryFetchError
			if !errors.As(err, &ferr) {
				t.Fatalf("err = %v, want *HistoryFetchError", err)
			}
			if ferr.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", ferr.StatusCode, tt.wantStatus)
			}
			if got := errors.Is(err, wire.ErrMalformedPayload); got != tt.malformed {
				t.Errorf("malformed = %v, want %v", got, tt.malformed)
			}
		})
	}
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewHistoryClient(Config{BaseURL: url, Timeout: time.Second}, nil, nil)
	_, err := c.Fetch(context.Background(), "42")
	var ferr *HistoryFetchError
	if !errors.As(err, &ferr) || ferr.StatusCode != 0 {
		t.Fatalf("err = %v, want transport HistoryFetchError", err)
	}
}

func TestFetchTooLarge(t *testing.T) {
	body := `{"status":"success","data":[]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body + strings.Repeat(" ", 64)))
	}))
	defer srv.Close()

	c := NewHistoryClient(Config{BaseURL: srv.URL, MaxBody: int64(len(body))}, nil, nil)
	_, err := c.Fetch(context.Background(), "42")
	var ferr *HistoryFetchError
	if !errors.As(err, &ferr) || !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("err = %v, want ErrResponseTooLarge", err)
	}
	if errors.Is(err, wire.ErrMalformedPayload) {
		t.Error("oversized body reported as malformed")
	}

	// Exactly at the limit is fine.
	c = NewHistoryClient(Config{BaseURL: srv.URL, MaxBody: int64(len(body)) + 64}, nil, nil)
	if _, err := c.Fetch(context.Background(), "42"); err != nil {
		t.Errorf("at limit: %v", err)
	}
}

func TestSnippetKeepsRunes(t *testing.T) {
	s := strings.Repeat("a", snippetLen-1) + "é" + "tail"
	got := snippet([]byte(s))
	if !utf8.ValidString(got) {
		t.Fatalf("snippet split a rune: %q", got[len(got)-3:])
	}
	if got != strings.Repeat("a", snippetLen-1) {
		t.Errorf("len = %d, want %d", len(got), snippetLen-1)
	}
	if snippet([]byte("  ")) != "empty body" {
		t.Error("blank body not reported as empty")
	}
}
