package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestGetJSON はGETリクエストの送信とデシリアライズを検証する。
func TestGetJSON(t *testing.T) {
	t.Parallel()

	t.Run("正常にレスポンスをデシリアライズできる", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("メソッド: got %s, want GET", r.Method)
			}
			if r.URL.Path != "/api/v1/locations/loc-1" {
				t.Errorf("パス: got %s, want /api/v1/locations/loc-1", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"loc-1","name":"テーブル2"}`)
		}))
		t.Cleanup(server.Close)

		var result map[string]string
		err := New(server.URL).GetJSON(context.Background(), "/api/v1/locations/loc-1", &result)
		if err != nil {
			t.Fatalf("GetJSONに失敗: %v", err)
		}
		if result["name"] != "テーブル2" {
			t.Errorf("name: got %v, want テーブル2", result["name"])
		}
	})

	t.Run("404の場合はErrNotFoundを返す", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		t.Cleanup(server.Close)

		err := New(server.URL).GetJSON(context.Background(), "/api/v1/locations/missing", nil)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("エラー: got %v, want ErrNotFound", err)
		}
	})

	t.Run("5xxの場合はエラーを返す", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(server.Close)

		err := New(server.URL).GetJSON(context.Background(), "/api/v1/orders", nil)
		if err == nil {
			t.Error("エラーが返されるべきです")
		}
		if errors.Is(err, ErrNotFound) {
			t.Error("ErrNotFound以外のエラーが返されるべきです")
		}
	})
}

// TestPostJSON はPOSTリクエストの送信を検証する。
func TestPostJSON(t *testing.T) {
	t.Parallel()

	t.Run("リクエストボディがJSONとして送信される", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("メソッド: got %s, want POST", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type: got %s, want application/json", ct)
			}

			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("リクエストボディのデコードに失敗: %v", err)
			}
			if body["location_id"] != "loc-1" {
				t.Errorf("location_id: got %v, want loc-1", body["location_id"])
			}

			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":"call-1"}`)
		}))
		t.Cleanup(server.Close)

		var result map[string]string
		err := New(server.URL).PostJSON(context.Background(), "/api/v1/calls", map[string]string{"location_id": "loc-1"}, &result)
		if err != nil {
			t.Fatalf("PostJSONに失敗: %v", err)
		}
		if result["id"] != "call-1" {
			t.Errorf("id: got %v, want call-1", result["id"])
		}
	})

	t.Run("シリアライズできないボディの場合はエラー", func(t *testing.T) {
		t.Parallel()

		err := New("http://localhost:0").PostJSON(context.Background(), "/api/v1/calls", make(chan int), nil)
		if err == nil {
			t.Error("エラーが返されるべきです")
		}
	})
}

// TestPutJSON はPUTリクエストの送信を検証する。
func TestPutJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("メソッド: got %s, want PUT", r.Method)
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"message":"対応済みにしました"}`)
	}))
	t.Cleanup(server.Close)

	err := New(server.URL).PutJSON(context.Background(), "/api/v1/calls/call-1/resolve", nil, nil)
	if err != nil {
		t.Fatalf("PutJSONに失敗: %v", err)
	}
}

// TestWithStaffID はスタッフIDのヘッダー伝播を検証する。
func TestWithStaffID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Staff-ID"); got != "staff-1" {
			t.Errorf("X-Staff-ID: got %q, want %q", got, "staff-1")
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	ctx := WithStaffID(context.Background(), "staff-1")
	if err := New(server.URL).GetJSON(ctx, "/api/v1/orders", nil); err != nil {
		t.Fatalf("GetJSONに失敗: %v", err)
	}
}
