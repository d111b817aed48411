package loyalty

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer はテスト用のロイヤリティサーバーをインメモリSQLiteで構築する。
// JWTミドルウェアを適用せず、ハンドラの動作のみを検証する。
func setupTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()

	sqlDB, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	// インメモリDBは接続ごとに独立するため、接続を1つに固定する
	sqlDB.SetMaxOpenConns(1)

	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	router := gin.New()
	s := &Server{
		router: router,
		port:   "0",
		store:  NewStore(sqlDB),
		db:     sqlDB,
	}

	api := router.Group("/api/v1")
	{
		api.POST("/loyalty/members", s.handleJoin())
		api.GET("/loyalty/members", s.handleList())
	}

	return s, router
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
func doRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをmapにデコードするヘルパー関数。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// parseJSONArray はレスポンスボディをスライスにデコードするヘルパー関数。
func parseJSONArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var result []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSON配列のデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// TestHandleJoin は会員登録ハンドラのテスト。
func TestHandleJoin(t *testing.T) {
	t.Parallel()

	t.Run("正常に会員を登録できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/api/v1/loyalty/members", map[string]any{
			"name":  "山田太郎",
			"email": "taro@example.com",
			"phone": "090-0000-0000",
		})

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}
		result := parseJSON(t, w)
		if result["id"] == nil || result["id"] == "" {
			t.Error("idが空です")
		}
		if result["email"] != "taro@example.com" {
			t.Errorf("email: got %v, want taro@example.com", result["email"])
		}
	})

	t.Run("同じメールアドレスでの重複登録はConflict", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)

		m := Member{ID: "member-1", Name: "山田太郎", Email: "taro@example.com", CreatedAt: time.Now().UTC()}
		if err := s.store.CreateMember(t.Context(), m); err != nil {
			t.Fatalf("テスト用会員の作成に失敗: %v", err)
		}

		w := doRequest(router, http.MethodPost, "/api/v1/loyalty/members", map[string]any{
			"name":  "別の山田",
			"email": "taro@example.com",
		})

		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("メールアドレスが不正な形式の場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/api/v1/loyalty/members", map[string]any{
			"name":  "山田太郎",
			"email": "not-an-email",
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleListMembers は会員一覧取得ハンドラのテスト。
func TestHandleListMembers(t *testing.T) {
	t.Parallel()

	t.Run("会員が存在しない場合は空配列を返す", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/api/v1/loyalty/members", nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSONArray(t, w)
		if len(result) != 0 {
			t.Errorf("配列の長さ: got %d, want 0", len(result))
		}
	})

	t.Run("登録済みの会員を登録順に取得できる", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)

		base := time.Now().UTC()
		for i, email := range []string{"a@example.com", "b@example.com"} {
			m := Member{
				ID:        email,
				Name:      "会員" + email,
				Email:     email,
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}
			if err := s.store.CreateMember(t.Context(), m); err != nil {
				t.Fatalf("テスト用会員の作成に失敗: %v", err)
			}
		}

		w := doRequest(router, http.MethodGet, "/api/v1/loyalty/members", nil)

		result := parseJSONArray(t, w)
		if len(result) != 2 {
			t.Fatalf("配列の長さ: got %d, want 2", len(result))
		}
		if result[0]["email"] != "a@example.com" {
			t.Errorf("並び順が登録順ではありません: %v", result)
		}
	})
}
