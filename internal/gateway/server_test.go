package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nao1215/orderhub/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer はテスト用のゲートウェイサーバーをインメモリSQLiteで構築する。
func setupTestServer(t *testing.T, urls serviceURLConfig) (*Server, *gin.Engine) {
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
		router:      router,
		port:        "0",
		store:       NewStore(sqlDB),
		db:          sqlDB,
		jwtSecret:   "test-secret",
		serviceURLs: urls,
	}
	s.setupRoutes()

	return s, router
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
func doRequest(router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

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

// createTestStaff はテスト用スタッフをDBに直接作成するヘルパー関数。
func createTestStaff(t *testing.T, s *Server, email, password, role string) Staff {
	t.Helper()

	salt, err := newSalt()
	if err != nil {
		t.Fatalf("ソルト生成に失敗: %v", err)
	}
	staff := Staff{
		ID:           uuid.New().String(),
		Name:         "テストスタッフ",
		Email:        email,
		PasswordHash: hashPassword(password, salt),
		Salt:         salt,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateStaff(t.Context(), staff); err != nil {
		t.Fatalf("テスト用スタッフの作成に失敗: %v", err)
	}
	return staff
}

// TestHandleLogin はログインハンドラのテスト。
func TestHandleLogin(t *testing.T) {
	t.Parallel()

	t.Run("正しい資格情報でJWTが発行される", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t, serviceURLConfig{})

		createTestStaff(t, s, "staff@example.com", "password123", middleware.RoleStaff)

		w := doRequest(router, http.MethodPost, "/auth/login", map[string]any{
			"email":    "staff@example.com",
			"password": "password123",
		}, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		result := parseJSON(t, w)
		if result["token"] == nil || result["token"] == "" {
			t.Error("tokenが空です")
		}
		if result["role"] != middleware.RoleStaff {
			t.Errorf("role: got %v, want %s", result["role"], middleware.RoleStaff)
		}
	})

	t.Run("パスワードが違う場合はUnauthorized", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t, serviceURLConfig{})

		createTestStaff(t, s, "staff@example.com", "password123", middleware.RoleStaff)

		w := doRequest(router, http.MethodPost, "/auth/login", map[string]any{
			"email":    "staff@example.com",
			"password": "wrong-password",
		}, nil)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("存在しないスタッフの場合はUnauthorized", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t, serviceURLConfig{})

		w := doRequest(router, http.MethodPost, "/auth/login", map[string]any{
			"email":    "nobody@example.com",
			"password": "password123",
		}, nil)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("ログイン成功時に最終ログイン日時が記録される", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t, serviceURLConfig{})

		staff := createTestStaff(t, s, "staff@example.com", "password123", middleware.RoleStaff)

		doRequest(router, http.MethodPost, "/auth/login", map[string]any{
			"email":    "staff@example.com",
			"password": "password123",
		}, nil)

		got, err := s.store.GetStaffByEmail(t.Context(), staff.Email)
		if err != nil {
			t.Fatalf("スタッフの取得に失敗: %v", err)
		}
		if !got.LastLoginAt.Valid {
			t.Error("last_login_atが記録されていません")
		}
	})
}

// TestHandleDevToken は開発用トークン発行ハンドラのテスト。
func TestHandleDevToken(t *testing.T) {
	t.Parallel()

	t.Run("開発スタッフが自動作成されトークンが発行される", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t, serviceURLConfig{})

		w := doRequest(router, http.MethodPost, "/auth/dev-token", nil, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		result := parseJSON(t, w)
		if result["token"] == nil || result["token"] == "" {
			t.Error("tokenが空です")
		}

		staff, err := s.store.GetStaffByEmail(t.Context(), "dev@localhost")
		if err != nil {
			t.Fatalf("開発スタッフの取得に失敗: %v", err)
		}
		if staff.Role != middleware.RoleAdmin {
			t.Errorf("role: got %s, want %s", staff.Role, middleware.RoleAdmin)
		}
	})

	t.Run("2回目の発行は既存の開発スタッフを使う", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t, serviceURLConfig{})

		w1 := doRequest(router, http.MethodPost, "/auth/dev-token", nil, nil)
		w2 := doRequest(router, http.MethodPost, "/auth/dev-token", nil, nil)

		id1 := parseJSON(t, w1)["staff_id"]
		id2 := parseJSON(t, w2)["staff_id"]
		if id1 != id2 {
			t.Errorf("staff_idが一致しません: %v != %v", id1, id2)
		}
	})
}

// TestProxyAuth はプロキシエンドポイントの認証のテスト。
func TestProxyAuth(t *testing.T) {
	t.Parallel()

	t.Run("トークンなしでスタッフ向けエンドポイントにアクセスするとUnauthorized", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t, serviceURLConfig{})

		w := doRequest(router, http.MethodGet, "/api/v1/orders", nil, nil)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("有効なトークンでリクエストが内部サービスへ転送される", func(t *testing.T) {
		t.Parallel()

		// スタッフIDヘッダーの転送を確認するバックエンドのモック
		var gotStaffID string
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotStaffID = r.Header.Get("X-Staff-ID")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[]`))
		}))
		t.Cleanup(backend.Close)

		s, router := setupTestServer(t, serviceURLConfig{Order: backend.URL})

		token, err := middleware.GenerateJWT(s.jwtSecret, "staff-1", "staff@example.com", middleware.RoleStaff)
		if err != nil {
			t.Fatalf("JWT生成に失敗: %v", err)
		}

		w := doRequest(router, http.MethodGet, "/api/v1/orders", nil, map[string]string{
			"Authorization": "Bearer " + token,
		})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		if gotStaffID != "staff-1" {
			t.Errorf("X-Staff-ID: got %s, want staff-1", gotStaffID)
		}
	})

	t.Run("客席向けエンドポイントは認証なしで転送される", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"call-1"}`))
		}))
		t.Cleanup(backend.Close)

		_, router := setupTestServer(t, serviceURLConfig{WaiterCall: backend.URL})

		w := doRequest(router, http.MethodPost, "/api/v1/calls", map[string]any{"location_id": "loc-1"}, nil)

		if w.Code != http.StatusCreated {
			t.Errorf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}
	})

	t.Run("内部サービスが停止している場合はBadGateway", func(t *testing.T) {
		t.Parallel()

		s, router := setupTestServer(t, serviceURLConfig{Order: "http://127.0.0.1:1"})

		token, err := middleware.GenerateJWT(s.jwtSecret, "staff-1", "staff@example.com", middleware.RoleStaff)
		if err != nil {
			t.Fatalf("JWT生成に失敗: %v", err)
		}

		w := doRequest(router, http.MethodGet, "/api/v1/orders", nil, map[string]string{
			"Authorization": "Bearer " + token,
		})

		if w.Code != http.StatusBadGateway {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadGateway)
		}
	})
}
