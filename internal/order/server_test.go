package order

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

	"github.com/nao1215/orderhub/pkg/changefeed"
	"github.com/nao1215/orderhub/pkg/event"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer はテスト用の注文サーバーをインメモリSQLiteで構築する。
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
		hub:    changefeed.NewHub(),
	}

	api := router.Group("/api/v1")
	{
		orders := api.Group("/orders")
		{
			orders.POST("", s.handleCreate())
			orders.GET("", s.handleList())
			orders.GET("/:id", s.handleGetByID())
			orders.PUT("/:id/status", s.handleUpdateStatus())
		}
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

// placeTestOrder は注文作成APIを呼び出し、作成された注文のIDを返すヘルパー関数。
func placeTestOrder(t *testing.T, router *gin.Engine, locationID string) string {
	t.Helper()
	w := doRequest(router, http.MethodPost, "/api/v1/orders", map[string]any{
		"location_id": locationID,
		"items": []map[string]any{
			{"menu_item_id": "item-1", "name": "ハンバーグ", "unit_price": 1200, "quantity": 1},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("テスト用注文の作成に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	return parseJSON(t, w)["id"].(string)
}

// TestHandleCreateOrder は注文確定ハンドラのテスト。
func TestHandleCreateOrder(t *testing.T) {
	t.Parallel()

	t.Run("合計金額は明細からサーバー側で算出される", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/api/v1/orders", map[string]any{
			"location_id": "loc-1",
			"items": []map[string]any{
				{"menu_item_id": "item-1", "name": "ハンバーグ", "unit_price": 1200, "quantity": 2},
				{"menu_item_id": "item-2", "name": "コーラ", "variation": "Lサイズ", "unit_price": 400, "quantity": 1},
			},
		})

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}
		result := parseJSON(t, w)
		if result["total_price"] != float64(2800) {
			t.Errorf("total_price: got %v, want 2800", result["total_price"])
		}
		if result["status"] != StatusPlaced {
			t.Errorf("status: got %v, want %s", result["status"], StatusPlaced)
		}
		items, ok := result["items"].([]any)
		if !ok || len(items) != 2 {
			t.Errorf("明細数が不正: %v", result["items"])
		}
	})

	t.Run("明細が空の場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/api/v1/orders", map[string]any{
			"location_id": "loc-1",
			"items":       []map[string]any{},
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("数量が0以下の場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/api/v1/orders", map[string]any{
			"location_id": "loc-1",
			"items": []map[string]any{
				{"menu_item_id": "item-1", "name": "ハンバーグ", "unit_price": 1200, "quantity": -1},
			},
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("注文確定時にOrderPlacedイベントが発行される", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)

		ch, unsubscribe := s.hub.Subscribe(1)
		defer unsubscribe()

		orderID := placeTestOrder(t, router, "loc-1")

		select {
		case ev := <-ch:
			if ev.EventType != event.TypeOrderPlaced {
				t.Errorf("イベント種別: got %s, want %s", ev.EventType, event.TypeOrderPlaced)
			}
			data, err := event.DecodeData[event.OrderPlacedData](ev)
			if err != nil {
				t.Fatalf("イベントデータのデコードに失敗: %v", err)
			}
			if data.OrderID != orderID {
				t.Errorf("order_id: got %s, want %s", data.OrderID, orderID)
			}
			if data.LocationID != "loc-1" {
				t.Errorf("location_id: got %s, want loc-1", data.LocationID)
			}
		case <-time.After(time.Second):
			t.Fatal("イベントが発行されませんでした")
		}
	})
}

// TestHandleListOrders は注文一覧取得ハンドラのテスト。
func TestHandleListOrders(t *testing.T) {
	t.Parallel()

	t.Run("注文が存在しない場合は空配列を返す", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/api/v1/orders", nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSONArray(t, w)
		if len(result) != 0 {
			t.Errorf("配列の長さ: got %d, want 0", len(result))
		}
	})

	t.Run("sinceより後の注文のみを作成日時の昇順で返す", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)

		base := time.Now().UTC().Add(-time.Hour)
		for i, id := range []string{"order-1", "order-2", "order-3"} {
			o := Order{
				ID:         id,
				LocationID: "loc-1",
				Status:     StatusPlaced,
				TotalPrice: 1000,
				CreatedAt:  base.Add(time.Duration(i) * time.Minute),
				UpdatedAt:  base.Add(time.Duration(i) * time.Minute),
			}
			if err := s.store.CreateOrder(t.Context(), o, nil); err != nil {
				t.Fatalf("テスト用注文の作成に失敗: %v", err)
			}
		}

		since := base.Add(30 * time.Second).Format(time.RFC3339)
		w := doRequest(router, http.MethodGet, "/api/v1/orders?since="+since, nil)

		result := parseJSONArray(t, w)
		if len(result) != 2 {
			t.Fatalf("配列の長さ: got %d, want 2", len(result))
		}
		if result[0]["id"] != "order-2" || result[1]["id"] != "order-3" {
			t.Errorf("並び順が作成日時の昇順ではありません: %v", result)
		}
	})

	t.Run("sinceが不正な形式の場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/api/v1/orders?since=yesterday", nil)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleGetOrderByID は注文取得ハンドラのテスト。
func TestHandleGetOrderByID(t *testing.T) {
	t.Parallel()

	t.Run("明細付きで注文を取得できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		orderID := placeTestOrder(t, router, "loc-1")

		w := doRequest(router, http.MethodGet, "/api/v1/orders/"+orderID, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		items, ok := result["items"].([]any)
		if !ok || len(items) != 1 {
			t.Errorf("明細数が不正: %v", result["items"])
		}
	})

	t.Run("存在しない注文の場合はNotFound", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/api/v1/orders/nonexistent", nil)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestHandleUpdateOrderStatus はステータス変更ハンドラのテスト。
func TestHandleUpdateOrderStatus(t *testing.T) {
	t.Parallel()

	t.Run("placedからacceptedに変更できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		orderID := placeTestOrder(t, router, "loc-1")

		w := doRequest(router, http.MethodPut, "/api/v1/orders/"+orderID+"/status", map[string]any{
			"status": StatusAccepted,
		})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		result := parseJSON(t, w)
		if result["status"] != StatusAccepted {
			t.Errorf("status: got %v, want %s", result["status"], StatusAccepted)
		}
	})

	t.Run("placedからservedへの変更はConflict", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		orderID := placeTestOrder(t, router, "loc-1")

		w := doRequest(router, http.MethodPut, "/api/v1/orders/"+orderID+"/status", map[string]any{
			"status": StatusServed,
		})

		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("ステータス変更時にOrderStatusChangedイベントが発行される", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)

		orderID := placeTestOrder(t, router, "loc-1")

		ch, unsubscribe := s.hub.Subscribe(1)
		defer unsubscribe()

		doRequest(router, http.MethodPut, "/api/v1/orders/"+orderID+"/status", map[string]any{
			"status": StatusAccepted,
		})

		select {
		case ev := <-ch:
			if ev.EventType != event.TypeOrderStatusChanged {
				t.Errorf("イベント種別: got %s, want %s", ev.EventType, event.TypeOrderStatusChanged)
			}
		case <-time.After(time.Second):
			t.Fatal("イベントが発行されませんでした")
		}
	})

	t.Run("存在しない注文の場合はNotFound", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPut, "/api/v1/orders/nonexistent/status", map[string]any{
			"status": StatusAccepted,
		})

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}
