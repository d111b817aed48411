package order

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nao1215/orderhub/pkg/changefeed"
	"github.com/nao1215/orderhub/pkg/event"
	"github.com/nao1215/orderhub/pkg/middleware"
)

// 注文ステータスの値。
const (
	// StatusPlaced は注文直後の初期ステータス。
	StatusPlaced = "placed"
	// StatusAccepted は厨房が受け付けたステータス。
	StatusAccepted = "accepted"
	// StatusServed は提供完了のステータス。
	StatusServed = "served"
	// StatusCancelled はキャンセル済みのステータス。
	StatusCancelled = "cancelled"
)

// validTransitions は許可されるステータス遷移。
var validTransitions = map[string][]string{
	StatusPlaced:   {StatusAccepted, StatusCancelled},
	StatusAccepted: {StatusServed, StatusCancelled},
}

// canTransition は from から to への遷移が許可されているかを返す。
func canTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Server は注文サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は注文のデータアクセスオブジェクト。
	store *Store
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// hub はライブフィード購読者へのファンアウト。
	hub *changefeed.Hub
}

// NewServer は新しい注文サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("ORDER_DB_PATH")
	if dbPath == "" {
		dbPath = "/data/order.db"
	}

	sqlDB, err := sqlx.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router: router,
		port:   port,
		store:  NewStore(sqlDB),
		db:     sqlDB,
		hub:    changefeed.NewHub(),
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		orders := api.Group("/orders")
		{
			// 客席タブレットからの注文確定
			orders.POST("", s.handleCreate())
			// 管理ダッシュボードのポーリングと一覧表示
			orders.GET("", s.handleList())
			// 管理ダッシュボードのライブフィード
			orders.GET("/stream", s.handleStream())
			orders.GET("/:id", s.handleGetByID())
			orders.PUT("/:id/status", s.handleUpdateStatus())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "order"})
	})
}

// createOrderItemRequest は注文明細リクエストのJSON構造。
type createOrderItemRequest struct {
	// MenuItemID は注文するメニュー項目のID。
	MenuItemID string `json:"menu_item_id" binding:"required"`
	// Name は注文時点の料理名。
	Name string `json:"name" binding:"required"`
	// Variation は選択されたバリエーション名。
	Variation string `json:"variation"`
	// UnitPrice は注文時点の単価（円）。
	UnitPrice int64 `json:"unit_price" binding:"required"`
	// Quantity は数量。
	Quantity int64 `json:"quantity" binding:"required"`
	// Note は客からの備考。
	Note string `json:"note"`
}

// createOrderRequest は注文作成リクエストのJSON構造。
type createOrderRequest struct {
	// LocationID は注文元の席のID。
	LocationID string `json:"location_id" binding:"required"`
	// Items は注文明細。
	Items []createOrderItemRequest `json:"items" binding:"required,min=1"`
}

// updateStatusRequest はステータス更新リクエストのJSON構造。
type updateStatusRequest struct {
	// Status は変更後のステータス。
	Status string `json:"status" binding:"required"`
}

// orderItemResponse は注文明細のJSONレスポンス構造。
type orderItemResponse struct {
	// ID は明細の一意識別子。
	ID string `json:"id"`
	// MenuItemID は注文されたメニュー項目のID。
	MenuItemID string `json:"menu_item_id"`
	// Name は注文時点の料理名。
	Name string `json:"name"`
	// Variation は選択されたバリエーション名。
	Variation string `json:"variation,omitempty"`
	// UnitPrice は注文時点の単価（円）。
	UnitPrice int64 `json:"unit_price"`
	// Quantity は数量。
	Quantity int64 `json:"quantity"`
	// Note は客からの備考。
	Note string `json:"note,omitempty"`
}

// orderResponse は注文のJSONレスポンス構造。
type orderResponse struct {
	// ID は注文の一意識別子。
	ID string `json:"id"`
	// LocationID は注文元の席のID。
	LocationID string `json:"location_id"`
	// Status は注文ステータス。
	Status string `json:"status"`
	// TotalPrice は合計金額（円）。
	TotalPrice int64 `json:"total_price"`
	// CreatedAt は作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は最終更新日時（RFC3339形式）。
	UpdatedAt string `json:"updated_at"`
	// Items は注文明細。一覧取得では省略される。
	Items []orderItemResponse `json:"items,omitempty"`
}

// toOrderResponse はDB行をJSONレスポンスに変換する。
func toOrderResponse(o Order, items []OrderItem) orderResponse {
	var itemResponses []orderItemResponse
	for _, item := range items {
		itemResponses = append(itemResponses, orderItemResponse{
			ID:         item.ID,
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Variation:  item.Variation,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			Note:       item.Note,
		})
	}
	return orderResponse{
		ID:         o.ID,
		LocationID: o.LocationID,
		Status:     o.Status,
		TotalPrice: o.TotalPrice,
		CreatedAt:  o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  o.UpdatedAt.Format(time.RFC3339),
		Items:      itemResponses,
	}
}

// handleCreate は注文を確定するハンドラを返す。
// 合計金額はクライアントの申告値を信用せず、明細からサーバー側で算出する。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		now := time.Now().UTC()
		o := Order{
			ID:         uuid.New().String(),
			LocationID: req.LocationID,
			Status:     StatusPlaced,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		items := make([]OrderItem, 0, len(req.Items))
		for _, item := range req.Items {
			if item.Quantity <= 0 || item.UnitPrice < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "数量と単価が不正です"})
				return
			}
			o.TotalPrice += item.UnitPrice * item.Quantity
			items = append(items, OrderItem{
				ID:         uuid.New().String(),
				OrderID:    o.ID,
				MenuItemID: item.MenuItemID,
				Name:       item.Name,
				Variation:  item.Variation,
				UnitPrice:  item.UnitPrice,
				Quantity:   item.Quantity,
				Note:       item.Note,
			})
		}

		if err := s.store.CreateOrder(c.Request.Context(), o, items); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の作成に失敗しました"})
			log.Printf("注文作成エラー: %v", err)
			return
		}

		s.publishEvent(event.TypeOrderPlaced, event.OrderPlacedData{
			OrderID:    o.ID,
			LocationID: o.LocationID,
			TotalPrice: o.TotalPrice,
			CreatedAt:  o.CreatedAt,
		})

		c.JSON(http.StatusCreated, toOrderResponse(o, items))
	}
}

// handleList は注文一覧を返すハンドラを返す。
// sinceパラメータ（RFC3339）を指定すると、その時刻より後の注文のみを
// 作成日時の昇順で返す。フォールバックポーリングはこの形式で呼び出す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		since := time.Time{}
		if raw := c.Query("since"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "sinceはRFC3339形式で指定してください"})
				return
			}
			since = parsed
		}

		orders, err := s.store.ListOrdersSince(c.Request.Context(), since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文一覧の取得に失敗しました"})
			log.Printf("注文一覧取得エラー: %v", err)
			return
		}

		responses := make([]orderResponse, 0, len(orders))
		for _, o := range orders {
			responses = append(responses, toOrderResponse(o, nil))
		}
		c.JSON(http.StatusOK, responses)
	}
}

// handleGetByID は注文を明細付きで取得するハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		o, err := s.store.GetOrderByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "注文が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の取得に失敗しました"})
			log.Printf("注文取得エラー: %v", err)
			return
		}

		items, err := s.store.ListOrderItems(c.Request.Context(), o.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "明細の取得に失敗しました"})
			log.Printf("明細取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toOrderResponse(o, items))
	}
}

// handleUpdateStatus は注文ステータスを変更するハンドラを返す。
// 許可される遷移は placed→accepted/cancelled、accepted→served/cancelled のみ。
func (s *Server) handleUpdateStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		id := c.Param("id")
		current, err := s.store.GetOrderByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "注文が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の取得に失敗しました"})
			log.Printf("注文取得エラー: %v", err)
			return
		}

		if !canTransition(current.Status, req.Status) {
			c.JSON(http.StatusConflict, gin.H{
				"error": fmt.Sprintf("ステータス %s から %s への変更はできません", current.Status, req.Status),
			})
			return
		}

		now := time.Now().UTC()
		if _, err := s.store.UpdateOrderStatus(c.Request.Context(), id, req.Status, now); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ステータスの更新に失敗しました"})
			log.Printf("ステータス更新エラー: %v", err)
			return
		}

		s.publishEvent(event.TypeOrderStatusChanged, event.OrderStatusChangedData{
			OrderID: id,
			Status:  req.Status,
		})

		current.Status = req.Status
		current.UpdatedAt = now
		c.JSON(http.StatusOK, toOrderResponse(current, nil))
	}
}

// handleStream はライブフィードのSSEストリームを返すハンドラを返す。
// 接続中に発行されたイベントをそのまま配信する。過去分の再送はしない。
func (s *Server) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		ch, unsubscribe := s.hub.Subscribe(16)
		defer unsubscribe()

		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		c.Stream(func(w io.Writer) bool {
			select {
			case ev, ok := <-ch:
				if !ok {
					return false
				}
				if err := sse.Encode(w, sse.Event{
					Id:    ev.ID,
					Event: string(ev.EventType),
					Data:  ev,
				}); err != nil {
					log.Printf("SSE送信エラー: %v", err)
					return false
				}
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}

// publishEvent はイベントを組み立ててライブフィードに発行する。
// 発行の失敗は注文処理に影響させず、ログのみ残す。
func (s *Server) publishEvent(eventType event.Type, data any) {
	ev, err := event.New(eventType, data)
	if err != nil {
		log.Printf("イベント生成エラー: %v", err)
		return
	}
	s.hub.Publish(ev)
}
