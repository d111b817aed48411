package menu

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nao1215/orderhub/pkg/middleware"
)

// Server はメニューサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はメニューのデータアクセスオブジェクト。
	store *Store
	// db はSQLiteデータベース接続。
	db *sqlx.DB
}

// NewServer は新しいメニューサーバーを生成する。
// SQLiteデータベースの初期化とマイグレーションの適用を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("MENU_DB_PATH")
	if dbPath == "" {
		dbPath = "/data/menu.db"
	}

	sqlDB, err := sqlx.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	store, err := NewStore(sqlDB)
	if err != nil {
		return nil, fmt.Errorf("マイグレーション適用に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router: router,
		port:   port,
		store:  store,
		db:     sqlDB,
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
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}

	api := s.router.Group("/api/v1")
	{
		// 客席タブレットが使用する公開エンドポイント
		api.GET("/menu", s.handleGetMenu())
		api.GET("/menu/items/:id", s.handleGetItem())

		// 管理者のみがメニューを変更できる
		admin := api.Group("/menu")
		admin.Use(middleware.JWTAuth(jwtSecret), middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.POST("/categories", s.handleCreateCategory())
			admin.DELETE("/categories/:id", s.handleDeleteCategory())
			admin.POST("/items", s.handleCreateItem())
			admin.PUT("/items/:id", s.handleUpdateItem())
			admin.DELETE("/items/:id", s.handleDeleteItem())
			admin.POST("/items/:id/variations", s.handleCreateVariation())
			admin.DELETE("/variations/:id", s.handleDeleteVariation())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "menu"})
	})
}

// createCategoryRequest はカテゴリ作成リクエストのJSON構造。
type createCategoryRequest struct {
	// Name はカテゴリ名。
	Name string `json:"name" binding:"required"`
	// SortOrder は表示順。
	SortOrder int64 `json:"sort_order"`
}

// createItemRequest はメニュー項目作成リクエストのJSON構造。
type createItemRequest struct {
	// CategoryID は所属カテゴリのID。
	CategoryID string `json:"category_id" binding:"required"`
	// Name は料理名。
	Name string `json:"name" binding:"required"`
	// Description は料理の説明。
	Description string `json:"description"`
	// Price は価格（円）。
	Price int64 `json:"price" binding:"required"`
	// ImageURL は料理画像のURL。
	ImageURL string `json:"image_url"`
}

// updateItemRequest はメニュー項目更新リクエストのJSON構造。
type updateItemRequest struct {
	// Name は料理名。
	Name string `json:"name"`
	// Description は料理の説明。
	Description *string `json:"description"`
	// Price は価格（円）。
	Price int64 `json:"price"`
	// ImageURL は料理画像のURL。
	ImageURL *string `json:"image_url"`
	// IsAvailable は提供可能かどうか。
	IsAvailable *bool `json:"is_available"`
}

// createVariationRequest はバリエーション作成リクエストのJSON構造。
type createVariationRequest struct {
	// Name はバリエーション名。
	Name string `json:"name" binding:"required"`
	// PriceDelta は基本価格への加算額（円）。
	PriceDelta int64 `json:"price_delta"`
}

// variationResponse はバリエーションのJSONレスポンス構造。
type variationResponse struct {
	// ID はバリエーションの一意識別子。
	ID string `json:"id"`
	// Name はバリエーション名。
	Name string `json:"name"`
	// PriceDelta は基本価格への加算額（円）。
	PriceDelta int64 `json:"price_delta"`
}

// itemResponse はメニュー項目のJSONレスポンス構造。
type itemResponse struct {
	// ID はメニュー項目の一意識別子。
	ID string `json:"id"`
	// CategoryID は所属カテゴリのID。
	CategoryID string `json:"category_id"`
	// Name は料理名。
	Name string `json:"name"`
	// Description は料理の説明。
	Description string `json:"description"`
	// Price は価格（円）。
	Price int64 `json:"price"`
	// ImageURL は料理画像のURL。
	ImageURL string `json:"image_url"`
	// IsAvailable は提供可能かどうか。
	IsAvailable bool `json:"is_available"`
	// Variations はメニュー項目のバリエーション一覧。
	Variations []variationResponse `json:"variations"`
}

// categoryResponse はカテゴリのJSONレスポンス構造。メニュー全体の取得で使用する。
type categoryResponse struct {
	// ID はカテゴリの一意識別子。
	ID string `json:"id"`
	// Name はカテゴリ名。
	Name string `json:"name"`
	// SortOrder は表示順。
	SortOrder int64 `json:"sort_order"`
	// Items はカテゴリに属するメニュー項目一覧。
	Items []itemResponse `json:"items"`
}

// toItemResponse はDB行をJSONレスポンスに変換する。
func toItemResponse(item MenuItem, variations []Variation) itemResponse {
	vs := make([]variationResponse, 0, len(variations))
	for _, v := range variations {
		vs = append(vs, variationResponse{ID: v.ID, Name: v.Name, PriceDelta: v.PriceDelta})
	}
	return itemResponse{
		ID:          item.ID,
		CategoryID:  item.CategoryID,
		Name:        item.Name,
		Description: item.Description,
		Price:       item.Price,
		ImageURL:    item.ImageURL,
		IsAvailable: item.IsAvailable,
		Variations:  vs,
	}
}

// handleGetMenu はカテゴリ・メニュー項目・バリエーションをまとめた
// メニュー全体を返すハンドラを返す。
func (s *Server) handleGetMenu() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		categories, err := s.store.ListCategories(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "メニューの取得に失敗しました"})
			log.Printf("カテゴリ一覧取得エラー: %v", err)
			return
		}

		items, err := s.store.ListMenuItems(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "メニューの取得に失敗しました"})
			log.Printf("メニュー項目一覧取得エラー: %v", err)
			return
		}

		// カテゴリごとにメニュー項目をまとめる
		itemsByCategory := make(map[string][]itemResponse)
		for _, item := range items {
			variations, err := s.store.ListVariationsByMenuItemID(ctx, item.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "メニューの取得に失敗しました"})
				log.Printf("バリエーション一覧取得エラー: %v", err)
				return
			}
			itemsByCategory[item.CategoryID] = append(itemsByCategory[item.CategoryID], toItemResponse(item, variations))
		}

		responses := make([]categoryResponse, 0, len(categories))
		for _, cat := range categories {
			catItems := itemsByCategory[cat.ID]
			if catItems == nil {
				catItems = []itemResponse{}
			}
			responses = append(responses, categoryResponse{
				ID:        cat.ID,
				Name:      cat.Name,
				SortOrder: cat.SortOrder,
				Items:     catItems,
			})
		}

		c.JSON(http.StatusOK, responses)
	}
}

// handleGetItem はメニュー項目をIDで取得するハンドラを返す。
func (s *Server) handleGetItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		item, err := s.store.GetMenuItemByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "メニュー項目が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "メニュー項目の取得に失敗しました"})
			log.Printf("メニュー項目取得エラー: %v", err)
			return
		}

		variations, err := s.store.ListVariationsByMenuItemID(c.Request.Context(), item.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "バリエーションの取得に失敗しました"})
			log.Printf("バリエーション一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toItemResponse(item, variations))
	}
}

// handleCreateCategory はカテゴリを新規作成するハンドラを返す。
func (s *Server) handleCreateCategory() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createCategoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		cat := Category{
			ID:        uuid.New().String(),
			Name:      req.Name,
			SortOrder: req.SortOrder,
			CreatedAt: time.Now().UTC(),
		}

		if err := s.store.CreateCategory(c.Request.Context(), cat); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "カテゴリの作成に失敗しました"})
			log.Printf("カテゴリ作成エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":         cat.ID,
			"name":       cat.Name,
			"sort_order": cat.SortOrder,
		})
	}
}

// handleDeleteCategory はカテゴリを削除するハンドラを返す。
func (s *Server) handleDeleteCategory() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		affected, err := s.store.DeleteCategory(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "カテゴリの削除に失敗しました"})
			log.Printf("カテゴリ削除エラー: %v", err)
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "カテゴリが見つかりません"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "カテゴリを削除しました"})
	}
}

// handleCreateItem はメニュー項目を新規作成するハンドラを返す。
func (s *Server) handleCreateItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		item := MenuItem{
			ID:          uuid.New().String(),
			CategoryID:  req.CategoryID,
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			ImageURL:    req.ImageURL,
			IsAvailable: true,
			CreatedAt:   time.Now().UTC(),
		}

		if err := s.store.CreateMenuItem(c.Request.Context(), item); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "メニュー項目の作成に失敗しました"})
			log.Printf("メニュー項目作成エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toItemResponse(item, nil))
	}
}

// handleUpdateItem はメニュー項目を更新するハンドラを返す。
// 品切れ時の提供停止（is_availableの切り替え）もこのハンドラで行う。
func (s *Server) handleUpdateItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		id := c.Param("id")
		current, err := s.store.GetMenuItemByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "メニュー項目が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "メニュー項目の取得に失敗しました"})
			log.Printf("メニュー項目取得エラー: %v", err)
			return
		}

		if req.Name != "" {
			current.Name = req.Name
		}
		if req.Description != nil {
			current.Description = *req.Description
		}
		if req.Price > 0 {
			current.Price = req.Price
		}
		if req.ImageURL != nil {
			current.ImageURL = *req.ImageURL
		}
		if req.IsAvailable != nil {
			current.IsAvailable = *req.IsAvailable
		}

		if _, err := s.store.UpdateMenuItem(c.Request.Context(), current); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "メニュー項目の更新に失敗しました"})
			log.Printf("メニュー項目更新エラー: %v", err)
			return
		}

		variations, err := s.store.ListVariationsByMenuItemID(c.Request.Context(), current.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "バリエーションの取得に失敗しました"})
			log.Printf("バリエーション一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toItemResponse(current, variations))
	}
}

// handleDeleteItem はメニュー項目を削除するハンドラを返す。
func (s *Server) handleDeleteItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		affected, err := s.store.DeleteMenuItem(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "メニュー項目の削除に失敗しました"})
			log.Printf("メニュー項目削除エラー: %v", err)
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "メニュー項目が見つかりません"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "メニュー項目を削除しました"})
	}
}

// handleCreateVariation はメニュー項目にバリエーションを追加するハンドラを返す。
func (s *Server) handleCreateVariation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createVariationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		menuItemID := c.Param("id")
		if _, err := s.store.GetMenuItemByID(c.Request.Context(), menuItemID); errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "メニュー項目が見つかりません"})
			return
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "メニュー項目の取得に失敗しました"})
			log.Printf("メニュー項目取得エラー: %v", err)
			return
		}

		v := Variation{
			ID:         uuid.New().String(),
			MenuItemID: menuItemID,
			Name:       req.Name,
			PriceDelta: req.PriceDelta,
		}

		if err := s.store.CreateVariation(c.Request.Context(), v); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "バリエーションの作成に失敗しました"})
			log.Printf("バリエーション作成エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, variationResponse{ID: v.ID, Name: v.Name, PriceDelta: v.PriceDelta})
	}
}

// handleDeleteVariation はバリエーションを削除するハンドラを返す。
func (s *Server) handleDeleteVariation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		affected, err := s.store.DeleteVariation(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "バリエーションの削除に失敗しました"})
			log.Printf("バリエーション削除エラー: %v", err)
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "バリエーションが見つかりません"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "バリエーションを削除しました"})
	}
}
