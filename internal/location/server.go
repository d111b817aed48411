package location

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

// Server は席管理サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は席のデータアクセスオブジェクト。
	store *Store
	// db はSQLiteデータベース接続。
	db *sqlx.DB
}

// NewServer は新しい席管理サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("LOCATION_DB_PATH")
	if dbPath == "" {
		dbPath = "/data/location.db"
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
		locations := api.Group("/locations")
		{
			// 席のポイント検索（通知パイプラインのラベル解決と客席タブレットが使用）
			locations.GET("/:id", s.handleGetByID())
			// 席一覧取得
			locations.GET("", s.handleList())
		}

		// 管理者のみが席を変更できる
		admin := api.Group("/locations")
		admin.Use(middleware.JWTAuth(jwtSecret), middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.POST("", s.handleCreate())
			admin.PUT("/:id", s.handleUpdate())
			admin.DELETE("/:id", s.handleDelete())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "location"})
	})
}

// createLocationRequest は席作成リクエストのJSON構造。
type createLocationRequest struct {
	// Name は席の表示名。
	Name string `json:"name" binding:"required"`
	// Capacity は席の定員。
	Capacity int64 `json:"capacity"`
}

// updateLocationRequest は席更新リクエストのJSON構造。
type updateLocationRequest struct {
	// Name は席の表示名。
	Name string `json:"name" binding:"required"`
	// Capacity は席の定員。
	Capacity int64 `json:"capacity"`
	// IsActive は席が利用可能かどうか。
	IsActive *bool `json:"is_active"`
}

// locationResponse は席のJSONレスポンス構造。
type locationResponse struct {
	// ID は席の一意識別子。
	ID string `json:"id"`
	// Name は席の表示名。
	Name string `json:"name"`
	// Capacity は席の定員。
	Capacity int64 `json:"capacity"`
	// IsActive は席が利用可能かどうか。
	IsActive bool `json:"is_active"`
	// CreatedAt は作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// toLocationResponse はDB行をJSONレスポンスに変換する。
func toLocationResponse(loc Location) locationResponse {
	return locationResponse{
		ID:        loc.ID,
		Name:      loc.Name,
		Capacity:  loc.Capacity,
		IsActive:  loc.IsActive,
		CreatedAt: loc.CreatedAt.Format(time.RFC3339),
	}
}

// handleGetByID は席をIDで取得するハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		loc, err := s.store.GetLocationByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "席が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "席の取得に失敗しました"})
			log.Printf("席取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toLocationResponse(loc))
	}
}

// handleList は席一覧を返すハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		locations, err := s.store.ListLocations(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "席一覧の取得に失敗しました"})
			log.Printf("席一覧取得エラー: %v", err)
			return
		}

		responses := make([]locationResponse, 0, len(locations))
		for _, loc := range locations {
			responses = append(responses, toLocationResponse(loc))
		}
		c.JSON(http.StatusOK, responses)
	}
}

// handleCreate は席を新規作成するハンドラを返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createLocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		capacity := req.Capacity
		if capacity <= 0 {
			capacity = 4
		}

		loc := Location{
			ID:        uuid.New().String(),
			Name:      req.Name,
			Capacity:  capacity,
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		}

		if err := s.store.CreateLocation(c.Request.Context(), loc); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "席の作成に失敗しました"})
			log.Printf("席作成エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toLocationResponse(loc))
	}
}

// handleUpdate は席を更新するハンドラを返す。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateLocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		id := c.Param("id")
		current, err := s.store.GetLocationByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "席が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "席の取得に失敗しました"})
			log.Printf("席取得エラー: %v", err)
			return
		}

		current.Name = req.Name
		if req.Capacity > 0 {
			current.Capacity = req.Capacity
		}
		if req.IsActive != nil {
			current.IsActive = *req.IsActive
		}

		if _, err := s.store.UpdateLocation(c.Request.Context(), current); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "席の更新に失敗しました"})
			log.Printf("席更新エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toLocationResponse(current))
	}
}

// handleDelete は席を削除するハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		affected, err := s.store.DeleteLocation(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "席の削除に失敗しました"})
			log.Printf("席削除エラー: %v", err)
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "席が見つかりません"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "席を削除しました"})
	}
}
