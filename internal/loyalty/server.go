package loyalty

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

// Server はロイヤリティサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は会員のデータアクセスオブジェクト。
	store *Store
	// db はSQLiteデータベース接続。
	db *sqlx.DB
}

// NewServer は新しいロイヤリティサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("LOYALTY_DB_PATH")
	if dbPath == "" {
		dbPath = "/data/loyalty.db"
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
		members := api.Group("/loyalty/members")
		{
			// 客席タブレットからの会員登録
			members.POST("", s.handleJoin())
		}

		// 会員一覧はスタッフのみが閲覧できる
		admin := api.Group("/loyalty/members")
		admin.Use(middleware.JWTAuth(jwtSecret))
		{
			admin.GET("", s.handleList())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "loyalty"})
	})
}

// joinRequest は会員登録リクエストのJSON構造。
type joinRequest struct {
	// Name は会員の表示名。
	Name string `json:"name" binding:"required"`
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Phone は電話番号。
	Phone string `json:"phone"`
}

// memberResponse は会員のJSONレスポンス構造。
type memberResponse struct {
	// ID は会員の一意識別子。
	ID string `json:"id"`
	// Name は会員の表示名。
	Name string `json:"name"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// Phone は電話番号。
	Phone string `json:"phone,omitempty"`
	// CreatedAt は登録日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// toMemberResponse はDB行をJSONレスポンスに変換する。
func toMemberResponse(m Member) memberResponse {
	return memberResponse{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
}

// handleJoin は会員を登録するハンドラを返す。
// 同じメールアドレスでの重複登録はConflictを返す。
func (s *Server) handleJoin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req joinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		// UNIQUE制約違反のエラーメッセージはドライバ依存のため、先に存在確認する
		if _, err := s.store.GetMemberByEmail(c.Request.Context(), req.Email); err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "このメールアドレスは登録済みです"})
			return
		} else if !errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "会員の確認に失敗しました"})
			log.Printf("会員確認エラー: %v", err)
			return
		}

		m := Member{
			ID:        uuid.New().String(),
			Name:      req.Name,
			Email:     req.Email,
			Phone:     req.Phone,
			CreatedAt: time.Now().UTC(),
		}

		if err := s.store.CreateMember(c.Request.Context(), m); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "会員の登録に失敗しました"})
			log.Printf("会員登録エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toMemberResponse(m))
	}
}

// handleList は会員一覧を返すハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		members, err := s.store.ListMembers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "会員一覧の取得に失敗しました"})
			log.Printf("会員一覧取得エラー: %v", err)
			return
		}

		responses := make([]memberResponse, 0, len(members))
		for _, m := range members {
			responses = append(responses, toMemberResponse(m))
		}
		c.JSON(http.StatusOK, responses)
	}
}
