package gateway

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
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

// Server はAPIゲートウェイサービスのHTTPサーバー。
// スタッフ認証とJWT発行を担い、客席タブレットと管理ダッシュボードの
// リクエストを内部サービスにプロキシする。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はスタッフアカウントのデータアクセスオブジェクト。
	store *Store
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret string
	// serviceURLs は内部サービスのURL。
	serviceURLs serviceURLConfig
}

// serviceURLConfig は内部サービスのURL設定。
type serviceURLConfig struct {
	Menu       string
	Location   string
	Order      string
	WaiterCall string
	Loyalty    string
	Admin      string
}

// NewServer は新しいゲートウェイサーバーを生成する。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("GATEWAY_DB_PATH")
	if dbPath == "" {
		dbPath = "/data/gateway.db"
	}

	sqlDB, err := sqlx.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}

	urls := serviceURLConfig{
		Menu:       getEnvOr("MENU_URL", "http://localhost:8081"),
		Location:   getEnvOr("LOCATION_URL", "http://localhost:8082"),
		Order:      getEnvOr("ORDER_URL", "http://localhost:8083"),
		WaiterCall: getEnvOr("WAITERCALL_URL", "http://localhost:8084"),
		Loyalty:    getEnvOr("LOYALTY_URL", "http://localhost:8085"),
		Admin:      getEnvOr("ADMIN_URL", "http://localhost:8086"),
	}

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:      router,
		port:        port,
		store:       NewStore(sqlDB),
		db:          sqlDB,
		jwtSecret:   jwtSecret,
		serviceURLs: urls,
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
	// 認証エンドポイント（認証不要）
	auth := s.router.Group("/auth")
	{
		auth.POST("/login", s.handleLogin())
		// 開発用トークン発行
		auth.POST("/dev-token", s.handleDevToken())
	}

	// 客席タブレット向けエンドポイント（認証不要）
	public := s.router.Group("/api/v1")
	{
		public.GET("/menu", s.handleProxy(s.serviceURLs.Menu, "/api/v1/menu"))
		public.GET("/menu/items/:id", s.handleProxyWithParam(s.serviceURLs.Menu, "/api/v1/menu/items/", "id"))
		public.GET("/locations/:id", s.handleProxyWithParam(s.serviceURLs.Location, "/api/v1/locations/", "id"))
		public.POST("/orders", s.handleProxy(s.serviceURLs.Order, "/api/v1/orders"))
		public.GET("/orders/:id", s.handleProxyWithParam(s.serviceURLs.Order, "/api/v1/orders/", "id"))
		public.POST("/calls", s.handleProxy(s.serviceURLs.WaiterCall, "/api/v1/calls"))
		public.POST("/loyalty/members", s.handleProxy(s.serviceURLs.Loyalty, "/api/v1/loyalty/members"))
	}

	// スタッフ向けエンドポイント（認証必須）
	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(s.jwtSecret))
	{
		// スタッフ情報
		api.GET("/me", s.handleGetCurrentStaff())

		// 注文管理（プロキシ）
		api.GET("/orders", s.handleProxy(s.serviceURLs.Order, "/api/v1/orders"))
		api.PUT("/orders/:id/status", s.handleProxyWithParam(s.serviceURLs.Order, "/api/v1/orders/", "id", "/status"))

		// 呼び出し管理（プロキシ）
		api.GET("/calls", s.handleProxy(s.serviceURLs.WaiterCall, "/api/v1/calls"))
		api.PUT("/calls/:id/resolve", s.handleProxyWithParam(s.serviceURLs.WaiterCall, "/api/v1/calls/", "id", "/resolve"))

		// 会員一覧（プロキシ）
		api.GET("/loyalty/members", s.handleProxy(s.serviceURLs.Loyalty, "/api/v1/loyalty/members"))

		// メニュー管理（プロキシ）
		api.POST("/menu/categories", s.handleProxy(s.serviceURLs.Menu, "/api/v1/menu/categories"))
		api.DELETE("/menu/categories/:id", s.handleProxyWithParam(s.serviceURLs.Menu, "/api/v1/menu/categories/", "id"))
		api.POST("/menu/items", s.handleProxy(s.serviceURLs.Menu, "/api/v1/menu/items"))
		api.PUT("/menu/items/:id", s.handleProxyWithParam(s.serviceURLs.Menu, "/api/v1/menu/items/", "id"))
		api.DELETE("/menu/items/:id", s.handleProxyWithParam(s.serviceURLs.Menu, "/api/v1/menu/items/", "id"))
		api.POST("/menu/items/:id/variations", s.handleProxyWithParam(s.serviceURLs.Menu, "/api/v1/menu/items/", "id", "/variations"))
		api.DELETE("/menu/variations/:id", s.handleProxyWithParam(s.serviceURLs.Menu, "/api/v1/menu/variations/", "id"))

		// 席管理（プロキシ）
		api.GET("/locations", s.handleProxy(s.serviceURLs.Location, "/api/v1/locations"))
		api.POST("/locations", s.handleProxy(s.serviceURLs.Location, "/api/v1/locations"))
		api.PUT("/locations/:id", s.handleProxyWithParam(s.serviceURLs.Location, "/api/v1/locations/", "id"))
		api.DELETE("/locations/:id", s.handleProxyWithParam(s.serviceURLs.Location, "/api/v1/locations/", "id"))

		// 管理ダッシュボード（プロキシ）
		api.GET("/dashboard/notifications/active", s.handleProxy(s.serviceURLs.Admin, "/api/v1/dashboard/notifications/active"))
		api.POST("/dashboard/notifications/acknowledge", s.handleProxy(s.serviceURLs.Admin, "/api/v1/dashboard/notifications/acknowledge"))
		api.GET("/dashboard/view", s.handleProxy(s.serviceURLs.Admin, "/api/v1/dashboard/view"))
		api.PUT("/dashboard/view", s.handleProxy(s.serviceURLs.Admin, "/api/v1/dashboard/view"))
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Email はログイン用メールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
}

// handleLogin はスタッフのログインを処理するハンドラを返す。
// メールアドレスとパスワードを検証し、JWTを発行する。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		staff, err := s.store.GetStaffByEmail(c.Request.Context(), req.Email)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが違います"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スタッフの取得に失敗しました"})
			log.Printf("スタッフ取得エラー: %v", err)
			return
		}

		if !verifyPassword(req.Password, staff) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが違います"})
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, staff.ID, staff.Email, staff.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			log.Printf("JWT生成エラー: %v", err)
			return
		}

		if err := s.store.UpdateLastLogin(c.Request.Context(), staff.ID, time.Now().UTC()); err != nil {
			log.Printf("最終ログイン日時の更新に失敗: %v", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"token":    token,
			"staff_id": staff.ID,
			"name":     staff.Name,
			"role":     staff.Role,
		})
	}
}

// handleDevToken は開発用JWTトークンを発行するハンドラを返す。
// 本番環境では無効化すべき。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		staff, err := s.store.GetStaffByEmail(c.Request.Context(), "dev@localhost")
		if errors.Is(err, sql.ErrNoRows) {
			salt, err := newSalt()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "ソルト生成に失敗しました"})
				return
			}
			staff = Staff{
				ID:           uuid.New().String(),
				Name:         "開発スタッフ",
				Email:        "dev@localhost",
				PasswordHash: hashPassword("dev-password", salt),
				Salt:         salt,
				Role:         middleware.RoleAdmin,
				CreatedAt:    time.Now().UTC(),
			}
			if err := s.store.CreateStaff(c.Request.Context(), staff); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "スタッフ作成に失敗しました"})
				log.Printf("開発スタッフ作成エラー: %v", err)
				return
			}
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スタッフ取得に失敗しました"})
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, staff.ID, staff.Email, staff.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			log.Printf("JWT生成エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":    token,
			"staff_id": staff.ID,
		})
	}
}

// handleGetCurrentStaff は認証済みスタッフの情報を返すハンドラを返す。
func (s *Server) handleGetCurrentStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		staffID := middleware.GetStaffID(c)
		if staffID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "スタッフIDが取得できません"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":   staffID,
			"role": middleware.GetRole(c),
		})
	}
}

// handleProxy は指定されたサービスにリクエストをプロキシするハンドラを返す。
func (s *Server) handleProxy(baseURL, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxyURL := baseURL + path
		if c.Request.URL.RawQuery != "" {
			proxyURL += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, c.Request.Method, proxyURL)
	}
}

// handleProxyWithParam はURLパラメータを含むプロキシハンドラを返す。
func (s *Server) handleProxyWithParam(baseURL, pathPrefix, paramName string, pathSuffix ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxyURL := baseURL + pathPrefix + c.Param(paramName)
		for _, suffix := range pathSuffix {
			proxyURL += suffix
		}
		if c.Request.URL.RawQuery != "" {
			proxyURL += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, c.Request.Method, proxyURL)
	}
}

// doProxy はリクエストを内部サービスにプロキシする共通処理。
// JWTトークンとスタッフIDヘッダーを転送する。
func (s *Server) doProxy(c *gin.Context, method, url string) {
	req, err := http.NewRequestWithContext(c.Request.Context(), method, url, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "プロキシリクエストの作成に失敗しました"})
		return
	}

	// 元のリクエストヘッダーを転送
	req.Header.Set("Content-Type", c.GetHeader("Content-Type"))
	req.Header.Set("Authorization", c.GetHeader("Authorization"))
	req.Header.Set("X-Staff-ID", middleware.GetStaffID(c))

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "内部サービスとの通信に失敗しました"})
		log.Printf("プロキシエラー: url=%s, error=%v", url, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "レスポンスの読み取りに失敗しました"})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, body)
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
