package waitercall

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite"

	"github.com/nao1215/orderhub/pkg/changefeed"
	"github.com/nao1215/orderhub/pkg/event"
	"github.com/nao1215/orderhub/pkg/middleware"
)

// defaultStaleAfter は未対応の呼び出しを自動で対応済みにするまでの経過時間。
const defaultStaleAfter = 30 * time.Minute

// Server はスタッフ呼び出しサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はスタッフ呼び出しのデータアクセスオブジェクト。
	store *Store
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// hub はライブフィード購読者へのファンアウト。
	hub *changefeed.Hub
	// limiter は席ごとの呼び出し頻度制限。
	limiter *callLimiter
	// cron は放置された呼び出しを自動解決する定期ジョブ。
	cron *cron.Cron
	// staleAfter は自動解決までの経過時間。
	staleAfter time.Duration
}

// NewServer は新しいスタッフ呼び出しサーバーを生成する。
// SQLiteデータベースの初期化と自動解決ジョブの登録を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("WAITERCALL_DB_PATH")
	if dbPath == "" {
		dbPath = "/data/waitercall.db"
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
		router:     router,
		port:       port,
		store:      NewStore(sqlDB),
		db:         sqlDB,
		hub:        changefeed.NewHub(),
		limiter:    newCallLimiter(callInterval(), 3),
		cron:       cron.New(),
		staleAfter: defaultStaleAfter,
	}
	s.setupRoutes()

	if _, err := s.cron.AddFunc("@every 5m", s.resolveStaleCalls); err != nil {
		return nil, fmt.Errorf("自動解決ジョブの登録に失敗: %w", err)
	}

	return s, nil
}

// callInterval は席ごとの呼び出し許可間隔を環境変数から取得する。
func callInterval() time.Duration {
	raw := os.Getenv("CALL_INTERVAL_SECONDS")
	if raw == "" {
		return 10 * time.Second
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		log.Printf("CALL_INTERVAL_SECONDSが不正です: %q", raw)
		return 10 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// Run はHTTPサーバーと自動解決ジョブを起動する。
func (s *Server) Run() error {
	s.cron.Start()
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// resolveStaleCalls は放置された未対応の呼び出しをまとめて対応済みにする。
func (s *Server) resolveStaleCalls() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	affected, err := s.store.ResolveStaleCalls(ctx, now.Add(-s.staleAfter), now)
	if err != nil {
		log.Printf("放置呼び出しの自動解決に失敗: %v", err)
		return
	}
	if affected > 0 {
		log.Printf("放置された呼び出し%d件を自動解決しました", affected)
	}
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		calls := api.Group("/calls")
		{
			// 客席タブレットからのスタッフ呼び出し
			calls.POST("", s.handleCreate())
			// 管理ダッシュボードのポーリングと一覧表示
			calls.GET("", s.handleList())
			// 管理ダッシュボードのライブフィード
			calls.GET("/stream", s.handleStream())
			calls.PUT("/:id/resolve", s.handleResolve())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "waitercall"})
	})
}

// createCallRequest は呼び出し作成リクエストのJSON構造。
type createCallRequest struct {
	// LocationID は呼び出し元の席のID。
	LocationID string `json:"location_id" binding:"required"`
	// Message は顧客からの任意メッセージ。
	Message string `json:"message"`
}

// callResponse は呼び出しのJSONレスポンス構造。
type callResponse struct {
	// ID は呼び出しの一意識別子。
	ID string `json:"id"`
	// LocationID は呼び出し元の席のID。
	LocationID string `json:"location_id"`
	// Message は顧客からの任意メッセージ。
	Message string `json:"message,omitempty"`
	// IsResolved は対応済みかどうか。
	IsResolved bool `json:"is_resolved"`
	// CreatedAt は作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
	// ResolvedAt は対応完了日時（RFC3339形式）。未対応なら省略。
	ResolvedAt string `json:"resolved_at,omitempty"`
}

// toCallResponse はDB行をJSONレスポンスに変換する。
func toCallResponse(call WaiterCall) callResponse {
	resp := callResponse{
		ID:         call.ID,
		LocationID: call.LocationID,
		Message:    call.Message,
		IsResolved: call.IsResolved,
		CreatedAt:  call.CreatedAt.Format(time.RFC3339),
	}
	if call.ResolvedAt.Valid {
		resp.ResolvedAt = call.ResolvedAt.Time.Format(time.RFC3339)
	}
	return resp
}

// handleCreate はスタッフ呼び出しを作成するハンドラを返す。
// 同じ席からの連続呼び出しはレート制限により拒否される。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createCallRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if !s.limiter.Allow(req.LocationID) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "呼び出しが多すぎます。しばらくお待ちください"})
			return
		}

		call := WaiterCall{
			ID:         uuid.New().String(),
			LocationID: req.LocationID,
			Message:    req.Message,
			IsResolved: false,
			CreatedAt:  time.Now().UTC(),
		}

		if err := s.store.CreateCall(c.Request.Context(), call); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "呼び出しの作成に失敗しました"})
			log.Printf("呼び出し作成エラー: %v", err)
			return
		}

		s.publishEvent(event.TypeWaiterCalled, event.WaiterCalledData{
			CallID:     call.ID,
			LocationID: call.LocationID,
			Message:    call.Message,
			IsResolved: false,
			CreatedAt:  call.CreatedAt,
		})

		c.JSON(http.StatusCreated, toCallResponse(call))
	}
}

// handleList は呼び出し一覧を返すハンドラを返す。
// sinceパラメータ（RFC3339）とunresolved=trueを指定すると、その時刻より後の
// 未対応呼び出しのみを作成日時の昇順で返す。フォールバックポーリングはこの形式で呼び出す。
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
		unresolvedOnly := c.Query("unresolved") == "true"

		calls, err := s.store.ListCallsSince(c.Request.Context(), since, unresolvedOnly)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "呼び出し一覧の取得に失敗しました"})
			log.Printf("呼び出し一覧取得エラー: %v", err)
			return
		}

		responses := make([]callResponse, 0, len(calls))
		for _, call := range calls {
			responses = append(responses, toCallResponse(call))
		}
		c.JSON(http.StatusOK, responses)
	}
}

// handleResolve は呼び出しを対応済みにするハンドラを返す。
func (s *Server) handleResolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		affected, err := s.store.ResolveCall(c.Request.Context(), id, time.Now().UTC())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "呼び出しの更新に失敗しました"})
			log.Printf("呼び出し更新エラー: %v", err)
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "未対応の呼び出しが見つかりません"})
			return
		}

		s.publishEvent(event.TypeWaiterCallResolved, event.WaiterCallResolvedData{CallID: id})

		c.JSON(http.StatusOK, gin.H{"message": "呼び出しを対応済みにしました"})
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
// 発行の失敗は呼び出し処理に影響させず、ログのみ残す。
func (s *Server) publishEvent(eventType event.Type, data any) {
	ev, err := event.New(eventType, data)
	if err != nil {
		log.Printf("イベント生成エラー: %v", err)
		return
	}
	s.hub.Publish(ev)
}
