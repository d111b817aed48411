package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/nao1215/orderhub/pkg/changefeed"
	"github.com/nao1215/orderhub/pkg/middleware"
)

// Server は管理ダッシュボードサービスのHTTPサーバー。
// 通知パイプライン（フィード取り込み・重複除去・FIFOキュー・提示）を
// プロセス内で動かし、その状態をJSONとSSEでダッシュボードに公開する。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// config は設定の保持と再読み込みを行う。
	config *ConfigManager
	// presenter は通知の提示と表示セクションを管理する。
	presenter *Presenter
	// feed は注文と呼び出しのイベントソース。
	feed *Feed
	// hub はダッシュボードSSE購読者へのファンアウト。
	hub *changefeed.Hub
}

// NewServer は新しい管理サーバーを生成する。
// 設定ファイルを読み込み、通知パイプラインを組み立てる。
func NewServer(port string) (*Server, error) {
	configPath := os.Getenv("ADMIN_CONFIG_PATH")
	if configPath == "" {
		configPath = "/etc/orderhub/admin.yaml"
	}

	manager, err := NewConfigManager(configPath)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	cfg := manager.Get()

	var pusher Pusher
	if cfg.Telegram.Token != "" {
		p, err := NewTelegramPusher(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			// 外部通知が使えなくてもダッシュボードは動かす
			log.Printf("Telegram通知を無効化します: %v", err)
		} else {
			pusher = p
		}
	}

	hub := changefeed.NewHub()
	presenter := NewPresenter(manager, hub, pusher)
	dedup := NewDeduplicator(NewLocationResolver(cfg.LocationServiceURL), presenter.Enqueue)
	feed := NewFeed(cfg, dedup)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:    router,
		port:      port,
		config:    manager,
		presenter: presenter,
		feed:      feed,
		hub:       hub,
	}
	s.setupRoutes()

	return s, nil
}

// Start は通知パイプラインと設定ファイルの監視を開始する。
func (s *Server) Start(ctx context.Context) {
	go func() {
		if err := s.config.Watch(ctx); err != nil {
			log.Printf("設定ファイルの監視を停止しました: %v", err)
		}
	}()
	s.feed.Start(ctx)
}

// Stop は通知パイプラインを停止する。以後、通知が配送されることはない。
func (s *Server) Stop() {
	s.feed.Stop()
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
// 認証はゲートウェイで行われるため、ここでは適用しない。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1/dashboard")
	{
		api.GET("/notifications/active", s.handleActiveNotification())
		api.POST("/notifications/acknowledge", s.handleAcknowledge())
		api.GET("/view", s.handleGetView())
		api.PUT("/view", s.handleSetView())
		api.GET("/stream", s.handleStream())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "admin"})
	})
}

// handleActiveNotification は提示中の通知を返すハンドラを返す。
// 通知がない場合は204を返す。
func (s *Server) handleActiveNotification() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, ok := s.presenter.Active()
		if !ok {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"notification": n,
			"pending":      s.presenter.Pending(),
		})
	}
}

// handleAcknowledge は提示中の通知を確認するハンドラを返す。
// 通知の種類に応じた表示セクションを返し、次の通知があれば提示される。
func (s *Server) handleAcknowledge() gin.HandlerFunc {
	return func(c *gin.Context) {
		view, ok := s.presenter.Acknowledge()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "提示中の通知がありません"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"view": view})
	}
}

// handleGetView は現在の表示セクションを返すハンドラを返す。
func (s *Server) handleGetView() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"view": s.presenter.CurrentView()})
	}
}

// setViewRequest は表示セクション切り替えリクエストのJSON構造。
type setViewRequest struct {
	// View は切り替え先の表示セクション。
	View View `json:"view" binding:"required"`
}

// handleSetView は表示セクションを手動で切り替えるハンドラを返す。
func (s *Server) handleSetView() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setViewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if err := s.presenter.SetView(req.View); err != nil {
			if errors.Is(err, ErrInvalidView) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "表示セクションの切り替えに失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"view": req.View})
	}
}

// handleStream は通知の提示をダッシュボードへ配信するSSEストリームを返す。
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
