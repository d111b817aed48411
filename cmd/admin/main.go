// 管理ダッシュボードサービスのエントリポイント。
// 注文と呼び出しのイベントを取り込み、重複を除去した通知を
// FIFOで提示する通知パイプラインと、その状態を公開するAPIを担当する。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/orderhub/internal/admin"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8086"
	}

	server, err := admin.NewServer(port)
	if err != nil {
		log.Fatalf("管理サーバーの初期化に失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server.Start(ctx)
	defer server.Stop()

	log.Printf("管理サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("管理サービスの起動に失敗: %v", err)
	}
}
