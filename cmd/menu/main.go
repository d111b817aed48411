// メニューサービスのエントリポイント。
// カテゴリ・メニュー項目・バリエーションの管理と、
// タブレット向けのメニューツリー配信を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/orderhub/internal/menu"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server, err := menu.NewServer(port)
	if err != nil {
		log.Fatalf("メニューサーバーの初期化に失敗: %v", err)
	}

	log.Printf("メニューサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("メニューサービスの起動に失敗: %v", err)
	}
}
