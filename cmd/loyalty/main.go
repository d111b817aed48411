// 会員サービスのエントリポイント。
// 会計時のメールアドレス登録による会員加入と、
// スタッフ向けの会員一覧を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/orderhub/internal/loyalty"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8085"
	}

	server, err := loyalty.NewServer(port)
	if err != nil {
		log.Fatalf("会員サーバーの初期化に失敗: %v", err)
	}

	log.Printf("会員サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("会員サービスの起動に失敗: %v", err)
	}
}
