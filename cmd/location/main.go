// 席管理サービスのエントリポイント。
// テーブルやカウンターなどの席情報と、タブレット紐付け用の
// 識別子を管理する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/orderhub/internal/location"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	server, err := location.NewServer(port)
	if err != nil {
		log.Fatalf("席管理サーバーの初期化に失敗: %v", err)
	}

	log.Printf("席管理サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("席管理サービスの起動に失敗: %v", err)
	}
}
