// 呼び出しサービスのエントリポイント。
// タブレットからのスタッフ呼び出し受付、対応状況の管理、
// 呼び出しイベントのSSE配信を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/orderhub/internal/waitercall"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8084"
	}

	server, err := waitercall.NewServer(port)
	if err != nil {
		log.Fatalf("呼び出しサーバーの初期化に失敗: %v", err)
	}

	log.Printf("呼び出しサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("呼び出しサービスの起動に失敗: %v", err)
	}
}
