// Package sseclient はServer-Sent Eventsストリームを購読するクライアントを提供する。
//
// 管理ダッシュボードの通知パイプラインが、注文サービスとスタッフ呼び出しサービスの
// ライブフィードへ接続するために使用する。
package sseclient

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Handler は受信したSSEイベントを処理するコールバック。
// nameはイベント名（event:フィールド）、dataはデータ本体（data:フィールド）。
type Handler func(name string, data []byte)

// Client はSSEストリームの購読クライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	// ストリーム接続を維持するため、タイムアウトは設定しない。
	httpClient *http.Client
}

// New は新しいSSE購読クライアントを生成する。
func New() *Client {
	return &Client{
		httpClient: &http.Client{},
	}
}

// Subscribe は指定URLのSSEストリームへ接続し、受信イベントごとにfnを呼び出す。
// コンテキストがキャンセルされるか、サーバーが接続を閉じるまでブロックする。
// コンテキストのキャンセルによる切断はエラーとして扱わずnilを返す。
func (c *Client) Subscribe(ctx context.Context, url string, fn Handler) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("SSEリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("SSEストリームへの接続に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SSEストリームがエラーを返却: status=%d", resp.StatusCode)
	}

	var (
		eventName string
		data      bytes.Buffer
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// 空行はイベントの区切り
		if line == "" {
			if data.Len() > 0 {
				fn(eventName, bytes.TrimSuffix(data.Bytes(), []byte("\n")))
			}
			eventName = ""
			data.Reset()
			continue
		}

		// コメント行（keep-alive等）は無視する
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			eventName = value
		case "data":
			data.WriteString(value)
			data.WriteString("\n")
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("SSEストリームの読み取りに失敗: %w", err)
	}
	return nil
}
