package admin

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadConfig は設定読み込みのテスト。
// 環境変数を操作するためt.Parallel()は使わない。
func TestLoadConfig(t *testing.T) {
	t.Run("設定ファイルがない場合は既定値を使う", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "admin.yaml"))
		if err != nil {
			t.Fatalf("設定の読み込みに失敗: %v", err)
		}
		if cfg.PollIntervalSeconds != 5 {
			t.Errorf("poll_interval_seconds: got %d, want 5", cfg.PollIntervalSeconds)
		}
		if cfg.Sounds.Order == "" || cfg.Sounds.WaiterCall == "" {
			t.Error("通知音の既定値が設定されていません")
		}
	})

	t.Run("設定ファイルの値が既定値を上書きする", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "admin.yaml")
		raw := `
poll_interval_seconds: 10
order_service_url: http://order:8083
sounds:
  waiter_call: sounds/bell.mp3
`
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			t.Fatalf("設定ファイルの作成に失敗: %v", err)
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("設定の読み込みに失敗: %v", err)
		}
		if cfg.PollIntervalSeconds != 10 {
			t.Errorf("poll_interval_seconds: got %d, want 10", cfg.PollIntervalSeconds)
		}
		if cfg.OrderServiceURL != "http://order:8083" {
			t.Errorf("order_service_url: got %s", cfg.OrderServiceURL)
		}
		if cfg.Sounds.WaiterCall != "sounds/bell.mp3" {
			t.Errorf("sounds.waiter_call: got %s", cfg.Sounds.WaiterCall)
		}
		// 未指定の項目は既定値のまま
		if cfg.Sounds.Order != defaultConfig().Sounds.Order {
			t.Errorf("sounds.order: got %s", cfg.Sounds.Order)
		}
	})

	t.Run("不正なYAMLはエラーになる", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "admin.yaml")
		if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
			t.Fatalf("設定ファイルの作成に失敗: %v", err)
		}

		if _, err := LoadConfig(path); err == nil {
			t.Error("不正なYAMLでエラーになりませんでした")
		}
	})

	t.Run("環境変数がファイルの値を上書きする", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "admin.yaml")
		if err := os.WriteFile(path, []byte("order_service_url: http://file:8083\n"), 0o644); err != nil {
			t.Fatalf("設定ファイルの作成に失敗: %v", err)
		}

		t.Setenv("ORDER_URL", "http://env:8083")
		t.Setenv("POLL_INTERVAL_SECONDS", "7")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("設定の読み込みに失敗: %v", err)
		}
		if cfg.OrderServiceURL != "http://env:8083" {
			t.Errorf("order_service_url: got %s, want http://env:8083", cfg.OrderServiceURL)
		}
		if cfg.PollIntervalSeconds != 7 {
			t.Errorf("poll_interval_seconds: got %d, want 7", cfg.PollIntervalSeconds)
		}
	})
}

// TestConfigManagerWatch は設定ファイル監視のテスト。
func TestConfigManagerWatch(t *testing.T) {
	t.Parallel()

	t.Run("ファイルを書き換えると設定が再読み込みされる", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := filepath.Join(dir, "admin.yaml")
		if err := os.WriteFile(path, []byte("poll_interval_seconds: 5\n"), 0o644); err != nil {
			t.Fatalf("設定ファイルの作成に失敗: %v", err)
		}

		manager, err := NewConfigManager(path)
		if err != nil {
			t.Fatalf("ConfigManagerの生成に失敗: %v", err)
		}

		go func() {
			if err := manager.Watch(t.Context()); err != nil {
				t.Errorf("監視の開始に失敗: %v", err)
			}
		}()

		// 監視の開始を待ってから書き換える
		time.Sleep(100 * time.Millisecond)
		if err := os.WriteFile(path, []byte("poll_interval_seconds: 30\n"), 0o644); err != nil {
			t.Fatalf("設定ファイルの書き換えに失敗: %v", err)
		}

		deadline := time.After(3 * time.Second)
		for {
			if manager.Get().PollIntervalSeconds == 30 {
				return
			}
			select {
			case <-deadline:
				t.Fatalf("設定が再読み込みされませんでした: got %d", manager.Get().PollIntervalSeconds)
			case <-time.After(50 * time.Millisecond):
			}
		}
	})
}
