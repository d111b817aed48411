package admin

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.yaml.in/yaml/v3"
)

// Config は管理サービスの設定。YAMLファイルから読み込み、環境変数で上書きする。
type Config struct {
	// PollIntervalSeconds はフォールバックポーリングの間隔（秒）。
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	// OrderServiceURL は注文サービスのベースURL。
	OrderServiceURL string `yaml:"order_service_url"`
	// WaitercallServiceURL はスタッフ呼び出しサービスのベースURL。
	WaitercallServiceURL string `yaml:"waitercall_service_url"`
	// LocationServiceURL は席管理サービスのベースURL。
	LocationServiceURL string `yaml:"location_service_url"`
	// Sounds は通知音の設定。
	Sounds SoundConfig `yaml:"sounds"`
	// Telegram は外部スタッフ通知の設定。トークンが空なら無効。
	Telegram TelegramConfig `yaml:"telegram"`
}

// SoundConfig はダッシュボードが再生する通知音ファイルの設定。
type SoundConfig struct {
	// Order は新規注文の通知音。
	Order string `yaml:"order"`
	// WaiterCall はスタッフ呼び出しの通知音。
	WaiterCall string `yaml:"waiter_call"`
}

// TelegramConfig はTelegram Botによるスタッフ通知の設定。
type TelegramConfig struct {
	// Token はBotのAPIトークン。
	Token string `yaml:"token"`
	// ChatID は通知先グループのチャットID。
	ChatID int64 `yaml:"chat_id"`
}

// defaultConfig は設定ファイルがない場合の既定値を返す。
func defaultConfig() Config {
	return Config{
		PollIntervalSeconds:  5,
		OrderServiceURL:      "http://localhost:8083",
		WaitercallServiceURL: "http://localhost:8084",
		LocationServiceURL:   "http://localhost:8082",
		Sounds: SoundConfig{
			Order:      "sounds/new-order.mp3",
			WaiterCall: "sounds/waiter-call.mp3",
		},
	}
}

// LoadConfig は設定ファイルを読み込む。ファイルが存在しない場合は既定値を使う。
// 読み込み後、環境変数による上書きを適用する。
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		log.Printf("設定ファイルが見つからないため既定値を使います: %s", path)
	} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}

	applyEnvOverrides(&cfg)

	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = 5
	}
	return cfg, nil
}

// applyEnvOverrides は環境変数による設定の上書きを適用する。
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORDER_URL"); v != "" {
		cfg.OrderServiceURL = v
	}
	if v := os.Getenv("WAITERCALL_URL"); v != "" {
		cfg.WaitercallServiceURL = v
	}
	if v := os.Getenv("LOCATION_URL"); v != "" {
		cfg.LocationServiceURL = v
	}
	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			cfg.PollIntervalSeconds = seconds
		} else {
			log.Printf("POLL_INTERVAL_SECONDSが不正です: %q", v)
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if chatID, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = chatID
		} else {
			log.Printf("TELEGRAM_CHAT_IDが不正です: %q", v)
		}
	}
}

// ConfigManager は設定を保持し、ファイル変更時の再読み込みを提供する。
type ConfigManager struct {
	// mu は current への並行アクセスを保護するミューテックス。
	mu sync.RWMutex
	// path は設定ファイルのパス。
	path string
	// current は現在有効な設定。
	current Config
}

// NewConfigManager は設定を読み込んでConfigManagerを生成する。
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &ConfigManager{path: path, current: cfg}, nil
}

// Get は現在有効な設定を返す。
func (m *ConfigManager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reload は設定ファイルを再読み込みする。
func (m *ConfigManager) Reload() error {
	cfg, err := LoadConfig(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.current = cfg
	m.mu.Unlock()
	return nil
}

// Watch は設定ファイルの変更を監視し、変更のたびに再読み込みする。
// コンテキストがキャンセルされるまでブロックする。
// 通知音やTelegramの設定は即座に反映されるが、ポーリング間隔と
// フィードURLの変更はサービスの再起動が必要。
func (m *ConfigManager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ファイル監視の初期化に失敗: %w", err)
	}
	defer watcher.Close()

	// エディタの保存はrename+createになることがあるため、ディレクトリを監視する
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		return fmt.Errorf("ファイル監視の登録に失敗: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != m.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := m.Reload(); err != nil {
				log.Printf("設定の再読み込みに失敗: %v", err)
				continue
			}
			log.Printf("設定を再読み込みしました: %s", m.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("ファイル監視エラー: %v", err)
		}
	}
}
