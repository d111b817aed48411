package admin

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"
)

// Pusher はダッシュボード外のスタッフ端末への通知送信を抽象化する。
type Pusher interface {
	// Push は通知本文を送信する。
	Push(ctx context.Context, text string) error
}

// TelegramPusher はTelegram Botでスタッフのグループチャットに通知を送る。
type TelegramPusher struct {
	// bot はTelegram Botクライアント。
	bot *tele.Bot
	// chat は通知先のグループチャット。
	chat *tele.Chat
}

// NewTelegramPusher は新しいTelegramPusherを生成する。
// トークンの検証のためTelegram APIに接続する。
func NewTelegramPusher(token string, chatID int64) (*TelegramPusher, error) {
	bot, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("Telegram Botの初期化に失敗: %w", err)
	}
	return &TelegramPusher{
		bot:  bot,
		chat: &tele.Chat{ID: chatID},
	}, nil
}

// Push は通知本文をグループチャットに送信する。
func (t *TelegramPusher) Push(_ context.Context, text string) error {
	if _, err := t.bot.Send(t.chat, text); err != nil {
		return fmt.Errorf("Telegramへの送信に失敗: %w", err)
	}
	return nil
}
