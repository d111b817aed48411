package admin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nao1215/orderhub/pkg/changefeed"
	"github.com/nao1215/orderhub/pkg/event"
)

// View は管理ダッシュボードで表示中のセクション。
type View string

const (
	// ViewOrders は注文一覧のセクション。
	ViewOrders View = "orders"
	// ViewWaiterCalls はスタッフ呼び出し一覧のセクション。
	ViewWaiterCalls View = "waiter_calls"
	// ViewMenu はメニュー管理のセクション。
	ViewMenu View = "menu"
	// ViewLocations は席管理のセクション。
	ViewLocations View = "locations"
	// ViewMembers は会員一覧のセクション。
	ViewMembers View = "members"
)

// ErrInvalidView は未知の表示セクションが指定されたことを表す。
var ErrInvalidView = errors.New("不正な表示セクションです")

// validView は表示セクションとして有効な値かどうかを返す。
func validView(v View) bool {
	switch v {
	case ViewOrders, ViewWaiterCalls, ViewMenu, ViewLocations, ViewMembers:
		return true
	}
	return false
}

// Presenter は通知の提示とダッシュボードの表示セクションを管理する。
// 通知がアクティブになるとSSEでダッシュボードに配信し、
// 設定されていればスタッフ端末への外部通知も送る。
type Presenter struct {
	// mu は表示セクションへの並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// view は現在の表示セクション。
	view View
	// queue は通知のFIFOキュー。
	queue *Queue
	// hub はダッシュボードSSE購読者へのファンアウト。
	hub *changefeed.Hub
	// pusher は外部スタッフ通知の送信先。nilなら無効。
	pusher Pusher
	// config は通知音などの設定の参照先。
	config *ConfigManager
}

// NewPresenter は新しいPresenterを生成する。初期セクションは注文一覧。
func NewPresenter(config *ConfigManager, hub *changefeed.Hub, pusher Pusher) *Presenter {
	p := &Presenter{
		view:   ViewOrders,
		hub:    hub,
		pusher: pusher,
		config: config,
	}
	p.queue = NewQueue(p.onActivate)
	return p
}

// Enqueue は通知をキューに追加する。Deduplicatorの送出先として使う。
func (p *Presenter) Enqueue(n Notification) {
	p.queue.Enqueue(n)
}

// decorate は通知の種類に応じた通知音と保持フラグを付与する。
func (p *Presenter) decorate(n Notification) Notification {
	cfg := p.config.Get()
	switch n.Kind {
	case KindWaiterCalled:
		n.Sound = cfg.Sounds.WaiterCall
		// 呼び出しは見落とすと客を待たせるため、手動確認まで保持する
		n.RequireInteraction = true
	default:
		n.Sound = cfg.Sounds.Order
	}
	return n
}

// onActivate は通知が提示状態に昇格したときに呼ばれる。
// ダッシュボードへのSSE配信と外部スタッフ通知を行う。
// どちらの失敗もダッシュボードの描画には影響させない。
func (p *Presenter) onActivate(n Notification) {
	decorated := p.decorate(n)

	ev, err := event.New(event.TypeNotificationActivated, decorated)
	if err != nil {
		log.Printf("通知イベントの生成に失敗: %v", err)
	} else {
		p.hub.Publish(ev)
	}

	if p.pusher != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := p.pusher.Push(ctx, pushText(decorated)); err != nil {
				log.Printf("外部スタッフ通知の送信に失敗: %v", err)
			}
		}()
	}
}

// pushText は外部スタッフ通知の本文を組み立てる。
func pushText(n Notification) string {
	switch n.Kind {
	case KindWaiterCalled:
		if n.Message != "" {
			return fmt.Sprintf("【呼び出し】%s: %s", n.LocationLabel, n.Message)
		}
		return fmt.Sprintf("【呼び出し】%s", n.LocationLabel)
	default:
		return fmt.Sprintf("【新規注文】%s", n.LocationLabel)
	}
}

// Active は現在提示中の通知を返す。
func (p *Presenter) Active() (Notification, bool) {
	n, ok := p.queue.Active()
	if !ok {
		return Notification{}, false
	}
	return p.decorate(n), true
}

// Pending は提示待ちの通知数を返す。
func (p *Presenter) Pending() int {
	return p.queue.Pending()
}

// Acknowledge は提示中の通知を確認し、通知の種類に応じたセクションに遷移する。
// 新規注文なら注文一覧、呼び出しなら呼び出し一覧を開く。
// 確認後、待機中の通知があれば次が提示される。
func (p *Presenter) Acknowledge() (View, bool) {
	// セクションの切り替えはキューを進める前に行う。
	// 次の通知の提示イベントより先に遷移先が確定している必要がある。
	n, ok := p.queue.Active()
	if !ok {
		return p.CurrentView(), false
	}

	p.mu.Lock()
	switch n.Kind {
	case KindWaiterCalled:
		p.view = ViewWaiterCalls
	default:
		p.view = ViewOrders
	}
	view := p.view
	p.mu.Unlock()

	p.queue.Acknowledge()
	return view, true
}

// CurrentView は現在の表示セクションを返す。
func (p *Presenter) CurrentView() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// SetView は表示セクションを手動で切り替える。
func (p *Presenter) SetView(v View) error {
	if !validView(v) {
		return ErrInvalidView
	}
	p.mu.Lock()
	p.view = v
	p.mu.Unlock()
	return nil
}
