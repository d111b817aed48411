// Package changefeed はレコード挿入イベントのプロセス内ファンアウトを提供する。
//
// 注文サービスとスタッフ呼び出しサービスがレコード挿入時にイベントを発行し、
// SSEストリームのハンドラが購読してクライアントへ配信する。
// Publishはブロックしない。購読者が遅い場合はイベントを取りこぼす可能性があるが、
// 管理ダッシュボード側のポーリングフォールバックが補完する前提の設計である。
package changefeed

import (
	"sync"

	"github.com/nao1215/orderhub/pkg/event"
)

// Hub はイベントのプロセス内ファンアウトを行う。
type Hub struct {
	// mu は購読者マップへの並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// subs は購読者のチャネル。キーは購読ごとに採番されるID。
	subs map[uint64]chan *event.Event
	// nextID は次に採番する購読ID。
	nextID uint64
}

// NewHub は新しいHubを生成する。
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan *event.Event)}
}

// Publish は全購読者にイベントを配信する。
// 購読者のバッファが満杯の場合、その購読者への配信はスキップされる。
func (h *Hub) Publish(ev *event.Event) {
	h.mu.Lock()
	chs := make([]chan *event.Event, 0, len(h.subs))
	for _, ch := range h.subs {
		chs = append(chs, ch)
	}
	h.mu.Unlock()

	for _, ch := range chs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe は新しい購読を開始する。
// 返されたチャネルからイベントを受信し、不要になったら解除関数を呼び出す。
func (h *Hub) Subscribe(buffer int) (<-chan *event.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan *event.Event, buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

// SubscriberCount は現在の購読者数を返す。
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
