package admin

import "sync"

// Queue は通知を到着順に1件ずつ提示するFIFOキュー。
// アクティブな通知はスタッフが確認するまで保持され、自動では進まない。
type Queue struct {
	// mu はキュー状態への並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// backlog は提示待ちの通知。
	backlog []Notification
	// active は現在提示中の通知。なければnil。
	active *Notification
	// onActivate は通知がアクティブになったときに呼ばれる。
	onActivate func(Notification)
}

// NewQueue は新しいQueueを生成する。
// onActivate は通知が提示状態に昇格するたびに（ロックの外で）呼ばれる。
func NewQueue(onActivate func(Notification)) *Queue {
	return &Queue{onActivate: onActivate}
}

// Enqueue は通知を末尾に追加する。提示中の通知がなければ直ちに先頭を昇格する。
func (q *Queue) Enqueue(n Notification) {
	q.mu.Lock()
	q.backlog = append(q.backlog, n)
	activated := q.promoteLocked()
	q.mu.Unlock()

	if activated != nil && q.onActivate != nil {
		q.onActivate(*activated)
	}
}

// Acknowledge は提示中の通知を確認済みにして取り除き、
// 待機中の通知があれば次の先頭を昇格する。確認した通知を返す。
// 提示中の通知がない場合は何もせずfalseを返す。
func (q *Queue) Acknowledge() (Notification, bool) {
	q.mu.Lock()
	if q.active == nil {
		q.mu.Unlock()
		return Notification{}, false
	}
	acked := *q.active
	q.active = nil
	activated := q.promoteLocked()
	q.mu.Unlock()

	if activated != nil && q.onActivate != nil {
		q.onActivate(*activated)
	}
	return acked, true
}

// promoteLocked は提示中の通知がなければ待ち行列の先頭を昇格する。
// 呼び出し側がmuを保持していること。
func (q *Queue) promoteLocked() *Notification {
	if q.active != nil || len(q.backlog) == 0 {
		return nil
	}
	head := q.backlog[0]
	q.backlog = q.backlog[1:]
	q.active = &head
	return &head
}

// Active は現在提示中の通知を返す。
func (q *Queue) Active() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == nil {
		return Notification{}, false
	}
	return *q.active, true
}

// Pending は提示待ちの通知数を返す。
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}
