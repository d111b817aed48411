package admin

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/orderhub/pkg/httpclient"
)

// fallbackLocationLabel は席名の解決に失敗したときに使う表示名。
const fallbackLocationLabel = "不明な席"

// Kind はダッシュボード通知の種類を表す。
type Kind string

const (
	// KindOrderPlaced は新規注文の通知。
	KindOrderPlaced Kind = "order_placed"
	// KindWaiterCalled はスタッフ呼び出しの通知。
	KindWaiterCalled Kind = "waiter_called"
)

// Record はライブフィードまたはポーリングから届いた生のレコード。
type Record struct {
	// Kind はレコードの種類。
	Kind Kind
	// ID はレコードの一意識別子。重複判定のキーになる。
	ID string
	// LocationID は発生元の席のID。
	LocationID string
	// Message は顧客からのメッセージ（呼び出しのみ）。
	Message string
	// IsResolved は対応済みかどうか（呼び出しのみ）。
	IsResolved bool
}

// Notification はダッシュボードに提示する通知。
type Notification struct {
	// QueueID はキュー内で通知を識別するID。
	QueueID string `json:"queue_id"`
	// Kind は通知の種類。
	Kind Kind `json:"kind"`
	// SourceRecordID は元になったレコードのID。
	SourceRecordID string `json:"source_record_id"`
	// LocationLabel は発生元の席の表示名。解決できない場合は代替表示名。
	LocationLabel string `json:"location_label"`
	// Message は顧客からのメッセージ。
	Message string `json:"message,omitempty"`
	// Sound はダッシュボードが再生する通知音ファイル。
	Sound string `json:"sound,omitempty"`
	// RequireInteraction は手動で確認するまで通知を保持すべきかどうか。
	RequireInteraction bool `json:"require_interaction"`
	// CreatedAt は通知の作成日時。
	CreatedAt time.Time `json:"created_at"`
}

// LocationResolver は席IDから表示名を解決する。
type LocationResolver interface {
	// LocationLabel は席の表示名を返す。
	LocationLabel(ctx context.Context, locationID string) (string, error)
}

// locationClient は席管理サービスのポイント検索を呼び出すLocationResolver。
type locationClient struct {
	// client は席管理サービスへのHTTPクライアント。
	client *httpclient.Client
}

// NewLocationResolver は席管理サービスを参照するLocationResolverを生成する。
func NewLocationResolver(baseURL string) LocationResolver {
	return &locationClient{client: httpclient.New(baseURL)}
}

// LocationLabel は席の表示名を返す。
func (l *locationClient) LocationLabel(ctx context.Context, locationID string) (string, error) {
	var resp struct {
		Name string `json:"name"`
	}
	if err := l.client.GetJSON(ctx, "/api/v1/locations/"+locationID, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// Deduplicator はライブフィードとポーリングの二重配信を取り除く。
// レコードの種類ごとに既知のIDを記録し、同じレコードの通知を
// 管理画面のセッション中に高々1回に抑える。
type Deduplicator struct {
	// mu は既知ID集合への並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// seenOrders は通知済みの注文ID。削除されることはない。
	seenOrders map[string]struct{}
	// seenCalls は通知済みの呼び出しID。削除されることはない。
	seenCalls map[string]struct{}
	// resolver は席名の解決に使う。
	resolver LocationResolver
	// emit は重複を除いた通知の送り先。
	emit func(Notification)
}

// NewDeduplicator は新しいDeduplicatorを生成する。
func NewDeduplicator(resolver LocationResolver, emit func(Notification)) *Deduplicator {
	return &Deduplicator{
		seenOrders: make(map[string]struct{}),
		seenCalls:  make(map[string]struct{}),
		resolver:   resolver,
		emit:       emit,
	}
}

// Offer は生レコードを受け取り、重複でなければ通知として送出する。
// 対応済みの呼び出しと既知のIDは黙って捨てる。
// 既知IDの記録は席名の解決より先に行うため、解決中に同じレコードが
// 再着信しても二重に通知されることはない。
func (d *Deduplicator) Offer(ctx context.Context, rec Record) {
	if rec.Kind == KindWaiterCalled && rec.IsResolved {
		return
	}

	d.mu.Lock()
	var seen map[string]struct{}
	switch rec.Kind {
	case KindOrderPlaced:
		seen = d.seenOrders
	case KindWaiterCalled:
		seen = d.seenCalls
	default:
		d.mu.Unlock()
		return
	}
	if _, ok := seen[rec.ID]; ok {
		d.mu.Unlock()
		return
	}
	seen[rec.ID] = struct{}{}
	d.mu.Unlock()

	label := fallbackLocationLabel
	if rec.LocationID != "" {
		resolved, err := d.resolver.LocationLabel(ctx, rec.LocationID)
		if err != nil {
			// 解決に失敗しても通知自体は捨てない
			log.Printf("席名の解決に失敗: location_id=%s, error=%v", rec.LocationID, err)
		} else {
			label = resolved
		}
	}

	d.emit(Notification{
		QueueID:        uuid.New().String(),
		Kind:           rec.Kind,
		SourceRecordID: rec.ID,
		LocationLabel:  label,
		Message:        rec.Message,
		CreatedAt:      time.Now().UTC(),
	})
}
