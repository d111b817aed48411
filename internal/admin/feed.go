package admin

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/nao1215/orderhub/pkg/event"
	"github.com/nao1215/orderhub/pkg/httpclient"
	"github.com/nao1215/orderhub/pkg/sseclient"
)

// reconnectDelay はSSEストリーム切断後の再接続までの待ち時間。
const reconnectDelay = 3 * time.Second

// Feed は注文とスタッフ呼び出しの変更を取り込むイベントソース。
// 各サービスのSSEストリームを購読しつつ、配信漏れに備えて
// 固定間隔のポーリングで同じ期間を繰り返し照会する。
// 重複の除去はDeduplicatorに委ねる。
type Feed struct {
	// orders は注文サービスへのHTTPクライアント。
	orders *httpclient.Client
	// calls はスタッフ呼び出しサービスへのHTTPクライアント。
	calls *httpclient.Client
	// stream はSSE購読クライアント。
	stream *sseclient.Client
	// orderStreamURL は注文ライブフィードのURL。
	orderStreamURL string
	// callStreamURL は呼び出しライブフィードのURL。
	callStreamURL string
	// interval はフォールバックポーリングの間隔。
	interval time.Duration
	// watermark はポーリング窓の起点。起動時に一度だけ決まり、以後動かない。
	// 窓を進めないことで、取りこぼしの検出をDeduplicatorの既知ID集合に
	// 一本化している。
	watermark time.Time
	// dedup はレコードの送り先。
	dedup *Deduplicator
	// cancel はバックグラウンドゴルーチンの停止に使う。
	cancel context.CancelFunc
	// wg は全ゴルーチンの終了を待つ。
	wg sync.WaitGroup
}

// NewFeed は新しいFeedを生成する。
func NewFeed(cfg Config, dedup *Deduplicator) *Feed {
	return &Feed{
		orders:         httpclient.New(cfg.OrderServiceURL),
		calls:          httpclient.New(cfg.WaitercallServiceURL),
		stream:         sseclient.New(),
		orderStreamURL: cfg.OrderServiceURL + "/api/v1/orders/stream",
		callStreamURL:  cfg.WaitercallServiceURL + "/api/v1/calls/stream",
		interval:       time.Duration(cfg.PollIntervalSeconds) * time.Second,
		dedup:          dedup,
	}
}

// Start はライブフィードの購読とフォールバックポーリングを開始する。
// ポーリング窓の起点はこの時点の時刻で固定される。
func (f *Feed) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.watermark = time.Now().UTC()

	f.wg.Add(3)
	go func() {
		defer f.wg.Done()
		f.pollLoop(ctx)
	}()
	go func() {
		defer f.wg.Done()
		f.streamLoop(ctx, f.orderStreamURL)
	}()
	go func() {
		defer f.wg.Done()
		f.streamLoop(ctx, f.callStreamURL)
	}()
}

// Stop は購読とポーリングを停止し、全ゴルーチンの終了を待つ。
// 戻った後にレコードが配送されることはない。
func (f *Feed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	f.wg.Wait()
}

// pollLoop は起動直後に1回、以後は固定間隔でポーリングする。
func (f *Feed) pollLoop(ctx context.Context) {
	f.pollOnce(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.pollOnce(ctx)
		}
	}
}

// orderRecord は注文サービスの一覧APIのレスポンス行。
type orderRecord struct {
	// ID は注文の一意識別子。
	ID string `json:"id"`
	// LocationID は注文元の席のID。
	LocationID string `json:"location_id"`
}

// callRecord はスタッフ呼び出しサービスの一覧APIのレスポンス行。
type callRecord struct {
	// ID は呼び出しの一意識別子。
	ID string `json:"id"`
	// LocationID は呼び出し元の席のID。
	LocationID string `json:"location_id"`
	// Message は顧客からのメッセージ。
	Message string `json:"message"`
	// IsResolved は対応済みかどうか。
	IsResolved bool `json:"is_resolved"`
}

// pollOnce は固定の起点以降の注文と未対応呼び出しを照会し、
// 作成順にDeduplicatorへ渡す。失敗したサイクルはログを残して飛ばす。
func (f *Feed) pollOnce(ctx context.Context) {
	since := url.QueryEscape(f.watermark.Format(time.RFC3339))

	var orders []orderRecord
	if err := f.orders.GetJSON(ctx, "/api/v1/orders?since="+since, &orders); err != nil {
		if ctx.Err() == nil {
			log.Printf("注文のポーリングに失敗: %v", err)
		}
	} else {
		for _, o := range orders {
			f.dedup.Offer(ctx, Record{
				Kind:       KindOrderPlaced,
				ID:         o.ID,
				LocationID: o.LocationID,
			})
		}
	}

	var calls []callRecord
	if err := f.calls.GetJSON(ctx, "/api/v1/calls?unresolved=true&since="+since, &calls); err != nil {
		if ctx.Err() == nil {
			log.Printf("呼び出しのポーリングに失敗: %v", err)
		}
	} else {
		for _, c := range calls {
			f.dedup.Offer(ctx, Record{
				Kind:       KindWaiterCalled,
				ID:         c.ID,
				LocationID: c.LocationID,
				Message:    c.Message,
				IsResolved: c.IsResolved,
			})
		}
	}
}

// streamLoop はSSEストリームを購読し、切断されたら再接続する。
func (f *Feed) streamLoop(ctx context.Context, streamURL string) {
	for {
		err := f.stream.Subscribe(ctx, streamURL, func(name string, data []byte) {
			f.handleStreamEvent(ctx, data)
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("ライブフィードの接続が切れました: url=%s, error=%v", streamURL, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// handleStreamEvent はSSEで届いたイベントをレコードに変換してDeduplicatorへ渡す。
// 解釈できないイベントはログを残して捨てる。
func (f *Feed) handleStreamEvent(ctx context.Context, data []byte) {
	var ev event.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("ライブフィードのイベント解析に失敗: %v", err)
		return
	}

	switch ev.EventType {
	case event.TypeOrderPlaced:
		placed, err := event.DecodeData[event.OrderPlacedData](&ev)
		if err != nil {
			log.Printf("注文イベントの解析に失敗: %v", err)
			return
		}
		f.dedup.Offer(ctx, Record{
			Kind:       KindOrderPlaced,
			ID:         placed.OrderID,
			LocationID: placed.LocationID,
		})
	case event.TypeWaiterCalled:
		called, err := event.DecodeData[event.WaiterCalledData](&ev)
		if err != nil {
			log.Printf("呼び出しイベントの解析に失敗: %v", err)
			return
		}
		f.dedup.Offer(ctx, Record{
			Kind:       KindWaiterCalled,
			ID:         called.CallID,
			LocationID: called.LocationID,
			Message:    called.Message,
			IsResolved: called.IsResolved,
		})
	default:
		// ステータス変更などの通知対象外イベントは無視する
	}
}
