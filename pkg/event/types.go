package event

import (
	"encoding/json"
	"time"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeOrderPlaced は新しい注文が確定したことを表す。
	TypeOrderPlaced Type = "OrderPlaced"
	// TypeOrderStatusChanged は注文のステータスが変更されたことを表す。
	TypeOrderStatusChanged Type = "OrderStatusChanged"

	// TypeWaiterCalled はテーブルからスタッフが呼び出されたことを表す。
	TypeWaiterCalled Type = "WaiterCalled"
	// TypeWaiterCallResolved はスタッフ呼び出しが対応済みになったことを表す。
	TypeWaiterCallResolved Type = "WaiterCallResolved"

	// TypeMemberJoined はロイヤリティ会員が新規登録したことを表す。
	TypeMemberJoined Type = "MemberJoined"

	// TypeNotificationActivated は管理ダッシュボードで通知がアクティブになったことを表す。
	TypeNotificationActivated Type = "NotificationActivated"
)

// Event はサービス間のライブフィードで配信されるイベントレコードを表す。
// 各サービスはレコード挿入時にこの構造体をSSEストリームへ発行する。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// OrderPlacedData はOrderPlacedイベントのデータ。
// 注文サービスのライブフィードとポーリングAPIの両方で同じ形式を使う。
type OrderPlacedData struct {
	// OrderID は注文の一意識別子。
	OrderID string `json:"order_id"`
	// LocationID は注文元テーブルの識別子。
	LocationID string `json:"location_id"`
	// TotalPrice は注文の合計金額（円）。
	TotalPrice int64 `json:"total_price"`
	// CreatedAt は注文の作成日時。
	CreatedAt time.Time `json:"created_at"`
}

// OrderStatusChangedData はOrderStatusChangedイベントのデータ。
type OrderStatusChangedData struct {
	// OrderID は注文の一意識別子。
	OrderID string `json:"order_id"`
	// Status は変更後のステータス。
	Status string `json:"status"`
}

// WaiterCalledData はWaiterCalledイベントのデータ。
type WaiterCalledData struct {
	// CallID は呼び出しの一意識別子。
	CallID string `json:"call_id"`
	// LocationID は呼び出し元テーブルの識別子。
	LocationID string `json:"location_id"`
	// Message は顧客からの任意メッセージ。
	Message string `json:"message,omitempty"`
	// IsResolved は対応済みかどうか。
	IsResolved bool `json:"is_resolved"`
	// CreatedAt は呼び出しの作成日時。
	CreatedAt time.Time `json:"created_at"`
}

// WaiterCallResolvedData はWaiterCallResolvedイベントのデータ。
type WaiterCallResolvedData struct {
	// CallID は呼び出しの一意識別子。
	CallID string `json:"call_id"`
}

// MemberJoinedData はMemberJoinedイベントのデータ。
type MemberJoinedData struct {
	// MemberID は会員の一意識別子。
	MemberID string `json:"member_id"`
	// Name は会員の表示名。
	Name string `json:"name"`
}
