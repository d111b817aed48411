package order

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Order は注文のDBレコードを表す。
type Order struct {
	// ID は注文の一意識別子（UUID）。
	ID string `db:"id"`
	// LocationID は注文元の席のID。
	LocationID string `db:"location_id"`
	// Status は注文ステータス。
	Status string `db:"status"`
	// TotalPrice は合計金額（円）。
	TotalPrice int64 `db:"total_price"`
	// CreatedAt は注文の作成日時。
	CreatedAt time.Time `db:"created_at"`
	// UpdatedAt は注文の最終更新日時。
	UpdatedAt time.Time `db:"updated_at"`
}

// OrderItem は注文明細のDBレコードを表す。
type OrderItem struct {
	// ID は明細の一意識別子（UUID）。
	ID string `db:"id"`
	// OrderID は所属する注文のID。
	OrderID string `db:"order_id"`
	// MenuItemID は注文されたメニュー項目のID。
	MenuItemID string `db:"menu_item_id"`
	// Name は注文時点の料理名。
	Name string `db:"name"`
	// Variation は選択されたバリエーション名。
	Variation string `db:"variation"`
	// UnitPrice は注文時点の単価（円）。
	UnitPrice int64 `db:"unit_price"`
	// Quantity は数量。
	Quantity int64 `db:"quantity"`
	// Note は客からの備考。
	Note string `db:"note"`
}

// Store は注文のデータアクセスを提供する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sqlx.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// CreateOrder は注文と明細をトランザクション内で作成する。
func (s *Store) CreateOrder(ctx context.Context, o Order, items []OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, location_id, status, total_price, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.LocationID, o.Status, o.TotalPrice, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("注文の挿入に失敗: %w", err)
	}

	for _, item := range items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, menu_item_id, name, variation, unit_price, quantity, note)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.OrderID, item.MenuItemID, item.Name, item.Variation, item.UnitPrice, item.Quantity, item.Note,
		)
		if err != nil {
			return fmt.Errorf("明細の挿入に失敗: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID は注文をIDで取得する。
func (s *Store) GetOrderByID(ctx context.Context, id string) (Order, error) {
	var o Order
	err := s.db.GetContext(ctx, &o, `SELECT * FROM orders WHERE id = ?`, id)
	return o, err
}

// ListOrderItems は注文に属する明細を取得する。
func (s *Store) ListOrderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	items := []OrderItem{}
	err := s.db.SelectContext(ctx, &items,
		`SELECT * FROM order_items WHERE order_id = ? ORDER BY id ASC`, orderID)
	return items, err
}

// ListOrdersSince は指定時刻より後に作成された注文を作成日時の昇順で取得する。
// フォールバックポーリングと管理画面の注文一覧が使用する。
func (s *Store) ListOrdersSince(ctx context.Context, since time.Time) ([]Order, error) {
	orders := []Order{}
	err := s.db.SelectContext(ctx, &orders,
		`SELECT * FROM orders WHERE created_at > ? ORDER BY created_at ASC`, since)
	return orders, err
}

// UpdateOrderStatus は注文ステータスと更新日時を変更する。
func (s *Store) UpdateOrderStatus(ctx context.Context, id, status string, updatedAt time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		status, updatedAt, id,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
