package order

import "github.com/jmoiron/sqlx"

// schema は注文サービスのテーブル定義。
const schema = `
CREATE TABLE IF NOT EXISTS orders (
	-- 注文の一意識別子（UUID）
	id TEXT PRIMARY KEY,
	-- 注文元の席のID
	location_id TEXT NOT NULL,
	-- 注文ステータス（placed / accepted / served / cancelled）
	status TEXT NOT NULL DEFAULT 'placed',
	-- 合計金額（円）。サーバー側で明細から算出する
	total_price INTEGER NOT NULL,
	-- 注文の作成日時
	created_at DATETIME NOT NULL,
	-- 注文の最終更新日時
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);

CREATE TABLE IF NOT EXISTS order_items (
	-- 明細の一意識別子（UUID）
	id TEXT PRIMARY KEY,
	-- 所属する注文のID
	order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	-- 注文されたメニュー項目のID
	menu_item_id TEXT NOT NULL,
	-- 注文時点の料理名（メニュー変更の影響を受けないようスナップショットする）
	name TEXT NOT NULL,
	-- 選択されたバリエーション名（未選択なら空文字）
	variation TEXT NOT NULL DEFAULT '',
	-- 注文時点の単価（円）
	unit_price INTEGER NOT NULL,
	-- 数量
	quantity INTEGER NOT NULL,
	-- 客からの備考（例: "ソース抜き"）
	note TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);
`

// initSchema はデータベースのスキーマを初期化する。
func initSchema(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	return err
}
