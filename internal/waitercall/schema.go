package waitercall

import "github.com/jmoiron/sqlx"

// schema はスタッフ呼び出しサービスのテーブル定義。
const schema = `
CREATE TABLE IF NOT EXISTS waiter_calls (
	-- 呼び出しの一意識別子（UUID）
	id TEXT PRIMARY KEY,
	-- 呼び出し元の席のID
	location_id TEXT NOT NULL,
	-- 顧客からの任意メッセージ
	message TEXT NOT NULL DEFAULT '',
	-- 対応済みかどうか
	is_resolved INTEGER NOT NULL DEFAULT 0,
	-- 呼び出しの作成日時
	created_at DATETIME NOT NULL,
	-- 対応完了日時（未対応ならNULL）
	resolved_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_waiter_calls_created_at ON waiter_calls(created_at);
`

// initSchema はデータベースのスキーマを初期化する。
func initSchema(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	return err
}
