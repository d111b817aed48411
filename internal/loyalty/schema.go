package loyalty

import "github.com/jmoiron/sqlx"

// schema はロイヤリティサービスのテーブル定義。
const schema = `
CREATE TABLE IF NOT EXISTS members (
	-- 会員の一意識別子（UUID）
	id TEXT PRIMARY KEY,
	-- 会員の表示名
	name TEXT NOT NULL,
	-- メールアドレス（重複登録を防ぐため一意）
	email TEXT NOT NULL UNIQUE,
	-- 電話番号
	phone TEXT NOT NULL DEFAULT '',
	-- 会員登録日時
	created_at DATETIME NOT NULL
);
`

// initSchema はデータベースのスキーマを初期化する。
func initSchema(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	return err
}
