package gateway

import "github.com/jmoiron/sqlx"

// schema はゲートウェイサービスのテーブル定義。
const schema = `
CREATE TABLE IF NOT EXISTS staff (
	-- スタッフの一意識別子（UUID）
	id TEXT PRIMARY KEY,
	-- スタッフの表示名
	name TEXT NOT NULL,
	-- ログイン用メールアドレス（一意）
	email TEXT NOT NULL UNIQUE,
	-- パスワードハッシュ（salt付きSHA-256の16進表現）
	password_hash TEXT NOT NULL,
	-- ハッシュ計算に使うソルト
	salt TEXT NOT NULL,
	-- ロール（admin / staff）
	role TEXT NOT NULL DEFAULT 'staff',
	-- アカウント作成日時
	created_at DATETIME NOT NULL,
	-- 最終ログイン日時（未ログインならNULL）
	last_login_at DATETIME
);
`

// initSchema はデータベースのスキーマを初期化する。
func initSchema(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	return err
}
