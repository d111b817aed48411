package location

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS locations (
    -- 席（テーブル）の一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 席の表示名（例: "テーブル2"、"カウンター1"）
    name TEXT NOT NULL,
    -- 席の定員
    capacity INTEGER NOT NULL DEFAULT 4,
    -- 席が利用可能かどうか
    is_active INTEGER NOT NULL DEFAULT 1,
    -- 席の作成日時
    created_at DATETIME NOT NULL
);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
