package waitercall

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// WaiterCall はスタッフ呼び出しのDBレコードを表す。
type WaiterCall struct {
	// ID は呼び出しの一意識別子（UUID）。
	ID string `db:"id"`
	// LocationID は呼び出し元の席のID。
	LocationID string `db:"location_id"`
	// Message は顧客からの任意メッセージ。
	Message string `db:"message"`
	// IsResolved は対応済みかどうか。
	IsResolved bool `db:"is_resolved"`
	// CreatedAt は呼び出しの作成日時。
	CreatedAt time.Time `db:"created_at"`
	// ResolvedAt は対応完了日時。未対応ならNULL。
	ResolvedAt sql.NullTime `db:"resolved_at"`
}

// Store はスタッフ呼び出しのデータアクセスを提供する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sqlx.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// CreateCall は呼び出しを新規作成する。
func (s *Store) CreateCall(ctx context.Context, call WaiterCall) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO waiter_calls (id, location_id, message, is_resolved, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		call.ID, call.LocationID, call.Message, call.IsResolved, call.CreatedAt,
	)
	return err
}

// GetCallByID は呼び出しをIDで取得する。
func (s *Store) GetCallByID(ctx context.Context, id string) (WaiterCall, error) {
	var call WaiterCall
	err := s.db.GetContext(ctx, &call, `SELECT * FROM waiter_calls WHERE id = ?`, id)
	return call, err
}

// ListCallsSince は指定時刻より後に作成された呼び出しを作成日時の昇順で取得する。
// unresolvedOnly が真の場合は未対応の呼び出しのみを返す。
// フォールバックポーリングと管理画面の呼び出し一覧が使用する。
func (s *Store) ListCallsSince(ctx context.Context, since time.Time, unresolvedOnly bool) ([]WaiterCall, error) {
	calls := []WaiterCall{}
	query := `SELECT * FROM waiter_calls WHERE created_at > ?`
	if unresolvedOnly {
		query += ` AND is_resolved = 0`
	}
	query += ` ORDER BY created_at ASC`
	err := s.db.SelectContext(ctx, &calls, query, since)
	return calls, err
}

// ResolveCall は呼び出しを対応済みにする。既に対応済みの場合は0を返す。
func (s *Store) ResolveCall(ctx context.Context, id string, resolvedAt time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE waiter_calls SET is_resolved = 1, resolved_at = ? WHERE id = ? AND is_resolved = 0`,
		resolvedAt, id,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ResolveStaleCalls は cutoff より前に作成された未対応の呼び出しを
// まとめて対応済みにし、対象の件数を返す。定期ジョブが使用する。
func (s *Store) ResolveStaleCalls(ctx context.Context, cutoff, resolvedAt time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE waiter_calls SET is_resolved = 1, resolved_at = ? WHERE is_resolved = 0 AND created_at < ?`,
		resolvedAt, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
