package location

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Location は席（テーブル）のDBレコードを表す。
type Location struct {
	// ID は席の一意識別子（UUID）。
	ID string `db:"id"`
	// Name は席の表示名。
	Name string `db:"name"`
	// Capacity は席の定員。
	Capacity int64 `db:"capacity"`
	// IsActive は席が利用可能かどうか。
	IsActive bool `db:"is_active"`
	// CreatedAt は席の作成日時。
	CreatedAt time.Time `db:"created_at"`
}

// Store は席のデータアクセスを提供する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sqlx.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// CreateLocation は席を新規作成する。
func (s *Store) CreateLocation(ctx context.Context, loc Location) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO locations (id, name, capacity, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		loc.ID, loc.Name, loc.Capacity, loc.IsActive, loc.CreatedAt,
	)
	return err
}

// GetLocationByID は席をIDで取得する。
func (s *Store) GetLocationByID(ctx context.Context, id string) (Location, error) {
	var loc Location
	err := s.db.GetContext(ctx, &loc, `SELECT * FROM locations WHERE id = ?`, id)
	return loc, err
}

// ListLocations は全席を作成日時の昇順で取得する。
func (s *Store) ListLocations(ctx context.Context) ([]Location, error) {
	locations := []Location{}
	err := s.db.SelectContext(ctx, &locations, `SELECT * FROM locations ORDER BY created_at ASC`)
	return locations, err
}

// UpdateLocation は席の表示名・定員・利用可否を更新する。
func (s *Store) UpdateLocation(ctx context.Context, loc Location) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE locations SET name = ?, capacity = ?, is_active = ? WHERE id = ?`,
		loc.Name, loc.Capacity, loc.IsActive, loc.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteLocation は席を削除する。
func (s *Store) DeleteLocation(ctx context.Context, id string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
