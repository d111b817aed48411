package menu

import (
	"context"
	"embed"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nao1215/orderhub/pkg/migration"
)

// migrationsFS はメニューサービスのスキーママイグレーションファイル。
//
//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// Category はメニューカテゴリのDBレコードを表す。
type Category struct {
	// ID はカテゴリの一意識別子（UUID）。
	ID string `db:"id"`
	// Name はカテゴリ名。
	Name string `db:"name"`
	// SortOrder は表示順。
	SortOrder int64 `db:"sort_order"`
	// CreatedAt はカテゴリの作成日時。
	CreatedAt time.Time `db:"created_at"`
}

// MenuItem はメニュー項目のDBレコードを表す。
type MenuItem struct {
	// ID はメニュー項目の一意識別子（UUID）。
	ID string `db:"id"`
	// CategoryID は所属カテゴリのID。
	CategoryID string `db:"category_id"`
	// Name は料理名。
	Name string `db:"name"`
	// Description は料理の説明。
	Description string `db:"description"`
	// Price は価格（円）。
	Price int64 `db:"price"`
	// ImageURL は料理画像のURL。
	ImageURL string `db:"image_url"`
	// IsAvailable は提供可能かどうか。
	IsAvailable bool `db:"is_available"`
	// CreatedAt はメニュー項目の作成日時。
	CreatedAt time.Time `db:"created_at"`
}

// Variation はメニュー項目のバリエーション（サイズ等）のDBレコードを表す。
type Variation struct {
	// ID はバリエーションの一意識別子（UUID）。
	ID string `db:"id"`
	// MenuItemID は所属メニュー項目のID。
	MenuItemID string `db:"menu_item_id"`
	// Name はバリエーション名。
	Name string `db:"name"`
	// PriceDelta は基本価格への加算額（円）。
	PriceDelta int64 `db:"price_delta"`
}

// Store はメニューのデータアクセスを提供する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sqlx.DB
}

// NewStore は新しいStoreを生成し、マイグレーションを適用する。
func NewStore(db *sqlx.DB) (*Store, error) {
	if err := migration.Run(db.DB, migrationsFS, "migrations"); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// CreateCategory はカテゴリを新規作成する。
func (s *Store) CreateCategory(ctx context.Context, cat Category) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, sort_order, created_at) VALUES (?, ?, ?, ?)`,
		cat.ID, cat.Name, cat.SortOrder, cat.CreatedAt,
	)
	return err
}

// ListCategories は全カテゴリを表示順で取得する。
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	categories := []Category{}
	err := s.db.SelectContext(ctx, &categories,
		`SELECT * FROM categories ORDER BY sort_order ASC, created_at ASC`)
	return categories, err
}

// DeleteCategory はカテゴリを削除する。所属するメニュー項目も連鎖削除される。
func (s *Store) DeleteCategory(ctx context.Context, id string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CreateMenuItem はメニュー項目を新規作成する。
func (s *Store) CreateMenuItem(ctx context.Context, item MenuItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO menu_items (id, category_id, name, description, price, image_url, is_available, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.CategoryID, item.Name, item.Description, item.Price, item.ImageURL, item.IsAvailable, item.CreatedAt,
	)
	return err
}

// GetMenuItemByID はメニュー項目をIDで取得する。
func (s *Store) GetMenuItemByID(ctx context.Context, id string) (MenuItem, error) {
	var item MenuItem
	err := s.db.GetContext(ctx, &item, `SELECT * FROM menu_items WHERE id = ?`, id)
	return item, err
}

// ListMenuItems は全メニュー項目を作成日時の昇順で取得する。
func (s *Store) ListMenuItems(ctx context.Context) ([]MenuItem, error) {
	items := []MenuItem{}
	err := s.db.SelectContext(ctx, &items, `SELECT * FROM menu_items ORDER BY created_at ASC`)
	return items, err
}

// UpdateMenuItem はメニュー項目を更新する。
func (s *Store) UpdateMenuItem(ctx context.Context, item MenuItem) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE menu_items SET category_id = ?, name = ?, description = ?, price = ?, image_url = ?, is_available = ?
		 WHERE id = ?`,
		item.CategoryID, item.Name, item.Description, item.Price, item.ImageURL, item.IsAvailable, item.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteMenuItem はメニュー項目を削除する。
func (s *Store) DeleteMenuItem(ctx context.Context, id string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM menu_items WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CreateVariation はバリエーションを新規作成する。
func (s *Store) CreateVariation(ctx context.Context, v Variation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO variations (id, menu_item_id, name, price_delta) VALUES (?, ?, ?, ?)`,
		v.ID, v.MenuItemID, v.Name, v.PriceDelta,
	)
	return err
}

// ListVariationsByMenuItemID はメニュー項目に属するバリエーションを取得する。
func (s *Store) ListVariationsByMenuItemID(ctx context.Context, menuItemID string) ([]Variation, error) {
	variations := []Variation{}
	err := s.db.SelectContext(ctx, &variations,
		`SELECT * FROM variations WHERE menu_item_id = ? ORDER BY name ASC`, menuItemID)
	return variations, err
}

// DeleteVariation はバリエーションを削除する。
func (s *Store) DeleteVariation(ctx context.Context, id string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM variations WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
