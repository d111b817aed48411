package loyalty

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Member はロイヤリティ会員のDBレコードを表す。
type Member struct {
	// ID は会員の一意識別子（UUID）。
	ID string `db:"id"`
	// Name は会員の表示名。
	Name string `db:"name"`
	// Email はメールアドレス。
	Email string `db:"email"`
	// Phone は電話番号。
	Phone string `db:"phone"`
	// CreatedAt は会員登録日時。
	CreatedAt time.Time `db:"created_at"`
}

// Store はロイヤリティ会員のデータアクセスを提供する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sqlx.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// CreateMember は会員を新規作成する。
func (s *Store) CreateMember(ctx context.Context, m Member) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, name, email, phone, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Email, m.Phone, m.CreatedAt,
	)
	return err
}

// GetMemberByEmail は会員をメールアドレスで取得する。
func (s *Store) GetMemberByEmail(ctx context.Context, email string) (Member, error) {
	var m Member
	err := s.db.GetContext(ctx, &m, `SELECT * FROM members WHERE email = ?`, email)
	return m, err
}

// ListMembers は全会員を登録日時の昇順で取得する。
func (s *Store) ListMembers(ctx context.Context) ([]Member, error) {
	members := []Member{}
	err := s.db.SelectContext(ctx, &members, `SELECT * FROM members ORDER BY created_at ASC`)
	return members, err
}
