package gateway

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/jmoiron/sqlx"
)

// Staff はスタッフアカウントのDBレコードを表す。
type Staff struct {
	// ID はスタッフの一意識別子（UUID）。
	ID string `db:"id"`
	// Name はスタッフの表示名。
	Name string `db:"name"`
	// Email はログイン用メールアドレス。
	Email string `db:"email"`
	// PasswordHash はsalt付きSHA-256ハッシュの16進表現。
	PasswordHash string `db:"password_hash"`
	// Salt はハッシュ計算に使うソルト。
	Salt string `db:"salt"`
	// Role はロール（admin / staff）。
	Role string `db:"role"`
	// CreatedAt はアカウント作成日時。
	CreatedAt time.Time `db:"created_at"`
	// LastLoginAt は最終ログイン日時。未ログインならNULL。
	LastLoginAt sql.NullTime `db:"last_login_at"`
}

// Store はスタッフアカウントのデータアクセスを提供する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sqlx.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// CreateStaff はスタッフアカウントを新規作成する。
func (s *Store) CreateStaff(ctx context.Context, staff Staff) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO staff (id, name, email, password_hash, salt, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		staff.ID, staff.Name, staff.Email, staff.PasswordHash, staff.Salt, staff.Role, staff.CreatedAt,
	)
	return err
}

// GetStaffByEmail はスタッフをメールアドレスで取得する。
func (s *Store) GetStaffByEmail(ctx context.Context, email string) (Staff, error) {
	var staff Staff
	err := s.db.GetContext(ctx, &staff, `SELECT * FROM staff WHERE email = ?`, email)
	return staff, err
}

// UpdateLastLogin は最終ログイン日時を更新する。
func (s *Store) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE staff SET last_login_at = ? WHERE id = ?`, at, id)
	return err
}

// newSalt はパスワードハッシュ用のソルトを生成する。
func newSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// hashPassword はsalt付きSHA-256でパスワードをハッシュ化する。
func hashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}

// verifyPassword はパスワードがハッシュと一致するかを定数時間で検証する。
func verifyPassword(password string, staff Staff) bool {
	got := hashPassword(password, staff.Salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(staff.PasswordHash)) == 1
}
