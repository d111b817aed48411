package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// スタッフID等の情報をサービス間で伝播するために使用する。
type JWTClaims struct {
	jwt.RegisteredClaims
	// StaffID は認証済みスタッフの一意識別子。
	StaffID string `json:"staff_id"`
	// Email はスタッフのメールアドレス。
	Email string `json:"email"`
	// Role はスタッフの役割（admin / staff）。
	Role string `json:"role"`
}

// headerKeyStaffID はサービス間でスタッフIDを伝播するためのHTTPヘッダーキー。
const headerKeyStaffID = "X-Staff-ID"

const (
	// RoleAdmin は店舗管理者の役割。メニューや席の管理ができる。
	RoleAdmin = "admin"
	// RoleStaff はホールスタッフの役割。注文と呼び出しの対応ができる。
	RoleStaff = "staff"
)

// GenerateJWT はスタッフ情報からJWTトークンを生成する。
// gatewayサービスがログイン成功後に呼び出す。
func GenerateJWT(secret, staffID, email, role string) (string, error) {
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "orderhub-gateway",
		},
		StaffID: staffID,
		Email:   email,
		Role:    role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "staff_id"、"email"、"role" を設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		c.Set("staff_id", claims.StaffID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Header(headerKeyStaffID, claims.StaffID)
		c.Next()
	}
}

// RequireRole は指定された役割を持つスタッフのみを許可するGinミドルウェアを返す。
// JWTAuthミドルウェアの後に適用する必要がある。
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "この操作を行う権限がありません",
			})
			return
		}
		c.Next()
	}
}

// GetStaffID はGinコンテキストからスタッフIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetStaffID(c *gin.Context) string {
	staffID, _ := c.Get("staff_id")
	if id, ok := staffID.(string); ok {
		return id
	}
	return ""
}

// GetRole はGinコンテキストからスタッフの役割を取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetRole(c *gin.Context) string {
	role, _ := c.Get("role")
	if r, ok := role.(string); ok {
		return r
	}
	return ""
}
