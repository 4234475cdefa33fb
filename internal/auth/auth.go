// Package auth implements HTTP basic authentication against a users table,
// hashing with unsalted SHA-256 and comparing in constant time.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DefaultUsername and DefaultPassword seed the first principal on boot if
// the users table is empty.
const (
	DefaultUsername = "admin"
	DefaultPassword = "password"
)

// HashPassword returns the hex-encoded unsalted SHA-256 digest of password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Store is the users-table access layer.
type Store struct {
	db *sqlx.DB
}

// NewStore builds a Store over an existing connection.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// EnsureDefaultUser seeds DefaultUsername/DefaultPassword if no principal
// exists yet.
func (s *Store) EnsureDefaultUser(ctx context.Context, logger *zap.Logger) error {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2)`,
		DefaultUsername, HashPassword(DefaultPassword))
	if err != nil {
		return fmt.Errorf("seed default user: %w", err)
	}
	logger.Info("seeded default admin principal")
	return nil
}

// passwordHash looks up the stored hash for username. The bool is false if
// no such user exists.
func (s *Store) passwordHash(ctx context.Context, username string) (string, bool) {
	var hash string
	err := s.db.GetContext(ctx, &hash, `SELECT password_hash FROM users WHERE username = $1`, username)
	if err != nil {
		return "", false
	}
	return hash, true
}

// Verify checks username/password against the stored hash in constant
// time.
func (s *Store) Verify(ctx context.Context, username, password string) bool {
	hash, ok := s.passwordHash(ctx, username)
	if !ok {
		// Still hash the supplied password so a missing user does not
		// return faster than a wrong password (reduces timing leakage).
		_ = HashPassword(password)
		return false
	}
	candidate := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(hash)) == 1
}

// Middleware returns a gin handler enforcing HTTP basic auth for read
// endpoints, challenging with 401 on failure.
func Middleware(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok || !store.Verify(c.Request.Context(), username, password) {
			c.Header("WWW-Authenticate", `Basic realm="scaler"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
