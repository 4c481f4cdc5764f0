package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Service issues, validates, and revokes anonymous visitor tokens. A token
// identifies one browser session; everything a visitor owns is removed when
// the token is revoked or expires.
type Service struct {
	db             *sql.DB
	tokenTTL       time.Duration
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
}

// NewService constructs an auth service with the supplied token lifetime.
func NewService(db *sql.DB, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:             db,
		tokenTTL:       ttl,
		cookieName:     "visitor_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

// OpenVisitor creates a visitor record and mints its token.
func (s *Service) OpenVisitor(ctx context.Context) (int64, string, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO visitors (created_at, expires_at) VALUES (?, ?)`,
		now, expiresAt,
	)
	if err != nil {
		return 0, "", fmt.Errorf("create visitor: %w", err)
	}
	visitorID, err := res.LastInsertId()
	if err != nil {
		return 0, "", fmt.Errorf("visitor id: %w", err)
	}
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return 0, "", err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO visitor_tokens (token, visitor_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, visitorID, now, expiresAt,
		)
		if err == nil {
			return visitorID, token, nil
		}
	}
	return 0, "", errors.New("could not issue token")
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

// ValidateToken verifies the token exists and has not expired, returning the
// visitor id.
func (s *Service) ValidateToken(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, errors.New("token required")
	}
	var visitorID int64
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT visitor_id, expires_at FROM visitor_tokens WHERE token = ?`, token,
	).Scan(&visitorID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.New("invalid token")
		}
		return 0, fmt.Errorf("lookup token: %w", err)
	}
	if time.Now().UTC().After(expires) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM visitor_tokens WHERE token = ?`, token)
		return 0, errors.New("token expired")
	}
	return visitorID, nil
}

// CloseVisitor deletes the visitor row; tokens, messages, uploads, and
// artifact records cascade away with it.
func (s *Service) CloseVisitor(ctx context.Context, visitorID int64) error {
	if visitorID <= 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM visitors WHERE id = ?`, visitorID); err != nil {
		return fmt.Errorf("close visitor: %w", err)
	}
	return nil
}

// ExpiredVisitors lists visitor ids whose session has lapsed.
func (s *Service) ExpiredVisitors(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM visitors WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list expired visitors: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan visitor id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the cookie name storing visitor tokens.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
