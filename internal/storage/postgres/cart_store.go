package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// cartLineRecord — представление строки корзины в JSONB-колонке carts.lines.
type cartLineRecord struct {
	BookID         int64           `json:"book_id"`
	BookName       string          `json:"book_name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Quantity       int             `json:"quantity"`
	AvailableStock int             `json:"available_stock"`
	ImageURL       string          `json:"image_url,omitempty"`
}

// CartStore хранит корзины сессий в таблице carts, чтобы они переживали
// рестарт и были общими для нескольких экземпляров сервиса.
type CartStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewCartStore создаёт хранилище корзин; ttl <= 0 отключает истечение.
func NewCartStore(store *Store, ttl time.Duration) *CartStore {
	return &CartStore{db: store.DB(), ttl: ttl}
}

func (s *CartStore) Load(ctx context.Context, sessionID string) ([]domain.CartLine, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT lines
		FROM carts
		WHERE session_id = $1
		  AND (expires_at IS NULL OR expires_at > $2)
	`, strings.TrimSpace(sessionID), time.Now().UTC()).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []domain.CartLine{}, nil
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}

	var records []cartLineRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode cart lines: %w", err)
	}

	lines := make([]domain.CartLine, 0, len(records))
	for _, rec := range records {
		lines = append(lines, domain.CartLine{
			BookID:         rec.BookID,
			BookName:       rec.BookName,
			UnitPrice:      rec.UnitPrice,
			Quantity:       rec.Quantity,
			AvailableStock: rec.AvailableStock,
			ImageURL:       rec.ImageURL,
		})
	}
	return lines, nil
}

// Save перезаписывает корзину и продлевает её срок; пустая корзина удаляется.
func (s *CartStore) Save(ctx context.Context, sessionID string, lines []domain.CartLine) error {
	if len(lines) == 0 {
		return s.Delete(ctx, sessionID)
	}

	records := make([]cartLineRecord, 0, len(lines))
	for _, line := range lines {
		records = append(records, cartLineRecord{
			BookID:         line.BookID,
			BookName:       line.BookName,
			UnitPrice:      line.UnitPrice,
			Quantity:       line.Quantity,
			AvailableStock: line.AvailableStock,
			ImageURL:       line.ImageURL,
		})
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode cart lines: %w", err)
	}

	now := time.Now().UTC()
	var expiresAt sql.NullTime
	if s.ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(s.ttl), Valid: true}
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO carts (session_id, lines, expires_at, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (session_id) DO UPDATE
		SET lines = EXCLUDED.lines,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = EXCLUDED.updated_at
	`, strings.TrimSpace(sessionID), string(raw), expiresAt, now)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (s *CartStore) Delete(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM carts WHERE session_id = $1`, strings.TrimSpace(sessionID)); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// DeleteExpired удаляет корзины, истёкшие к моменту before.
func (s *CartStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM carts WHERE expires_at IS NOT NULL AND expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired carts: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("carts rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.CartStore = (*CartStore)(nil)
