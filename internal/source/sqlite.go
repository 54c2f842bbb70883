package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is an offer source backed by a local sqlite database. Vote
// totals live in their own table so a delta for a never-imported id
// still lands on a zero base instead of failing.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS offers (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		category TEXT,
		seller TEXT,
		condition TEXT NOT NULL,
		price REAL NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		image_url TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_offers_created_at ON offers(created_at);
	CREATE INDEX IF NOT EXISTS idx_offers_category ON offers(category);

	CREATE TABLE IF NOT EXISTS vote_totals (
		offer_id TEXT PRIMARY KEY,
		total INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Import inserts offers and seeds their vote totals. Existing rows with
// the same id are replaced, which makes re-imports of a fixture cheap.
func (s *SQLite) Import(ctx context.Context, offers []*Offer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, o := range offers {
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = time.Now().UTC()
		}
		if !o.Condition.Valid() {
			return fmt.Errorf("sqlite import: offer %s has unknown condition %q", o.ID, o.Condition)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO offers (id, title, description, category, seller, condition, price, currency, image_url, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, o.ID, o.Title, nullString(o.Description), nullString(o.Category), nullString(o.Seller),
			string(o.Condition), o.Price, o.Currency, nullString(o.ImageURL), o.CreatedAt)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO vote_totals (offer_id, total) VALUES (?, ?)
			ON CONFLICT(offer_id) DO UPDATE SET total = excluded.total
		`, o.ID, o.Votes)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLite) FetchPage(ctx context.Context, page, pageSize int) (*Page, error) {
	if page < 0 || pageSize <= 0 {
		return nil, fmt.Errorf("sqlite: invalid page request (page=%d size=%d)", page, pageSize)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offers`).Scan(&total); err != nil {
		return nil, err
	}

	offset := page * pageSize
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.title, o.description, o.category, o.seller, o.condition, o.price, o.currency, o.image_url,
		       COALESCE(v.total, 0), o.created_at
		FROM offers o LEFT JOIN vote_totals v ON v.offer_id = o.id
		ORDER BY o.created_at ASC, o.id ASC
		LIMIT ? OFFSET ?
	`, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []*Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Page{
		Offers:   offers,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  offset+len(offers) < total,
	}, nil
}

func (s *SQLite) FetchByID(ctx context.Context, id string) (*Offer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT o.id, o.title, o.description, o.category, o.seller, o.condition, o.price, o.currency, o.image_url,
		       COALESCE(v.total, 0), o.created_at
		FROM offers o LEFT JOIN vote_totals v ON v.offer_id = o.id
		WHERE o.id = ?
	`, id)

	o, err := scanOffer(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *SQLite) ApplyVoteDelta(ctx context.Context, id string, delta int) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO vote_totals (offer_id, total) VALUES (?, ?)
		ON CONFLICT(offer_id) DO UPDATE SET total = total + excluded.total
		RETURNING total
	`, id, delta).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOffer(row scannable) (*Offer, error) {
	var (
		o                                       Offer
		description, category, seller, imageURL sql.NullString
		condition                               string
	)

	err := row.Scan(&o.ID, &o.Title, &description, &category, &seller, &condition,
		&o.Price, &o.Currency, &imageURL, &o.Votes, &o.CreatedAt)
	if err != nil {
		return nil, err
	}

	o.Description = description.String
	o.Category = category.String
	o.Seller = seller.String
	o.ImageURL = imageURL.String
	o.Condition = Condition(condition)

	return &o, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Source = (*SQLite)(nil)
